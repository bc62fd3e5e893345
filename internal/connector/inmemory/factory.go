package inmemory

import (
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/connector"
)

// Factory creates in-memory workspaces for a writable repository.
type Factory struct {
	opts     []Option
	settings settings
}

var _ connector.WorkspaceFactory = (*Factory)(nil)

// NewFactory returns a factory; opts apply to every workspace it creates.
func NewFactory(opts ...Option) *Factory {
	return &Factory{opts: opts, settings: newSettings(opts)}
}

// NewWorkspace returns an empty workspace. Nothing is persisted until the
// workspace is published or a transaction on it commits.
func (f *Factory) NewWorkspace(name string, rootUUID uuid.UUID) (connector.Workspace, error) {
	return New(name, rootUUID, f.opts...), nil
}

// PublishWorkspace persists the committed snapshot of a newly created workspace.
func (f *Factory) PublishWorkspace(ws connector.Workspace) error {
	w, ok := ws.(*Workspace)
	if !ok {
		return fmt.Errorf("inmemory: cannot publish foreign workspace %T", ws)
	}
	if f.settings.persister == nil {
		return nil
	}
	return f.settings.persister.SaveWorkspace(w.name, w.Snapshot())
}

// DestroyWorkspace drops any persisted snapshot of ws.
func (f *Factory) DestroyWorkspace(ws connector.Workspace) error {
	f.settings.logger.Debug("dropping in-memory workspace", slog.String("workspace", ws.Name()))
	if f.settings.persister == nil {
		return nil
	}
	return f.settings.persister.DeleteWorkspace(ws.Name())
}
