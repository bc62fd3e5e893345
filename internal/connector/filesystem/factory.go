package filesystem

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/connector"
)

// Factory maps workspaces to sub-directories of a base directory.
type Factory struct {
	base   string
	extra  ExtraProperties
	logger *slog.Logger

	mu sync.Mutex
	// pending holds workspaces created but not yet published, and whether
	// their directory existed beforehand.
	pending map[string]bool
}

var _ connector.WorkspaceFactory = (*Factory)(nil)

// NewFactory creates base if needed and returns a factory rooted there.
func NewFactory(base string, extra ExtraProperties, logger *slog.Logger) (*Factory, error) {
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("filesystem: resolve base: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: create base: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Factory{base: abs, extra: extra, logger: logger, pending: make(map[string]bool)}, nil
}

// Base returns the absolute base directory.
func (f *Factory) Base() string { return f.base }

// Open returns a workspace for every existing sub-directory of the base.
func (f *Factory) Open(rootUUID uuid.UUID) ([]*Workspace, error) {
	entries, err := os.ReadDir(f.base)
	if err != nil {
		return nil, fmt.Errorf("filesystem: list base: %w", err)
	}
	var out []*Workspace
	for _, e := range entries {
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		ws, err := NewWorkspace(e.Name(), filepath.Join(f.base, e.Name()), rootUUID, f.extra, f.logger)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, nil
}

// NewWorkspace creates the directory for name; an existing directory is
// reused and survives if the workspace is abandoned before publication.
func (f *Factory) NewWorkspace(name string, rootUUID uuid.UUID) (connector.Workspace, error) {
	if name == "" || name == "." || name == ".." || strings.ContainsAny(name, `/\`) || strings.HasPrefix(name, ".") {
		return nil, apperr.InvalidRequest("workspace name %q cannot be used as a directory", name)
	}
	dir := filepath.Join(f.base, name)
	_, statErr := os.Stat(dir)
	existed := statErr == nil
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: create workspace dir: %w", err)
	}
	ws, err := NewWorkspace(name, dir, rootUUID, f.extra, f.logger)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.pending[name] = existed
	f.mu.Unlock()
	return ws, nil
}

// PublishWorkspace marks the workspace directory as owned by the repository.
func (f *Factory) PublishWorkspace(ws connector.Workspace) error {
	f.mu.Lock()
	delete(f.pending, ws.Name())
	f.mu.Unlock()
	return nil
}

// DestroyWorkspace deletes the workspace directory. An unpublished workspace
// whose directory existed before NewWorkspace is released without deleting it.
func (f *Factory) DestroyWorkspace(ws connector.Workspace) error {
	w, ok := ws.(*Workspace)
	if !ok {
		return fmt.Errorf("filesystem: cannot destroy foreign workspace %T", ws)
	}
	f.mu.Lock()
	existed, pending := f.pending[w.name]
	delete(f.pending, w.name)
	f.mu.Unlock()
	if pending && existed {
		f.logger.Debug("filesystem: abandoned workspace keeps its directory", slog.String("workspace", w.name))
		return nil
	}
	if err := os.RemoveAll(w.root); err != nil {
		return fmt.Errorf("filesystem: remove workspace dir: %w", err)
	}
	f.logger.Info("filesystem: workspace removed", slog.String("workspace", w.name))
	return nil
}
