package connector

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// WorkspaceFactory creates and destroys workspaces for a writable repository.
type WorkspaceFactory interface {
	// NewWorkspace prepares an empty workspace; it is not yet registered.
	NewWorkspace(name string, rootUUID uuid.UUID) (Workspace, error)
	// PublishWorkspace is called once a created workspace has been committed.
	PublishWorkspace(ws Workspace) error
	// DestroyWorkspace releases a destroyed or abandoned workspace.
	DestroyWorkspace(ws Workspace) error
}

// Repository holds the workspaces of one source. All workspaces share the
// root UUID. A repository without a factory cannot create or destroy
// workspaces.
type Repository struct {
	source      string
	rootUUID    uuid.UUID
	defaultName string
	workspaces  *Registry[string, Workspace]
	factory     WorkspaceFactory
	logger      *slog.Logger

	// writeMu is held by the one transaction currently writing.
	writeMu sync.Mutex
}

// NewRepository returns an empty repository. factory may be nil.
func NewRepository(source string, rootUUID uuid.UUID, defaultName string, factory WorkspaceFactory, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{
		source:      source,
		rootUUID:    rootUUID,
		defaultName: defaultName,
		workspaces:  NewRegistry[string, Workspace](),
		factory:     factory,
		logger:      logger,
	}
}

// SourceName returns the owning source name.
func (r *Repository) SourceName() string { return r.source }

// RootUUID returns the UUID shared by every workspace root.
func (r *Repository) RootUUID() uuid.UUID { return r.rootUUID }

// DefaultWorkspaceName returns the name used when a request names no workspace.
func (r *Repository) DefaultWorkspaceName() string { return r.defaultName }

// IsWritable reports whether workspaces can be created and destroyed.
func (r *Repository) IsWritable() bool { return r.factory != nil }

// Register adds an already built workspace, replacing one with the same name.
func (r *Repository) Register(ws Workspace) {
	r.workspaces.Put(ws.Name(), ws)
}

// Init makes sure the default workspace and every predefined workspace exist,
// creating missing ones through the factory.
func (r *Repository) Init(predefined ...string) error {
	names := append([]string{r.defaultName}, predefined...)
	for _, name := range names {
		if _, ok := r.workspaces.Get(name); ok {
			continue
		}
		if r.factory == nil {
			return fmt.Errorf("connector: workspace %q is not registered and source %q cannot create workspaces", name, r.source)
		}
		ws, err := r.factory.NewWorkspace(name, r.rootUUID)
		if err != nil {
			return fmt.Errorf("connector: create workspace %q: %w", name, err)
		}
		if !r.workspaces.PutIfAbsent(name, ws) {
			// registered concurrently; the other workspace owns the name
			continue
		}
		if err := r.factory.PublishWorkspace(ws); err != nil {
			r.workspaces.Delete(name)
			return fmt.Errorf("connector: publish workspace %q: %w", name, err)
		}
		r.logger.Debug("workspace initialised", slog.String("source", r.source), slog.String("workspace", name))
	}
	return nil
}

// Workspace returns a committed workspace.
func (r *Repository) Workspace(name string) (Workspace, bool) {
	return r.workspaces.Get(name)
}

// WorkspaceCount returns the number of committed workspaces.
func (r *Repository) WorkspaceCount() int { return r.workspaces.Len() }

// WorkspaceNames returns the committed workspace names in order.
func (r *Repository) WorkspaceNames() []string {
	return r.workspaces.Keys()
}

// Begin starts a transaction. Transactions must end with Commit or Rollback.
func (r *Repository) Begin() *Transaction {
	return &Transaction{
		id:        uuid.New(),
		repo:      r,
		views:     make(map[string]WorkspaceTx),
		direct:    make(map[string]WritableWorkspace),
		created:   make(map[string]Workspace),
		destroyed: make(map[string]Workspace),
	}
}
