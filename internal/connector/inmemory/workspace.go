// Package inmemory provides writable, transactional workspaces kept in memory.
// Committed trees are immutable and published through an atomic pointer, so
// readers never lock. Each transaction works on a copy of the node map.
package inmemory

import (
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

// DefaultLockTimeout is used when neither the request nor the workspace sets one.
const DefaultLockTimeout = 5 * time.Second

// Persister stores committed workspace snapshots.
type Persister interface {
	SaveWorkspace(name string, nodes []*connector.Node) error
	DeleteWorkspace(name string) error
}

// Searcher runs full-text searches over persisted snapshots.
type Searcher interface {
	SearchWorkspace(workspace, expression string, limit int) (*connector.QueryResults, error)
}

// tree maps canonical path strings to nodes.
type tree struct {
	nodes map[string]*connector.Node
}

func (t *tree) get(p graph.Path) (*connector.Node, bool) {
	n, ok := t.nodes[p.String()]
	return n, ok
}

func (t *tree) clone() *tree {
	out := &tree{nodes: make(map[string]*connector.Node, len(t.nodes))}
	for k, v := range t.nodes {
		out.nodes[k] = v
	}
	return out
}

// sorted returns the nodes in path order.
func (t *tree) sorted() []*connector.Node {
	out := make([]*connector.Node, 0, len(t.nodes))
	for _, n := range t.nodes {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path().String() < out[j].Path().String() })
	return out
}

// Workspace is an in-memory workspace.
type Workspace struct {
	name        string
	root        uuid.UUID
	state       atomic.Pointer[tree]
	persister   Persister
	searcher    Searcher
	locks       *lockTable
	lockTimeout time.Duration
	logger      *slog.Logger
}

// Option configures a Workspace or Factory.
type Option func(*settings)

type settings struct {
	persister   Persister
	searcher    Searcher
	lockTimeout time.Duration
	logger      *slog.Logger
}

// WithPersister saves every committed snapshot through p.
func WithPersister(p Persister) Option {
	return func(s *settings) { s.persister = p }
}

// WithSearcher answers FullTextSearch requests through s. Results reflect
// the last committed snapshot.
func WithSearcher(s Searcher) Option {
	return func(st *settings) { st.searcher = s }
}

// WithLockTimeout sets the default lock acquisition timeout.
func WithLockTimeout(d time.Duration) Option {
	return func(s *settings) { s.lockTimeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *settings) { s.logger = l }
}

func newSettings(opts []Option) settings {
	s := settings{lockTimeout: DefaultLockTimeout, logger: slog.Default()}
	for _, opt := range opts {
		opt(&s)
	}
	if s.lockTimeout <= 0 {
		s.lockTimeout = DefaultLockTimeout
	}
	return s
}

// New returns a workspace holding only a root node identified by root.
func New(name string, root uuid.UUID, opts ...Option) *Workspace {
	s := newSettings(opts)
	w := &Workspace{
		name:        name,
		root:        root,
		persister:   s.persister,
		searcher:    s.searcher,
		locks:       newLockTable(),
		lockTimeout: s.lockTimeout,
		logger:      s.logger,
	}
	rootNode := connector.NewNode(graph.RootPath(), root, nil, nil)
	w.state.Store(&tree{nodes: map[string]*connector.Node{"/": rootNode}})
	return w
}

// Name returns the workspace name.
func (w *Workspace) Name() string { return w.name }

// Node returns the committed node at path.
func (w *Workspace) Node(path graph.Path) (*connector.Node, error) {
	return lookup(w.state.Load(), w.name, path)
}

// LowestExistingPath returns the deepest committed ancestor-or-self of path.
func (w *Workspace) LowestExistingPath(path graph.Path) graph.Path {
	return lowestExisting(w.state.Load(), path)
}

// NodeByIdentifier finds the committed node whose jcr:uuid equals id.
func (w *Workspace) NodeByIdentifier(id uuid.UUID) (*connector.Node, error) {
	return byIdentifier(w.state.Load(), w.name, id)
}

// Query is not supported.
func (w *Workspace) Query(string, int) (*connector.QueryResults, error) { return nil, nil }

// Search delegates to the configured Searcher; without one searches are unsupported.
func (w *Workspace) Search(expression string, limit int) (*connector.QueryResults, error) {
	if w.searcher == nil {
		return nil, nil
	}
	return w.searcher.SearchWorkspace(w.name, expression, limit)
}

// LockNode locks node against other lockers.
func (w *Workspace) LockNode(node *connector.Node, scope request.LockScope, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = w.lockTimeout
	}
	return w.locks.lock(node.Path(), scope, timeout)
}

// UnlockNode releases a lock on node; unlocking an unlocked node is a no-op.
func (w *Workspace) UnlockNode(node *connector.Node) error {
	w.locks.unlock(node.Path())
	return nil
}

// Begin starts a private view over the current committed tree.
func (w *Workspace) Begin() (connector.WorkspaceTx, error) {
	base := w.state.Load()
	return &Tx{ws: w, base: base, cur: base.clone()}, nil
}

// Snapshot returns the committed nodes in path order.
func (w *Workspace) Snapshot() []*connector.Node {
	return w.state.Load().sorted()
}

// Restore replaces the committed tree with nodes, as loaded from a snapshot.
// The snapshot must contain the root; its UUID is reset to the workspace root.
func (w *Workspace) Restore(nodes []*connector.Node) error {
	t := &tree{nodes: make(map[string]*connector.Node, len(nodes))}
	for _, n := range nodes {
		if n.Path().IsRoot() {
			n = connector.NewNode(graph.RootPath(), w.root, n.Properties(), n.ChildSegments())
		}
		t.nodes[n.Path().String()] = n
	}
	if _, ok := t.nodes["/"]; !ok {
		return fmt.Errorf("inmemory: restore %q: snapshot has no root node", w.name)
	}
	for _, n := range t.nodes {
		for _, cp := range n.ChildPaths() {
			if _, ok := t.get(cp); !ok {
				return fmt.Errorf("inmemory: restore %q: %s lists missing child %s", w.name, n.Path(), cp)
			}
		}
	}
	w.state.Store(t)
	return nil
}

func (w *Workspace) publish(base, next *tree) error {
	if w.state.Load() != base {
		return fmt.Errorf("inmemory: workspace %q changed since the transaction began", w.name)
	}
	if w.persister != nil {
		if err := w.persister.SaveWorkspace(w.name, next.sorted()); err != nil {
			return fmt.Errorf("inmemory: persist %q: %w", w.name, err)
		}
	}
	if !w.state.CompareAndSwap(base, next) {
		return fmt.Errorf("inmemory: workspace %q changed during commit", w.name)
	}
	return nil
}

func lookup(t *tree, ws string, path graph.Path) (*connector.Node, error) {
	if n, ok := t.get(path); ok {
		return n, nil
	}
	return nil, fmt.Errorf("inmemory: %s in %q: %w", path, ws, apperr.ErrNotFound)
}

func lowestExisting(t *tree, path graph.Path) graph.Path {
	for p := path; !p.IsZero(); p = p.Parent() {
		if _, ok := t.get(p); ok {
			return p
		}
	}
	return graph.RootPath()
}

func byIdentifier(t *tree, ws string, id uuid.UUID) (*connector.Node, error) {
	for _, n := range t.nodes {
		if nid, ok := n.Identifier(); ok && nid == id {
			return n, nil
		}
	}
	return nil, fmt.Errorf("inmemory: identifier %s in %q: %w", id, ws, apperr.ErrNotFound)
}
