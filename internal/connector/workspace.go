package connector

import (
	"time"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

// Workspace is the read contract every connector workspace implements.
type Workspace interface {
	// Name returns the workspace name.
	Name() string
	// Node returns the node at path, or an error wrapping apperr.ErrNotFound.
	Node(path graph.Path) (*Node, error)
	// LowestExistingPath returns the deepest existing ancestor-or-self of path.
	LowestExistingPath(path graph.Path) graph.Path
}

// LockableWorkspace is implemented by workspaces with real node locking.
// Workspaces without it accept every lock and unlock as a no-op.
type LockableWorkspace interface {
	Workspace
	// LockNode blocks until the lock is granted or timeout passes; a zero
	// timeout selects the workspace default.
	LockNode(node *Node, scope request.LockScope, timeout time.Duration) error
	UnlockNode(node *Node) error
}

// QueryResults is the tabular result of a query or search.
type QueryResults struct {
	Columns []string
	Tuples  [][]any
}

// QueryableWorkspace is implemented by workspaces that can run queries.
// A nil result with a nil error means the query form is unsupported.
type QueryableWorkspace interface {
	Workspace
	Query(query string, limit int) (*QueryResults, error)
	Search(expression string, limit int) (*QueryResults, error)
}

// IdentifierLookup is implemented by workspaces that can find a node by the
// value of its jcr:uuid property.
type IdentifierLookup interface {
	NodeByIdentifier(id uuid.UUID) (*Node, error)
}

// WritableWorkspace is the write contract. Nodes passed in are resolved again
// by path, so stale snapshots are fine as long as their paths are current.
type WritableWorkspace interface {
	Workspace
	// CreateNode creates name under parent following behavior.
	CreateNode(parent *Node, name graph.Name, props map[graph.Name]*graph.Property, behavior request.NodeConflictBehavior) (*Node, error)
	// CopyNode copies original from the from workspace under newParent. The
	// top node is created with Replace; children, if recursive, with Append.
	CopyNode(original *Node, from Workspace, newParent *Node, desiredName graph.Name, recursive bool) (*Node, error)
	// MoveNode copies node under newParent, or before the before node, and
	// deletes the original. An empty desiredName keeps the original name.
	MoveNode(node *Node, desiredName graph.Name, from Workspace, newParent *Node, before *Node) (*Node, error)
	// RemoveNode deletes the node at path with its subtree.
	RemoveNode(path graph.Path) error
	// SetProperties merges props into the node; a nil value removes the property.
	SetProperties(path graph.Path, props map[graph.Name]*graph.Property) (*Node, error)
	// RemoveProperties is SetProperties with every name mapped to nil.
	RemoveProperties(path graph.Path, names ...graph.Name) (*Node, error)
}

// Reorderable is implemented by writable workspaces that honour a
// caller-defined child order.
type Reorderable interface {
	// OrderBefore moves child directly in front of its sibling before and
	// returns the child at its renumbered path.
	OrderBefore(child, before graph.Path) (*Node, error)
}

// WorkspaceTx is a private writable view of a transactional workspace.
type WorkspaceTx interface {
	WritableWorkspace
	Commit() error
	Rollback() error
}

// Transactional is implemented by workspaces that isolate writes in a view
// published atomically on commit.
type Transactional interface {
	Workspace
	Begin() (WorkspaceTx, error)
}

// RemovePropertiesVia implements RemoveProperties in terms of SetProperties.
func RemovePropertiesVia(ws WritableWorkspace, path graph.Path, names ...graph.Name) (*Node, error) {
	props := make(map[graph.Name]*graph.Property, len(names))
	for _, n := range names {
		props[n] = nil
	}
	return ws.SetProperties(path, props)
}
