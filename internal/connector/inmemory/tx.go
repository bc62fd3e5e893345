package inmemory

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

// Tx is a private, writable view of a Workspace. It is published atomically
// by Commit and discarded by Rollback.
type Tx struct {
	ws   *Workspace
	base *tree
	cur  *tree
	done bool
	// edits lists removals and renumberings in the order they were made.
	edits []pathEdit
}

var (
	_ connector.WorkspaceTx        = (*Tx)(nil)
	_ connector.Reorderable        = (*Tx)(nil)
	_ connector.LockableWorkspace  = (*Tx)(nil)
	_ connector.QueryableWorkspace = (*Tx)(nil)
	_ connector.Transactional      = (*Workspace)(nil)
	_ connector.LockableWorkspace  = (*Workspace)(nil)
)

func (t *Tx) check() error {
	if t.done {
		return fmt.Errorf("inmemory: transaction on %q already finished", t.ws.name)
	}
	return nil
}

func (t *Tx) put(n *connector.Node) { t.cur.nodes[n.Path().String()] = n }

// Name returns the workspace name.
func (t *Tx) Name() string { return t.ws.name }

// Node returns the node at path as seen by this transaction.
func (t *Tx) Node(path graph.Path) (*connector.Node, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return lookup(t.cur, t.ws.name, path)
}

// LowestExistingPath returns the deepest existing ancestor-or-self of path.
func (t *Tx) LowestExistingPath(path graph.Path) graph.Path {
	if t.done {
		return t.ws.LowestExistingPath(path)
	}
	return lowestExisting(t.cur, path)
}

// NodeByIdentifier finds the node whose jcr:uuid equals id.
func (t *Tx) NodeByIdentifier(id uuid.UUID) (*connector.Node, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return byIdentifier(t.cur, t.ws.name, id)
}

// LockNode locks on the underlying workspace; locks are not transactional.
func (t *Tx) LockNode(node *connector.Node, scope request.LockScope, timeout time.Duration) error {
	return t.ws.LockNode(node, scope, timeout)
}

// UnlockNode unlocks on the underlying workspace.
func (t *Tx) UnlockNode(node *connector.Node) error {
	return t.ws.UnlockNode(node)
}

// Query is not supported.
func (t *Tx) Query(string, int) (*connector.QueryResults, error) { return nil, nil }

// Search searches the committed snapshot; uncommitted writes are not visible.
func (t *Tx) Search(expression string, limit int) (*connector.QueryResults, error) {
	return t.ws.Search(expression, limit)
}

// CreateNode creates name under parent following behavior.
func (t *Tx) CreateNode(parent *connector.Node, name graph.Name, props map[graph.Name]*graph.Property, behavior request.NodeConflictBehavior) (*connector.Node, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if err := name.Validate(); err != nil {
		return nil, apperr.InvalidRequest("%v", err)
	}
	par, err := lookup(t.cur, t.ws.name, parent.Path())
	if err != nil {
		return nil, err
	}

	if par.HasChildNamed(name) {
		switch behavior {
		case request.DoNotReplace, request.Update:
			return lookup(t.cur, t.ws.name, par.Path().ChildNamed(name))
		case request.Replace:
			if err := t.RemoveNode(par.Path().ChildNamed(name)); err != nil {
				return nil, err
			}
			if par, err = lookup(t.cur, t.ws.name, parent.Path()); err != nil {
				return nil, err
			}
		}
	}

	seg := graph.NewSegment(name, par.CountChildrenNamed(name)+1)
	node := connector.NewNode(par.Path().Child(seg), uuid.Nil, props, nil)
	t.put(node)
	t.put(par.WithChildren(append(par.ChildSegments(), seg)))
	return node, nil
}

// CopyNode copies original, snapshotted from the from workspace, under newParent.
func (t *Tx) CopyNode(original *connector.Node, from connector.Workspace, newParent *connector.Node, desiredName graph.Name, recursive bool) (*connector.Node, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return connector.CopyNode(t, original, from, newParent, desiredName, recursive)
}

// MoveNode relocates node as copy then delete.
func (t *Tx) MoveNode(node *connector.Node, desiredName graph.Name, from connector.Workspace, newParent *connector.Node, before *connector.Node) (*connector.Node, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	return connector.MoveNode(t, node, desiredName, from, newParent, before)
}

// RemoveNode deletes the subtree at path and renumbers later same-name siblings.
func (t *Tx) RemoveNode(path graph.Path) error {
	if err := t.check(); err != nil {
		return err
	}
	if path.IsRoot() {
		return apperr.InvalidRequest("the root node cannot be removed")
	}
	if _, err := lookup(t.cur, t.ws.name, path); err != nil {
		return err
	}
	parent, err := lookup(t.cur, t.ws.name, path.Parent())
	if err != nil {
		return err
	}
	for _, n := range t.subtree(path) {
		delete(t.cur.nodes, n.Path().String())
	}
	t.edits = append(t.edits, pathEdit{removed: path})
	gone := path.Last()
	order := make([]graph.Segment, 0, parent.ChildCount())
	for _, s := range parent.ChildSegments() {
		if s != gone {
			order = append(order, s)
		}
	}
	t.reindex(parent, order)
	return nil
}

// SetProperties merges props into the node at path; nil values remove.
func (t *Tx) SetProperties(path graph.Path, props map[graph.Name]*graph.Property) (*connector.Node, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	node, err := lookup(t.cur, t.ws.name, path)
	if err != nil {
		return nil, err
	}
	merged := node.Properties()
	for name, p := range props {
		if p == nil {
			delete(merged, name)
			continue
		}
		merged[name] = p
	}
	updated := node.WithProperties(merged)
	t.put(updated)
	return updated, nil
}

// RemoveProperties removes the named properties.
func (t *Tx) RemoveProperties(path graph.Path, names ...graph.Name) (*connector.Node, error) {
	return connector.RemovePropertiesVia(t, path, names...)
}

// OrderBefore moves child in front of its sibling before.
func (t *Tx) OrderBefore(child, before graph.Path) (*connector.Node, error) {
	if err := t.check(); err != nil {
		return nil, err
	}
	if child.IsRoot() || before.IsRoot() || !child.Parent().Equal(before.Parent()) {
		return nil, apperr.InvalidRequest("%s and %s are not siblings", child, before)
	}
	node, err := lookup(t.cur, t.ws.name, child)
	if err != nil {
		return nil, err
	}
	if child.Equal(before) {
		return node, nil
	}
	if _, err := lookup(t.cur, t.ws.name, before); err != nil {
		return nil, err
	}
	parent, err := lookup(t.cur, t.ws.name, child.Parent())
	if err != nil {
		return nil, err
	}

	moving, anchor := child.Last(), before.Last()
	order := make([]graph.Segment, 0, parent.ChildCount())
	pos := -1
	for _, s := range parent.ChildSegments() {
		switch s {
		case moving:
			continue
		case anchor:
			pos = len(order)
			order = append(order, moving)
		}
		order = append(order, s)
	}
	next := t.reindex(parent, order)
	return lookup(t.cur, t.ws.name, parent.Path().Child(next[pos]))
}

// Commit publishes the view.
func (t *Tx) Commit() error {
	if err := t.check(); err != nil {
		return err
	}
	t.done = true
	if err := t.ws.publish(t.base, t.cur); err != nil {
		return err
	}
	t.ws.locks.follow(t.edits)
	return nil
}

// Rollback discards the view.
func (t *Tx) Rollback() error {
	t.done = true
	t.cur = nil
	return nil
}

// subtree returns the node at p and its descendants in pre-order.
func (t *Tx) subtree(p graph.Path) []*connector.Node {
	n, ok := t.cur.get(p)
	if !ok {
		return nil
	}
	out := []*connector.Node{n}
	for _, cp := range n.ChildPaths() {
		out = append(out, t.subtree(cp)...)
	}
	return out
}

// reindex sets the children of parent to order, renumbering same-name
// siblings so their indexes run 1..n, and moves every subtree whose segment
// changed. It returns the new segments, aligned with order.
func (t *Tx) reindex(parent *connector.Node, order []graph.Segment) []graph.Segment {
	counts := make(map[graph.Name]int, len(order))
	next := make([]graph.Segment, len(order))
	var (
		moves    []relocation
		subtrees [][]*connector.Node
	)
	for i, s := range order {
		counts[s.Name]++
		ns := graph.NewSegment(s.Name, counts[s.Name])
		next[i] = ns
		if ns != s {
			from := parent.Path().Child(s)
			moves = append(moves, relocation{from: from, to: parent.Path().Child(ns)})
			subtrees = append(subtrees, t.subtree(from))
		}
	}
	for _, nodes := range subtrees {
		for _, n := range nodes {
			delete(t.cur.nodes, n.Path().String())
		}
	}
	for i, m := range moves {
		for _, n := range subtrees[i] {
			t.put(n.WithPath(n.Path().Rebase(m.from, m.to)))
		}
	}
	if len(moves) > 0 {
		t.edits = append(t.edits, pathEdit{moves: moves})
	}
	t.put(parent.WithChildren(next))
	return next
}
