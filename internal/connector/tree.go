package connector

import (
	"errors"
	"fmt"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

// Tree is a snapshot of a node and, when read recursively, its descendants.
type Tree struct {
	Node     *Node
	Children []*Tree
}

// ReadTree snapshots node. When recursive is false only the node itself is read.
func ReadTree(ws Workspace, node *Node, recursive bool) (*Tree, error) {
	t := &Tree{Node: node}
	if !recursive {
		return t, nil
	}
	for _, p := range node.ChildPaths() {
		child, err := ws.Node(p)
		if err != nil {
			return nil, fmt.Errorf("connector: read tree %s: %w", p, err)
		}
		sub, err := ReadTree(ws, child, true)
		if err != nil {
			return nil, err
		}
		t.Children = append(t.Children, sub)
	}
	return t, nil
}

// Walk visits t and its descendants in pre-order.
func (t *Tree) Walk(fn func(*Tree) error) error {
	if err := fn(t); err != nil {
		return err
	}
	for _, c := range t.Children {
		if err := c.Walk(fn); err != nil {
			return err
		}
	}
	return nil
}

// Size returns the number of nodes in the tree.
func (t *Tree) Size() int {
	n := 0
	_ = t.Walk(func(*Tree) error { n++; return nil })
	return n
}

// CopyTree recreates src under parent as name, using behavior for the top
// node and Append for everything below it.
func CopyTree(dst WritableWorkspace, src *Tree, parent *Node, name graph.Name, behavior request.NodeConflictBehavior) (*Node, error) {
	created, err := dst.CreateNode(parent, name, src.Node.Properties(), behavior)
	if err != nil {
		return nil, err
	}
	for _, child := range src.Children {
		if _, err := CopyTree(dst, child, created, child.Node.Path().Last().Name, request.Append); err != nil {
			return nil, err
		}
	}
	return dst.Node(created.Path())
}

// CopyNode is the shared CopyNode implementation: the source subtree is
// snapshotted before anything is written, so copying a node into its own
// subtree terminates.
func CopyNode(dst WritableWorkspace, original *Node, from Workspace, newParent *Node, desiredName graph.Name, recursive bool) (*Node, error) {
	name, err := targetName(original, desiredName)
	if err != nil {
		return nil, err
	}
	src, err := ReadTree(from, original, recursive)
	if err != nil {
		return nil, err
	}
	return CopyTree(dst, src, newParent, name, request.Replace)
}

// MoveNode is the shared MoveNode implementation for transactional views. The
// subtree is snapshotted, the original removed and the snapshot recreated at
// the destination with Append, then ordered before the before node when the
// workspace is Reorderable. The destination paths are adjusted for the
// same-name-sibling renumbering caused by the removal.
func MoveNode(dst WritableWorkspace, node *Node, desiredName graph.Name, from Workspace, newParent *Node, before *Node) (*Node, error) {
	if node.Path().IsRoot() {
		return nil, apperr.InvalidRequest("the root node cannot be moved")
	}
	if newParent.Path().IsAtOrBelow(node.Path()) {
		return nil, apperr.InvalidRequest("cannot move %s below itself", node.Path())
	}
	if before != nil && before.Path().Equal(node.Path()) {
		return nil, apperr.InvalidRequest("cannot order %s before itself", node.Path())
	}
	name, err := targetName(node, desiredName)
	if err != nil {
		return nil, err
	}
	src, err := ReadTree(from, node, true)
	if err != nil {
		return nil, err
	}

	removed := node.Path()
	if fw, ok := from.(WritableWorkspace); ok {
		err = fw.RemoveNode(removed)
	} else {
		err = dst.RemoveNode(removed)
	}
	if err != nil {
		return nil, err
	}

	parent, err := dst.Node(newParent.Path().AfterRemoval(removed))
	if err != nil {
		return nil, fmt.Errorf("connector: move: resolve destination: %w", err)
	}
	moved, err := CopyTree(dst, src, parent, name, request.Append)
	if err != nil {
		return nil, err
	}
	if before == nil {
		return moved, nil
	}
	ro, ok := dst.(Reorderable)
	if !ok {
		return moved, nil
	}
	return ro.OrderBefore(moved.Path(), before.Path().AfterRemoval(removed))
}

func targetName(original *Node, desired graph.Name) (graph.Name, error) {
	if desired != "" {
		if err := desired.Validate(); err != nil {
			return "", apperr.InvalidRequest("%v", err)
		}
		return desired, nil
	}
	if original.Path().IsRoot() {
		return "", apperr.InvalidRequest("a name is required when copying the root node")
	}
	return original.Path().Last().Name, nil
}

// IsNotFound reports whether err means a node is missing.
func IsNotFound(err error) bool {
	return errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrPathNotFound)
}
