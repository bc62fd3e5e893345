// Package connector implements the path-based connector framework: workspace
// contracts, the repository and its transactions, the request processor and
// the connection that wraps each request in a commit/rollback envelope.
package connector

import (
	"sync"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/graph"
)

// Node is an immutable snapshot of one node in a workspace tree. Child
// segments are stored in order; same-name siblings carry contiguous indexes
// starting at 1.
type Node struct {
	path     graph.Path
	uuid     uuid.UUID
	props    map[graph.Name]*graph.Property
	children []graph.Segment

	uniqueOnce sync.Once
	unique     []graph.Name
}

// NewNode returns a node snapshot. id should be uuid.Nil for everything but
// the workspace root. The property map and child slice are copied.
func NewNode(path graph.Path, id uuid.UUID, props map[graph.Name]*graph.Property, children []graph.Segment) *Node {
	n := &Node{
		path:     path,
		uuid:     id,
		props:    make(map[graph.Name]*graph.Property, len(props)),
		children: make([]graph.Segment, len(children)),
	}
	for k, v := range props {
		if v != nil {
			n.props[k] = v
		}
	}
	copy(n.children, children)
	return n
}

// Path returns the node path.
func (n *Node) Path() graph.Path { return n.path }

// UUID returns the root identifier, or uuid.Nil for non-root nodes.
func (n *Node) UUID() uuid.UUID { return n.uuid }

// Properties returns a copy of the property map.
func (n *Node) Properties() map[graph.Name]*graph.Property {
	out := make(map[graph.Name]*graph.Property, len(n.props))
	for k, v := range n.props {
		out[k] = v
	}
	return out
}

// Property returns the named property or nil.
func (n *Node) Property(name graph.Name) *graph.Property { return n.props[name] }

// ChildSegments returns the ordered child segments.
func (n *Node) ChildSegments() []graph.Segment {
	out := make([]graph.Segment, len(n.children))
	copy(out, n.children)
	return out
}

// ChildCount returns the number of children.
func (n *Node) ChildCount() int { return len(n.children) }

// ChildPaths returns the absolute paths of all children.
func (n *Node) ChildPaths() []graph.Path {
	out := make([]graph.Path, 0, len(n.children))
	for _, seg := range n.children {
		out = append(out, n.path.Child(seg))
	}
	return out
}

// UniqueChildNames returns the distinct child names in order of first appearance.
func (n *Node) UniqueChildNames() []graph.Name {
	n.uniqueOnce.Do(func() {
		seen := make(map[graph.Name]struct{}, len(n.children))
		for _, seg := range n.children {
			if _, ok := seen[seg.Name]; ok {
				continue
			}
			seen[seg.Name] = struct{}{}
			n.unique = append(n.unique, seg.Name)
		}
	})
	out := make([]graph.Name, len(n.unique))
	copy(out, n.unique)
	return out
}

// HasChildNamed reports whether at least one child is called name.
func (n *Node) HasChildNamed(name graph.Name) bool {
	return n.CountChildrenNamed(name) > 0
}

// CountChildrenNamed returns how many children are called name.
func (n *Node) CountChildrenNamed(name graph.Name) int {
	count := 0
	for _, seg := range n.children {
		if seg.Name == name {
			count++
		}
	}
	return count
}

// Identifier returns the value of the jcr:uuid property, if set and valid.
func (n *Node) Identifier() (uuid.UUID, bool) {
	p := n.props[graph.Identifier]
	if p == nil || p.IsEmpty() {
		return uuid.Nil, false
	}
	switch v := p.First().(type) {
	case string:
		id, err := uuid.Parse(v)
		return id, err == nil
	case graph.Reference:
		return v.UUID(), true
	}
	return uuid.Nil, false
}

// Location returns the node path together with its root UUID or identifier.
func (n *Node) Location() graph.Location {
	if n.uuid != uuid.Nil {
		return graph.LocationOf(n.path, n.uuid)
	}
	id, _ := n.Identifier()
	return graph.LocationOf(n.path, id)
}

// WithPath returns a copy of n relocated to path.
func (n *Node) WithPath(path graph.Path) *Node {
	return NewNode(path, n.uuid, n.props, n.children)
}

// WithProperties returns a copy of n carrying props.
func (n *Node) WithProperties(props map[graph.Name]*graph.Property) *Node {
	return NewNode(n.path, n.uuid, props, n.children)
}

// WithChildren returns a copy of n with the given child segments.
func (n *Node) WithChildren(children []graph.Segment) *Node {
	return NewNode(n.path, n.uuid, n.props, children)
}
