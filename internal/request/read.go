package request

import "github.com/starford/arbor/internal/graph"

// ReadNode reads the properties and children of one node.
type ReadNode struct {
	Base
	Cacheable
	Workspace string
	At        graph.Location

	ActualLocation graph.Location
	Children       []graph.Location
	Properties     map[graph.Name]*graph.Property
}

func (*ReadNode) Kind() string     { return "read-node" }
func (*ReadNode) IsReadOnly() bool { return true }

// AddProperties records properties on the result.
func (r *ReadNode) AddProperties(props ...*graph.Property) {
	if r.Properties == nil {
		r.Properties = make(map[graph.Name]*graph.Property, len(props))
	}
	for _, p := range props {
		r.Properties[p.Name()] = p
	}
}

// ReadAllChildren reads only the child locations of a node.
type ReadAllChildren struct {
	Base
	Cacheable
	Workspace string
	Of        graph.Location

	ActualLocation graph.Location
	Children       []graph.Location
}

func (*ReadAllChildren) Kind() string     { return "read-all-children" }
func (*ReadAllChildren) IsReadOnly() bool { return true }

// ReadAllProperties reads only the properties of a node.
type ReadAllProperties struct {
	Base
	Cacheable
	Workspace string
	At        graph.Location

	ActualLocation graph.Location
	Properties     map[graph.Name]*graph.Property
}

func (*ReadAllProperties) Kind() string     { return "read-all-properties" }
func (*ReadAllProperties) IsReadOnly() bool { return true }

// AddProperties records properties on the result.
func (r *ReadAllProperties) AddProperties(props ...*graph.Property) {
	if r.Properties == nil {
		r.Properties = make(map[graph.Name]*graph.Property, len(props))
	}
	for _, p := range props {
		r.Properties[p.Name()] = p
	}
}

// BranchNode is one node of a ReadBranch result.
type BranchNode struct {
	Location   graph.Location
	Depth      int
	Children   []graph.Location
	Properties map[graph.Name]*graph.Property
}

// ReadBranch reads a node and its descendants in pre-order. MaxDepth limits
// how many levels below At are read; 0 means no limit.
type ReadBranch struct {
	Base
	Cacheable
	Workspace string
	At        graph.Location
	MaxDepth  int

	ActualLocation graph.Location
	Nodes          []BranchNode
}

func (*ReadBranch) Kind() string     { return "read-branch" }
func (*ReadBranch) IsReadOnly() bool { return true }
