package api

import (
	"github.com/google/uuid"

	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/importer"
)

// NodeResponse is one node. Property values use the import document format.
type NodeResponse struct {
	Workspace  string         `json:"workspace"`
	Path       string         `json:"path"`
	UUID       string         `json:"uuid,omitempty"`
	Depth      int            `json:"depth,omitempty"`
	Properties map[string]any `json:"properties"`
	Children   []string       `json:"children"`
}

// BranchResponse is a subtree in pre-order.
type BranchResponse struct {
	Nodes []NodeResponse `json:"nodes"`
}

// CreateNodeRequest is the body of POST /workspaces/{ws}/nodes/{parent}.
type CreateNodeRequest struct {
	Name       string         `json:"name"`
	Properties map[string]any `json:"properties,omitempty"`
	// Conflict is append (default), do-not-replace, replace or update.
	Conflict string `json:"conflict,omitempty"`
}

// UpdatePropertiesRequest is the body of PATCH /workspaces/{ws}/nodes/{path}.
// A null value removes the property.
type UpdatePropertiesRequest struct {
	Properties map[string]any `json:"properties"`
}

// CopyRequest is the body of POST /workspaces/{ws}/copy; ws is the target.
type CopyRequest struct {
	From          string `json:"from"`
	FromWorkspace string `json:"from_workspace,omitempty"`
	Into          string `json:"into"`
	Name          string `json:"name,omitempty"`
	// Clone keeps identifiers instead of assigning new ones.
	Clone          bool `json:"clone,omitempty"`
	RemoveExisting bool `json:"remove_existing,omitempty"`
}

// CopyResponse reports where a copy or clone landed.
type CopyResponse struct {
	From    string   `json:"from"`
	Into    string   `json:"into"`
	Removed []string `json:"removed,omitempty"`
}

// MoveRequest is the body of POST /workspaces/{ws}/move. Exactly one of Into
// and Before is required.
type MoveRequest struct {
	From   string `json:"from"`
	Into   string `json:"into,omitempty"`
	Before string `json:"before,omitempty"`
	Name   string `json:"name,omitempty"`
}

// MoveResponse reports the old and new locations.
type MoveResponse struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// LockRequest is the body of POST /workspaces/{ws}/lock and /unlock.
type LockRequest struct {
	Path      string `json:"path"`
	Deep      bool   `json:"deep,omitempty"`
	TimeoutMS int64  `json:"timeout_ms,omitempty"`
}

// CreateWorkspaceRequest is the body of POST /workspaces.
type CreateWorkspaceRequest struct {
	Name string `json:"name"`
	// AdjustName picks a free name instead of failing on a collision.
	AdjustName bool `json:"adjust_name,omitempty"`
	// CloneFrom copies an existing workspace.
	CloneFrom string `json:"clone_from,omitempty"`
	// SkipIfExists skips cloning when the target exists.
	SkipIfExists bool `json:"skip_if_exists,omitempty"`
}

// WorkspaceResponse describes one workspace.
type WorkspaceResponse struct {
	Name     string `json:"name"`
	RootUUID string `json:"root_uuid,omitempty"`
}

// SearchResponse is a tabular search result.
type SearchResponse struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

func nodeResponse(workspace string, loc graph.Location, depth int, props map[graph.Name]*graph.Property, children []graph.Location) NodeResponse {
	out := NodeResponse{
		Workspace:  workspace,
		Path:       loc.Path.String(),
		Depth:      depth,
		Properties: make(map[string]any, len(props)),
		Children:   make([]string, 0, len(children)),
	}
	if loc.UUID != uuid.Nil {
		out.UUID = loc.UUID.String()
	}
	for name, p := range props {
		out.Properties[string(name)] = importer.EncodeProperty(p)
	}
	for _, c := range children {
		out.Children = append(out.Children, c.Path.String())
	}
	return out
}
