package request

import "github.com/starford/arbor/internal/graph"

// CreateWorkspace creates a new, empty workspace.
type CreateWorkspace struct {
	Base
	DesiredName string
	Conflict    CreateConflictBehavior

	ActualWorkspace    string
	ActualRootLocation graph.Location
}

func (*CreateWorkspace) Kind() string     { return "create-workspace" }
func (*CreateWorkspace) IsReadOnly() bool { return false }

// DestroyWorkspace removes a workspace and its whole tree.
type DestroyWorkspace struct {
	Base
	Workspace string

	ActualRootLocation graph.Location
}

func (*DestroyWorkspace) Kind() string     { return "destroy-workspace" }
func (*DestroyWorkspace) IsReadOnly() bool { return false }

// CloneWorkspace creates TargetName as a copy of SourceName.
type CloneWorkspace struct {
	Base
	SourceName    string
	TargetName    string
	Conflict      CreateConflictBehavior
	CloneConflict CloneConflictBehavior

	ActualWorkspace    string
	ActualRootLocation graph.Location
}

func (*CloneWorkspace) Kind() string     { return "clone-workspace" }
func (*CloneWorkspace) IsReadOnly() bool { return false }

// VerifyWorkspace checks that a workspace exists; an empty name selects the default.
type VerifyWorkspace struct {
	Base
	Workspace string

	ActualWorkspace    string
	ActualRootLocation graph.Location
}

func (*VerifyWorkspace) Kind() string     { return "verify-workspace" }
func (*VerifyWorkspace) IsReadOnly() bool { return true }

// GetWorkspaces lists the available workspace names.
type GetWorkspaces struct {
	Base
	Cacheable

	Names []string
}

func (*GetWorkspaces) Kind() string     { return "get-workspaces" }
func (*GetWorkspaces) IsReadOnly() bool { return true }
