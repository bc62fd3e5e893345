package request

import (
	"time"

	"github.com/starford/arbor/internal/graph"
)

// CreateNode creates a child named Name under the node at Under.
type CreateNode struct {
	Base
	Workspace  string
	Under      graph.Location
	Name       graph.Name
	Properties []*graph.Property
	Conflict   NodeConflictBehavior

	ActualLocation graph.Location
}

func (*CreateNode) Kind() string     { return "create-node" }
func (*CreateNode) IsReadOnly() bool { return false }

// DeleteBranch removes a node and its subtree.
type DeleteBranch struct {
	Base
	Workspace string
	At        graph.Location

	ActualLocation graph.Location
}

func (*DeleteBranch) Kind() string     { return "delete-branch" }
func (*DeleteBranch) IsReadOnly() bool { return false }

// MoveBranch relocates a subtree under Into, or next to Before when Into is unset.
type MoveBranch struct {
	Base
	Workspace string
	From      graph.Location
	Into      *graph.Location
	Before    *graph.Location
	// DesiredName renames the node; empty keeps the original name.
	DesiredName graph.Name

	ActualOldLocation graph.Location
	ActualNewLocation graph.Location
}

func (*MoveBranch) Kind() string     { return "move-branch" }
func (*MoveBranch) IsReadOnly() bool { return false }

// CopyBranch copies a subtree, possibly into another workspace. References
// between copied nodes are rewritten to point at the copies.
type CopyBranch struct {
	Base
	FromWorkspace string
	From          graph.Location
	IntoWorkspace string
	Into          graph.Location
	DesiredName   graph.Name

	ActualFromLocation graph.Location
	ActualIntoLocation graph.Location
}

func (*CopyBranch) Kind() string     { return "copy-branch" }
func (*CopyBranch) IsReadOnly() bool { return false }

// CloneBranch copies a subtree while keeping node identifiers.
type CloneBranch struct {
	Base
	FromWorkspace string
	From          graph.Location
	IntoWorkspace string
	Into          graph.Location
	DesiredName   graph.Name
	// RemoveExisting deletes destination nodes whose identifiers collide with
	// cloned ones; otherwise a collision fails the request.
	RemoveExisting bool

	ActualFromLocation graph.Location
	ActualIntoLocation graph.Location
	RemovedNodes       []graph.Location
}

func (*CloneBranch) Kind() string     { return "clone-branch" }
func (*CloneBranch) IsReadOnly() bool { return false }

// UpdateProperties sets or removes properties; a nil value removes the property.
type UpdateProperties struct {
	Base
	Workspace  string
	On         graph.Location
	Properties map[graph.Name]*graph.Property

	ActualLocation graph.Location
}

func (*UpdateProperties) Kind() string     { return "update-properties" }
func (*UpdateProperties) IsReadOnly() bool { return false }

// LockBranch locks a node, optionally with its descendants.
type LockBranch struct {
	Base
	Workspace string
	At        graph.Location
	Scope     LockScope
	// Timeout bounds acquisition; zero means the connector default.
	Timeout time.Duration

	ActualLocation graph.Location
}

func (*LockBranch) Kind() string     { return "lock-branch" }
func (*LockBranch) IsReadOnly() bool { return true }

// UnlockBranch releases a lock taken with LockBranch.
type UnlockBranch struct {
	Base
	Workspace string
	At        graph.Location

	ActualLocation graph.Location
}

func (*UnlockBranch) Kind() string     { return "unlock-branch" }
func (*UnlockBranch) IsReadOnly() bool { return true }
