// Package request defines the typed requests understood by connector
// processors. Each request carries its inputs, and after processing either an
// error or its output fields.
package request

import (
	"fmt"

	"github.com/starford/arbor/internal/graph"
)

// Request is implemented by every request type.
type Request interface {
	// Kind names the request type for logs and change notifications.
	Kind() string
	// IsReadOnly reports whether processing the request never mutates content.
	IsReadOnly() bool
	// Err returns the error recorded during processing, or nil.
	Err() error
	// SetError records err; the first recorded error wins.
	SetError(err error)
	// HasError reports whether an error was recorded.
	HasError() bool
}

// Base implements the error bookkeeping shared by all requests.
type Base struct {
	err error
}

// Err returns the recorded error.
func (b *Base) Err() error { return b.err }

// SetError records err unless another error is already present.
func (b *Base) SetError(err error) {
	if b.err == nil {
		b.err = err
	}
}

// HasError reports whether an error was recorded.
func (b *Base) HasError() bool { return b.err != nil }

// Cacheable is embedded by read requests whose results may be cached.
type Cacheable struct {
	Policy *graph.CachePolicy
}

// SetCachePolicy attaches the cache policy of the result.
func (c *Cacheable) SetCachePolicy(p graph.CachePolicy) { c.Policy = &p }

// CachePolicy returns the attached policy, if any.
func (c *Cacheable) CachePolicy() (graph.CachePolicy, bool) {
	if c.Policy == nil {
		return graph.CachePolicy{}, false
	}
	return *c.Policy, true
}

// NodeConflictBehavior decides what CreateNode does when a same-named child exists.
type NodeConflictBehavior int

const (
	// Append always adds a new sibling with the next same-name-sibling index.
	Append NodeConflictBehavior = iota
	// DoNotReplace returns the existing child untouched, creating only if absent.
	DoNotReplace
	// Replace removes the existing child and its subtree, then creates a fresh node.
	Replace
	// Update returns the existing child and layers in the new properties.
	Update
)

var nodeConflictNames = map[NodeConflictBehavior]string{
	Append:       "append",
	DoNotReplace: "do-not-replace",
	Replace:      "replace",
	Update:       "update",
}

func (b NodeConflictBehavior) String() string {
	if s, ok := nodeConflictNames[b]; ok {
		return s
	}
	return fmt.Sprintf("NodeConflictBehavior(%d)", int(b))
}

// ParseNodeConflictBehavior parses the String form; empty input means Append.
func ParseNodeConflictBehavior(s string) (NodeConflictBehavior, error) {
	if s == "" {
		return Append, nil
	}
	for b, name := range nodeConflictNames {
		if name == s {
			return b, nil
		}
	}
	return Append, fmt.Errorf("request: unknown conflict behavior %q", s)
}

// CreateConflictBehavior decides what happens when a new workspace name is taken.
type CreateConflictBehavior int

const (
	// DoNotCreate fails the request.
	DoNotCreate CreateConflictBehavior = iota
	// CreateWithAdjustedName appends a numeric suffix until the name is unique.
	CreateWithAdjustedName
)

func (b CreateConflictBehavior) String() string {
	if b == CreateWithAdjustedName {
		return "create-with-adjusted-name"
	}
	return "do-not-create"
}

// CloneConflictBehavior decides what happens when the workspace to clone is missing.
type CloneConflictBehavior int

const (
	// DoNotClone fails the request.
	DoNotClone CloneConflictBehavior = iota
	// SkipClone creates an empty target workspace instead.
	SkipClone
)

func (b CloneConflictBehavior) String() string {
	if b == SkipClone {
		return "skip-clone"
	}
	return "do-not-clone"
}

// LockScope selects what a lock covers.
type LockScope int

const (
	// SelectedNodeOnly locks just the target node.
	SelectedNodeOnly LockScope = iota
	// SelectedNodeAndDescendants locks the target node and its whole subtree.
	SelectedNodeAndDescendants
)

func (s LockScope) String() string {
	if s == SelectedNodeAndDescendants {
		return "deep"
	}
	return "shallow"
}
