package connector

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/graph"
)

// Change describes one successful write.
type Change struct {
	Kind      string     `json:"kind"`
	Workspace string     `json:"workspace,omitempty"`
	Path      graph.Path `json:"path"`
	// From is set for copies and moves.
	From          graph.Path `json:"from"`
	FromWorkspace string     `json:"from_workspace,omitempty"`
}

// ChangeSet is the list of changes made by one committed transaction.
type ChangeSet struct {
	Source      string    `json:"source"`
	Transaction uuid.UUID `json:"transaction"`
	CommittedAt time.Time `json:"committed_at"`
	Changes     []Change  `json:"changes"`
}

// IsEmpty reports whether the set carries no changes.
func (c ChangeSet) IsEmpty() bool { return len(c.Changes) == 0 }

// Observer receives change sets after they are committed.
type Observer interface {
	Notify(ctx context.Context, changes ChangeSet)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, changes ChangeSet)

// Notify calls f.
func (f ObserverFunc) Notify(ctx context.Context, changes ChangeSet) { f(ctx, changes) }
