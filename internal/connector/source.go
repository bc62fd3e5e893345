package connector

import (
	"context"
	"log/slog"
	"sync"

	"github.com/starford/arbor/internal/graph"
)

// Source is a configured repository source. It hands out connections and
// fans committed change sets out to its observers.
type Source struct {
	repo           *Repository
	updatesAllowed bool
	retryLimit     int
	cachePolicy    graph.CachePolicy
	logger         *slog.Logger

	mu        sync.RWMutex
	observers []Observer
}

// SourceOption configures a Source.
type SourceOption func(*Source)

// WithUpdatesAllowed enables or disables every write request.
func WithUpdatesAllowed(allowed bool) SourceOption {
	return func(s *Source) { s.updatesAllowed = allowed }
}

// WithRetryLimit sets the retry limit; negative values become zero.
func WithRetryLimit(n int) SourceOption {
	return func(s *Source) { s.retryLimit = max(n, 0) }
}

// WithCachePolicy sets the policy attached to read results.
func WithCachePolicy(p graph.CachePolicy) SourceOption {
	return func(s *Source) { s.cachePolicy = p }
}

// WithObserver registers an observer.
func WithObserver(o Observer) SourceOption {
	return func(s *Source) { s.observers = append(s.observers, o) }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) SourceOption {
	return func(s *Source) { s.logger = l }
}

// NewSource wraps repo. Updates are allowed unless disabled.
func NewSource(repo *Repository, opts ...SourceOption) *Source {
	s := &Source{repo: repo, updatesAllowed: true, logger: repo.logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Name returns the source name.
func (s *Source) Name() string { return s.repo.source }

// Repository returns the backing repository.
func (s *Source) Repository() *Repository { return s.repo }

// UpdatesAllowed reports whether write requests are accepted.
func (s *Source) UpdatesAllowed() bool { return s.updatesAllowed }

// RetryLimit returns how often callers may retry acquiring a connection.
func (s *Source) RetryLimit() int { return s.retryLimit }

// SetRetryLimit changes the retry limit; negative values become zero.
func (s *Source) SetRetryLimit(n int) { s.retryLimit = max(n, 0) }

// CachePolicy returns the policy attached to read results.
func (s *Source) CachePolicy() graph.CachePolicy { return s.cachePolicy }

// AddObserver registers o for future change sets.
func (s *Source) AddObserver(o Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, o)
}

// Publish sends changes to every observer. Connectors that detect external
// changes (the filesystem watcher) publish through here too.
func (s *Source) Publish(ctx context.Context, changes ChangeSet) {
	if changes.IsEmpty() {
		return
	}
	s.mu.RLock()
	observers := make([]Observer, len(s.observers))
	copy(observers, s.observers)
	s.mu.RUnlock()
	for _, o := range observers {
		o.Notify(ctx, changes)
	}
}

// Connection returns a connection to the source.
func (s *Source) Connection() *Connection {
	return &Connection{source: s}
}
