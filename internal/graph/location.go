package graph

import (
	"time"

	"github.com/google/uuid"
)

// Location identifies a node by path, by UUID, or both.
type Location struct {
	Path Path      `json:"path"`
	UUID uuid.UUID `json:"uuid"`
}

// At returns a location for path.
func At(p Path) Location { return Location{Path: p} }

// AtUUID returns a location carrying only an identifier.
func AtUUID(id uuid.UUID) Location { return Location{UUID: id} }

// LocationOf returns a location with both path and UUID; id may be uuid.Nil.
func LocationOf(p Path, id uuid.UUID) Location { return Location{Path: p, UUID: id} }

// HasPath reports whether the location carries a path.
func (l Location) HasPath() bool { return !l.Path.IsZero() }

// HasUUID reports whether the location carries an identifier.
func (l Location) HasUUID() bool { return l.UUID != uuid.Nil }

func (l Location) String() string {
	switch {
	case l.HasPath() && l.HasUUID():
		return l.Path.String() + " (" + l.UUID.String() + ")"
	case l.HasPath():
		return l.Path.String()
	case l.HasUUID():
		return l.UUID.String()
	default:
		return "<unknown>"
	}
}

// CachePolicy tells callers how long a read result may be cached.
type CachePolicy struct {
	TTL time.Duration `json:"ttl"`
}

// Cacheable reports whether results may be cached at all.
func (c CachePolicy) Cacheable() bool { return c.TTL > 0 }

// ExpiresAt returns the instant the result becomes stale when read at t.
func (c CachePolicy) ExpiresAt(t time.Time) time.Time { return t.Add(c.TTL) }
