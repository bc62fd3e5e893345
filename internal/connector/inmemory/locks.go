package inmemory

import (
	"sync"
	"time"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

type heldLock struct {
	path  graph.Path
	scope request.LockScope
}

// lockTable tracks node locks by path. Waiters park on released, which is
// closed and replaced whenever a lock is released.
type lockTable struct {
	mu       sync.Mutex
	held     map[string]heldLock
	released chan struct{}
}

func newLockTable() *lockTable {
	return &lockTable{held: make(map[string]heldLock), released: make(chan struct{})}
}

func (l *lockTable) conflicts(p graph.Path, scope request.LockScope) bool {
	for _, h := range l.held {
		switch {
		case h.path.Equal(p):
			return true
		case h.scope == request.SelectedNodeAndDescendants && p.IsAtOrBelow(h.path):
			return true
		case scope == request.SelectedNodeAndDescendants && h.path.IsAtOrBelow(p):
			return true
		}
	}
	return false
}

func (l *lockTable) lock(p graph.Path, scope request.LockScope, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		l.mu.Lock()
		if !l.conflicts(p, scope) {
			l.held[p.String()] = heldLock{path: p, scope: scope}
			l.mu.Unlock()
			return nil
		}
		wait := l.released
		l.mu.Unlock()

		select {
		case <-wait:
		case <-timer.C:
			return &apperr.LockError{Path: p, Reason: "timed out after " + timeout.String()}
		}
	}
}

func (l *lockTable) unlock(p graph.Path) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[p.String()]; !ok {
		return
	}
	delete(l.held, p.String())
	l.wake()
}

// follow moves held locks along with the nodes they were taken on, replaying
// the structural edits of a committed transaction in order. Locks inside a
// removed subtree are released.
func (l *lockTable) follow(edits []pathEdit) {
	if len(edits) == 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	next := make(map[string]heldLock, len(l.held))
	dropped := false
	for _, h := range l.held {
		p, ok := h.path, true
		for _, e := range edits {
			if p, ok = e.apply(p); !ok {
				break
			}
		}
		if !ok {
			dropped = true
			continue
		}
		h.path = p
		next[p.String()] = h
	}
	l.held = next
	if dropped {
		l.wake()
	}
}

// wake releases every waiter; callers hold mu.
func (l *lockTable) wake() {
	close(l.released)
	l.released = make(chan struct{})
}

// relocation is a subtree whose root segment changed from one path to another.
type relocation struct {
	from, to graph.Path
}

// pathEdit is one structural change made by a transaction: either a removed
// subtree, or a set of sibling relocations that happen together.
type pathEdit struct {
	removed graph.Path
	moves   []relocation
}

// apply returns where p ends up after the edit, or false if it was removed.
func (e pathEdit) apply(p graph.Path) (graph.Path, bool) {
	if !e.removed.IsZero() && p.IsAtOrBelow(e.removed) {
		return graph.Path{}, false
	}
	for _, m := range e.moves {
		if p.IsAtOrBelow(m.from) {
			return p.Rebase(m.from, m.to), true
		}
	}
	return p, true
}
