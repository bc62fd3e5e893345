// Package sse streams committed change sets to Server-Sent Events clients.
package sse

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/starford/arbor/internal/connector"
)

// Event types.
const (
	// TypeChange carries one connector.Change.
	TypeChange = "change"
	// TypeTreeUpdated is a throttled hint that some workspace tree changed.
	TypeTreeUpdated = "tree.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	ID        string      `json:"-"`
	Type      string      `json:"type"`
	Workspace string      `json:"-"`
	Data      interface{} `json:"data"`
}

const heartbeat = 25 * time.Second

type subscription struct {
	ch        chan []byte
	workspace string
}

// Broker manages SSE client connections and broadcasts events. It is a
// connector.Observer: every committed change set is fanned out to clients.
//
// Concurrency model: a single internal event loop (goroutine) owns mutable state
// (clients + tree throttle timestamp). Public methods communicate with this loop
// through channels, so no mutexes are required.
type Broker struct {
	treeMin time.Duration

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

var _ connector.Observer = (*Broker)(nil)

// NewBroker creates a new SSE broker with the given tree.updated throttle interval.
func NewBroker(treeThrottle time.Duration) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = 2 * time.Second
	}

	b := &Broker{
		treeMin:       treeThrottle,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]string)
	var lastTree time.Time

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		msg := fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload)
		if event.ID != "" {
			msg = "id: " + event.ID + "\n" + msg
		}
		raw := []byte(msg)

		for ch, ws := range clients {
			if ws != "" && event.Workspace != "" && ws != event.Workspace {
				continue
			}
			select {
			case ch <- raw:
			default:
				// Client buffer full; skip to avoid blocking broker loop.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = sub.workspace

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			if event.Type == TypeTreeUpdated {
				now := time.Now()
				if now.Sub(lastTree) < b.treeMin {
					continue
				}
				lastTree = now
			}
			broadcast(event)

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. A non-empty workspace
// limits change events to that workspace.
func (b *Broker) Subscribe(workspace string) chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, workspace: workspace}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients. tree.updated events are
// dropped when one was sent within the throttle interval.
func (b *Broker) Publish(event Event) {
	b.publish(context.Background(), event)
}

func (b *Broker) publish(ctx context.Context, event Event) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.publishCh <- event:
		return true
	case <-b.stopped:
	case <-ctx.Done():
	}
	return false
}

// Notify publishes a committed change set: one change event per change and a
// throttled tree.updated event.
func (b *Broker) Notify(ctx context.Context, cs connector.ChangeSet) {
	if cs.IsEmpty() {
		return
	}
	for _, c := range cs.Changes {
		ok := b.publish(ctx, Event{
			ID:        cs.Transaction.String(),
			Type:      TypeChange,
			Workspace: c.Workspace,
			Data:      c,
		})
		if !ok {
			return
		}
	}
	b.publish(ctx, Event{Type: TypeTreeUpdated, Data: map[string]string{"source": cs.Source}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events[?workspace=name]).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe(r.URL.Query().Get("workspace"))
	defer b.Unsubscribe(ch)

	// Comment lines keep idle connections open through proxies.
	ping := time.NewTicker(heartbeat)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": ping\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
