package connector_test

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/connector/inmemory"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// recorder collects change sets delivered to observers.
type recorder struct {
	mu   sync.Mutex
	sets []connector.ChangeSet
}

func (r *recorder) Notify(_ context.Context, cs connector.ChangeSet) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sets = append(r.sets, cs)
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sets)
}

func (r *recorder) last() connector.ChangeSet {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.sets[len(r.sets)-1]
}

type env struct {
	repo   *connector.Repository
	source *connector.Source
	conn   *connector.Connection
	events *recorder
}

func newEnv(t *testing.T, opts ...connector.SourceOption) *env {
	t.Helper()
	repo := connector.NewRepository("test", uuid.New(), "default",
		inmemory.NewFactory(inmemory.WithLogger(quietLogger())), quietLogger())
	require.NoError(t, repo.Init("other"))
	return newEnvFor(t, repo, opts...)
}

func newEnvFor(t *testing.T, repo *connector.Repository, opts ...connector.SourceOption) *env {
	t.Helper()
	events := &recorder{}
	opts = append([]connector.SourceOption{connector.WithObserver(events), connector.WithLogger(quietLogger())}, opts...)
	src := connector.NewSource(repo, opts...)
	return &env{repo: repo, source: src, conn: src.Connection(), events: events}
}

func (e *env) exec(t *testing.T, req request.Request) request.Request {
	t.Helper()
	require.NoError(t, e.conn.Execute(context.Background(), req))
	return req
}

func (e *env) ok(t *testing.T, req request.Request) {
	t.Helper()
	e.exec(t, req)
	require.NoError(t, req.Err())
}

func at(path string) graph.Location { return graph.At(graph.MustParsePath(path)) }

func locPtr(path string) *graph.Location {
	l := at(path)
	return &l
}

func (e *env) create(t *testing.T, ws, parent, name string, props ...*graph.Property) *request.CreateNode {
	t.Helper()
	req := &request.CreateNode{Workspace: ws, Under: at(parent), Name: graph.Name(name), Properties: props}
	e.ok(t, req)
	return req
}

func (e *env) read(t *testing.T, ws, path string) *request.ReadNode {
	t.Helper()
	req := &request.ReadNode{Workspace: ws, At: at(path)}
	e.exec(t, req)
	return req
}

func (e *env) mustRead(t *testing.T, ws, path string) *request.ReadNode {
	t.Helper()
	req := e.read(t, ws, path)
	require.NoError(t, req.Err(), "read %s", path)
	return req
}

func childNames(r *request.ReadNode) []string {
	out := make([]string, 0, len(r.Children))
	for _, c := range r.Children {
		out = append(out, c.Path.String())
	}
	return out
}

func identifier(t *testing.T, r *request.ReadNode) uuid.UUID {
	t.Helper()
	p := r.Properties[graph.Identifier]
	require.NotNil(t, p, "no identifier on %s", r.ActualLocation)
	id, err := uuid.Parse(p.String())
	require.NoError(t, err)
	return id
}

func refs(t *testing.T, r *request.ReadNode, name graph.Name) []uuid.UUID {
	t.Helper()
	p := r.Properties[name]
	require.NotNil(t, p, "no %s on %s", name, r.ActualLocation)
	var out []uuid.UUID
	for _, ref := range p.References() {
		out = append(out, ref.UUID())
	}
	return out
}
