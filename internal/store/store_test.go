package store

import (
	"context"
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/connector/inmemory"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

func testDB(t *testing.T) *DB {
	t.Helper()
	f, err := os.CreateTemp("", "arbor-test-*.db")
	require.NoError(t, err)
	f.Close()
	t.Cleanup(func() { os.Remove(f.Name()) })

	db, err := Open(f.Name())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func sampleNodes(root uuid.UUID, target uuid.UUID) []*connector.Node {
	p := graph.MustParsePath
	return []*connector.Node{
		connector.NewNode(graph.RootPath(), root, nil, []graph.Segment{
			graph.NewSegment("a", 1), graph.NewSegment("a", 2),
		}),
		connector.NewNode(p("/a"), uuid.Nil, map[graph.Name]*graph.Property{
			graph.Identifier: graph.NewProperty(graph.Identifier, target),
			"title":          graph.NewProperty("title", "hello world"),
			"count":          graph.NewProperty("count", 3),
			"blob":           graph.NewProperty("blob", []byte{1, 2, 3}),
		}, nil),
		connector.NewNode(p("/a[2]"), uuid.Nil, map[graph.Name]*graph.Property{
			"link": graph.NewProperty("link", graph.NewReference(target)),
		}, nil),
	}
}

func TestSchemaCreation(t *testing.T) {
	db := testDB(t)
	var count int
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM workspaces`).Scan(&count))
	require.NoError(t, db.conn.QueryRow(`SELECT count(*) FROM nodes`).Scan(&count))
}

func TestSaveAndLoadWorkspace(t *testing.T) {
	db := testDB(t)
	root, target := uuid.New(), uuid.New()
	require.NoError(t, db.SaveWorkspace("default", sampleNodes(root, target)))

	nodes, err := db.LoadWorkspace("default")
	require.NoError(t, err)
	require.Len(t, nodes, 3)

	assert.True(t, nodes[0].Path().IsRoot())
	assert.Equal(t, root, nodes[0].UUID())
	assert.Equal(t, "/a[2]", nodes[0].ChildPaths()[1].String())

	a := nodes[1]
	assert.Equal(t, "hello world", a.Property("title").String())
	assert.Equal(t, int64(3), a.Property("count").First())
	assert.Equal(t, []byte{1, 2, 3}, a.Property("blob").First())
	id, ok := a.Identifier()
	require.True(t, ok)
	assert.Equal(t, target, id)

	refs := nodes[2].Property("link").References()
	require.Len(t, refs, 1)
	assert.Equal(t, target, refs[0].UUID())

	ws, err := db.Workspaces()
	require.NoError(t, err)
	require.Len(t, ws, 1)
	assert.Equal(t, "default", ws[0].Name)
	assert.Equal(t, 3, ws[0].NodeCount)
}

func TestSaveWorkspace_ChecksumTracksContent(t *testing.T) {
	db := testDB(t)
	root, target := uuid.New(), uuid.New()
	nodes := sampleNodes(root, target)

	require.NoError(t, db.SaveWorkspace("w", nodes))
	first, err := db.Checksum("w")
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	require.NoError(t, db.SaveWorkspace("w", nodes))
	again, _ := db.Checksum("w")
	assert.Equal(t, first, again)

	nodes[1] = nodes[1].WithProperties(map[graph.Name]*graph.Property{"title": graph.NewProperty("title", "changed")})
	require.NoError(t, db.SaveWorkspace("w", nodes))
	changed, _ := db.Checksum("w")
	assert.NotEqual(t, first, changed)

	loaded, err := db.LoadWorkspace("w")
	require.NoError(t, err)
	assert.Equal(t, "changed", loaded[1].Property("title").String())
}

func TestDeleteWorkspace(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.SaveWorkspace("gone", sampleNodes(uuid.New(), uuid.New())))
	require.NoError(t, db.DeleteWorkspace("gone"))

	nodes, err := db.LoadWorkspace("gone")
	require.NoError(t, err)
	assert.Empty(t, nodes)
	cs, err := db.Checksum("gone")
	require.NoError(t, err)
	assert.Empty(t, cs)

	hits, err := db.Search("gone", "hello", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDeleteWorkspace_ReportsFailureAndKeepsRow(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.SaveWorkspace("kept", sampleNodes(uuid.New(), uuid.New())))
	_, err := db.conn.Exec(`DROP TABLE nodes`)
	require.NoError(t, err)

	require.Error(t, db.DeleteWorkspace("kept"))
	cs, err := db.Checksum("kept")
	require.NoError(t, err)
	assert.NotEmpty(t, cs, "a failed delete must not drop the workspace row")
}

func TestEncodeNode_BodyFollowsPropertyNames(t *testing.T) {
	n := connector.NewNode(graph.MustParsePath("/doc"), uuid.Nil, map[graph.Name]*graph.Property{
		"zeta":  graph.NewProperty("zeta", "last"),
		"alpha": graph.NewProperty("alpha", "first"),
		"mid":   graph.NewProperty("mid", "middle"),
		"num":   graph.NewProperty("num", 7),
	}, nil)
	for range 20 {
		row, err := encodeNode(n)
		require.NoError(t, err)
		assert.Equal(t, "first middle last", row.body)
	}
}

func TestSearch(t *testing.T) {
	db := testDB(t)
	require.NoError(t, db.SaveWorkspace("one", sampleNodes(uuid.New(), uuid.New())))
	require.NoError(t, db.SaveWorkspace("two", []*connector.Node{connector.NewNode(graph.RootPath(), uuid.New(), nil, nil)}))

	hits, err := db.Search("one", "hello", 10)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "/a", hits[0].Path)
	assert.NotEmpty(t, hits[0].Snippet)

	hits, err = db.Search("two", "hello", 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestPersistAndSearchThroughConnection(t *testing.T) {
	db := testDB(t)
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	root := uuid.New()
	factory := inmemory.NewFactory(inmemory.WithPersister(db), inmemory.WithSearcher(db), inmemory.WithLogger(logger))
	repo := connector.NewRepository("db", root, "default", factory, logger)
	require.NoError(t, repo.Init())
	conn := connector.NewSource(repo, connector.WithLogger(logger)).Connection()
	ctx := context.Background()

	create := &request.CreateNode{Under: graph.At(graph.RootPath()), Name: "doc",
		Properties: []*graph.Property{graph.NewProperty("title", "searchable words")}}
	require.NoError(t, conn.Execute(ctx, create))
	require.NoError(t, create.Err())

	search := &request.FullTextSearch{Expression: "searchable"}
	require.NoError(t, conn.Execute(ctx, search))
	require.NoError(t, search.Err())
	assert.Equal(t, SearchColumns, search.Columns)
	require.Len(t, search.Tuples, 1)
	assert.Equal(t, "/doc", search.Tuples[0][0])

	// a fresh workspace restored from the store sees the committed node
	nodes, err := db.LoadWorkspace("default")
	require.NoError(t, err)
	restored := inmemory.New("default", root)
	require.NoError(t, restored.Restore(nodes))
	n, err := restored.Node(graph.MustParsePath("/doc"))
	require.NoError(t, err)
	assert.Equal(t, "searchable words", n.Property("title").String())
}
