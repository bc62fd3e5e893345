package filesystem

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/checksum"
	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

func quiet() *slog.Logger { return slog.New(slog.NewJSONHandler(io.Discard, nil)) }

func tempWorkspace(t *testing.T, extra ExtraProperties) *Workspace {
	t.Helper()
	ws, err := NewWorkspace("default", t.TempDir(), uuid.New(), extra, quiet())
	require.NoError(t, err)
	return ws
}

func node(t *testing.T, ws connector.Workspace, path string) *connector.Node {
	t.Helper()
	n, err := ws.Node(graph.MustParsePath(path))
	require.NoError(t, err)
	return n
}

func fileProps(content string) map[graph.Name]*graph.Property {
	return map[graph.Name]*graph.Property{
		graph.PrimaryType: graph.NewProperty(graph.PrimaryType, TypeFile),
		graph.Data:        graph.NewProperty(graph.Data, []byte(content)),
	}
}

func TestNewWorkspace_RejectsFile(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(f, nil, 0o644))
	_, err := NewWorkspace("x", f, uuid.New(), ExtraIgnore, quiet())
	assert.Error(t, err)
}

func TestCreateAndReadNodes(t *testing.T) {
	ws := tempWorkspace(t, ExtraIgnore)
	root := node(t, ws, "/")
	assert.NotEqual(t, uuid.Nil, root.UUID())

	dir, err := ws.CreateNode(root, "docs", nil, request.Append)
	require.NoError(t, err)
	assert.Equal(t, TypeFolder, dir.Property(graph.PrimaryType).String())

	file, err := ws.CreateNode(dir, "readme.txt", fileProps("hello"), request.Append)
	require.NoError(t, err)
	assert.Equal(t, TypeFile, file.Property(graph.PrimaryType).String())
	assert.Equal(t, []byte("hello"), file.Property(graph.Data).First())
	assert.Equal(t, checksum.Sum([]byte("hello")), file.Property(graph.Checksum).String())

	onDisk, err := os.ReadFile(filepath.Join(ws.Dir(), "docs", "readme.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello", string(onDisk))

	assert.Equal(t, []graph.Path{graph.MustParsePath("/docs/readme.txt")}, node(t, ws, "/docs").ChildPaths())
}

func TestNode_NotFound(t *testing.T) {
	ws := tempWorkspace(t, ExtraIgnore)
	_, err := ws.Node(graph.MustParsePath("/missing"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = ws.CreateNode(node(t, ws, "/"), "a", nil, request.Append)
	require.NoError(t, err)
	_, err = ws.Node(graph.MustParsePath("/a[2]"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.Equal(t, "/a", ws.LowestExistingPath(graph.MustParsePath("/a/b/c")).String())
}

func TestSafePath_RejectsTraversal(t *testing.T) {
	ws := tempWorkspace(t, ExtraIgnore)
	_, err := ws.Node(graph.NewPath(graph.NewSegment("..", 1), graph.NewSegment("etc", 1)))
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestCreate_ConflictBehaviors(t *testing.T) {
	ws := tempWorkspace(t, ExtraIgnore)
	root := node(t, ws, "/")
	_, err := ws.CreateNode(root, "f", fileProps("one"), request.Append)
	require.NoError(t, err)

	_, err = ws.CreateNode(root, "f", fileProps("two"), request.Append)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest, "no same-name siblings on disk")

	same, err := ws.CreateNode(root, "f", fileProps("two"), request.DoNotReplace)
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), same.Property(graph.Data).First())

	replaced, err := ws.CreateNode(root, "f", fileProps("three"), request.Replace)
	require.NoError(t, err)
	assert.Equal(t, []byte("three"), replaced.Property(graph.Data).First())
}

func TestExtraProperties(t *testing.T) {
	props := map[graph.Name]*graph.Property{"custom": graph.NewProperty("custom", "x")}

	lenient := tempWorkspace(t, ExtraIgnore)
	n, err := lenient.CreateNode(node(t, lenient, "/"), "d", props, request.Append)
	require.NoError(t, err)
	assert.Nil(t, n.Property("custom"))

	strict := tempWorkspace(t, ExtraError)
	_, err = strict.CreateNode(node(t, strict, "/"), "d", props, request.Append)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	_, err = strict.CreateNode(node(t, strict, "/"), "d",
		map[graph.Name]*graph.Property{graph.PrimaryType: graph.NewProperty(graph.PrimaryType, "nt:unstructured")}, request.Append)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestSetProperties(t *testing.T) {
	ws := tempWorkspace(t, ExtraIgnore)
	_, err := ws.CreateNode(node(t, ws, "/"), "f", fileProps("old"), request.Append)
	require.NoError(t, err)

	when := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	n, err := ws.SetProperties(graph.MustParsePath("/f"), map[graph.Name]*graph.Property{
		graph.Data:         graph.NewProperty(graph.Data, "new"),
		graph.LastModified: graph.NewProperty(graph.LastModified, when),
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("new"), n.Property(graph.Data).First())
	assert.True(t, when.Equal(n.Property(graph.LastModified).First().(time.Time)))

	n, err = ws.RemoveProperties(graph.MustParsePath("/f"), graph.Data)
	require.NoError(t, err)
	assert.Empty(t, n.Property(graph.Data).First())

	_, err = ws.SetProperties(graph.MustParsePath("/f"), map[graph.Name]*graph.Property{
		graph.PrimaryType: graph.NewProperty(graph.PrimaryType, TypeFolder),
	})
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestMoveAndRemove(t *testing.T) {
	ws := tempWorkspace(t, ExtraIgnore)
	root := node(t, ws, "/")
	a, err := ws.CreateNode(root, "a", nil, request.Append)
	require.NoError(t, err)
	_, err = ws.CreateNode(a, "f", fileProps("data"), request.Append)
	require.NoError(t, err)
	b, err := ws.CreateNode(root, "b", nil, request.Append)
	require.NoError(t, err)

	moved, err := ws.MoveNode(node(t, ws, "/a"), "", ws, b, nil)
	require.NoError(t, err)
	assert.Equal(t, "/b/a", moved.Path().String())
	assert.Equal(t, []byte("data"), node(t, ws, "/b/a/f").Property(graph.Data).First())
	_, err = ws.Node(graph.MustParsePath("/a"))
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = ws.MoveNode(node(t, ws, "/b"), "", ws, node(t, ws, "/b/a"), nil)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)

	require.NoError(t, ws.RemoveNode(graph.MustParsePath("/b")))
	assert.Empty(t, node(t, ws, "/").ChildPaths())
	assert.ErrorIs(t, ws.RemoveNode(graph.RootPath()), apperr.ErrInvalidRequest)
	assert.ErrorIs(t, ws.RemoveNode(graph.MustParsePath("/b")), apperr.ErrNotFound)
}

func TestFactory_OpenAndDestroy(t *testing.T) {
	base := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(base, "existing", "sub"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(base, ".hidden"), 0o755))

	f, err := NewFactory(base, ExtraIgnore, quiet())
	require.NoError(t, err)
	root := uuid.New()
	found, err := f.Open(root)
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "existing", found[0].Name())

	ws, err := f.NewWorkspace("fresh", root)
	require.NoError(t, err)
	assert.DirExists(t, filepath.Join(base, "fresh"))
	require.NoError(t, f.DestroyWorkspace(ws))
	assert.NoDirExists(t, filepath.Join(base, "fresh"))

	_, err = f.NewWorkspace("../escape", root)
	assert.ErrorIs(t, err, apperr.ErrInvalidRequest)
}

func TestThroughConnection(t *testing.T) {
	f, err := NewFactory(t.TempDir(), ExtraIgnore, quiet())
	require.NoError(t, err)
	repo := connector.NewRepository("disk", uuid.New(), "default", f, quiet())
	require.NoError(t, repo.Init())
	conn := connector.NewSource(repo, connector.WithLogger(quiet())).Connection()
	ctx := context.Background()

	create := &request.CreateNode{Under: graph.At(graph.RootPath()), Name: "notes.txt",
		Properties: []*graph.Property{graph.NewProperty(graph.Data, "hi"), graph.NewProperty("ignored", 1)}}
	require.NoError(t, conn.Execute(ctx, create))
	require.NoError(t, create.Err())

	cp := &request.CopyBranch{From: graph.At(graph.MustParsePath("/notes.txt")), Into: graph.At(graph.RootPath()), DesiredName: "copy.txt"}
	require.NoError(t, conn.Execute(ctx, cp))
	require.NoError(t, cp.Err())

	read := &request.ReadNode{At: graph.At(graph.MustParsePath("/copy.txt"))}
	require.NoError(t, conn.Execute(ctx, read))
	require.NoError(t, read.Err())
	assert.Equal(t, []byte("hi"), read.Properties[graph.Data].First())

	// writes are applied directly, so a failed request cannot undo earlier steps
	batch := request.NewComposite(
		&request.CreateNode{Under: graph.At(graph.RootPath()), Name: "kept"},
		&request.CreateNode{Under: graph.At(graph.MustParsePath("/missing")), Name: "x"},
	)
	require.NoError(t, conn.Execute(ctx, batch))
	require.Error(t, batch.Err())
	assert.DirExists(t, filepath.Join(f.Base(), "default", "kept"))
}

func TestRollback_KeepsPreexistingDirectory(t *testing.T) {
	f, err := NewFactory(t.TempDir(), ExtraIgnore, quiet())
	require.NoError(t, err)
	repo := connector.NewRepository("disk", uuid.New(), "default", f, quiet())
	require.NoError(t, repo.Init())
	conn := connector.NewSource(repo, connector.WithLogger(quiet())).Connection()

	// present on disk but never registered with the repository
	orphan := filepath.Join(f.Base(), "orphan")
	require.NoError(t, os.MkdirAll(orphan, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(orphan, "keep.txt"), []byte("data"), 0o644))

	batch := request.NewComposite(
		&request.CreateWorkspace{DesiredName: "orphan"},
		&request.CreateWorkspace{DesiredName: "fresh"},
		&request.CreateNode{Under: graph.At(graph.MustParsePath("/missing")), Name: "x"},
	)
	require.NoError(t, conn.Execute(context.Background(), batch))
	require.ErrorIs(t, batch.Err(), apperr.ErrPathNotFound)

	assert.FileExists(t, filepath.Join(orphan, "keep.txt"))
	assert.NoDirExists(t, filepath.Join(f.Base(), "fresh"))
	_, ok := repo.Workspace("orphan")
	assert.False(t, ok)
}
