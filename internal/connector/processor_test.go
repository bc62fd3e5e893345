package connector_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/connector/inmemory"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

func TestCreateThenRead_RoundTrip(t *testing.T) {
	e := newEnv(t)
	props := []*graph.Property{
		graph.NewProperty("p1", "v1"),
		graph.NewProperty("count", 5),
		graph.NewProperty("tags", "a", "b"),
	}
	created := e.create(t, "", "/", "a", props...)
	assert.Equal(t, "/a", created.ActualLocation.Path.String())

	got := e.mustRead(t, "", "/a")
	assert.Empty(t, got.Children)
	require.Len(t, got.Properties, len(props))
	for _, p := range props {
		assert.True(t, p.Equal(got.Properties[p.Name()]), "property %s", p.Name())
	}
	policy, ok := got.CachePolicy()
	assert.True(t, ok)
	assert.Equal(t, graph.CachePolicy{}, policy)
}

func TestCreate_StripsEmptyProperties(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "a", graph.NewProperty("empty"), graph.NewProperty("full", "x"))
	got := e.mustRead(t, "", "/a")
	assert.Nil(t, got.Properties["empty"])
	assert.NotNil(t, got.Properties["full"])
}

func TestCreate_MissingParentReportsLowestExisting(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "a")
	req := &request.CreateNode{Under: at("/a/b/c"), Name: "x"}
	e.exec(t, req)
	require.ErrorIs(t, req.Err(), apperr.ErrPathNotFound)
	var nf *apperr.PathNotFoundError
	require.True(t, errors.As(req.Err(), &nf))
	assert.Equal(t, "/a", nf.LowestExisting.String())
}

func TestRead_Errors(t *testing.T) {
	e := newEnv(t)

	missing := e.read(t, "", "/nope")
	assert.ErrorIs(t, missing.Err(), apperr.ErrPathNotFound)

	badWs := e.read(t, "ghost", "/")
	assert.ErrorIs(t, badWs.Err(), apperr.ErrInvalidWorkspace)
	assert.False(t, errors.Is(badWs.Err(), apperr.ErrPathNotFound))
}

func TestRead_RootByUUID(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "a")
	req := &request.ReadNode{At: graph.AtUUID(e.repo.RootUUID())}
	e.ok(t, req)
	assert.True(t, req.ActualLocation.Path.IsRoot())
	assert.Equal(t, e.repo.RootUUID(), req.ActualLocation.UUID)
	assert.Equal(t, []string{"/a"}, childNames(req))
}

func TestRead_ByIdentifier(t *testing.T) {
	e := newEnv(t)
	id := uuid.New()
	e.create(t, "", "/", "a", graph.NewProperty(graph.Identifier, id))
	req := &request.ReadAllProperties{At: graph.AtUUID(id)}
	e.ok(t, req)
	assert.Equal(t, "/a", req.ActualLocation.Path.String())
	assert.Equal(t, id, req.ActualLocation.UUID)

	missing := &request.ReadAllChildren{Of: graph.AtUUID(uuid.New())}
	e.exec(t, missing)
	assert.ErrorIs(t, missing.Err(), apperr.ErrPathNotFound)
}

func TestSameNameSiblings(t *testing.T) {
	e := newEnv(t)
	const n = 4
	for i := 1; i <= n; i++ {
		req := e.create(t, "", "/", "x", graph.NewProperty("i", i))
		assert.Equal(t, graph.NewSegment("x", i), req.ActualLocation.Path.Last())
	}
	e.ok(t, &request.DeleteBranch{At: at("/x[2]")})

	root := e.mustRead(t, "", "/")
	assert.Equal(t, []string{"/x", "/x[2]", "/x[3]"}, childNames(root))
	assert.Equal(t, int64(3), e.mustRead(t, "", "/x[2]").Properties["i"].First())

	again := e.create(t, "", "/", "x", graph.NewProperty("i", 5))
	assert.Equal(t, "/x[4]", again.ActualLocation.Path.String())
	for i, want := range []int64{1, 3, 4, 5} {
		got := e.mustRead(t, "", graph.NewPath(graph.NewSegment("x", i+1)).String())
		assert.Equal(t, want, got.Properties["i"].First())
	}
}

func TestCopy_FixesInternalReferences(t *testing.T) {
	e := newEnv(t)
	idA, idB, idC := uuid.New(), uuid.New(), uuid.New()

	e.create(t, "", "/", "src")
	e.create(t, "", "/src", "B",
		graph.NewProperty(graph.Identifier, idB),
		graph.NewProperty("toC", graph.NewReference(idC)))
	e.create(t, "", "/src/B", "C",
		graph.NewProperty(graph.Identifier, idC),
		graph.NewProperty("toB", graph.NewReference(idB)),
		graph.NewProperty("toA", graph.NewReference(idA)))
	e.create(t, "", "/", "A",
		graph.NewProperty(graph.Identifier, idA),
		graph.NewProperty("toB", graph.NewReference(idB)))
	e.create(t, "", "/", "dst")

	cp := &request.CopyBranch{From: at("/src/B"), Into: at("/dst")}
	e.ok(t, cp)
	assert.Equal(t, "/dst/B", cp.ActualIntoLocation.Path.String())

	a := e.mustRead(t, "", "/A")
	assert.Equal(t, []uuid.UUID{idB}, refs(t, a, "toB"), "reference from outside keeps its target")

	b2 := e.mustRead(t, "", "/dst/B")
	c2 := e.mustRead(t, "", "/dst/B/C")
	newB, newC := identifier(t, b2), identifier(t, c2)
	assert.NotEqual(t, idB, newB)
	assert.NotEqual(t, idC, newC)
	assert.Equal(t, []uuid.UUID{newC}, refs(t, b2, "toC"))
	assert.Equal(t, []uuid.UUID{newB}, refs(t, c2, "toB"))
	assert.Equal(t, []uuid.UUID{idA}, refs(t, c2, "toA"), "reference to outside the copy is preserved")

	b := e.mustRead(t, "", "/src/B")
	assert.Equal(t, idB, identifier(t, b))
	assert.Equal(t, []uuid.UUID{idC}, refs(t, b, "toC"))
}

func TestCopy_Scenario(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "a", graph.NewProperty("p1", "v1"))
	e.create(t, "", "/a", "b", graph.NewProperty("p2", "v2"))
	e.create(t, "", "/", "c")

	e.ok(t, &request.CopyBranch{From: at("/a"), Into: at("/c"), DesiredName: "a"})

	assert.Equal(t, "v1", e.mustRead(t, "", "/c/a").Properties["p1"].String())
	assert.Equal(t, "v2", e.mustRead(t, "", "/c/a/b").Properties["p2"].String())
	assert.Equal(t, "v1", e.mustRead(t, "", "/a").Properties["p1"].String())
	assert.Equal(t, "v2", e.mustRead(t, "", "/a/b").Properties["p2"].String())

	e.ok(t, &request.UpdateProperties{On: at("/c/a/b"), Properties: map[graph.Name]*graph.Property{"p2": graph.NewProperty("p2", "changed")}})
	assert.Equal(t, "v2", e.mustRead(t, "", "/a/b").Properties["p2"].String(), "copies are independent")
}

func TestCopy_AcrossWorkspacesAndIntoOwnSubtree(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "a")
	e.create(t, "", "/a", "b")

	e.ok(t, &request.CopyBranch{From: at("/a"), IntoWorkspace: "other", Into: at("/")})
	assert.Equal(t, []string{"/a/b"}, childNames(e.mustRead(t, "other", "/a")))

	e.ok(t, &request.CopyBranch{From: at("/a"), Into: at("/a/b")})
	assert.Equal(t, []string{"/a/b/a/b"}, childNames(e.mustRead(t, "", "/a/b/a")))
	assert.Empty(t, e.mustRead(t, "", "/a/b/a/b").Children)
}

func TestMove_IsCopyThenDelete(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "p1")
	e.create(t, "", "/", "p2")
	e.create(t, "", "/", "other", graph.NewProperty("k", "v"))
	e.create(t, "", "/p1", "n", graph.NewProperty("p", "x"))
	e.create(t, "", "/p1/n", "kid")

	mv := &request.MoveBranch{From: at("/p1/n"), Into: locPtr("/p2")}
	e.ok(t, mv)
	assert.Equal(t, "/p1/n", mv.ActualOldLocation.Path.String())
	assert.Equal(t, "/p2/n", mv.ActualNewLocation.Path.String())

	assert.ErrorIs(t, e.read(t, "", "/p1/n").Err(), apperr.ErrPathNotFound)
	moved := e.mustRead(t, "", "/p2/n")
	assert.Equal(t, "x", moved.Properties["p"].String())
	assert.Equal(t, []string{"/p2/n/kid"}, childNames(moved))
	assert.Equal(t, []string{"/p1", "/p2", "/other"}, childNames(e.mustRead(t, "", "/")))
	assert.Equal(t, "v", e.mustRead(t, "", "/other").Properties["k"].String())
}

func TestMove_WithinSiblingsAndRename(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "x", graph.NewProperty("i", 1))
	e.create(t, "", "/", "y")
	e.create(t, "", "/", "x", graph.NewProperty("i", 2))

	mv := &request.MoveBranch{From: at("/x[2]"), Before: locPtr("/x")}
	e.ok(t, mv)
	assert.Equal(t, "/x", mv.ActualNewLocation.Path.String())
	assert.Equal(t, []string{"/x", "/x[2]", "/y"}, childNames(e.mustRead(t, "", "/")))
	assert.Equal(t, int64(2), e.mustRead(t, "", "/x").Properties["i"].First())

	rn := &request.MoveBranch{From: at("/x"), Into: locPtr("/y"), DesiredName: "renamed"}
	e.ok(t, rn)
	assert.Equal(t, "/y/renamed", rn.ActualNewLocation.Path.String())
	assert.Equal(t, int64(1), e.mustRead(t, "", "/x").Properties["i"].First())
}

func TestMove_BelowItselfIsInvalid(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "a")
	e.create(t, "", "/a", "b")
	mv := &request.MoveBranch{From: at("/a"), Into: locPtr("/a/b")}
	e.exec(t, mv)
	assert.ErrorIs(t, mv.Err(), apperr.ErrInvalidRequest)
	e.mustRead(t, "", "/a/b")

	noTarget := &request.MoveBranch{From: at("/a")}
	e.exec(t, noTarget)
	assert.ErrorIs(t, noTarget.Err(), apperr.ErrInvalidRequest)
}

func TestConflictBehaviors(t *testing.T) {
	e := newEnv(t)
	seed := func() {
		e.ok(t, &request.CreateNode{Under: at("/"), Name: "n", Properties: []*graph.Property{graph.NewProperty("old", "o")}, Conflict: request.Replace})
		e.create(t, "", "/n", "kid")
	}

	seed()
	e.ok(t, &request.CreateNode{Under: at("/"), Name: "n", Properties: []*graph.Property{graph.NewProperty("new", "n")}, Conflict: request.Replace})
	got := e.mustRead(t, "", "/n")
	assert.Nil(t, got.Properties["old"], "replace discards prior properties")
	assert.Empty(t, got.Children, "replace discards prior children")

	seed()
	e.ok(t, &request.CreateNode{Under: at("/"), Name: "n", Properties: []*graph.Property{graph.NewProperty("new", "n")}, Conflict: request.Update})
	got = e.mustRead(t, "", "/n")
	assert.NotNil(t, got.Properties["old"])
	assert.NotNil(t, got.Properties["new"])
	assert.Equal(t, []string{"/n/kid"}, childNames(got), "update keeps children")

	seed()
	dnr := &request.CreateNode{Under: at("/"), Name: "n", Properties: []*graph.Property{graph.NewProperty("new", "n")}, Conflict: request.DoNotReplace}
	e.ok(t, dnr)
	assert.Equal(t, "/n", dnr.ActualLocation.Path.String())
	got = e.mustRead(t, "", "/n")
	assert.Nil(t, got.Properties["new"], "do-not-replace leaves the node untouched")
	assert.Len(t, got.Children, 1)

	app := &request.CreateNode{Under: at("/"), Name: "n", Conflict: request.Append}
	e.ok(t, app)
	assert.Equal(t, "/n[2]", app.ActualLocation.Path.String())
}

func TestReadOnlySource_RejectsEveryWrite(t *testing.T) {
	repo := connector.NewRepository("ro", uuid.New(), "default", inmemory.NewFactory(), quietLogger())
	require.NoError(t, repo.Init())
	writer := newEnvFor(t, repo)
	writer.create(t, "", "/", "a", graph.NewProperty("p", "v"))
	writer.create(t, "", "/a", "b")

	ws, _ := repo.Workspace("default")
	before := ws.(*inmemory.Workspace).Snapshot()

	e := newEnvFor(t, repo, connector.WithUpdatesAllowed(false))
	writes := []request.Request{
		&request.CreateNode{Under: at("/"), Name: "x"},
		&request.DeleteBranch{At: at("/a")},
		&request.MoveBranch{From: at("/a/b"), Into: locPtr("/")},
		&request.CopyBranch{From: at("/a"), Into: at("/")},
		&request.CloneBranch{From: at("/a"), IntoWorkspace: "x", Into: at("/")},
		&request.UpdateProperties{On: at("/a"), Properties: map[graph.Name]*graph.Property{"p": nil}},
		&request.CreateWorkspace{DesiredName: "new"},
		&request.DestroyWorkspace{Workspace: "default"},
		&request.CloneWorkspace{SourceName: "default", TargetName: "copy"},
	}
	for _, w := range writes {
		e.exec(t, w)
		assert.ErrorIs(t, w.Err(), apperr.ErrInvalidRequest, w.Kind())
	}
	assert.Equal(t, before, ws.(*inmemory.Workspace).Snapshot())
	assert.Equal(t, []string{"default"}, repo.WorkspaceNames())
	assert.Zero(t, e.events.count())

	e.ok(t, &request.ReadNode{At: at("/a")})
}

// readOnlyWorkspace hides the write side of an in-memory workspace.
type readOnlyWorkspace struct {
	connector.Workspace
}

func TestReadOnlyWorkspace_RejectsWrites(t *testing.T) {
	root := uuid.New()
	repo := connector.NewRepository("mixed", root, "default", inmemory.NewFactory(), quietLogger())
	repo.Register(readOnlyWorkspace{inmemory.New("archive", root)})
	require.NoError(t, repo.Init())
	e := newEnvFor(t, repo)

	req := &request.CreateNode{Workspace: "archive", Under: at("/"), Name: "x"}
	e.exec(t, req)
	assert.ErrorIs(t, req.Err(), apperr.ErrInvalidRequest)
	e.ok(t, &request.ReadNode{Workspace: "archive", At: at("/")})
}

func TestCloneBranch_PreservesIdentity(t *testing.T) {
	e := newEnv(t)
	id := uuid.New()
	e.create(t, "", "/", "a", graph.NewProperty(graph.Identifier, id))
	e.create(t, "", "/a", "b")

	cl := &request.CloneBranch{From: at("/a"), IntoWorkspace: "other", Into: at("/")}
	e.ok(t, cl)
	assert.Equal(t, id, identifier(t, e.mustRead(t, "other", "/a")))
	assert.Empty(t, cl.RemovedNodes)

	again := &request.CloneBranch{From: at("/a"), IntoWorkspace: "other", Into: at("/"), DesiredName: "second"}
	e.exec(t, again)
	assert.ErrorIs(t, again.Err(), apperr.ErrInvalidRequest, "identifier collision without removal")

	replace := &request.CloneBranch{From: at("/a"), IntoWorkspace: "other", Into: at("/"), DesiredName: "second", RemoveExisting: true}
	e.ok(t, replace)
	require.Len(t, replace.RemovedNodes, 1)
	assert.Equal(t, "/a", replace.RemovedNodes[0].Path.String())
	assert.Equal(t, []string{"/second"}, childNames(e.mustRead(t, "other", "/")))

	same := &request.CloneBranch{From: at("/a"), Into: at("/")}
	e.exec(t, same)
	assert.ErrorIs(t, same.Err(), apperr.ErrInvalidRequest)
}

func TestUpdateProperties(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "a", graph.NewProperty("keep", 1), graph.NewProperty("drop", 2))
	up := &request.UpdateProperties{On: at("/a"), Properties: map[graph.Name]*graph.Property{
		"drop":  nil,
		"added": graph.NewProperty("added", 3.5),
	}}
	e.ok(t, up)
	got := e.mustRead(t, "", "/a")
	assert.Equal(t, int64(1), got.Properties["keep"].First())
	assert.Nil(t, got.Properties["drop"])
	assert.Equal(t, 3.5, got.Properties["added"].First())
}

func TestDeleteBranch(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "a")
	e.create(t, "", "/a", "b")
	del := &request.DeleteBranch{At: at("/a")}
	e.ok(t, del)
	assert.Equal(t, "/a", del.ActualLocation.Path.String())
	assert.ErrorIs(t, e.read(t, "", "/a/b").Err(), apperr.ErrPathNotFound)

	root := &request.DeleteBranch{At: at("/")}
	e.exec(t, root)
	assert.ErrorIs(t, root.Err(), apperr.ErrInvalidRequest)
}

func TestLockBranch(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "a")
	e.ok(t, &request.LockBranch{At: at("/a"), Scope: request.SelectedNodeAndDescendants})

	second := &request.LockBranch{At: at("/a"), Timeout: 10 * time.Millisecond}
	e.exec(t, second)
	assert.ErrorIs(t, second.Err(), apperr.ErrLockFailed)

	e.ok(t, &request.UnlockBranch{At: at("/a")})
	e.ok(t, &request.LockBranch{At: at("/a"), Timeout: 10 * time.Millisecond})
}

func TestLockBranch_ObserversSeeLockAndUnlock(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "a")
	before := e.events.count()

	e.ok(t, &request.LockBranch{At: at("/a")})
	require.Equal(t, before+1, e.events.count())
	lock := e.events.last().Changes
	require.Len(t, lock, 1)
	assert.Equal(t, "lock-branch", lock[0].Kind)
	assert.Equal(t, "/a", lock[0].Path.String())

	failed := &request.LockBranch{At: at("/a"), Timeout: 10 * time.Millisecond}
	e.exec(t, failed)
	require.ErrorIs(t, failed.Err(), apperr.ErrLockFailed)
	assert.Equal(t, before+1, e.events.count())

	e.ok(t, &request.UnlockBranch{At: at("/a")})
	require.Equal(t, before+2, e.events.count())
	assert.Equal(t, "unlock-branch", e.events.last().Changes[0].Kind)
}

func TestLockBranch_FollowsNodeAcrossRenumbering(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "x")
	e.create(t, "", "/", "x", graph.NewProperty("marker", "locked"))
	e.ok(t, &request.LockBranch{At: at("/x[2]")})

	e.ok(t, &request.DeleteBranch{At: at("/x")})
	e.create(t, "", "/", "x")

	assert.Equal(t, "locked", e.mustRead(t, "", "/x").Properties["marker"].String())
	e.ok(t, &request.LockBranch{At: at("/x[2]"), Timeout: 50 * time.Millisecond})
	held := &request.LockBranch{At: at("/x"), Timeout: 50 * time.Millisecond}
	e.exec(t, held)
	assert.ErrorIs(t, held.Err(), apperr.ErrLockFailed)
}

func TestLockBranch_NoopWithoutLocking(t *testing.T) {
	root := uuid.New()
	repo := connector.NewRepository("plain", root, "default", nil, quietLogger())
	repo.Register(readOnlyWorkspace{inmemory.New("default", root)})
	e := newEnvFor(t, repo)
	e.ok(t, &request.LockBranch{At: at("/")})
	e.ok(t, &request.LockBranch{At: at("/")})
	e.ok(t, &request.UnlockBranch{At: at("/")})
}

func TestQueryAndSearch_Unsupported(t *testing.T) {
	e := newEnv(t)
	q := &request.AccessQuery{Query: "select *"}
	e.exec(t, q)
	assert.ErrorIs(t, q.Err(), apperr.ErrInvalidRequest)
	s := &request.FullTextSearch{Expression: "hello"}
	e.exec(t, s)
	assert.ErrorIs(t, s.Err(), apperr.ErrInvalidRequest)
}

type unknownRequest struct{ request.Base }

func (*unknownRequest) Kind() string     { return "unknown" }
func (*unknownRequest) IsReadOnly() bool { return true }

func TestUnknownRequest(t *testing.T) {
	e := newEnv(t)
	req := &unknownRequest{}
	e.exec(t, req)
	assert.ErrorIs(t, req.Err(), apperr.ErrInvalidRequest)
}

func TestWorkspaceLifecycle(t *testing.T) {
	e := newEnv(t)

	cw := &request.CreateWorkspace{DesiredName: "work"}
	e.ok(t, cw)
	assert.Equal(t, "work", cw.ActualWorkspace)
	assert.Equal(t, e.repo.RootUUID(), cw.ActualRootLocation.UUID)

	dup := &request.CreateWorkspace{DesiredName: "work"}
	e.exec(t, dup)
	assert.ErrorIs(t, dup.Err(), apperr.ErrInvalidWorkspace)

	for _, want := range []string{"work-1", "work-2"} {
		adj := &request.CreateWorkspace{DesiredName: "work", Conflict: request.CreateWithAdjustedName}
		e.ok(t, adj)
		assert.Equal(t, want, adj.ActualWorkspace)
	}

	list := &request.GetWorkspaces{}
	e.ok(t, list)
	assert.Equal(t, []string{"default", "other", "work", "work-1", "work-2"}, list.Names)

	e.ok(t, &request.DestroyWorkspace{Workspace: "work-1"})
	verify := &request.VerifyWorkspace{Workspace: "work-1"}
	e.exec(t, verify)
	assert.ErrorIs(t, verify.Err(), apperr.ErrInvalidWorkspace)

	def := &request.VerifyWorkspace{}
	e.ok(t, def)
	assert.Equal(t, "default", def.ActualWorkspace)

	keep := &request.DestroyWorkspace{Workspace: "default"}
	e.exec(t, keep)
	assert.ErrorIs(t, keep.Err(), apperr.ErrInvalidRequest)
}

func TestCloneWorkspace(t *testing.T) {
	e := newEnv(t)
	id := uuid.New()
	e.create(t, "", "/", "a", graph.NewProperty(graph.Identifier, id))
	e.create(t, "", "/a", "b")
	e.ok(t, &request.UpdateProperties{On: at("/"), Properties: map[graph.Name]*graph.Property{"rootprop": graph.NewProperty("rootprop", "r")}})

	cl := &request.CloneWorkspace{SourceName: "default", TargetName: "copy"}
	e.ok(t, cl)
	assert.Equal(t, "copy", cl.ActualWorkspace)
	assert.Equal(t, id, identifier(t, e.mustRead(t, "copy", "/a")))
	e.mustRead(t, "copy", "/a/b")
	assert.Equal(t, "r", e.mustRead(t, "copy", "/").Properties["rootprop"].String())

	missing := &request.CloneWorkspace{SourceName: "ghost", TargetName: "x"}
	e.exec(t, missing)
	assert.ErrorIs(t, missing.Err(), apperr.ErrInvalidWorkspace)

	skip := &request.CloneWorkspace{SourceName: "ghost", TargetName: "x", CloneConflict: request.SkipClone}
	e.ok(t, skip)
	assert.Empty(t, e.mustRead(t, "x", "/").Children)
}

func TestWorkspaceCreation_RequiresFactory(t *testing.T) {
	root := uuid.New()
	repo := connector.NewRepository("fixed", root, "default", nil, quietLogger())
	repo.Register(inmemory.New("default", root))
	e := newEnvFor(t, repo)

	req := &request.CreateWorkspace{DesiredName: "new"}
	e.exec(t, req)
	assert.ErrorIs(t, req.Err(), apperr.ErrInvalidRequest)
	assert.Error(t, connector.NewRepository("x", root, "default", nil, quietLogger()).Init())
}

func TestReadBranch(t *testing.T) {
	e := newEnv(t)
	e.create(t, "", "/", "a", graph.NewProperty("title", "A"))
	e.create(t, "", "/a", "b")
	e.create(t, "", "/a/b", "c")
	e.create(t, "", "/a", "b")

	all := &request.ReadBranch{At: at("/a")}
	e.ok(t, all)
	var paths []string
	for _, n := range all.Nodes {
		paths = append(paths, n.Location.Path.String())
	}
	assert.Equal(t, []string{"/a", "/a/b", "/a/b/c", "/a/b[2]"}, paths)
	assert.Equal(t, "A", all.Nodes[0].Properties["title"].String())
	assert.Equal(t, 2, all.Nodes[2].Depth)

	shallow := &request.ReadBranch{At: at("/a"), MaxDepth: 1}
	e.ok(t, shallow)
	assert.Len(t, shallow.Nodes, 3)
	assert.Len(t, shallow.Nodes[1].Children, 1, "children are listed even below the depth limit")

	bad := &request.ReadBranch{At: at("/a"), MaxDepth: -1}
	e.exec(t, bad)
	assert.ErrorIs(t, bad.Err(), apperr.ErrInvalidRequest)
}
