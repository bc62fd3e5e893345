package connector

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

// Transaction scopes the work of one request. It is not safe for concurrent
// use and is never shared between requests. Reads see committed state until
// the transaction writes to a workspace; from then on they see its view.
type Transaction struct {
	id   uuid.UUID
	repo *Repository

	locked    bool
	done      bool
	views     map[string]WorkspaceTx
	direct    map[string]WritableWorkspace
	created   map[string]Workspace
	destroyed map[string]Workspace
}

// ID returns the transaction id.
func (t *Transaction) ID() uuid.UUID { return t.id }

// Repository returns the repository the transaction belongs to.
func (t *Transaction) Repository() *Repository { return t.repo }

func (t *Transaction) lock() {
	if !t.locked {
		t.repo.writeMu.Lock()
		t.locked = true
	}
}

func (t *Transaction) unlock() {
	if t.locked {
		t.locked = false
		t.repo.writeMu.Unlock()
	}
}

func (t *Transaction) lookup(name string) (Workspace, bool) {
	if ws, ok := t.created[name]; ok {
		return ws, true
	}
	if _, gone := t.destroyed[name]; gone {
		return nil, false
	}
	return t.repo.workspaces.Get(name)
}

// taken reports whether name is unavailable for a new workspace. Names
// destroyed in this transaction stay taken until it commits.
func (t *Transaction) taken(name string) bool {
	if _, ok := t.created[name]; ok {
		return true
	}
	_, ok := t.repo.workspaces.Get(name)
	return ok
}

// Workspace returns the workspace as seen by this transaction.
func (t *Transaction) Workspace(name string) (Workspace, error) {
	if v, ok := t.views[name]; ok {
		return v, nil
	}
	if w, ok := t.direct[name]; ok {
		return w, nil
	}
	ws, ok := t.lookup(name)
	if !ok {
		return nil, apperr.NoSuchWorkspace(t.repo.source, name)
	}
	return ws, nil
}

// Writable returns a writable view of the named workspace, taking the
// repository write lock on first use. Workspaces that are neither
// Transactional nor WritableWorkspace are read-only.
func (t *Transaction) Writable(name string) (WritableWorkspace, error) {
	if t.done {
		return nil, fmt.Errorf("connector: transaction %s already finished", t.id)
	}
	if v, ok := t.views[name]; ok {
		return v, nil
	}
	if w, ok := t.direct[name]; ok {
		return w, nil
	}
	ws, ok := t.lookup(name)
	if !ok {
		return nil, apperr.NoSuchWorkspace(t.repo.source, name)
	}
	switch w := ws.(type) {
	case Transactional:
		t.lock()
		view, err := w.Begin()
		if err != nil {
			return nil, apperr.Unexpected("begin "+name, err)
		}
		t.views[name] = view
		return view, nil
	case WritableWorkspace:
		t.lock()
		t.direct[name] = w
		return w, nil
	default:
		return nil, apperr.WorkspaceReadOnly(t.repo.source, name)
	}
}

// WorkspaceNames returns the workspace names visible to this transaction.
func (t *Transaction) WorkspaceNames() []string {
	names := t.repo.workspaces.Keys()
	out := names[:0]
	for _, n := range names {
		if _, gone := t.destroyed[n]; !gone {
			out = append(out, n)
		}
	}
	for n := range t.created {
		if !slices.Contains(out, n) {
			out = append(out, n)
		}
	}
	slices.Sort(out)
	return out
}

// CreateWorkspace stages a new empty workspace. A taken name either fails
// with an InvalidWorkspace error or is adjusted with a numeric suffix.
func (t *Transaction) CreateWorkspace(name string, behavior request.CreateConflictBehavior) (Workspace, error) {
	if t.repo.factory == nil {
		return nil, apperr.InvalidRequest("source %q does not allow creating workspaces", t.repo.source)
	}
	if name == "" {
		return nil, apperr.InvalidRequest("workspace name is required")
	}
	t.lock()
	actual := name
	if t.taken(name) {
		if behavior != request.CreateWithAdjustedName {
			return nil, apperr.WorkspaceExists(t.repo.source, name)
		}
		for i := 1; t.taken(actual); i++ {
			actual = name + "-" + strconv.Itoa(i)
		}
	}
	ws, err := t.repo.factory.NewWorkspace(actual, t.repo.rootUUID)
	if err != nil {
		return nil, apperr.Unexpected("create workspace "+actual, err)
	}
	t.created[actual] = ws
	return ws, nil
}

// CloneWorkspace stages target as a copy of source: the root properties and
// every child subtree are copied, keeping node identifiers.
func (t *Transaction) CloneWorkspace(target string, behavior request.CreateConflictBehavior, source Workspace) (Workspace, error) {
	srcRoot, err := source.Node(graph.RootPath())
	if err != nil {
		return nil, apperr.Unexpected("read root of "+source.Name(), err)
	}
	tree, err := ReadTree(source, srcRoot, true)
	if err != nil {
		return nil, apperr.Unexpected("read "+source.Name(), err)
	}
	ws, err := t.CreateWorkspace(target, behavior)
	if err != nil {
		return nil, err
	}
	dst, err := t.Writable(ws.Name())
	if err != nil {
		return nil, err
	}
	root, err := dst.SetProperties(graph.RootPath(), srcRoot.Properties())
	if err != nil {
		return nil, apperr.Unexpected("clone root properties", err)
	}
	for _, child := range tree.Children {
		if _, err := CopyTree(dst, child, root, child.Node.Path().Last().Name, request.Append); err != nil {
			return nil, apperr.Unexpected("clone "+child.Node.Path().String(), err)
		}
	}
	return ws, nil
}

// DestroyWorkspace stages removal of the named workspace.
func (t *Transaction) DestroyWorkspace(name string) (Workspace, error) {
	if t.repo.factory == nil {
		return nil, apperr.InvalidRequest("source %q does not allow destroying workspaces", t.repo.source)
	}
	ws, ok := t.lookup(name)
	if !ok {
		return nil, apperr.NoSuchWorkspace(t.repo.source, name)
	}
	t.lock()
	if v, ok := t.views[name]; ok {
		_ = v.Rollback()
		delete(t.views, name)
	}
	delete(t.direct, name)
	if _, ok := t.created[name]; ok {
		delete(t.created, name)
		if err := t.repo.factory.DestroyWorkspace(ws); err != nil {
			return nil, apperr.Unexpected("destroy workspace "+name, err)
		}
		return ws, nil
	}
	t.destroyed[name] = ws
	return ws, nil
}

// Commit publishes every view and then applies staged workspace creation and
// destruction. Views are committed in name order. On failure the views not
// yet committed are rolled back.
func (t *Transaction) Commit() error {
	if t.done {
		return fmt.Errorf("connector: transaction %s already finished", t.id)
	}
	t.done = true
	defer t.unlock()

	names := make([]string, 0, len(t.views))
	for n := range t.views {
		names = append(names, n)
	}
	slices.Sort(names)
	for i, n := range names {
		if err := t.views[n].Commit(); err != nil {
			for _, rest := range names[i+1:] {
				_ = t.views[rest].Rollback()
			}
			t.abandonCreated()
			return fmt.Errorf("connector: commit workspace %q: %w", n, err)
		}
	}

	var errs []error
	for name, ws := range t.destroyed {
		t.repo.workspaces.Delete(name)
		if err := t.repo.factory.DestroyWorkspace(ws); err != nil {
			errs = append(errs, fmt.Errorf("destroy %q: %w", name, err))
		}
		t.repo.logger.Info("workspace destroyed", slog.String("source", t.repo.source), slog.String("workspace", name))
	}
	for name, ws := range t.created {
		if !t.repo.workspaces.PutIfAbsent(name, ws) {
			errs = append(errs, fmt.Errorf("publish %q: %w", name, apperr.WorkspaceExists(t.repo.source, name)))
			continue
		}
		if err := t.repo.factory.PublishWorkspace(ws); err != nil {
			t.repo.workspaces.Delete(name)
			errs = append(errs, fmt.Errorf("publish %q: %w", name, err))
			continue
		}
		t.repo.logger.Info("workspace created", slog.String("source", t.repo.source), slog.String("workspace", name))
	}
	if len(errs) > 0 {
		return fmt.Errorf("connector: commit: %w", errors.Join(errs...))
	}
	return nil
}

// Rollback discards every view and abandons staged workspaces. Writes made
// through non-transactional workspaces cannot be undone.
func (t *Transaction) Rollback() error {
	if t.done {
		return nil
	}
	t.done = true
	defer t.unlock()

	var errs []error
	for n, v := range t.views {
		if err := v.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("rollback %q: %w", n, err))
		}
	}
	if len(t.direct) > 0 {
		t.repo.logger.Warn("rollback cannot undo writes to non-transactional workspaces",
			slog.String("source", t.repo.source), slog.Int("workspaces", len(t.direct)))
	}
	if err := t.abandonCreated(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("connector: rollback: %w", errors.Join(errs...))
	}
	return nil
}

func (t *Transaction) abandonCreated() error {
	var errs []error
	for name, ws := range t.created {
		if err := t.repo.factory.DestroyWorkspace(ws); err != nil {
			errs = append(errs, fmt.Errorf("abandon %q: %w", name, err))
		}
	}
	t.created = map[string]Workspace{}
	return errors.Join(errs...)
}
