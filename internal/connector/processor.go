package connector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

// Processor executes requests against one transaction. Errors are recorded
// on the requests; successful writes are recorded as changes.
type Processor struct {
	tx             *Transaction
	source         string
	updatesAllowed bool
	cachePolicy    graph.CachePolicy
	logger         *slog.Logger
	now            func() time.Time

	closed  bool
	changes []Change
}

// NewProcessor returns a processor bound to tx.
func NewProcessor(tx *Transaction, src *Source) *Processor {
	return &Processor{
		tx:             tx,
		source:         src.Name(),
		updatesAllowed: src.updatesAllowed,
		cachePolicy:    src.cachePolicy,
		logger:         src.logger,
		now:            time.Now,
	}
}

// Close ends processing and returns the change set collected so far.
func (p *Processor) Close() ChangeSet {
	p.closed = true
	return ChangeSet{
		Source:      p.source,
		Transaction: p.tx.ID(),
		CommittedAt: p.now(),
		Changes:     p.changes,
	}
}

// Process dispatches req by type.
func (p *Processor) Process(ctx context.Context, req request.Request) {
	if p.closed {
		req.SetError(apperr.InvalidRequest("processor for transaction %s is closed", p.tx.ID()))
		return
	}
	switch r := req.(type) {
	case *request.Composite:
		p.composite(ctx, r)
	case *request.ReadNode:
		p.readNode(r)
	case *request.ReadAllChildren:
		p.readAllChildren(r)
	case *request.ReadAllProperties:
		p.readAllProperties(r)
	case *request.ReadBranch:
		p.readBranch(r)
	case *request.CreateNode:
		p.createNode(r)
	case *request.DeleteBranch:
		p.deleteBranch(r)
	case *request.MoveBranch:
		p.moveBranch(r)
	case *request.CopyBranch:
		p.copyBranch(r)
	case *request.CloneBranch:
		p.cloneBranch(r)
	case *request.UpdateProperties:
		p.updateProperties(r)
	case *request.LockBranch:
		p.lockBranch(r)
	case *request.UnlockBranch:
		p.unlockBranch(r)
	case *request.CreateWorkspace:
		p.createWorkspace(r)
	case *request.DestroyWorkspace:
		p.destroyWorkspace(r)
	case *request.CloneWorkspace:
		p.cloneWorkspace(r)
	case *request.VerifyWorkspace:
		p.verifyWorkspace(r)
	case *request.GetWorkspaces:
		p.getWorkspaces(r)
	case *request.AccessQuery:
		p.accessQuery(r)
	case *request.FullTextSearch:
		p.fullTextSearch(r)
	default:
		p.unsupported(req)
	}
	if err := req.Err(); err != nil {
		p.logger.DebugContext(ctx, "request failed",
			slog.String("source", p.source),
			slog.String("kind", req.Kind()),
			slog.String("error", err.Error()))
	}
}

func (p *Processor) unsupported(req request.Request) {
	req.SetError(apperr.InvalidRequest("unsupported request %s in source %q", req.Kind(), p.source))
}

func (p *Processor) composite(ctx context.Context, r *request.Composite) {
	for _, child := range r.Requests {
		p.Process(ctx, child)
		if child.HasError() {
			r.SetError(child.Err())
			return
		}
	}
}

func (p *Processor) record(c Change) {
	p.changes = append(p.changes, c)
}

// writeGate is the single read-only enforcement point.
func (p *Processor) writeGate(req request.Request) bool {
	if !p.updatesAllowed {
		req.SetError(apperr.SourceReadOnly(p.source))
		return false
	}
	return true
}

func (p *Processor) workspaceName(name string) string {
	if name == "" {
		return p.tx.repo.defaultName
	}
	return name
}

func (p *Processor) workspace(name string) (Workspace, error) {
	return p.tx.Workspace(p.workspaceName(name))
}

func (p *Processor) writable(name string) (WritableWorkspace, error) {
	return p.tx.Writable(p.workspaceName(name))
}

// resolve finds the node at loc. The root UUID short-circuits to "/"; other
// UUID-only locations need an IdentifierLookup workspace.
func (p *Processor) resolve(ws Workspace, loc graph.Location) (*Node, error) {
	var path graph.Path
	switch {
	case loc.HasPath():
		path = loc.Path
	case !loc.HasUUID():
		return nil, apperr.InvalidRequest("location has neither path nor uuid")
	case loc.UUID == p.tx.repo.rootUUID:
		path = graph.RootPath()
	default:
		if il, ok := ws.(IdentifierLookup); ok {
			node, err := il.NodeByIdentifier(loc.UUID)
			if err == nil {
				return node, nil
			}
			if !IsNotFound(err) {
				return nil, apperr.Unexpected("lookup "+loc.UUID.String(), err)
			}
		}
		return nil, apperr.NewPathNotFound(loc, graph.RootPath())
	}

	node, err := ws.Node(path)
	if err == nil {
		return node, nil
	}
	if IsNotFound(err) {
		return nil, apperr.NewPathNotFound(loc, ws.LowestExistingPath(path))
	}
	return nil, apperr.Unexpected("read "+path.String(), err)
}

func (p *Processor) location(node *Node) graph.Location {
	if node.Path().IsRoot() {
		return graph.LocationOf(node.Path(), p.tx.repo.rootUUID)
	}
	return node.Location()
}

func childLocations(node *Node) []graph.Location {
	out := make([]graph.Location, 0, node.ChildCount())
	for _, cp := range node.ChildPaths() {
		out = append(out, graph.At(cp))
	}
	return out
}

func propertyList(node *Node) []*graph.Property {
	props := node.Properties()
	out := make([]*graph.Property, 0, len(props))
	for _, pr := range props {
		out = append(out, pr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

func (p *Processor) readNode(r *request.ReadNode) {
	ws, err := p.workspace(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}
	node, err := p.resolve(ws, r.At)
	if err != nil {
		r.SetError(err)
		return
	}
	r.ActualLocation = p.location(node)
	r.Children = childLocations(node)
	r.AddProperties(propertyList(node)...)
	r.SetCachePolicy(p.cachePolicy)
}

func (p *Processor) readAllChildren(r *request.ReadAllChildren) {
	ws, err := p.workspace(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}
	node, err := p.resolve(ws, r.Of)
	if err != nil {
		r.SetError(err)
		return
	}
	r.ActualLocation = p.location(node)
	r.Children = childLocations(node)
	r.SetCachePolicy(p.cachePolicy)
}

func (p *Processor) readBranch(r *request.ReadBranch) {
	if r.MaxDepth < 0 {
		r.SetError(apperr.InvalidRequest("negative max depth %d", r.MaxDepth))
		return
	}
	ws, err := p.workspace(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}
	node, err := p.resolve(ws, r.At)
	if err != nil {
		r.SetError(err)
		return
	}
	r.ActualLocation = p.location(node)
	var walk func(n *Node, depth int) error
	walk = func(n *Node, depth int) error {
		bn := request.BranchNode{
			Location:   p.location(n),
			Depth:      depth,
			Children:   childLocations(n),
			Properties: make(map[graph.Name]*graph.Property, len(n.Properties())),
		}
		for _, pr := range propertyList(n) {
			bn.Properties[pr.Name()] = pr
		}
		r.Nodes = append(r.Nodes, bn)
		if r.MaxDepth > 0 && depth >= r.MaxDepth {
			return nil
		}
		for _, cp := range n.ChildPaths() {
			child, err := ws.Node(cp)
			if err != nil {
				return apperr.Unexpected("read branch", err)
			}
			if err := walk(child, depth+1); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(node, 0); err != nil {
		r.Nodes = nil
		r.SetError(err)
		return
	}
	r.SetCachePolicy(p.cachePolicy)
}

func (p *Processor) readAllProperties(r *request.ReadAllProperties) {
	ws, err := p.workspace(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}
	node, err := p.resolve(ws, r.At)
	if err != nil {
		r.SetError(err)
		return
	}
	r.ActualLocation = p.location(node)
	r.AddProperties(propertyList(node)...)
	r.SetCachePolicy(p.cachePolicy)
}

func (p *Processor) createNode(r *request.CreateNode) {
	if !p.writeGate(r) {
		return
	}
	if err := r.Name.Validate(); err != nil {
		r.SetError(apperr.InvalidRequest("%v", err))
		return
	}
	ws, err := p.writable(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}
	parent, err := p.resolve(ws, r.Under)
	if err != nil {
		r.SetError(err)
		return
	}

	props := make(map[graph.Name]*graph.Property, len(r.Properties))
	for _, pr := range r.Properties {
		if pr == nil || pr.IsEmpty() {
			continue
		}
		props[pr.Name()] = pr
	}

	existed := parent.HasChildNamed(r.Name)
	node, err := ws.CreateNode(parent, r.Name, props, r.Conflict)
	if err != nil {
		r.SetError(apperr.Unexpected("create "+string(r.Name), err))
		return
	}
	if r.Conflict == request.Update && existed && len(props) > 0 {
		path := node.Path()
		node, err = ws.SetProperties(path, props)
		if err != nil {
			r.SetError(apperr.Unexpected("update "+path.String(), err))
			return
		}
	}
	r.ActualLocation = p.location(node)
	p.record(Change{Kind: r.Kind(), Workspace: ws.Name(), Path: node.Path()})
}

func (p *Processor) deleteBranch(r *request.DeleteBranch) {
	if !p.writeGate(r) {
		return
	}
	ws, err := p.writable(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}
	node, err := p.resolve(ws, r.At)
	if err != nil {
		r.SetError(err)
		return
	}
	if node.Path().IsRoot() {
		r.SetError(apperr.InvalidRequest("the root node of workspace %q cannot be deleted", ws.Name()))
		return
	}
	if err := ws.RemoveNode(node.Path()); err != nil {
		r.SetError(apperr.Unexpected("delete "+node.Path().String(), err))
		return
	}
	r.ActualLocation = p.location(node)
	p.record(Change{Kind: r.Kind(), Workspace: ws.Name(), Path: node.Path()})
}

func (p *Processor) moveBranch(r *request.MoveBranch) {
	if !p.writeGate(r) {
		return
	}
	ws, err := p.writable(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}

	var before *Node
	if r.Before != nil {
		if before, err = p.resolve(ws, *r.Before); err != nil {
			r.SetError(err)
			return
		}
	}
	node, err := p.resolve(ws, r.From)
	if err != nil {
		r.SetError(err)
		return
	}

	var newParent *Node
	switch {
	case r.Into != nil:
		newParent, err = p.resolve(ws, *r.Into)
	case before != nil:
		if before.Path().IsRoot() {
			err = apperr.InvalidRequest("cannot order a node before the root")
			break
		}
		newParent, err = p.resolve(ws, graph.At(before.Path().Parent()))
	default:
		err = apperr.InvalidRequest("move of %s names neither a destination nor a sibling", node.Path())
	}
	if err != nil {
		r.SetError(err)
		return
	}

	moved, err := ws.MoveNode(node, r.DesiredName, ws, newParent, before)
	if err != nil {
		r.SetError(apperr.Unexpected("move "+node.Path().String(), err))
		return
	}
	expected := newParent.Path().AfterRemoval(node.Path())
	if !moved.Path().Parent().Equal(expected) {
		r.SetError(apperr.Unexpected("move "+node.Path().String(),
			fmt.Errorf("node ended up under %s instead of %s", moved.Path().Parent(), expected)))
		return
	}
	r.ActualOldLocation = p.location(node)
	r.ActualNewLocation = p.location(moved)
	p.record(Change{Kind: r.Kind(), Workspace: ws.Name(), Path: moved.Path(), From: node.Path(), FromWorkspace: ws.Name()})
}

func (p *Processor) copyBranch(r *request.CopyBranch) {
	if !p.writeGate(r) {
		return
	}
	dst, err := p.writable(r.IntoWorkspace)
	if err != nil {
		r.SetError(err)
		return
	}
	src, err := p.workspace(r.FromWorkspace)
	if err != nil {
		r.SetError(err)
		return
	}
	original, err := p.resolve(src, r.From)
	if err != nil {
		r.SetError(err)
		return
	}
	newParent, err := p.resolve(dst, r.Into)
	if err != nil {
		r.SetError(err)
		return
	}

	before, err := ReadTree(src, original, true)
	if err != nil {
		r.SetError(apperr.Unexpected("read "+original.Path().String(), err))
		return
	}
	copied, err := dst.CopyNode(original, src, newParent, r.DesiredName, true)
	if err != nil {
		r.SetError(apperr.Unexpected("copy "+original.Path().String(), err))
		return
	}
	after, err := ReadTree(dst, copied, true)
	if err != nil {
		r.SetError(apperr.Unexpected("read copy "+copied.Path().String(), err))
		return
	}
	if _, err := FixReferences(dst, before, after); err != nil {
		r.SetError(apperr.Unexpected("copy "+original.Path().String(), err))
		return
	}
	if copied, err = dst.Node(copied.Path()); err != nil {
		r.SetError(apperr.Unexpected("read copy", err))
		return
	}

	r.ActualFromLocation = p.location(original)
	r.ActualIntoLocation = p.location(copied)
	p.record(Change{Kind: r.Kind(), Workspace: dst.Name(), Path: copied.Path(), From: original.Path(), FromWorkspace: src.Name()})
}

func (p *Processor) cloneBranch(r *request.CloneBranch) {
	if !p.writeGate(r) {
		return
	}
	if p.workspaceName(r.FromWorkspace) == p.workspaceName(r.IntoWorkspace) {
		r.SetError(apperr.InvalidRequest("cannot clone a branch within workspace %q", p.workspaceName(r.IntoWorkspace)))
		return
	}
	dst, err := p.writable(r.IntoWorkspace)
	if err != nil {
		r.SetError(err)
		return
	}
	src, err := p.workspace(r.FromWorkspace)
	if err != nil {
		r.SetError(err)
		return
	}
	original, err := p.resolve(src, r.From)
	if err != nil {
		r.SetError(err)
		return
	}
	newParent, err := p.resolve(dst, r.Into)
	if err != nil {
		r.SetError(err)
		return
	}
	name, err := targetName(original, r.DesiredName)
	if err != nil {
		r.SetError(err)
		return
	}

	tree, err := ReadTree(src, original, true)
	if err != nil {
		r.SetError(apperr.Unexpected("read "+original.Path().String(), err))
		return
	}
	ids := make(map[uuid.UUID]struct{})
	_ = tree.Walk(func(t *Tree) error {
		if id, ok := t.Node.Identifier(); ok {
			ids[id] = struct{}{}
		}
		return nil
	})

	collisions, err := p.collisions(dst, ids)
	if err != nil {
		r.SetError(apperr.Unexpected("scan "+dst.Name(), err))
		return
	}
	if len(collisions) > 0 && !r.RemoveExisting {
		r.SetError(apperr.InvalidRequest("%d node(s) in workspace %q share identifiers with %s",
			len(collisions), dst.Name(), original.Path()))
		return
	}

	var removed []graph.Location
	parentPath := newParent.Path()
	for i := len(collisions) - 1; i >= 0; i-- {
		c := collisions[i]
		if coveredByAncestor(collisions, i) {
			continue
		}
		if parentPath.IsAtOrBelow(c.Path()) {
			r.SetError(apperr.InvalidRequest("clone target %s would be removed as a duplicate", parentPath))
			return
		}
		if err := dst.RemoveNode(c.Path()); err != nil {
			r.SetError(apperr.Unexpected("remove "+c.Path().String(), err))
			return
		}
		parentPath = parentPath.AfterRemoval(c.Path())
		removed = append(removed, p.location(c))
	}
	if newParent, err = dst.Node(parentPath); err != nil {
		r.SetError(apperr.Unexpected("resolve "+parentPath.String(), err))
		return
	}

	if newParent.HasChildNamed(name) {
		replaced, err := dst.Node(parentPath.ChildNamed(name))
		if err != nil {
			r.SetError(apperr.Unexpected("read "+parentPath.ChildNamed(name).String(), err))
			return
		}
		removed = append(removed, p.location(replaced))
	}

	cloned, err := dst.CopyNode(original, src, newParent, name, true)
	if err != nil {
		r.SetError(apperr.Unexpected("clone "+original.Path().String(), err))
		return
	}
	r.ActualFromLocation = p.location(original)
	r.ActualIntoLocation = p.location(cloned)
	r.RemovedNodes = removed
	p.record(Change{Kind: r.Kind(), Workspace: dst.Name(), Path: cloned.Path(), From: original.Path(), FromWorkspace: src.Name()})
}

// collisions returns the nodes of ws, in pre-order, whose identifier is in ids.
func (p *Processor) collisions(ws Workspace, ids map[uuid.UUID]struct{}) ([]*Node, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	root, err := ws.Node(graph.RootPath())
	if err != nil {
		return nil, err
	}
	tree, err := ReadTree(ws, root, true)
	if err != nil {
		return nil, err
	}
	var out []*Node
	_ = tree.Walk(func(t *Tree) error {
		if id, ok := t.Node.Identifier(); ok {
			if _, hit := ids[id]; hit {
				out = append(out, t.Node)
			}
		}
		return nil
	})
	return out, nil
}

func coveredByAncestor(nodes []*Node, i int) bool {
	for j := 0; j < i; j++ {
		if nodes[j].Path().IsAncestorOf(nodes[i].Path()) {
			return true
		}
	}
	return false
}

func (p *Processor) updateProperties(r *request.UpdateProperties) {
	if !p.writeGate(r) {
		return
	}
	ws, err := p.writable(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}
	node, err := p.resolve(ws, r.On)
	if err != nil {
		r.SetError(err)
		return
	}
	updated, err := ws.SetProperties(node.Path(), r.Properties)
	if err != nil {
		r.SetError(apperr.Unexpected("update "+node.Path().String(), err))
		return
	}
	r.ActualLocation = p.location(updated)
	p.record(Change{Kind: r.Kind(), Workspace: ws.Name(), Path: updated.Path()})
}

func (p *Processor) lockBranch(r *request.LockBranch) {
	ws, err := p.workspace(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}
	node, err := p.resolve(ws, r.At)
	if err != nil {
		r.SetError(err)
		return
	}
	if lw, ok := ws.(LockableWorkspace); ok {
		if err := lw.LockNode(node, r.Scope, r.Timeout); err != nil {
			if !errors.Is(err, apperr.ErrLockFailed) {
				err = &apperr.LockError{Path: node.Path(), Reason: err.Error()}
			}
			r.SetError(err)
			return
		}
	}
	r.ActualLocation = p.location(node)
	p.record(Change{Kind: r.Kind(), Workspace: ws.Name(), Path: node.Path()})
}

func (p *Processor) unlockBranch(r *request.UnlockBranch) {
	ws, err := p.workspace(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}
	node, err := p.resolve(ws, r.At)
	if err != nil {
		r.SetError(err)
		return
	}
	if lw, ok := ws.(LockableWorkspace); ok {
		if err := lw.UnlockNode(node); err != nil {
			r.SetError(apperr.Unexpected("unlock "+node.Path().String(), err))
			return
		}
	}
	r.ActualLocation = p.location(node)
	p.record(Change{Kind: r.Kind(), Workspace: ws.Name(), Path: node.Path()})
}

func (p *Processor) rootLocation() graph.Location {
	return graph.LocationOf(graph.RootPath(), p.tx.repo.rootUUID)
}

func (p *Processor) createWorkspace(r *request.CreateWorkspace) {
	if !p.writeGate(r) {
		return
	}
	ws, err := p.tx.CreateWorkspace(r.DesiredName, r.Conflict)
	if err != nil {
		r.SetError(err)
		return
	}
	r.ActualWorkspace = ws.Name()
	r.ActualRootLocation = p.rootLocation()
	p.record(Change{Kind: r.Kind(), Workspace: ws.Name(), Path: graph.RootPath()})
}

func (p *Processor) destroyWorkspace(r *request.DestroyWorkspace) {
	if !p.writeGate(r) {
		return
	}
	name := p.workspaceName(r.Workspace)
	if name == p.tx.repo.defaultName {
		r.SetError(apperr.InvalidRequest("the default workspace %q cannot be destroyed", name))
		return
	}
	if _, err := p.tx.DestroyWorkspace(name); err != nil {
		r.SetError(err)
		return
	}
	r.ActualRootLocation = p.rootLocation()
	p.record(Change{Kind: r.Kind(), Workspace: name, Path: graph.RootPath()})
}

func (p *Processor) cloneWorkspace(r *request.CloneWorkspace) {
	if !p.writeGate(r) {
		return
	}
	if !p.tx.repo.IsWritable() {
		r.SetError(apperr.InvalidRequest("source %q does not allow creating workspaces", p.source))
		return
	}
	var (
		ws  Workspace
		err error
	)
	src, srcErr := p.tx.Workspace(r.SourceName)
	switch {
	case srcErr == nil:
		ws, err = p.tx.CloneWorkspace(r.TargetName, r.Conflict, src)
	case r.CloneConflict == request.SkipClone:
		ws, err = p.tx.CreateWorkspace(r.TargetName, r.Conflict)
	default:
		err = srcErr
	}
	if err != nil {
		r.SetError(err)
		return
	}
	r.ActualWorkspace = ws.Name()
	r.ActualRootLocation = p.rootLocation()
	p.record(Change{Kind: r.Kind(), Workspace: ws.Name(), Path: graph.RootPath(), FromWorkspace: r.SourceName})
}

func (p *Processor) verifyWorkspace(r *request.VerifyWorkspace) {
	ws, err := p.workspace(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}
	r.ActualWorkspace = ws.Name()
	r.ActualRootLocation = p.rootLocation()
}

func (p *Processor) getWorkspaces(r *request.GetWorkspaces) {
	r.Names = p.tx.WorkspaceNames()
	r.SetCachePolicy(p.cachePolicy)
}

func (p *Processor) accessQuery(r *request.AccessQuery) {
	ws, err := p.workspace(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}
	var results *QueryResults
	if qw, ok := ws.(QueryableWorkspace); ok {
		if results, err = qw.Query(r.Query, r.Limit); err != nil {
			r.SetError(apperr.Unexpected("query", err))
			return
		}
	}
	if results == nil {
		p.unsupported(r)
		return
	}
	r.Columns, r.Tuples = results.Columns, results.Tuples
}

func (p *Processor) fullTextSearch(r *request.FullTextSearch) {
	ws, err := p.workspace(r.Workspace)
	if err != nil {
		r.SetError(err)
		return
	}
	var results *QueryResults
	if qw, ok := ws.(QueryableWorkspace); ok {
		if results, err = qw.Search(r.Expression, r.Limit); err != nil {
			r.SetError(apperr.Unexpected("search", err))
			return
		}
	}
	if results == nil {
		p.unsupported(r)
		return
	}
	r.Columns, r.Tuples = results.Columns, results.Tuples
}
