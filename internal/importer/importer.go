package importer

import (
	"context"
	"fmt"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

// Executor runs requests; *connector.Connection satisfies it.
type Executor interface {
	Execute(ctx context.Context, req request.Request) error
}

// Import creates the nodes of doc under parent as one composite request, so
// either every node is created or none is. behavior applies to the top-level
// nodes and must be Append or Replace; nested nodes are always appended.
//
// Same-name-sibling indexes of the created nodes are planned from the
// parent's children as read just before the import. A concurrent write to
// the parent can invalidate the plan, in which case the batch fails and is
// rolled back.
func Import(ctx context.Context, exec Executor, workspace string, parent graph.Path, doc *Document, behavior request.NodeConflictBehavior) (*request.Composite, error) {
	if behavior != request.Append && behavior != request.Replace {
		return nil, apperr.InvalidRequest("import supports append or replace, not %s", behavior)
	}
	children := &request.ReadAllChildren{Workspace: workspace, Of: graph.At(parent)}
	if err := exec.Execute(ctx, children); err != nil {
		return nil, err
	}
	if err := children.Err(); err != nil {
		return nil, err
	}
	counts := make(map[graph.Name]int)
	for _, c := range children.Children {
		counts[c.Path.Last().Name]++
	}

	var reqs []request.Request
	if err := plan(&reqs, workspace, children.ActualLocation.Path, doc.Nodes, counts, behavior); err != nil {
		return nil, err
	}
	batch := request.NewComposite(reqs...)
	if len(reqs) == 0 {
		return batch, nil
	}
	if err := exec.Execute(ctx, batch); err != nil {
		return batch, err
	}
	return batch, batch.Err()
}

// plan appends one CreateNode per entry in pre-order. counts holds the
// current number of children per name under parent.
func plan(reqs *[]request.Request, workspace string, parent graph.Path, entries []Entry, counts map[graph.Name]int, behavior request.NodeConflictBehavior) error {
	for i := range entries {
		e := &entries[i]
		name := graph.Name(e.Name)
		if err := name.Validate(); err != nil {
			return apperr.InvalidRequest("node %d under %s: %v", i+1, parent, err)
		}
		props, err := e.properties()
		if err != nil {
			return apperr.InvalidRequest("%v", err)
		}
		*reqs = append(*reqs, &request.CreateNode{
			Workspace:  workspace,
			Under:      graph.At(parent),
			Name:       name,
			Properties: props,
			Conflict:   behavior,
		})
		// Replace removes the first same-name sibling before appending, so
		// the count only grows when nothing was there.
		if behavior == request.Append || counts[name] == 0 {
			counts[name]++
		}
		self := parent.Child(graph.NewSegment(name, counts[name]))
		if err := plan(reqs, workspace, self, e.Children, make(map[graph.Name]int), request.Append); err != nil {
			return err
		}
	}
	return nil
}

// Export reads the subtree at path and returns it as a document. A root path
// exports the root's children as top-level nodes. maxDepth limits the levels
// read below path; 0 means no limit.
func Export(ctx context.Context, exec Executor, workspace string, path graph.Path, maxDepth int) (*Document, error) {
	branch := &request.ReadBranch{Workspace: workspace, At: graph.At(path), MaxDepth: maxDepth}
	if err := exec.Execute(ctx, branch); err != nil {
		return nil, err
	}
	if err := branch.Err(); err != nil {
		return nil, err
	}
	if len(branch.Nodes) == 0 {
		return nil, fmt.Errorf("importer: export %s: empty result", path)
	}

	root := &Entry{}
	// stack[d] is the entry holding nodes at depth d+1.
	stack := []*Entry{root}
	for _, n := range branch.Nodes {
		if n.Location.Path.IsRoot() {
			continue
		}
		e := Entry{Name: string(n.Location.Path.Last().Name)}
		if len(n.Properties) > 0 {
			e.Properties = make(map[string]any, len(n.Properties))
			for name, p := range n.Properties {
				e.Properties[string(name)] = EncodeProperty(p)
			}
		}
		depth := n.Depth
		if path.IsRoot() {
			depth--
		}
		parent := stack[depth]
		parent.Children = append(parent.Children, e)
		stack = append(stack[:depth+1], &parent.Children[len(parent.Children)-1])
	}
	return &Document{Nodes: root.Children}, nil
}
