package internal

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/importer"
	"github.com/starford/arbor/internal/request"
)

// PrintTree writes the branch at path of workspace as a table, one row per
// node, down to maxDepth levels (0 for all).
func PrintTree(ctx context.Context, workspace, path string, maxDepth int, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	at, err := graph.ParsePath(path)
	if err != nil {
		return err
	}
	rt, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	req := &request.ReadBranch{Workspace: workspace, At: graph.At(at), MaxDepth: maxDepth}
	if err := rt.source.Connection().Execute(ctx, req); err != nil {
		return err
	}
	if err := req.Err(); err != nil {
		return err
	}

	table := tablewriter.NewWriter(app.out)
	table.SetHeader([]string{"Path", "UUID", "Children", "Properties"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	table.SetColumnAlignment([]int{tablewriter.ALIGN_LEFT, tablewriter.ALIGN_LEFT, tablewriter.ALIGN_RIGHT, tablewriter.ALIGN_LEFT})

	for _, n := range req.Nodes {
		id := ""
		if n.Location.HasUUID() {
			id = n.Location.UUID.String()
		}
		table.Append([]string{
			strings.Repeat("  ", n.Depth) + n.Location.Path.String(),
			id,
			strconv.Itoa(len(n.Children)),
			propertySummary(n.Properties),
		})
	}
	table.SetFooter([]string{fmt.Sprintf("Total nodes %d", len(req.Nodes)), "", "", ""})
	table.Render()
	return nil
}

func propertySummary(props map[graph.Name]*graph.Property) string {
	names := make([]string, 0, len(props))
	for name := range props {
		names = append(names, string(name))
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

// ImportFile imports the YAML document in file under parent in one
// transaction and returns the number of nodes created.
func ImportFile(ctx context.Context, workspace, parent, file, conflict string, opts ...Option) (int, error) {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	at, err := graph.ParsePath(parent)
	if err != nil {
		return 0, err
	}
	behavior, err := request.ParseNodeConflictBehavior(conflict)
	if err != nil {
		return 0, err
	}
	data, err := os.ReadFile(file)
	if err != nil {
		return 0, fmt.Errorf("read %s: %w", file, err)
	}
	doc, err := importer.Parse(data)
	if err != nil {
		return 0, err
	}

	rt, err := app.open(ctx)
	if err != nil {
		return 0, err
	}
	defer rt.Close()

	batch, err := importer.Import(ctx, rt.source.Connection(), workspace, at, doc, behavior)
	if err != nil {
		return 0, err
	}
	return len(batch.Requests), nil
}

// ExportFile writes the branch at path as a YAML document to the command output.
func ExportFile(ctx context.Context, workspace, path string, maxDepth int, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	at, err := graph.ParsePath(path)
	if err != nil {
		return err
	}
	rt, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	doc, err := importer.Export(ctx, rt.source.Connection(), workspace, at, maxDepth)
	if err != nil {
		return err
	}
	return doc.Encode(app.out)
}
