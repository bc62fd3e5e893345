// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes repository tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/importer"
	"github.com/starford/arbor/internal/request"
)

// Server wraps the MCP server with repository tools.
type Server struct {
	mcp  *server.MCPServer
	exec importer.Executor
}

// New creates a new MCP server with all tools registered. Every tool call
// runs as its own request against exec.
func New(exec importer.Executor) *Server {
	s := &Server{exec: exec}

	s.mcp = server.NewMCPServer(
		"Arbor",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_workspaces",
		mcp.WithDescription("List the names of all workspaces in the repository."),
	), s.listWorkspaces)

	s.mcp.AddTool(mcp.NewTool("read_node",
		mcp.WithDescription("Read a node's properties and child paths. With depth > 0 the branch "+
			"below the node is returned as well, down to that many levels."),
		mcp.WithString("workspace", mcp.Description("Workspace name (empty for the default workspace)")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute node path, e.g. /docs/item[2]")),
		mcp.WithNumber("depth", mcp.Description("Levels of descendants to include (0 for the node only)")),
	), s.readNode)

	s.mcp.AddTool(mcp.NewTool("create_node",
		mcp.WithDescription("Create a child node. Properties use the document value format; "+
			"read the contract via get_document_contract or the arbor://document-format resource."),
		mcp.WithString("workspace", mcp.Description("Workspace name (empty for the default workspace)")),
		mcp.WithString("parent", mcp.Required(), mcp.Description("Absolute path of the parent node")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Name of the new node")),
		mcp.WithString("properties", mcp.Description("JSON object of property values")),
		mcp.WithString("conflict", mcp.Description("append (default), do-not-replace, replace or update")),
	), s.createNode)

	s.mcp.AddTool(mcp.NewTool("delete_branch",
		mcp.WithDescription("Delete a node and everything below it."),
		mcp.WithString("workspace", mcp.Description("Workspace name (empty for the default workspace)")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the node to delete")),
	), s.deleteBranch)

	s.mcp.AddTool(mcp.NewTool("copy_branch",
		mcp.WithDescription("Copy a branch under a new parent. Copies get new identifiers and "+
			"references inside the branch are rewritten to point at the copies."),
		mcp.WithString("workspace", mcp.Description("Target workspace (empty for the default workspace)")),
		mcp.WithString("from_workspace", mcp.Description("Source workspace (defaults to the target workspace)")),
		mcp.WithString("from", mcp.Required(), mcp.Description("Absolute path of the branch to copy")),
		mcp.WithString("into", mcp.Required(), mcp.Description("Absolute path of the new parent")),
		mcp.WithString("name", mcp.Description("Name for the copy (defaults to the original name)")),
	), s.copyBranch)

	s.mcp.AddTool(mcp.NewTool("move_branch",
		mcp.WithDescription("Move a branch under a new parent, or before a sibling."),
		mcp.WithString("workspace", mcp.Description("Workspace name (empty for the default workspace)")),
		mcp.WithString("from", mcp.Required(), mcp.Description("Absolute path of the branch to move")),
		mcp.WithString("into", mcp.Description("Absolute path of the new parent")),
		mcp.WithString("before", mcp.Description("Absolute path of the sibling to place the branch before")),
	), s.moveBranch)

	s.mcp.AddTool(mcp.NewTool("search",
		mcp.WithDescription("Full-text search over property values, when the source supports it."),
		mcp.WithString("workspace", mcp.Description("Workspace name (empty for the default workspace)")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search expression")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of results")),
	), s.search)

	s.mcp.AddTool(mcp.NewTool("import_document",
		mcp.WithDescription("Create a tree of nodes from a YAML document in one transaction. "+
			"Pass the document inline or as an http(s) or base64 data: URL."),
		mcp.WithString("workspace", mcp.Description("Workspace name (empty for the default workspace)")),
		mcp.WithString("parent", mcp.Required(), mcp.Description("Absolute path of the node to import under")),
		mcp.WithString("document", mcp.Description("YAML document text")),
		mcp.WithString("url", mcp.Description("Location of the YAML document")),
		mcp.WithString("conflict", mcp.Description("append (default) or replace")),
	), s.importDocument)

	s.mcp.AddTool(mcp.NewTool("export_document",
		mcp.WithDescription("Export a branch as a YAML document that import_document accepts."),
		mcp.WithString("workspace", mcp.Description("Workspace name (empty for the default workspace)")),
		mcp.WithString("path", mcp.Required(), mcp.Description("Absolute path of the branch")),
		mcp.WithNumber("depth", mcp.Description("Levels to export (0 for the whole branch)")),
	), s.exportDocument)

	s.mcp.AddTool(mcp.NewTool("get_document_contract",
		mcp.WithDescription("Returns the document and property value format. "+
			"Call this before creating nodes or importing documents."),
	), s.getDocumentContract)

	s.mcp.AddResource(
		mcp.NewResource("arbor://document-format", "Document Format Contract",
			mcp.WithResourceDescription("YAML document and property value format used by the import and create tools."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readDocumentFormatResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// run executes req and converts a failure into a tool error result.
func (s *Server) run(ctx context.Context, req request.Request) *mcp.CallToolResult {
	if err := s.exec.Execute(ctx, req); err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	if err := req.Err(); err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return nil
}

func pathArg(req mcp.CallToolRequest, key string) (graph.Path, error) {
	raw, err := req.RequireString(key)
	if err != nil {
		return graph.Path{}, err
	}
	return graph.ParsePath(raw)
}

func optionalPath(req mcp.CallToolRequest, key string) (*graph.Location, error) {
	raw := req.GetString(key, "")
	if raw == "" {
		return nil, nil
	}
	p, err := graph.ParsePath(raw)
	if err != nil {
		return nil, err
	}
	loc := graph.At(p)
	return &loc, nil
}

type nodeView struct {
	Path       string         `json:"path"`
	UUID       string         `json:"uuid,omitempty"`
	Depth      int            `json:"depth,omitempty"`
	Properties map[string]any `json:"properties"`
	Children   []string       `json:"children,omitempty"`
}

func viewOf(loc graph.Location, depth int, props map[graph.Name]*graph.Property, children []graph.Location) nodeView {
	v := nodeView{Path: loc.Path.String(), Depth: depth, Properties: make(map[string]any, len(props))}
	if loc.HasUUID() {
		v.UUID = loc.UUID.String()
	}
	for name, p := range props {
		v.Properties[string(name)] = importer.EncodeProperty(p)
	}
	for _, c := range children {
		v.Children = append(v.Children, c.Path.String())
	}
	return v
}

func jsonResult(v any) *mcp.CallToolResult {
	out, _ := json.MarshalIndent(v, "", "  ")
	return mcp.NewToolResultText(string(out))
}

func (s *Server) listWorkspaces(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r := &request.GetWorkspaces{}
	if res := s.run(ctx, r); res != nil {
		return res, nil
	}
	return mcp.NewToolResultText(strings.Join(r.Names, "\n")), nil
}

func (s *Server) readNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := pathArg(req, "path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ws := req.GetString("workspace", "")

	if depth := req.GetInt("depth", 0); depth > 0 {
		r := &request.ReadBranch{Workspace: ws, At: graph.At(path), MaxDepth: depth}
		if res := s.run(ctx, r); res != nil {
			return res, nil
		}
		views := make([]nodeView, 0, len(r.Nodes))
		for _, n := range r.Nodes {
			views = append(views, viewOf(n.Location, n.Depth, n.Properties, n.Children))
		}
		return jsonResult(views), nil
	}

	r := &request.ReadNode{Workspace: ws, At: graph.At(path)}
	if res := s.run(ctx, r); res != nil {
		return res, nil
	}
	return jsonResult(viewOf(r.ActualLocation, 0, r.Properties, r.Children)), nil
}

func (s *Server) createNode(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	parent, err := pathArg(req, "parent")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	conflict, err := request.ParseNodeConflictBehavior(req.GetString("conflict", ""))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	r := &request.CreateNode{
		Workspace: req.GetString("workspace", ""),
		Under:     graph.At(parent),
		Name:      graph.Name(name),
		Conflict:  conflict,
	}
	if raw := req.GetString("properties", ""); raw != "" {
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		var values map[string]any
		if err := dec.Decode(&values); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("properties must be a JSON object: %v", err)), nil
		}
		for k, v := range values {
			p, err := importer.DecodeProperty(graph.Name(k), v)
			if err != nil {
				return mcp.NewToolResultError(err.Error()), nil
			}
			r.Properties = append(r.Properties, p)
		}
	}
	if res := s.run(ctx, r); res != nil {
		return res, nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s", r.ActualLocation.Path)), nil
}

func (s *Server) deleteBranch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := pathArg(req, "path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	r := &request.DeleteBranch{Workspace: req.GetString("workspace", ""), At: graph.At(path)}
	if res := s.run(ctx, r); res != nil {
		return res, nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("deleted: %s", r.ActualLocation.Path)), nil
}

func (s *Server) copyBranch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := pathArg(req, "from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	into, err := pathArg(req, "into")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	ws := req.GetString("workspace", "")
	r := &request.CopyBranch{
		FromWorkspace: req.GetString("from_workspace", ws),
		From:          graph.At(from),
		IntoWorkspace: ws,
		Into:          graph.At(into),
		DesiredName:   graph.Name(req.GetString("name", "")),
	}
	if res := s.run(ctx, r); res != nil {
		return res, nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("copied: %s -> %s", r.ActualFromLocation.Path, r.ActualIntoLocation.Path)), nil
}

func (s *Server) moveBranch(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := pathArg(req, "from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	r := &request.MoveBranch{Workspace: req.GetString("workspace", ""), From: graph.At(from)}
	if r.Into, err = optionalPath(req, "into"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if r.Before, err = optionalPath(req, "before"); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if res := s.run(ctx, r); res != nil {
		return res, nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("moved: %s -> %s", r.ActualOldLocation.Path, r.ActualNewLocation.Path)), nil
}

func (s *Server) search(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	r := &request.FullTextSearch{
		Workspace:  req.GetString("workspace", ""),
		Expression: query,
		Limit:      req.GetInt("limit", 20),
	}
	if res := s.run(ctx, r); res != nil {
		return res, nil
	}
	rows := make([]map[string]any, 0, len(r.Tuples))
	for _, t := range r.Tuples {
		row := make(map[string]any, len(r.Columns))
		for i, c := range r.Columns {
			if i < len(t) {
				row[c] = t[i]
			}
		}
		rows = append(rows, row)
	}
	return jsonResult(rows), nil
}

func (s *Server) exportDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := pathArg(req, "path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	doc, err := importer.Export(ctx, s.exec, req.GetString("workspace", ""), path, req.GetInt("depth", 0))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	var b strings.Builder
	if err := doc.Encode(&b); err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) getDocumentContract(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(DocumentFormatContract), nil
}

func (s *Server) readDocumentFormatResource(context.Context, mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      "arbor://document-format",
			MIMEType: "text/markdown",
			Text:     DocumentFormatContract,
		},
	}, nil
}
