package mcpserver

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/connector/inmemory"
	"github.com/starford/arbor/internal/testutil"
)

func testServer(t *testing.T) *Server {
	t.Helper()
	return New(testutil.TestSource(t).Connection())
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "list_workspaces":
		result, err = srv.listWorkspaces(ctx, req)
	case "read_node":
		result, err = srv.readNode(ctx, req)
	case "create_node":
		result, err = srv.createNode(ctx, req)
	case "delete_branch":
		result, err = srv.deleteBranch(ctx, req)
	case "copy_branch":
		result, err = srv.copyBranch(ctx, req)
	case "move_branch":
		result, err = srv.moveBranch(ctx, req)
	case "search":
		result, err = srv.search(ctx, req)
	case "import_document":
		result, err = srv.importDocument(ctx, req)
	case "export_document":
		result, err = srv.exportDocument(ctx, req)
	case "get_document_contract":
		result, err = srv.getDocumentContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func mustSucceed(t *testing.T, r *mcp.CallToolResult) string {
	t.Helper()
	if r.IsError {
		t.Fatalf("unexpected tool error: %s", resultText(r))
	}
	return resultText(r)
}

func TestCreateAndReadNode(t *testing.T) {
	srv := testServer(t)

	text := mustSucceed(t, callTool(t, srv, "create_node", map[string]interface{}{
		"parent":     "/",
		"name":       "docs",
		"properties": `{"title":"Docs","pages":3}`,
	}))
	if text != "created: /docs" {
		t.Errorf("create result = %q", text)
	}

	text = mustSucceed(t, callTool(t, srv, "read_node", map[string]interface{}{"path": "/docs"}))
	var view nodeView
	if err := json.Unmarshal([]byte(text), &view); err != nil {
		t.Fatal(err)
	}
	if view.Path != "/docs" || view.Properties["title"] != "Docs" || view.Properties["pages"] != float64(3) {
		t.Errorf("read = %+v", view)
	}
}

func TestSameNameSiblings(t *testing.T) {
	srv := testServer(t)
	for i := 0; i < 2; i++ {
		mustSucceed(t, callTool(t, srv, "create_node", map[string]interface{}{"parent": "/", "name": "item"}))
	}
	text := mustSucceed(t, callTool(t, srv, "read_node", map[string]interface{}{"path": "/"}))
	if !strings.Contains(text, `"/item[2]"`) {
		t.Errorf("root children = %s", text)
	}
}

func TestReadNodeMissing(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "read_node", map[string]interface{}{"path": "/nope"})
	if !r.IsError {
		t.Error("expected error for missing node")
	}
	r = callTool(t, srv, "read_node", map[string]interface{}{"path": "relative"})
	if !r.IsError {
		t.Error("expected error for relative path")
	}
}

func TestListWorkspaces(t *testing.T) {
	srv := testServer(t)
	text := mustSucceed(t, callTool(t, srv, "list_workspaces", map[string]interface{}{}))
	if text != "default\nother" {
		t.Errorf("workspaces = %q", text)
	}
}

func TestCopyMoveDelete(t *testing.T) {
	srv := testServer(t)
	for _, name := range []string{"a", "b"} {
		mustSucceed(t, callTool(t, srv, "create_node", map[string]interface{}{"parent": "/", "name": name}))
	}

	text := mustSucceed(t, callTool(t, srv, "copy_branch", map[string]interface{}{"from": "/a", "into": "/b"}))
	if text != "copied: /a -> /b/a" {
		t.Errorf("copy = %q", text)
	}
	text = mustSucceed(t, callTool(t, srv, "move_branch", map[string]interface{}{"from": "/b/a", "before": "/a"}))
	if text != "moved: /b/a -> /a" {
		t.Errorf("move = %q", text)
	}
	mustSucceed(t, callTool(t, srv, "read_node", map[string]interface{}{"path": "/a[2]"}))

	mustSucceed(t, callTool(t, srv, "delete_branch", map[string]interface{}{"path": "/a[2]"}))
	if r := callTool(t, srv, "read_node", map[string]interface{}{"path": "/a[2]"}); !r.IsError {
		t.Error("deleted node still readable")
	}

	text = mustSucceed(t, callTool(t, srv, "copy_branch", map[string]interface{}{
		"workspace": "other", "from_workspace": "default", "from": "/b", "into": "/", "name": "copied",
	}))
	if text != "copied: /b -> /copied" {
		t.Errorf("cross-workspace copy = %q", text)
	}
}

func TestImportAndExport(t *testing.T) {
	srv := testServer(t)
	doc := "nodes:\n  - name: catalog\n    properties:\n      title: Spring\n    children:\n      - name: item\n      - name: item\n"

	text := mustSucceed(t, callTool(t, srv, "import_document", map[string]interface{}{"parent": "/", "document": doc}))
	if text != "imported 3 nodes under /" {
		t.Errorf("import = %q", text)
	}
	mustSucceed(t, callTool(t, srv, "read_node", map[string]interface{}{"path": "/catalog/item[2]"}))

	uri := "data:application/yaml;base64," + base64.StdEncoding.EncodeToString([]byte("nodes:\n  - name: extra\n"))
	mustSucceed(t, callTool(t, srv, "import_document", map[string]interface{}{"parent": "/catalog", "url": uri}))

	text = mustSucceed(t, callTool(t, srv, "export_document", map[string]interface{}{"path": "/catalog", "depth": 1}))
	for _, want := range []string{"name: catalog", "title: Spring", "name: extra"} {
		if !strings.Contains(text, want) {
			t.Errorf("export missing %q:\n%s", want, text)
		}
	}

	if r := callTool(t, srv, "import_document", map[string]interface{}{"parent": "/"}); !r.IsError {
		t.Error("expected error without document")
	}
	if r := callTool(t, srv, "import_document", map[string]interface{}{"parent": "/", "document": doc, "conflict": "update"}); !r.IsError {
		t.Error("expected error for update conflict behaviour")
	}
}

func TestSearchUnsupported(t *testing.T) {
	srv := testServer(t)
	r := callTool(t, srv, "search", map[string]interface{}{"query": "x"})
	if !r.IsError {
		t.Error("in-memory source without a searcher must reject search")
	}
}

func TestSearchWithStore(t *testing.T) {
	db := testutil.TestDB(t)
	repo := connector.NewRepository("search", uuid.New(), "default",
		inmemory.NewFactory(inmemory.WithPersister(db), inmemory.WithSearcher(db)), testutil.Logger())
	if err := repo.Init(); err != nil {
		t.Fatal(err)
	}
	srv := New(connector.NewSource(repo).Connection())

	mustSucceed(t, callTool(t, srv, "create_node", map[string]interface{}{
		"parent": "/", "name": "report", "properties": `{"title":"quarterly numbers"}`,
	}))
	mustSucceed(t, callTool(t, srv, "create_node", map[string]interface{}{
		"parent": "/", "name": "memo", "properties": `{"title":"lunch"}`,
	}))

	text := mustSucceed(t, callTool(t, srv, "search", map[string]interface{}{"query": "quarterly"}))
	var rows []map[string]any
	if err := json.Unmarshal([]byte(text), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0]["path"] != "/report" {
		t.Errorf("rows = %v", rows)
	}
}

func TestDocumentContract(t *testing.T) {
	srv := testServer(t)
	text := mustSucceed(t, callTool(t, srv, "get_document_contract", map[string]interface{}{}))
	if !strings.Contains(text, "Same-name siblings") {
		t.Error("contract text missing")
	}
}

func TestDecodeDataURI(t *testing.T) {
	data, err := decodeDataURI("data:text/yaml;base64," + base64.StdEncoding.EncodeToString([]byte("nodes: []")))
	if err != nil || string(data) != "nodes: []" {
		t.Errorf("decode = %q, %v", data, err)
	}
	for _, bad := range []string{
		"data:text/yaml;base64",
		"data:text/yaml,nodes",
		"data:image/png;base64,AAAA",
		"data:text/yaml;base64,***",
	} {
		if _, err := decodeDataURI(bad); err == nil {
			t.Errorf("decodeDataURI(%q) succeeded", bad)
		}
	}
}

func TestCheckBlockedHost(t *testing.T) {
	for _, host := range []string{"127.0.0.1", "::1", "169.254.169.254", "metadata.google.internal"} {
		if err := checkBlockedHost(host); err == nil {
			t.Errorf("host %s not blocked", host)
		}
	}
	if err := checkBlockedHost("93.184.216.34"); err != nil {
		t.Errorf("public address blocked: %v", err)
	}
}

func TestFetchRejectsScheme(t *testing.T) {
	if _, err := fetchHTTP(context.Background(), "ftp://example.com/doc.yaml"); err == nil {
		t.Error("expected scheme error")
	}
}
