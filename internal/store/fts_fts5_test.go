//go:build sqlite_fts5

package store

import (
	"testing"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/graph"
)

func textNodes(body string) []*connector.Node {
	return []*connector.Node{
		connector.NewNode(graph.RootPath(), uuid.New(), nil, []graph.Segment{graph.NewSegment("doc", 1)}),
		connector.NewNode(graph.MustParsePath("/doc"), uuid.Nil, map[graph.Name]*graph.Property{
			"text": graph.NewProperty("text", body),
		}, nil),
	}
}

func TestFTS5_TableExists(t *testing.T) {
	db := testDB(t)
	var count int
	if err := db.conn.QueryRow(`SELECT count(*) FROM nodes_fts`).Scan(&count); err != nil {
		t.Fatalf("nodes_fts table missing: %v", err)
	}
}

func TestFTS5_SearchWithSnippet(t *testing.T) {
	db := testDB(t)
	if err := db.SaveWorkspace("default", textNodes("Arbor provides powerful full-text search capabilities.")); err != nil {
		t.Fatalf("SaveWorkspace: %v", err)
	}

	results, err := db.Search("default", "powerful", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if results[0].Path != "/doc" {
		t.Errorf("path = %q", results[0].Path)
	}
	if results[0].Snippet == "" {
		t.Error("expected non-empty snippet")
	}
}

func TestFTS5_SaveReplacesContent(t *testing.T) {
	db := testDB(t)
	_ = db.SaveWorkspace("default", textNodes("original text"))
	_ = db.SaveWorkspace("default", textNodes("replacement text"))

	results, _ := db.Search("default", "original", 10)
	if len(results) != 0 {
		t.Error("old FTS content should be gone")
	}
	results, _ = db.Search("default", "replacement", 10)
	if len(results) != 1 {
		t.Errorf("FTS not updated: %+v", results)
	}
}

func TestFTS5_DeleteRemovesFromFTS(t *testing.T) {
	db := testDB(t)
	_ = db.SaveWorkspace("gone", textNodes("vanishing content"))
	_ = db.DeleteWorkspace("gone")

	results, _ := db.Search("gone", "vanishing", 10)
	if len(results) != 0 {
		t.Error("deleted workspace still in FTS index")
	}
}
