package store

import (
	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/connector/inmemory"
)

var _ inmemory.Searcher = (*DB)(nil)

// SearchResult is one search hit.
type SearchResult struct {
	Path    string
	Snippet string
}

// SearchColumns are the columns of SearchWorkspace results.
var SearchColumns = []string{"path", "snippet"}

// SearchWorkspace runs Search and shapes the hits as query results.
func (db *DB) SearchWorkspace(workspace, expression string, limit int) (*connector.QueryResults, error) {
	hits, err := db.Search(workspace, expression, limit)
	if err != nil {
		return nil, err
	}
	out := &connector.QueryResults{Columns: SearchColumns, Tuples: make([][]any, 0, len(hits))}
	for _, h := range hits {
		out.Tuples = append(out.Tuples, []any{h.Path, h.Snippet})
	}
	return out, nil
}
