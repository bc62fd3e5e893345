//go:build !sqlite_fts5

package store

import (
	"database/sql"
	"fmt"
)

func initFTS(_ *sql.DB) error {
	// FTS5 not available; search uses LIKE on nodes.body.
	return nil
}

func ftsInsert(_ *sql.Tx, _, _, _ string) error { return nil }

func ftsClear(_ *sql.Tx, _ string) error { return nil }

// Search performs a LIKE-based search (fallback when FTS5 is not compiled in).
func (db *DB) Search(workspace, expression string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + expression + "%"
	rows, err := db.conn.Query(`
		SELECT path, substr(body, 1, 200)
		FROM nodes
		WHERE workspace = ? AND body LIKE ?
		ORDER BY position
		LIMIT ?
	`, workspace, like, limit)
	if err != nil {
		return nil, fmt.Errorf("store: search: %w", err)
	}
	defer rows.Close()

	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Snippet); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
