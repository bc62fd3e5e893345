//go:build sqlite_fts5

package store

import (
	"database/sql"
	"fmt"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS nodes_fts USING fts5(
			workspace UNINDEXED,
			path UNINDEXED,
			body,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, workspace, path, body string) error {
	if body == "" {
		return nil
	}
	_, err := tx.Exec(`INSERT INTO nodes_fts (workspace, path, body) VALUES (?, ?, ?)`, workspace, path, body)
	if err != nil {
		return fmt.Errorf("store: insert fts: %w", err)
	}
	return nil
}

func ftsClear(tx *sql.Tx, workspace string) error {
	if _, err := tx.Exec(`DELETE FROM nodes_fts WHERE workspace = ?`, workspace); err != nil {
		return fmt.Errorf("store: clear fts: %w", err)
	}
	return nil
}

// Search performs an FTS5 full-text search within one workspace.
func (db *DB) Search(workspace, expression string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`
		SELECT path,
		       snippet(nodes_fts, 2, '<b>', '</b>', '...', 64)
		FROM nodes_fts
		WHERE nodes_fts MATCH ? AND workspace = ?
		ORDER BY rank
		LIMIT ?
	`, expression, workspace, limit)
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
