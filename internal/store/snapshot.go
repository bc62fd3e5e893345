package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/checksum"
	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/connector/inmemory"
	"github.com/starford/arbor/internal/graph"
)

var _ inmemory.Persister = (*DB)(nil)

// WorkspaceRow describes a stored workspace.
type WorkspaceRow struct {
	Name      string
	Checksum  string
	NodeCount int
	UpdatedAt time.Time
}

type nodeRow struct {
	path       string
	id         string
	properties string
	children   string
	body       string
}

func encodeNode(n *connector.Node) (nodeRow, error) {
	props := make([]*graph.Property, 0, len(n.Properties()))
	for _, p := range n.Properties() {
		props = append(props, p)
	}
	// map iteration order must not leak into the checksum or the search body
	sort.Slice(props, func(i, j int) bool { return props[i].Name() < props[j].Name() })
	var body []string
	for _, p := range props {
		for _, v := range p.Values() {
			if s, ok := v.(string); ok && s != "" {
				body = append(body, s)
			}
		}
	}
	propsJSON, err := json.Marshal(props)
	if err != nil {
		return nodeRow{}, fmt.Errorf("store: encode %s: %w", n.Path(), err)
	}
	segs := n.ChildSegments()
	children := make([]string, 0, len(segs))
	for _, s := range segs {
		children = append(children, s.String())
	}
	childrenJSON, _ := json.Marshal(children)

	id := ""
	if n.UUID() != uuid.Nil {
		id = n.UUID().String()
	}
	return nodeRow{
		path:       n.Path().String(),
		id:         id,
		properties: string(propsJSON),
		children:   string(childrenJSON),
		body:       strings.Join(body, " "),
	}, nil
}

func decodeNode(r nodeRow) (*connector.Node, error) {
	path, err := graph.ParsePath(r.path)
	if err != nil {
		return nil, fmt.Errorf("store: decode path: %w", err)
	}
	id := uuid.Nil
	if r.id != "" {
		if id, err = uuid.Parse(r.id); err != nil {
			return nil, fmt.Errorf("store: decode uuid of %s: %w", r.path, err)
		}
	}
	var props []*graph.Property
	if err := json.Unmarshal([]byte(r.properties), &props); err != nil {
		return nil, fmt.Errorf("store: decode properties of %s: %w", r.path, err)
	}
	byName := make(map[graph.Name]*graph.Property, len(props))
	for _, p := range props {
		byName[p.Name()] = p
	}
	var names []string
	if err := json.Unmarshal([]byte(r.children), &names); err != nil {
		return nil, fmt.Errorf("store: decode children of %s: %w", r.path, err)
	}
	segs := make([]graph.Segment, 0, len(names))
	for _, s := range names {
		seg, err := graph.ParseSegment(s)
		if err != nil {
			return nil, fmt.Errorf("store: decode children of %s: %w", r.path, err)
		}
		segs = append(segs, seg)
	}
	return connector.NewNode(path, id, byName, segs), nil
}

// SaveWorkspace replaces the stored snapshot of a workspace. Nothing is
// written when the snapshot checksum matches the stored one.
func (db *DB) SaveWorkspace(name string, nodes []*connector.Node) error {
	rows := make([]nodeRow, 0, len(nodes))
	var all strings.Builder
	for _, n := range nodes {
		r, err := encodeNode(n)
		if err != nil {
			return err
		}
		rows = append(rows, r)
		all.WriteString(r.path)
		all.WriteString(r.id)
		all.WriteString(r.properties)
		all.WriteString(r.children)
	}
	sum := checksum.Sum([]byte(all.String()))
	if stored, _ := db.Checksum(name); stored == sum {
		return nil
	}

	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if _, err := tx.Exec(`DELETE FROM nodes WHERE workspace = ?`, name); err != nil {
		return fmt.Errorf("store: clear nodes: %w", err)
	}
	if err := ftsClear(tx, name); err != nil {
		return err
	}
	stmt, err := tx.Prepare(`
		INSERT INTO nodes (workspace, position, path, uuid, properties, children, body)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("store: prepare node insert: %w", err)
	}
	defer stmt.Close()
	for i, r := range rows {
		if _, err := stmt.Exec(name, i, r.path, r.id, r.properties, r.children, r.body); err != nil {
			return fmt.Errorf("store: insert %s: %w", r.path, err)
		}
		if err := ftsInsert(tx, name, r.path, r.body); err != nil {
			return err
		}
	}
	_, err = tx.Exec(`
		INSERT INTO workspaces (name, checksum, node_count, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			checksum   = excluded.checksum,
			node_count = excluded.node_count,
			updated_at = excluded.updated_at
	`, name, sum, len(rows), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("store: upsert workspace: %w", err)
	}
	return tx.Commit()
}

// DeleteWorkspace removes a workspace and its nodes.
func (db *DB) DeleteWorkspace(name string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if err := ftsClear(tx, name); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM nodes WHERE workspace = ?`, name); err != nil {
		return fmt.Errorf("store: delete nodes of %s: %w", name, err)
	}
	if _, err := tx.Exec(`DELETE FROM workspaces WHERE name = ?`, name); err != nil {
		return fmt.Errorf("store: delete workspace %s: %w", name, err)
	}
	return tx.Commit()
}

// Checksum returns the stored snapshot checksum, or "" for an unknown workspace.
func (db *DB) Checksum(name string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM workspaces WHERE name = ?`, name).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("store: checksum: %w", err)
	}
	return cs, nil
}

// Workspaces lists the stored workspaces by name.
func (db *DB) Workspaces() ([]WorkspaceRow, error) {
	rows, err := db.conn.Query(`SELECT name, checksum, node_count, updated_at FROM workspaces ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("store: list workspaces: %w", err)
	}
	defer rows.Close()
	var out []WorkspaceRow
	for rows.Next() {
		var r WorkspaceRow
		if err := rows.Scan(&r.Name, &r.Checksum, &r.NodeCount, &r.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// LoadWorkspace returns the stored nodes of a workspace in path order, or nil
// when the workspace is unknown.
func (db *DB) LoadWorkspace(name string) ([]*connector.Node, error) {
	rows, err := db.conn.Query(`
		SELECT path, uuid, properties, children
		FROM nodes
		WHERE workspace = ?
		ORDER BY position
	`, name)
	if err != nil {
		return nil, fmt.Errorf("store: load %q: %w", name, err)
	}
	defer rows.Close()
	var out []*connector.Node
	for rows.Next() {
		var r nodeRow
		if err := rows.Scan(&r.path, &r.id, &r.properties, &r.children); err != nil {
			return nil, err
		}
		n, err := decodeNode(r)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}
