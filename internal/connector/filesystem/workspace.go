// Package filesystem exposes directory trees as workspaces. Directories are
// nt:folder nodes and regular files are nt:file nodes carrying their content
// in jcr:data. Writes go straight to disk: the workspaces are writable but not
// transactional, so a rolled-back request cannot undo them.
package filesystem

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/apperr"
	"github.com/starford/arbor/internal/checksum"
	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/request"
)

// Primary types.
const (
	TypeFolder = "nt:folder"
	TypeFile   = "nt:file"
)

const tempPrefix = ".arbor-tmp-"

// ExtraProperties selects what happens to properties a file or folder cannot store.
type ExtraProperties string

const (
	// ExtraIgnore silently drops them.
	ExtraIgnore ExtraProperties = "ignore"
	// ExtraError fails the write.
	ExtraError ExtraProperties = "error"
)

// Workspace is a directory exposed as a workspace.
type Workspace struct {
	name   string
	root   string // absolute path to the workspace directory
	id     uuid.UUID
	extra  ExtraProperties
	logger *slog.Logger
}

var _ connector.WritableWorkspace = (*Workspace)(nil)

// NewWorkspace exposes dir, which must already exist, as workspace name.
func NewWorkspace(name, dir string, rootUUID uuid.UUID, extra ExtraProperties, logger *slog.Logger) (*Workspace, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("filesystem: resolve root: %w", err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("filesystem: stat root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("filesystem: root is not a directory: %s", abs)
	}
	if extra == "" {
		extra = ExtraIgnore
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Workspace{name: name, root: abs, id: rootUUID, extra: extra, logger: logger}, nil
}

// Name returns the workspace name.
func (w *Workspace) Name() string { return w.name }

// Dir returns the absolute workspace directory.
func (w *Workspace) Dir() string { return w.root }

// safePath maps a node path to a file path under the workspace directory and
// rejects anything that escapes it. Same-name-sibling indexes above 1 cannot
// exist on disk and yield apperr.ErrNotFound.
func (w *Workspace) safePath(p graph.Path) (string, error) {
	if p.IsZero() {
		return "", fmt.Errorf("filesystem: empty path")
	}
	parts := make([]string, 0, p.Len())
	for _, seg := range p.Segments() {
		if seg.Index > 1 {
			return "", fmt.Errorf("filesystem: %s in %q: %w", p, w.name, apperr.ErrNotFound)
		}
		parts = append(parts, string(seg.Name))
	}
	if len(parts) == 0 {
		return w.root, nil
	}
	joined := filepath.Join(append([]string{w.root}, parts...)...)
	if !strings.HasPrefix(joined, w.root+string(os.PathSeparator)) {
		return "", apperr.InvalidRequest("path %s escapes workspace %q", p, w.name)
	}
	return joined, nil
}

// Node reads the file or directory at path.
func (w *Workspace) Node(path graph.Path) (*connector.Node, error) {
	abs, err := w.safePath(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("filesystem: %s in %q: %w", path, w.name, apperr.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("filesystem: stat %s: %w", path, err)
	}

	id := uuid.Nil
	if path.IsRoot() {
		id = w.id
	}
	props := map[graph.Name]*graph.Property{
		graph.LastModified: graph.NewProperty(graph.LastModified, info.ModTime().UTC()),
	}
	if !info.IsDir() {
		data, err := os.ReadFile(abs)
		if err != nil {
			return nil, fmt.Errorf("filesystem: read %s: %w", path, err)
		}
		props[graph.PrimaryType] = graph.NewProperty(graph.PrimaryType, TypeFile)
		props[graph.Data] = graph.NewProperty(graph.Data, data)
		props[graph.Checksum] = graph.NewProperty(graph.Checksum, checksum.Sum(data))
		return connector.NewNode(path, id, props, nil), nil
	}

	props[graph.PrimaryType] = graph.NewProperty(graph.PrimaryType, TypeFolder)
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("filesystem: list %s: %w", path, err)
	}
	children := make([]graph.Segment, 0, len(entries))
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), tempPrefix) {
			continue
		}
		if graph.Name(e.Name()).Validate() != nil {
			continue
		}
		children = append(children, graph.NewSegment(graph.Name(e.Name()), 1))
	}
	return connector.NewNode(path, id, props, children), nil
}

// LowestExistingPath returns the deepest existing ancestor-or-self of path.
func (w *Workspace) LowestExistingPath(path graph.Path) graph.Path {
	for p := path; !p.IsZero(); p = p.Parent() {
		abs, err := w.safePath(p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(abs); err == nil {
			return p
		}
	}
	return graph.RootPath()
}

// CreateNode creates a folder or, when props carry nt:file or jcr:data, a
// file. Append on an existing name fails: directories cannot hold
// same-name siblings.
func (w *Workspace) CreateNode(parent *connector.Node, name graph.Name, props map[graph.Name]*graph.Property, behavior request.NodeConflictBehavior) (*connector.Node, error) {
	if err := name.Validate(); err != nil {
		return nil, apperr.InvalidRequest("%v", err)
	}
	if strings.HasPrefix(string(name), tempPrefix) {
		return nil, apperr.InvalidRequest("name %q is reserved", name)
	}
	par, err := w.Node(parent.Path())
	if err != nil {
		return nil, err
	}
	if t := par.Property(graph.PrimaryType); t != nil && t.String() == TypeFile {
		return nil, apperr.InvalidRequest("%s is a file and cannot have children", par.Path())
	}
	target := par.Path().ChildNamed(name)

	if par.HasChildNamed(name) {
		switch behavior {
		case request.DoNotReplace, request.Update:
			return w.Node(target)
		case request.Replace:
			if err := w.RemoveNode(target); err != nil {
				return nil, err
			}
		default:
			return nil, apperr.InvalidRequest("%s already exists and workspace %q does not support same-name siblings", target, w.name)
		}
	}

	isFile, err := w.checkProperties(props, nil)
	if err != nil {
		return nil, err
	}
	abs, err := w.safePath(target)
	if err != nil {
		return nil, err
	}
	if isFile {
		if err := w.writeFile(abs, dataOf(props[graph.Data])); err != nil {
			return nil, err
		}
	} else if err := os.Mkdir(abs, 0o755); err != nil {
		return nil, fmt.Errorf("filesystem: mkdir %s: %w", target, err)
	}
	if err := setModTime(abs, props[graph.LastModified]); err != nil {
		return nil, err
	}
	w.logger.Debug("filesystem: created", slog.String("workspace", w.name), slog.String("path", target.String()))
	return w.Node(target)
}

// checkProperties validates props against what a node can store and reports
// whether they describe a file. existing is the current node, if any.
func (w *Workspace) checkProperties(props map[graph.Name]*graph.Property, existing *connector.Node) (bool, error) {
	isFile := props[graph.Data] != nil
	if t := props[graph.PrimaryType]; t != nil {
		switch t.String() {
		case TypeFile:
			isFile = true
		case TypeFolder:
			if isFile {
				return false, apperr.InvalidRequest("a folder cannot carry %s", graph.Data)
			}
		default:
			return false, apperr.InvalidRequest("unsupported primary type %q", t.String())
		}
	}
	if existing != nil {
		wasFile := existing.Property(graph.PrimaryType).String() == TypeFile
		if props[graph.PrimaryType] != nil && isFile != wasFile {
			return false, apperr.InvalidRequest("cannot change the primary type of %s", existing.Path())
		}
		if !wasFile && props[graph.Data] != nil {
			return false, apperr.InvalidRequest("a folder cannot carry %s", graph.Data)
		}
		isFile = wasFile
	}
	for name := range props {
		switch name {
		case graph.PrimaryType, graph.LastModified, graph.Checksum:
			continue
		case graph.Data:
			if isFile {
				continue
			}
		}
		if w.extra == ExtraError {
			return false, apperr.InvalidRequest("workspace %q cannot store property %s", w.name, name)
		}
	}
	return isFile, nil
}

// CopyNode copies original, from any workspace, under newParent.
func (w *Workspace) CopyNode(original *connector.Node, from connector.Workspace, newParent *connector.Node, desiredName graph.Name, recursive bool) (*connector.Node, error) {
	return connector.CopyNode(w, original, from, newParent, desiredName, recursive)
}

// MoveNode copies node under newParent and then deletes the original. The
// before hint is ignored: directory listings have no caller-defined order.
func (w *Workspace) MoveNode(node *connector.Node, desiredName graph.Name, from connector.Workspace, newParent *connector.Node, _ *connector.Node) (*connector.Node, error) {
	if node.Path().IsRoot() {
		return nil, apperr.InvalidRequest("the root node cannot be moved")
	}
	if newParent.Path().IsAtOrBelow(node.Path()) {
		return nil, apperr.InvalidRequest("cannot move %s below itself", node.Path())
	}
	name := desiredName
	if name == "" {
		name = node.Path().Last().Name
	}
	if from == connector.Workspace(w) && newParent.Path().ChildNamed(name).Equal(node.Path()) {
		return w.Node(node.Path())
	}
	src, err := connector.ReadTree(from, node, true)
	if err != nil {
		return nil, err
	}
	moved, err := connector.CopyTree(w, src, newParent, name, request.Append)
	if err != nil {
		return nil, err
	}
	remover, ok := from.(connector.WritableWorkspace)
	if !ok {
		remover = w
	}
	if err := remover.RemoveNode(node.Path()); err != nil {
		return nil, err
	}
	return moved, nil
}

// RemoveNode deletes the file or directory tree at path.
func (w *Workspace) RemoveNode(path graph.Path) error {
	if path.IsRoot() {
		return apperr.InvalidRequest("the root of workspace %q cannot be removed", w.name)
	}
	abs, err := w.safePath(path)
	if err != nil {
		return err
	}
	if _, err := os.Lstat(abs); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("filesystem: %s in %q: %w", path, w.name, apperr.ErrNotFound)
		}
		return fmt.Errorf("filesystem: stat %s: %w", path, err)
	}
	if err := os.RemoveAll(abs); err != nil {
		return fmt.Errorf("filesystem: delete %s: %w", path, err)
	}
	return nil
}

// SetProperties rewrites file content and modification times. Removing
// jcr:data truncates the file.
func (w *Workspace) SetProperties(path graph.Path, props map[graph.Name]*graph.Property) (*connector.Node, error) {
	node, err := w.Node(path)
	if err != nil {
		return nil, err
	}
	present := make(map[graph.Name]*graph.Property, len(props))
	for k, v := range props {
		if v != nil {
			present[k] = v
		}
	}
	isFile, err := w.checkProperties(present, node)
	if err != nil {
		return nil, err
	}
	abs, err := w.safePath(path)
	if err != nil {
		return nil, err
	}
	if p, ok := props[graph.Data]; ok && isFile {
		if err := w.writeFile(abs, dataOf(p)); err != nil {
			return nil, err
		}
	}
	if err := setModTime(abs, props[graph.LastModified]); err != nil {
		return nil, err
	}
	return w.Node(path)
}

// RemoveProperties removes the named properties.
func (w *Workspace) RemoveProperties(path graph.Path, names ...graph.Name) (*connector.Node, error) {
	return connector.RemovePropertiesVia(w, path, names...)
}

// writeFile atomically writes content: tmp file, fsync, rename.
func (w *Workspace) writeFile(abs string, content []byte) error {
	dir := filepath.Dir(abs)
	tmp, err := os.CreateTemp(dir, tempPrefix+"*")
	if err != nil {
		return fmt.Errorf("filesystem: create temp: %w", err)
	}
	tmpName := tmp.Name()

	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("filesystem: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("filesystem: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("filesystem: close temp: %w", err)
	}
	if err := os.Rename(tmpName, abs); err != nil {
		return fmt.Errorf("filesystem: rename: %w", err)
	}
	success = true
	return nil
}

func dataOf(p *graph.Property) []byte {
	if p == nil {
		return nil
	}
	switch v := p.First().(type) {
	case []byte:
		return v
	case nil:
		return nil
	default:
		return []byte(p.String())
	}
}

func setModTime(abs string, p *graph.Property) error {
	if p == nil {
		return nil
	}
	var ts time.Time
	switch v := p.First().(type) {
	case time.Time:
		ts = v
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, v)
		if err != nil {
			return apperr.InvalidRequest("invalid %s %q", graph.LastModified, v)
		}
		ts = parsed
	default:
		return apperr.InvalidRequest("invalid %s value %T", graph.LastModified, v)
	}
	if err := os.Chtimes(abs, ts, ts); err != nil {
		return fmt.Errorf("filesystem: set mtime: %w", err)
	}
	return nil
}
