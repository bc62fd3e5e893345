// Package apperr defines the error taxonomy shared by connectors, the request
// processor and the outer surfaces.
package apperr

import (
	"errors"
	"fmt"

	"github.com/starford/arbor/internal/graph"
)

// Lookup errors.
var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
)

// Request outcome errors recorded on requests.
var (
	// ErrPathNotFound means the requested path does not exist.
	ErrPathNotFound = errors.New("path not found")

	// ErrInvalidWorkspace means a workspace is missing, or exists when creation demanded uniqueness.
	ErrInvalidWorkspace = errors.New("invalid workspace")

	// ErrInvalidRequest means a write hit a read-only source or workspace, or the request is malformed.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrLockFailed means a lock could not be acquired within the connector's constraints.
	ErrLockFailed = errors.New("lock failed")

	// ErrUnexpected wraps any other failure during processing, commit or rollback.
	ErrUnexpected = errors.New("unexpected failure")
)

// PathNotFoundError carries the lowest ancestor that does exist.
type PathNotFoundError struct {
	Location       graph.Location
	LowestExisting graph.Path
}

func (e *PathNotFoundError) Error() string {
	return fmt.Sprintf("node %s does not exist (lowest existing ancestor %s)", e.Location, e.LowestExisting)
}

func (e *PathNotFoundError) Is(target error) bool { return target == ErrPathNotFound }

// NewPathNotFound returns a PathNotFoundError.
func NewPathNotFound(loc graph.Location, lowest graph.Path) error {
	return &PathNotFoundError{Location: loc, LowestExisting: lowest}
}

// WorkspaceError reports a missing or duplicate workspace.
type WorkspaceError struct {
	Source    string
	Workspace string
	Exists    bool
}

func (e *WorkspaceError) Error() string {
	if e.Exists {
		return fmt.Sprintf("workspace %q already exists in source %q", e.Workspace, e.Source)
	}
	return fmt.Sprintf("workspace %q does not exist in source %q", e.Workspace, e.Source)
}

func (e *WorkspaceError) Is(target error) bool { return target == ErrInvalidWorkspace }

// NoSuchWorkspace returns a WorkspaceError for a missing workspace.
func NoSuchWorkspace(source, name string) error {
	return &WorkspaceError{Source: source, Workspace: name}
}

// WorkspaceExists returns a WorkspaceError for a name collision.
func WorkspaceExists(source, name string) error {
	return &WorkspaceError{Source: source, Workspace: name, Exists: true}
}

// RequestError reports an invalid request.
type RequestError struct {
	Reason string
	// ReadOnly is set when the request wrote to a read-only source or workspace.
	ReadOnly bool
}

func (e *RequestError) Error() string { return "invalid request: " + e.Reason }

func (e *RequestError) Is(target error) bool { return target == ErrInvalidRequest }

// InvalidRequest returns a RequestError with a formatted reason.
func InvalidRequest(format string, args ...any) error {
	return &RequestError{Reason: fmt.Sprintf(format, args...)}
}

// SourceReadOnly is the error recorded when a source disallows updates.
func SourceReadOnly(source string) error {
	return &RequestError{Reason: fmt.Sprintf("source %q is read-only", source), ReadOnly: true}
}

// WorkspaceReadOnly is the error recorded when a workspace cannot be written.
func WorkspaceReadOnly(source, workspace string) error {
	return &RequestError{Reason: fmt.Sprintf("workspace %q in source %q is read-only", workspace, source), ReadOnly: true}
}

// LockError reports a failed lock acquisition.
type LockError struct {
	Path   graph.Path
	Reason string
}

func (e *LockError) Error() string {
	return fmt.Sprintf("unable to lock %s: %s", e.Path, e.Reason)
}

func (e *LockError) Is(target error) bool { return target == ErrLockFailed }

// UnexpectedError wraps a system failure.
type UnexpectedError struct {
	Op  string
	Err error
}

func (e *UnexpectedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *UnexpectedError) Unwrap() error { return e.Err }

func (e *UnexpectedError) Is(target error) bool { return target == ErrUnexpected }

// Unexpected wraps err unless it already belongs to the taxonomy.
func Unexpected(op string, err error) error {
	if err == nil {
		return nil
	}
	for _, known := range []error{ErrPathNotFound, ErrInvalidWorkspace, ErrInvalidRequest, ErrLockFailed, ErrUnexpected} {
		if errors.Is(err, known) {
			return err
		}
	}
	return &UnexpectedError{Op: op, Err: err}
}
