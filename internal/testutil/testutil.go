// Package testutil provides shared test helpers for setting up sources,
// databases and content directories.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/connector/filesystem"
	"github.com/starford/arbor/internal/connector/inmemory"
	"github.com/starford/arbor/internal/store"
)

// Logger returns a logger that discards everything.
func Logger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// TestDB creates a temporary SQLite database that is automatically cleaned up.
func TestDB(t *testing.T) *store.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "arbor-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := store.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestContentDir creates a temporary base directory with a filesystem factory.
func TestContentDir(t *testing.T) (string, *filesystem.Factory) {
	t.Helper()
	dir := t.TempDir()
	factory, err := filesystem.NewFactory(dir, filesystem.ExtraIgnore, Logger())
	if err != nil {
		t.Fatal(err)
	}
	return dir, factory
}

// TestSource creates an in-memory source named "test" with the workspaces
// "default" and "other".
func TestSource(t *testing.T, opts ...connector.SourceOption) *connector.Source {
	t.Helper()
	logger := Logger()
	repo := connector.NewRepository("test", uuid.New(), "default",
		inmemory.NewFactory(inmemory.WithLogger(logger)), logger)
	if err := repo.Init("other"); err != nil {
		t.Fatal(err)
	}
	return connector.NewSource(repo, append([]connector.SourceOption{connector.WithLogger(logger)}, opts...)...)
}
