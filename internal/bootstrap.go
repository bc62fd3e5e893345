package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/google/uuid"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/connector/filesystem"
	"github.com/starford/arbor/internal/connector/inmemory"
	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/importer"
	"github.com/starford/arbor/internal/request"
	"github.com/starford/arbor/internal/store"
)

// runtime is the opened source together with the resources behind it.
type runtime struct {
	logger *slog.Logger
	source *connector.Source
	// db is nil unless the in-memory connector persists to SQLite.
	db *store.DB
	// fs is nil unless the filesystem connector is configured.
	fs      *filesystem.Factory
	closers []io.Closer
}

// Close releases the database and log file.
func (rt *runtime) Close() error {
	var errs []error
	for i := len(rt.closers) - 1; i >= 0; i-- {
		if err := rt.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// newLogger builds the JSON logger; with a log file the output is teed into
// a rotating writer.
func newLogger(cfg *ApplicationConfig, out io.Writer) (*slog.Logger, io.Closer) {
	var file *lumberjack.Logger
	if cfg.LogFile != "" {
		file = &lumberjack.Logger{
			Filename:   cfg.LogFile,
			MaxSize:    50,
			MaxBackups: 3,
			MaxAge:     28,
		}
		out = io.MultiWriter(out, file)
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	if file == nil {
		return logger, nil
	}
	return logger, file
}

// open builds the logger, the repository and the source described by the
// application config.
func (app *application) open(ctx context.Context) (*runtime, error) {
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	cfg := app.config

	logger, logFile := newLogger(&cfg.App, app.logOut)
	slog.SetDefault(logger)
	rt := &runtime{logger: logger}
	if logFile != nil {
		rt.closers = append(rt.closers, logFile)
	}

	logger.Info("Configuration loaded",
		slog.String("source", cfg.Source.Name),
		slog.String("connector", cfg.Source.Connector),
		slog.String("default_workspace", cfg.Source.DefaultWorkspace),
		slog.Bool("updates_allowed", cfg.Source.UpdatesAllowed),
		slog.String("log_level", cfg.App.LogLevel.String()))

	repo, err := rt.openRepository(cfg)
	if err != nil {
		_ = rt.Close()
		return nil, err
	}
	if err := repo.Init(cfg.Source.PredefinedWorkspaces...); err != nil {
		_ = rt.Close()
		return nil, fmt.Errorf("init workspaces: %w", err)
	}
	logger.Info("repository ready",
		slog.String("source", repo.SourceName()),
		slog.Int("workspaces", repo.WorkspaceCount()))

	rt.source = connector.NewSource(repo,
		connector.WithUpdatesAllowed(cfg.Source.UpdatesAllowed),
		connector.WithRetryLimit(cfg.Source.RetryLimit),
		connector.WithCachePolicy(graph.CachePolicy{TTL: cfg.Source.CacheTTL}),
		connector.WithLogger(logger),
	)

	if cfg.Seed.Path != "" {
		if err := seed(ctx, rt.source.Connection(), cfg.Seed.Path, logger); err != nil {
			_ = rt.Close()
			return nil, err
		}
	}
	return rt, nil
}

func (rt *runtime) openRepository(cfg *Config) (*connector.Repository, error) {
	root := cfg.Source.Root()

	if cfg.Source.Connector == ConnectorFilesystem {
		factory, err := filesystem.NewFactory(cfg.Filesystem.Path, cfg.Filesystem.ExtraProperties, rt.logger)
		if err != nil {
			return nil, fmt.Errorf("init filesystem: %w", err)
		}
		rt.fs = factory
		repo := connector.NewRepository(cfg.Source.Name, root, cfg.Source.DefaultWorkspace, factory, rt.logger)
		existing, err := factory.Open(root)
		if err != nil {
			return nil, fmt.Errorf("open filesystem workspaces: %w", err)
		}
		for _, ws := range existing {
			repo.Register(ws)
		}
		rt.logger.Info("filesystem workspaces opened",
			slog.String("path", factory.Base()),
			slog.Int("count", len(existing)))
		return repo, nil
	}

	opts := []inmemory.Option{
		inmemory.WithLockTimeout(cfg.Source.LockTimeout),
		inmemory.WithLogger(rt.logger),
	}
	if !cfg.SQLite.Enabled() {
		return connector.NewRepository(cfg.Source.Name, root, cfg.Source.DefaultWorkspace, inmemory.NewFactory(opts...), rt.logger), nil
	}

	db, err := store.Open(cfg.SQLite.Path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	rt.db = db
	rt.closers = append(rt.closers, db)
	opts = append(opts, inmemory.WithPersister(db), inmemory.WithSearcher(db))

	repo := connector.NewRepository(cfg.Source.Name, root, cfg.Source.DefaultWorkspace, inmemory.NewFactory(opts...), rt.logger)
	if err := restore(repo, db, root, opts, rt.logger); err != nil {
		return nil, err
	}
	return repo, nil
}

// restore registers every workspace saved in db.
func restore(repo *connector.Repository, db *store.DB, root uuid.UUID, opts []inmemory.Option, logger *slog.Logger) error {
	rows, err := db.Workspaces()
	if err != nil {
		return fmt.Errorf("list stored workspaces: %w", err)
	}
	for _, row := range rows {
		nodes, err := db.LoadWorkspace(row.Name)
		if err != nil {
			return fmt.Errorf("load workspace %q: %w", row.Name, err)
		}
		ws := inmemory.New(row.Name, root, opts...)
		if err := ws.Restore(nodes); err != nil {
			return err
		}
		repo.Register(ws)
		logger.Info("workspace restored",
			slog.String("workspace", row.Name),
			slog.Int("nodes", row.NodeCount))
	}
	return nil
}

// seed imports the document at path into the default workspace when its
// root has no children yet.
func seed(ctx context.Context, conn *connector.Connection, path string, logger *slog.Logger) error {
	root := &request.ReadAllChildren{Of: graph.At(graph.RootPath())}
	if err := conn.Execute(ctx, root); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if err := root.Err(); err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	if len(root.Children) > 0 {
		logger.Debug("seed skipped, default workspace is not empty")
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("seed: read %s: %w", path, err)
	}
	doc, err := importer.Parse(data)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	batch, err := importer.Import(ctx, conn, "", graph.RootPath(), doc, request.Append)
	if err != nil {
		return fmt.Errorf("seed: %w", err)
	}
	logger.Info("seed imported", slog.String("path", path), slog.Int("nodes", len(batch.Requests)))
	return nil
}
