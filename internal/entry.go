// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/starford/arbor/internal/api"
	"github.com/starford/arbor/internal/connector"
	"github.com/starford/arbor/internal/connector/filesystem"
	"github.com/starford/arbor/internal/mcpserver"
	"github.com/starford/arbor/internal/sse"
)

// Run starts the HTTP server with the given options and blocks until a
// shutdown signal arrives or ctx is cancelled.
func Run(ctx context.Context, opts ...Option) error {
	app := newApplication(opts)
	rt, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	cfg := app.config
	logger := rt.logger

	// SSE broker receives every committed change set.
	broker := sse.NewBroker(2 * time.Second)
	defer broker.Close()
	rt.source.AddObserver(broker)

	apiRouter := api.NewRouter(rt.source.Connection(), cfg.Auth.AuthEnabled(), cfg.Auth.Token, broker)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	r.Get("/health/live", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/health/ready", readyHandler(rt.source.Repository(), cfg.Source.DefaultWorkspace, broker))

	r.Mount("/api", apiRouter)

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server starting...", slog.String("http_address", cfg.App.HTTP.Address()))

	g, gCtx := errgroup.WithContext(ctx)

	// External edits to the content directory reach observers through the source.
	if rt.fs != nil {
		g.Go(func() error {
			return filesystem.Watch(gCtx, rt.source.Name(), rt.fs.Base(), logger, rt.source.Publish)
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	// Handle shutdown signals.
	g.Go(func() error {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(quit)

		select {
		case sig := <-quit:
			logger.Info("Received shutdown signal", slog.String("signal", sig.String()))
		case <-gCtx.Done():
			logger.Info("Context cancelled, initiating shutdown")
		}

		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return context.Canceled
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunMCP serves the MCP tools on stdin/stdout. The log goes to stderr.
func RunMCP(ctx context.Context, opts ...Option) error {
	app := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	rt, err := app.open(ctx)
	if err != nil {
		return err
	}
	defer rt.Close()

	rt.logger.Info("MCP server starting on stdio")
	return mcpserver.New(rt.source.Connection()).ServeStdio()
}

type readiness struct {
	Status      string `json:"status"`
	Workspaces  int    `json:"workspaces"`
	Subscribers int    `json:"subscribers"`
}

// readyHandler reports unavailable once the default workspace is gone.
func readyHandler(repo *connector.Repository, defaultWorkspace string, broker *sse.Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		body := readiness{
			Status:      "ok",
			Workspaces:  repo.WorkspaceCount(),
			Subscribers: broker.ClientCount(),
		}
		w.Header().Set("Content-Type", "application/json")
		if _, ok := repo.Workspace(defaultWorkspace); !ok {
			body.Status = "unavailable"
			w.WriteHeader(http.StatusServiceUnavailable)
		} else {
			w.WriteHeader(http.StatusOK)
		}
		_ = json.NewEncoder(w).Encode(body)
	}
}
