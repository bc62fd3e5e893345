package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/arbor/internal/importer"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(exec importer.Executor, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(exec)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Workspaces.
	r.Get("/workspaces", h.ListWorkspaces)
	r.Post("/workspaces", h.CreateWorkspace)

	r.Route("/workspaces/{workspace}", func(r chi.Router) {
		r.Get("/", h.VerifyWorkspace)
		r.Delete("/", h.DestroyWorkspace)

		// Nodes.
		r.Get("/nodes/*", h.ReadNode)
		r.Post("/nodes/*", h.CreateNode)
		r.Patch("/nodes/*", h.UpdateProperties)
		r.Delete("/nodes/*", h.DeleteBranch)

		// Branch operations.
		r.Post("/copy", h.CopyBranch)
		r.Post("/move", h.MoveBranch)
		r.Post("/lock", h.LockBranch)
		r.Post("/unlock", h.UnlockBranch)

		r.Get("/search", h.Search)

		// YAML transfer.
		r.Post("/import/*", h.Import)
		r.Get("/export/*", h.Export)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
