package api

import (
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/starford/arbor/internal/importer"
	"github.com/starford/arbor/internal/request"
)

// Import handles POST /workspaces/{ws}/import/{parent}?conflict=append|replace
// with a YAML document body. All nodes are created in one transaction.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	parent, err := nodePath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	conflict, err := request.ParseNodeConflictBehavior(r.URL.Query().Get("conflict"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	doc, err := importer.Parse(data)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	batch, err := importer.Import(r.Context(), h.exec, workspaceParam(r), parent, doc, conflict)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]int{"created": len(batch.Requests)})
}

// Export handles GET /workspaces/{ws}/export/{path}?depth=N and returns YAML.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	path, err := nodePath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	depth := 0
	if d := r.URL.Query().Get("depth"); d != "" {
		if depth, err = strconv.Atoi(d); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("depth must be an integer"))
			return
		}
	}
	doc, err := importer.Export(r.Context(), h.exec, workspaceParam(r), path, depth)
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/yaml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	if err := doc.Encode(w); err != nil {
		slog.Error("yaml encode failed", slog.String("error", err.Error()))
	}
}
