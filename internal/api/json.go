package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/arbor/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error          string `json:"error"`
	LowestExisting string `json:"lowest_existing,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// writeError maps a request error onto a status code.
func writeError(w http.ResponseWriter, err error) {
	var (
		notFound  *apperr.PathNotFoundError
		workspace *apperr.WorkspaceError
		invalid   *apperr.RequestError
	)
	switch {
	case errors.As(err, &notFound):
		writeJSON(w, http.StatusNotFound, errResponse{
			Error:          err.Error(),
			LowestExisting: notFound.LowestExisting.String(),
		})
	case errors.As(err, &workspace):
		status := http.StatusNotFound
		if workspace.Exists {
			status = http.StatusConflict
		}
		writeJSON(w, status, errorBody(err.Error()))
	case errors.As(err, &invalid):
		status := http.StatusBadRequest
		if invalid.ReadOnly {
			status = http.StatusForbidden
		}
		writeJSON(w, status, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrLockFailed):
		writeJSON(w, http.StatusLocked, errorBody(err.Error()))
	default:
		slog.Error("request failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
