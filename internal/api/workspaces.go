package api

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/starford/arbor/internal/request"
)

// ListWorkspaces handles GET /workspaces.
func (h *Handler) ListWorkspaces(w http.ResponseWriter, r *http.Request) {
	req := &request.GetWorkspaces{}
	if !h.execute(w, r, req) {
		return
	}
	out := make([]WorkspaceResponse, 0, len(req.Names))
	for _, n := range req.Names {
		out = append(out, WorkspaceResponse{Name: n})
	}
	writeJSON(w, http.StatusOK, map[string]any{"workspaces": out})
}

// CreateWorkspace handles POST /workspaces, creating an empty workspace or,
// with clone_from, a copy of an existing one.
func (h *Handler) CreateWorkspace(w http.ResponseWriter, r *http.Request) {
	var body CreateWorkspaceRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	conflict := request.DoNotCreate
	if body.AdjustName {
		conflict = request.CreateWithAdjustedName
	}

	var (
		name string
		root uuid.UUID
	)
	if body.CloneFrom == "" {
		req := &request.CreateWorkspace{DesiredName: body.Name, Conflict: conflict}
		if !h.execute(w, r, req) {
			return
		}
		name, root = req.ActualWorkspace, req.ActualRootLocation.UUID
	} else {
		cloneConflict := request.DoNotClone
		if body.SkipIfExists {
			cloneConflict = request.SkipClone
		}
		req := &request.CloneWorkspace{
			SourceName:    body.CloneFrom,
			TargetName:    body.Name,
			Conflict:      conflict,
			CloneConflict: cloneConflict,
		}
		if !h.execute(w, r, req) {
			return
		}
		name, root = req.ActualWorkspace, req.ActualRootLocation.UUID
	}
	writeJSON(w, http.StatusCreated, workspaceResponse(name, root))
}

// VerifyWorkspace handles GET /workspaces/{ws}.
func (h *Handler) VerifyWorkspace(w http.ResponseWriter, r *http.Request) {
	req := &request.VerifyWorkspace{Workspace: workspaceParam(r)}
	if !h.execute(w, r, req) {
		return
	}
	writeJSON(w, http.StatusOK, workspaceResponse(req.ActualWorkspace, req.ActualRootLocation.UUID))
}

// DestroyWorkspace handles DELETE /workspaces/{ws}.
func (h *Handler) DestroyWorkspace(w http.ResponseWriter, r *http.Request) {
	req := &request.DestroyWorkspace{Workspace: workspaceParam(r)}
	if !h.execute(w, r, req) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func workspaceResponse(name string, root uuid.UUID) WorkspaceResponse {
	out := WorkspaceResponse{Name: name}
	if root != uuid.Nil {
		out.RootUUID = root.String()
	}
	return out
}
