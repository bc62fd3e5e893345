package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/arbor/internal/graph"
	"github.com/starford/arbor/internal/importer"
	"github.com/starford/arbor/internal/request"
)

const maxBodyBytes = 10 << 20

// Handler holds API route handlers.
type Handler struct {
	exec importer.Executor
}

// NewHandler creates a new Handler issuing requests through exec.
func NewHandler(exec importer.Executor) *Handler {
	return &Handler{exec: exec}
}

// execute runs req and writes the error response when it fails.
func (h *Handler) execute(w http.ResponseWriter, r *http.Request, req request.Request) bool {
	if err := h.exec.Execute(r.Context(), req); err != nil {
		writeError(w, err)
		return false
	}
	if err := req.Err(); err != nil {
		writeError(w, err)
		return false
	}
	return true
}

func workspaceParam(r *http.Request) string {
	ws, err := url.PathUnescape(chi.URLParam(r, "workspace"))
	if err != nil {
		return chi.URLParam(r, "workspace")
	}
	return ws
}

// nodePath extracts the node path from the wildcard part of the URL.
// Supports encoded slashes and brackets (e.g. a%2Fb%5B2%5D).
func nodePath(r *http.Request) (graph.Path, error) {
	raw := strings.Trim(chi.URLParam(r, "*"), "/")
	if decoded, err := url.PathUnescape(raw); err == nil {
		raw = decoded
	}
	return graph.ParsePath("/" + raw)
}

func parsePath(s string) (graph.Path, error) {
	if s == "" {
		return graph.Path{}, nil
	}
	return graph.ParsePath(s)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

func decodeProperties(raw map[string]any, allowNull bool) (map[graph.Name]*graph.Property, error) {
	out := make(map[graph.Name]*graph.Property, len(raw))
	for name, v := range raw {
		n := graph.Name(name)
		if err := n.Validate(); err != nil {
			return nil, err
		}
		if v == nil && allowNull {
			out[n] = nil
			continue
		}
		p, err := importer.DecodeProperty(n, v)
		if err != nil {
			return nil, err
		}
		out[n] = p
	}
	return out, nil
}

// ReadNode handles GET /workspaces/{ws}/nodes/*. With ?depth=N (0 for the
// whole subtree) the branch below the node is returned as well.
func (h *Handler) ReadNode(w http.ResponseWriter, r *http.Request) {
	ws := workspaceParam(r)
	path, err := nodePath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	if d := r.URL.Query().Get("depth"); d != "" {
		depth, err := strconv.Atoi(d)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("depth must be an integer"))
			return
		}
		req := &request.ReadBranch{Workspace: ws, At: graph.At(path), MaxDepth: depth}
		if !h.execute(w, r, req) {
			return
		}
		out := BranchResponse{Nodes: make([]NodeResponse, 0, len(req.Nodes))}
		for _, n := range req.Nodes {
			out.Nodes = append(out.Nodes, nodeResponse(ws, n.Location, n.Depth, n.Properties, n.Children))
		}
		writeJSON(w, http.StatusOK, out)
		return
	}

	req := &request.ReadNode{Workspace: ws, At: graph.At(path)}
	if !h.execute(w, r, req) {
		return
	}
	writeJSON(w, http.StatusOK, nodeResponse(ws, req.ActualLocation, 0, req.Properties, req.Children))
}

// CreateNode handles POST /workspaces/{ws}/nodes/{parent}.
func (h *Handler) CreateNode(w http.ResponseWriter, r *http.Request) {
	ws := workspaceParam(r)
	parent, err := nodePath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	var body CreateNodeRequest
	if !decodeBody(w, r, &body) {
		return
	}
	if body.Name == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("name is required"))
		return
	}
	conflict, err := request.ParseNodeConflictBehavior(body.Conflict)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	props, err := decodeProperties(body.Properties, false)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	req := &request.CreateNode{Workspace: ws, Under: graph.At(parent), Name: graph.Name(body.Name), Conflict: conflict}
	for _, p := range props {
		req.Properties = append(req.Properties, p)
	}
	if !h.execute(w, r, req) {
		return
	}
	read := &request.ReadNode{Workspace: ws, At: req.ActualLocation}
	if !h.execute(w, r, read) {
		return
	}
	writeJSON(w, http.StatusCreated, nodeResponse(ws, read.ActualLocation, 0, read.Properties, read.Children))
}

// UpdateProperties handles PATCH /workspaces/{ws}/nodes/*.
func (h *Handler) UpdateProperties(w http.ResponseWriter, r *http.Request) {
	ws := workspaceParam(r)
	path, err := nodePath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	var body UpdatePropertiesRequest
	if !decodeBody(w, r, &body) {
		return
	}
	props, err := decodeProperties(body.Properties, true)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	req := &request.UpdateProperties{Workspace: ws, On: graph.At(path), Properties: props}
	if !h.execute(w, r, req) {
		return
	}
	read := &request.ReadNode{Workspace: ws, At: req.ActualLocation}
	if !h.execute(w, r, read) {
		return
	}
	writeJSON(w, http.StatusOK, nodeResponse(ws, read.ActualLocation, 0, read.Properties, read.Children))
}

// DeleteBranch handles DELETE /workspaces/{ws}/nodes/*.
func (h *Handler) DeleteBranch(w http.ResponseWriter, r *http.Request) {
	path, err := nodePath(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	req := &request.DeleteBranch{Workspace: workspaceParam(r), At: graph.At(path)}
	if !h.execute(w, r, req) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CopyBranch handles POST /workspaces/{ws}/copy.
func (h *Handler) CopyBranch(w http.ResponseWriter, r *http.Request) {
	ws := workspaceParam(r)
	var body CopyRequest
	if !decodeBody(w, r, &body) {
		return
	}
	from, err := graph.ParsePath(body.From)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("from: "+err.Error()))
		return
	}
	into, err := graph.ParsePath(body.Into)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("into: "+err.Error()))
		return
	}
	fromWS := body.FromWorkspace
	if fromWS == "" {
		fromWS = ws
	}

	if !body.Clone {
		req := &request.CopyBranch{
			FromWorkspace: fromWS, From: graph.At(from),
			IntoWorkspace: ws, Into: graph.At(into),
			DesiredName: graph.Name(body.Name),
		}
		if !h.execute(w, r, req) {
			return
		}
		writeJSON(w, http.StatusCreated, CopyResponse{
			From: req.ActualFromLocation.Path.String(),
			Into: req.ActualIntoLocation.Path.String(),
		})
		return
	}

	req := &request.CloneBranch{
		FromWorkspace: fromWS, From: graph.At(from),
		IntoWorkspace: ws, Into: graph.At(into),
		DesiredName:    graph.Name(body.Name),
		RemoveExisting: body.RemoveExisting,
	}
	if !h.execute(w, r, req) {
		return
	}
	out := CopyResponse{
		From: req.ActualFromLocation.Path.String(),
		Into: req.ActualIntoLocation.Path.String(),
	}
	for _, l := range req.RemovedNodes {
		out.Removed = append(out.Removed, l.Path.String())
	}
	writeJSON(w, http.StatusCreated, out)
}

// MoveBranch handles POST /workspaces/{ws}/move.
func (h *Handler) MoveBranch(w http.ResponseWriter, r *http.Request) {
	var body MoveRequest
	if !decodeBody(w, r, &body) {
		return
	}
	from, err := graph.ParsePath(body.From)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("from: "+err.Error()))
		return
	}
	req := &request.MoveBranch{Workspace: workspaceParam(r), From: graph.At(from), DesiredName: graph.Name(body.Name)}
	for _, target := range []struct {
		raw string
		dst **graph.Location
	}{{body.Into, &req.Into}, {body.Before, &req.Before}} {
		p, err := parsePath(target.raw)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		if !p.IsZero() {
			loc := graph.At(p)
			*target.dst = &loc
		}
	}
	if !h.execute(w, r, req) {
		return
	}
	writeJSON(w, http.StatusOK, MoveResponse{
		From: req.ActualOldLocation.Path.String(),
		To:   req.ActualNewLocation.Path.String(),
	})
}

// LockBranch handles POST /workspaces/{ws}/lock.
func (h *Handler) LockBranch(w http.ResponseWriter, r *http.Request) {
	var body LockRequest
	if !decodeBody(w, r, &body) {
		return
	}
	path, err := graph.ParsePath(body.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	scope := request.SelectedNodeOnly
	if body.Deep {
		scope = request.SelectedNodeAndDescendants
	}
	req := &request.LockBranch{
		Workspace: workspaceParam(r),
		At:        graph.At(path),
		Scope:     scope,
		Timeout:   time.Duration(body.TimeoutMS) * time.Millisecond,
	}
	if !h.execute(w, r, req) {
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"locked": req.ActualLocation.Path.String(), "scope": scope.String()})
}

// UnlockBranch handles POST /workspaces/{ws}/unlock.
func (h *Handler) UnlockBranch(w http.ResponseWriter, r *http.Request) {
	var body LockRequest
	if !decodeBody(w, r, &body) {
		return
	}
	path, err := graph.ParsePath(body.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	req := &request.UnlockBranch{Workspace: workspaceParam(r), At: graph.At(path)}
	if !h.execute(w, r, req) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /workspaces/{ws}/search?q=...&limit=N.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	req := &request.FullTextSearch{Workspace: workspaceParam(r), Expression: q, Limit: limit}
	if !h.execute(w, r, req) {
		return
	}
	rows := req.Tuples
	if rows == nil {
		rows = [][]any{}
	}
	writeJSON(w, http.StatusOK, SearchResponse{Columns: req.Columns, Rows: rows})
}
