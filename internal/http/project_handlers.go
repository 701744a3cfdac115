package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"log/slog"

	"realtime-scene/internal/store"
)

// ProjectStore is the persistence surface the API needs. The scene blob
// is opaque: it is stored and returned verbatim, with no room binding.
type ProjectStore interface {
	SaveProject(ctx context.Context, name string, data []byte) error
	LoadProject(ctx context.Context, name string) (store.Project, error)
	ListProjects(ctx context.Context) ([]string, error)
}

type ProjectsAPI struct {
	Store ProjectStore
	Log   *slog.Logger
}

type saveProjectReq struct {
	Name    string          `json:"name"`
	Objects json.RawMessage `json:"objects"`
}

type projectResp struct {
	Success  bool            `json:"success"`
	Error    string          `json:"error,omitempty"`
	Objects  json.RawMessage `json:"objects,omitempty"`
	Projects []string        `json:"projects,omitempty"`
}

// Save upserts a named scene snapshot.
func (a *ProjectsAPI) Save(w http.ResponseWriter, r *http.Request) {
	var req saveProjectReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" || req.Objects == nil {
		writeJSON(w, http.StatusBadRequest, projectResp{Error: "name/objects required"})
		return
	}

	if err := a.Store.SaveProject(r.Context(), req.Name, req.Objects); err != nil {
		a.Log.Error("project.save", "name", req.Name, "err", err)
		writeJSON(w, http.StatusInternalServerError, projectResp{Error: "save failed"})
		return
	}
	writeJSON(w, http.StatusOK, projectResp{Success: true})
}

// Load returns a saved scene snapshot by name.
func (a *ProjectsAPI) Load(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		writeJSON(w, http.StatusBadRequest, projectResp{Error: "name required"})
		return
	}

	pr, err := a.Store.LoadProject(r.Context(), name)
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, projectResp{Error: "not found"})
		return
	}
	if err != nil {
		a.Log.Error("project.load", "name", name, "err", err)
		writeJSON(w, http.StatusInternalServerError, projectResp{Error: "load failed"})
		return
	}
	writeJSON(w, http.StatusOK, projectResp{Success: true, Objects: pr.Data})
}

// List returns all saved project names.
func (a *ProjectsAPI) List(w http.ResponseWriter, r *http.Request) {
	names, err := a.Store.ListProjects(r.Context())
	if err != nil {
		a.Log.Error("project.list", "err", err)
		writeJSON(w, http.StatusInternalServerError, projectResp{Error: "list failed"})
		return
	}
	writeJSON(w, http.StatusOK, projectResp{Success: true, Projects: names})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
