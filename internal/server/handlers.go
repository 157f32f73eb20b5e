package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tasksync/tasksync/internal/remote"
	"github.com/tasksync/tasksync/internal/schema"
)

// maxBody caps request bodies; a sync batch of a few thousand tasks fits.
const maxBody = 8 << 20

// handleList handles GET /tasks.
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.store.List(r.Context())
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "tasks": tasks})
}

// handleCreate handles POST /tasks.
func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req schema.NewTask
	if !decodeBody(w, r, &req) {
		return
	}

	task, err := s.store.Create(r.Context(), req)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.events.OnTaskCreated(task)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
}

// handleUpdate handles PUT /tasks/{id}.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var patch schema.Patch
	if !decodeBody(w, r, &patch) {
		return
	}

	task, err := s.store.Update(r.Context(), id, patch)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.events.OnTaskUpdated(task)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
}

// handleDelete handles DELETE /tasks/{id}.
func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	task, err := s.store.Delete(r.Context(), id)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.events.OnTaskDeleted(task)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "task": task})
}

// handleSync handles POST /tasks/sync.
func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	var req remote.SyncRequest
	if !decodeBody(w, r, &req) {
		return
	}

	resp, err := s.store.Reconcile(r.Context(), req)
	if err != nil {
		s.storeError(w, r, err)
		return
	}
	s.events.OnSyncComplete(len(req.Tasks), len(req.Deleted), resp.Updated, resp.Removed, time.Since(start))

	body := map[string]any{"success": true, "updated": resp.Updated}
	if len(resp.Removed) > 0 {
		body["removed"] = resp.Removed
	}
	writeJSON(w, http.StatusOK, body)
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := s.events.Stats()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"clients": s.hub.ClientCount(),
		"tasks":   stats.Total,
	})
}

// storeError maps store failures to status codes.
func (s *Server) storeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, schema.ErrNotFound):
		writeError(w, http.StatusNotFound, "Task not found")
	case errors.Is(err, schema.ErrValidation):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Printf("Store error rid=%s %s %s: %v", RequestIDFromContext(r.Context()), r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

// decodeBody decodes a JSON request body, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBody)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}
