package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/offsync/offsync/internal/sync"
)

// SyncHandler exposes the replication engine on the control plane.
type SyncHandler struct {
	engine *sync.Engine
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(engine *sync.Engine) *SyncHandler {
	return &SyncHandler{engine: engine}
}

// RegisterRoutes registers sync routes
func (sh *SyncHandler) RegisterRoutes(r *mux.Router) {
	r.HandleFunc("/api/sync/status", sh.GetStatus).Methods("GET")
	r.HandleFunc("/api/sync/operations", sh.ListOperations).Methods("GET")
	r.HandleFunc("/api/sync/push", sh.TriggerPush).Methods("POST")
	r.HandleFunc("/api/sync/pull", sh.TriggerPull).Methods("POST")
	r.HandleFunc("/api/sync/reset", sh.ResetScope).Methods("POST")
}

// GetStatus returns the engine status snapshot
func (sh *SyncHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, sh.engine.Status())
}

// ListOperations returns the queued (pending/failed) operations
func (sh *SyncHandler) ListOperations(w http.ResponseWriter, r *http.Request) {
	var entityTypes []string
	if t := r.URL.Query().Get("entity_type"); t != "" {
		entityTypes = []string{t}
	}

	ops, err := sh.engine.Log().Pending(r.Context(), entityTypes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count":      len(ops),
		"operations": ops,
	})
}

// TriggerPush runs a push cycle for the requested entity types
func (sh *SyncHandler) TriggerPush(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EntityTypes []string `json:"entity_types"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := sh.engine.Push(r.Context(), req.EntityTypes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// TriggerPull runs a pull cycle for the requested scopes
func (sh *SyncHandler) TriggerPull(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Scopes []sync.Scope `json:"scopes"`
	}
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}

	result, err := sh.engine.Pull(r.Context(), req.Scopes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// ResetScope deletes a scope's delta token, forcing a full resync
func (sh *SyncHandler) ResetScope(w http.ResponseWriter, r *http.Request) {
	var scope sync.Scope
	if err := json.NewDecoder(r.Body).Decode(&scope); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if scope.EntityType == "" {
		http.Error(w, "entity_type is required", http.StatusBadRequest)
		return
	}

	if err := sh.engine.ResetScope(r.Context(), scope); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"reset": scope.TokenID()})
}
