package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/offsync/offsync/internal/buildinfo"
	"github.com/offsync/offsync/internal/database"
)

// Router wraps the mux router and database
type Router struct {
	*mux.Router
	db *database.DB
}

// NewRouter creates a new HTTP router with the common routes
func NewRouter(db *database.DB) *Router {
	r := &Router{
		Router: mux.NewRouter(),
		db:     db,
	}

	r.HandleFunc("/health", r.healthCheck).Methods("GET")

	return r
}

func (r *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	status := map[string]string{
		"status":     "ok",
		"version":    buildinfo.Version,
		"started_at": buildinfo.StartTime,
	}
	if sqlDB, err := r.db.DB.DB(); err != nil || sqlDB.Ping() != nil {
		status["status"] = "degraded"
		status["database"] = "unreachable"
	}
	writeJSON(w, http.StatusOK, status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
