// Package api provides the HTTP handlers for the interview service:
// interview history, report regeneration, client runtime config, and
// health.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/navai/interview-server/internal/config"
	"github.com/navai/interview-server/internal/store"
)

// Handler carries the dependencies shared by all HTTP handlers.
type Handler struct {
	repo store.Repository
	cfg  *config.Config
}

// NewHandler creates a Handler with common dependencies.
func NewHandler(repo store.Repository, cfg *config.Config) *Handler {
	return &Handler{
		repo: repo,
		cfg:  cfg,
	}
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}
