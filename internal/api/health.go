package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/navai/interview-server/internal/session"
	"github.com/navai/interview-server/internal/store"
)

const healthCheckTimeout = 2 * time.Second

// HealthHandler reports service liveness and database reachability.
type HealthHandler struct {
	repo     store.Repository
	registry *session.Registry
}

// NewHealthHandler creates the health endpoint handler.
func NewHealthHandler(repo store.Repository, registry *session.Registry) *HealthHandler {
	return &HealthHandler{repo: repo, registry: registry}
}

// RegisterHealth registers the health and service info routes.
func (h *HealthHandler) RegisterHealth(r chi.Router) {
	r.Get("/", h.ServiceInfo)
	r.Get("/health", h.Health)
}

// ServiceInfo identifies the service and its entry points.
func (h *HealthHandler) ServiceInfo(w http.ResponseWriter, r *http.Request) {
	JSON(w, http.StatusOK, map[string]interface{}{
		"service":   "interview-server",
		"status":    "ok",
		"websocket": "/ws/interview",
	})
}

// Health checks database connectivity and reports active session count.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	active := 0
	if h.registry != nil {
		active = h.registry.Len()
	}

	if err := h.repo.Ping(ctx); err != nil {
		JSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":          "degraded",
			"database":        "down",
			"active_sessions": active,
		})
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"status":          "ok",
		"database":        "up",
		"active_sessions": active,
	})
}
