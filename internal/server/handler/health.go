package handler

import (
	"net/http"
	"time"
)

// HealthHandler serves the unauthenticated liveness probe.
type HealthHandler struct {
	startedAt time.Time
	version   string
}

// NewHealthHandler records the process start time for the uptime field.
func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{startedAt: time.Now(), version: version}
}

// Health handles GET /api/health.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"version":        h.version,
		"uptime_seconds": int(time.Since(h.startedAt).Seconds()),
	})
}
