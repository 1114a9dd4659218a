package handlers

import (
	"net/http"

	"bess-analytics/internal/models"
)

// StatusHandler reports service capabilities.
type StatusHandler struct {
	version   string
	persisted bool
	cached    bool
	archived  bool
}

// NewStatusHandler returns handler.
func NewStatusHandler(version string, persisted, cached, archived bool) *StatusHandler {
	return &StatusHandler{
		version:   version,
		persisted: persisted,
		cached:    cached,
		archived:  archived,
	}
}

// ServeHTTP handles GET /api/v1/status.
func (h *StatusHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.StatusResponse{
		Status:  "operational",
		Version: h.version,
		Features: map[string]bool{
			"data_processing":     true,
			"metrics_calculation": true,
			"anomaly_detection":   true,
			"persistence":         h.persisted,
			"caching":             h.cached,
			"archiving":           h.archived,
		},
	})
}
