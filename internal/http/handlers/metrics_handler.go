package handlers

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"bess-analytics/internal/service"
)

// MetricsHandler serves the latest stored metrics snapshot per battery.
type MetricsHandler struct {
	service *service.AnalyticsService
	logger  *zap.Logger
}

// NewMetricsHandler returns handler.
func NewMetricsHandler(service *service.AnalyticsService, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{
		service: service,
		logger:  logger,
	}
}

// ServeHTTP handles GET /api/v1/metrics/{battery_id}.
func (h *MetricsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	batteryID := mux.Vars(r)["battery_id"]
	if batteryID == "" {
		writeError(w, http.StatusBadRequest, "battery_id is required")
		return
	}

	snapshot, err := h.service.LatestMetrics(r.Context(), batteryID)
	if err != nil {
		if errors.Is(err, service.ErrNoMetrics) {
			writeError(w, http.StatusNotFound, "no metrics for battery "+batteryID)
			return
		}
		h.logger.Error("failed to load metrics snapshot",
			zap.String("battery_id", batteryID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load metrics")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"battery_id": batteryID,
		"metrics":    snapshot,
	})
}
