package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"bess-analytics/internal/models"
	"bess-analytics/internal/service"
	"bess-analytics/internal/timeseries"
)

// AnomalyHandler runs the detection ensemble over a JSON batch.
type AnomalyHandler struct {
	service *service.AnalyticsService
	logger  *zap.Logger
}

// NewAnomalyHandler returns handler.
func NewAnomalyHandler(service *service.AnalyticsService, logger *zap.Logger) *AnomalyHandler {
	return &AnomalyHandler{
		service: service,
		logger:  logger,
	}
}

// ServeHTTP handles POST /api/v1/anomalies/detect.
func (h *AnomalyHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.AnomalyDetectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.BatteryID == "" {
		writeError(w, http.StatusBadRequest, "battery_id is required")
		return
	}
	if len(req.Data) == 0 {
		writeError(w, http.StatusBadRequest, "data is required")
		return
	}

	frame := timeseries.FromRows(req.Data)
	result, err := h.service.DetectAnomalies(r.Context(), req.BatteryID, frame, req.Contamination, req.Thresholds)
	if err != nil {
		status := analyticsStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to detect anomalies",
				zap.String("battery_id", req.BatteryID), zap.Error(err))
			writeError(w, status, "failed to detect anomalies")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	anomalies := result.Anomalies
	if anomalies == nil {
		anomalies = []map[string]any{}
	}
	writeJSON(w, http.StatusOK, models.AnomalyDetectionResponse{
		BatteryID:         req.BatteryID,
		AnomalyCount:      result.Summary.AnomalyCount,
		AnomalyPercentage: result.Summary.AnomalyPercentage,
		Anomalies:         anomalies,
		Summary:           result.Summary,
	})
}
