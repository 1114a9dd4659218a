package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"bess-analytics/internal/analytics"
	"bess-analytics/internal/models"
	"bess-analytics/internal/service"
	"bess-analytics/internal/timeseries"
)

// ProcessHandler runs the processing pipeline over a JSON batch.
type ProcessHandler struct {
	service *service.AnalyticsService
	logger  *zap.Logger
}

// NewProcessHandler returns handler.
func NewProcessHandler(service *service.AnalyticsService, logger *zap.Logger) *ProcessHandler {
	return &ProcessHandler{
		service: service,
		logger:  logger,
	}
}

// ServeHTTP handles POST /api/v1/process.
func (h *ProcessHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req models.ProcessRequest
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

	opts, err := pipelineOptions(req.Clean, req.AddFeatures, req.ResampleFreq)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	frame := timeseries.FromRows(req.Data)
	result, err := h.service.ProcessFrame(r.Context(), req.BatteryID, frame, opts)
	if err != nil {
		status := analyticsStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to process batch",
				zap.String("battery_id", req.BatteryID), zap.Error(err))
			writeError(w, status, "failed to process data")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, models.ProcessResponse{
		Status:           "success",
		BatchID:          result.BatchID,
		RecordsProcessed: result.RecordsProcessed,
		Validation:       result.Validation,
		Metrics:          result.Metrics,
		Message:          "data processed successfully",
	})
}

func pipelineOptions(clean, addFeatures *bool, resampleFreq string) (analytics.PipelineOptions, error) {
	opts := analytics.DefaultPipelineOptions()
	if clean != nil {
		opts.Clean = *clean
	}
	if addFeatures != nil {
		opts.AddFeatures = *addFeatures
	}
	if resampleFreq != "" {
		freq, err := time.ParseDuration(resampleFreq)
		if err != nil || freq <= 0 {
			return opts, errInvalidResampleFreq
		}
		opts.ResampleFreq = freq
	}
	return opts, nil
}
