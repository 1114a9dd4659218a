package handlers

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"bess-analytics/internal/models"
	"bess-analytics/internal/service"
	"bess-analytics/internal/storage"
)

const maxUploadBytes = 32 << 20

var errInvalidResampleFreq = errors.New("resample_freq must be a positive duration, e.g. \"1m\"")

// UploadHandler runs the processing pipeline over an uploaded CSV file.
type UploadHandler struct {
	service *service.AnalyticsService
	logger  *zap.Logger
}

// NewUploadHandler returns handler.
func NewUploadHandler(service *service.AnalyticsService, logger *zap.Logger) *UploadHandler {
	return &UploadHandler{
		service: service,
		logger:  logger,
	}
}

// ServeHTTP handles POST /api/v1/process/upload. Expects a multipart form
// with a "file" CSV part and a "battery_id" value; optional "clean",
// "add_features" and "resample_freq" values mirror the JSON endpoint.
func (h *UploadHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	batteryID := r.FormValue("battery_id")
	if batteryID == "" {
		writeError(w, http.StatusBadRequest, "battery_id is required")
		return
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	frame, err := storage.ReadFrame(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if frame.Len() == 0 {
		writeError(w, http.StatusBadRequest, "file contains no rows")
		return
	}

	opts, err := pipelineOptions(formBool(r, "clean"), formBool(r, "add_features"), r.FormValue("resample_freq"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.ProcessFrame(r.Context(), batteryID, frame, opts)
	if err != nil {
		status := analyticsStatus(err)
		if status >= http.StatusInternalServerError {
			h.logger.Error("failed to process upload",
				zap.String("battery_id", batteryID), zap.Error(err))
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
		Message:          "file processed successfully",
	})
}

func formBool(r *http.Request, key string) *bool {
	switch r.FormValue(key) {
	case "true", "1":
		v := true
		return &v
	case "false", "0":
		v := false
		return &v
	default:
		return nil
	}
}
