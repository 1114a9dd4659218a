package models

import (
	"bess-analytics/internal/analytics"
)

// ProcessRequest is the JSON body of POST /api/v1/process. Data rows are
// column-name to value mappings; nil Clean/AddFeatures default to true.
type ProcessRequest struct {
	BatteryID    string           `json:"battery_id"`
	Data         []map[string]any `json:"data"`
	Clean        *bool            `json:"clean,omitempty"`
	AddFeatures  *bool            `json:"add_features,omitempty"`
	ResampleFreq string           `json:"resample_freq,omitempty"`
}

// ProcessResponse summarizes one processed batch.
type ProcessResponse struct {
	Status           string                     `json:"status"`
	BatchID          string                     `json:"batch_id"`
	RecordsProcessed int                        `json:"records_processed"`
	Validation       analytics.ValidationReport `json:"validation"`
	Metrics          analytics.Snapshot         `json:"metrics"`
	Message          string                     `json:"message"`
}

// AnomalyDetectionRequest is the JSON body of POST /api/v1/anomalies/detect.
// A nil contamination applies the configured default; nil thresholds apply
// the stock operational envelopes.
type AnomalyDetectionRequest struct {
	BatteryID     string                      `json:"battery_id"`
	Data          []map[string]any            `json:"data"`
	Contamination *float64                    `json:"contamination,omitempty"`
	Thresholds    map[string]analytics.Bounds `json:"thresholds,omitempty"`
}

// AnomalyDetectionResponse reports detection results with up to the first
// ten anomalous records inlined.
type AnomalyDetectionResponse struct {
	BatteryID         string            `json:"battery_id"`
	AnomalyCount      int               `json:"anomaly_count"`
	AnomalyPercentage float64           `json:"anomaly_percentage"`
	Anomalies         []map[string]any  `json:"anomalies"`
	Summary           analytics.Summary `json:"summary"`
}

// AnomalyEvent is broadcast to websocket subscribers after each detection
// run.
type AnomalyEvent struct {
	BatteryID string            `json:"battery_id"`
	Timestamp string            `json:"timestamp"`
	Summary   analytics.Summary `json:"summary"`
}

// StatusResponse describes service capabilities.
type StatusResponse struct {
	Status   string          `json:"status"`
	Version  string          `json:"version"`
	Features map[string]bool `json:"features"`
}
