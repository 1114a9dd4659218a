package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bess-analytics/internal/analytics"
	"bess-analytics/internal/cache"
	"bess-analytics/internal/metrics"
	"bess-analytics/internal/models"
	"bess-analytics/internal/repository"
	"bess-analytics/internal/storage"
	"bess-analytics/internal/timeseries"
	"bess-analytics/internal/ws"
)

// maxInlineAnomalies caps how many anomalous records a detection response
// carries inline.
const maxInlineAnomalies = 10

// ErrNoMetrics is returned when a battery has no stored metrics snapshot.
var ErrNoMetrics = errors.New("service: no metrics snapshot for battery")

// Options tune service defaults.
type Options struct {
	NominalCapacity      float64
	NominalVoltage       float64
	DefaultContamination float64
}

// ProcessResult is the outcome of one pipeline run.
type ProcessResult struct {
	BatchID          string
	RecordsProcessed int
	Validation       analytics.ValidationReport
	Metrics          analytics.Snapshot
	Frame            *timeseries.Frame
	ArchiveKey       string
}

// AnomalyResult is the outcome of one detection run.
type AnomalyResult struct {
	BatteryID string
	Summary   analytics.Summary
	Anomalies []map[string]any
	Frame     *timeseries.Frame
}

// batteryDetector holds the per-battery anomaly detector. Access is
// serialized so the fit-once isolation forest is never raced.
type batteryDetector struct {
	mu            sync.Mutex
	detector      *analytics.Detector
	contamination float64
}

// AnalyticsService runs the analytics core and fans results out to the
// optional collaborators: Postgres snapshots, Redis cache, S3 archive and
// the websocket hub. A nil collaborator downgrades that concern to a no-op;
// analytics results never depend on them.
type AnalyticsService struct {
	processor  *analytics.Processor
	calculator *analytics.MetricsCalculator
	repo       *repository.AnalysisRepository
	cache      *cache.Cache
	archiver   *storage.Archiver
	hub        *ws.Hub
	logger     *zap.Logger
	opts       Options

	mu        sync.Mutex
	detectors map[string]*batteryDetector
}

// NewAnalyticsService returns service instance.
func NewAnalyticsService(
	repo *repository.AnalysisRepository,
	cch *cache.Cache,
	archiver *storage.Archiver,
	hub *ws.Hub,
	logger *zap.Logger,
	opts Options,
) *AnalyticsService {
	if opts.DefaultContamination <= 0 {
		opts.DefaultContamination = analytics.DefaultContamination
	}
	return &AnalyticsService{
		processor:  analytics.NewProcessor(),
		calculator: analytics.NewMetricsCalculator(opts.NominalCapacity, opts.NominalVoltage),
		repo:       repo,
		cache:      cch,
		archiver:   archiver,
		hub:        hub,
		logger:     logger,
		opts:       opts,
		detectors:  make(map[string]*batteryDetector),
	}
}

// ProcessFrame runs the processing pipeline over one table, computes the
// comprehensive metrics snapshot and persists/caches/archives the result.
func (s *AnalyticsService) ProcessFrame(ctx context.Context, batteryID string, frame *timeseries.Frame, opts analytics.PipelineOptions) (*ProcessResult, error) {
	validation := s.processor.Validate(frame)

	processed, err := s.processor.ProcessPipeline(frame, opts)
	if err != nil {
		return nil, err
	}
	snapshot := s.calculator.ComprehensiveMetrics(processed)

	result := &ProcessResult{
		BatchID:          uuid.NewString(),
		RecordsProcessed: processed.Len(),
		Validation:       validation,
		Metrics:          snapshot,
		Frame:            processed,
	}

	metrics.BatchesProcessed.Inc()
	metrics.RecordsProcessed.Add(float64(processed.Len()))

	if s.repo != nil {
		if err := s.repo.SaveMetricsSnapshot(ctx, batteryID, processed.Len(), snapshot); err != nil {
			s.logger.Warn("failed to persist metrics snapshot",
				zap.String("battery_id", batteryID), zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.SetMetrics(ctx, batteryID, snapshot); err != nil {
			s.logger.Warn("failed to cache metrics snapshot",
				zap.String("battery_id", batteryID), zap.Error(err))
		}
	}
	if s.archiver != nil {
		key, err := s.archiver.ArchiveFrame(ctx, batteryID, processed)
		if err != nil {
			s.logger.Warn("failed to archive processed batch",
				zap.String("battery_id", batteryID), zap.Error(err))
		} else {
			result.ArchiveKey = key
		}
	}

	s.logger.Info("processed telemetry batch",
		zap.String("battery_id", batteryID),
		zap.String("batch_id", result.BatchID),
		zap.Int("records", processed.Len()))
	return result, nil
}

// DetectAnomalies runs the full detection ensemble over one table using the
// battery's long-lived detector, then persists the summary and broadcasts it
// to websocket subscribers.
func (s *AnalyticsService) DetectAnomalies(ctx context.Context, batteryID string, frame *timeseries.Frame, contamination *float64, thresholds map[string]analytics.Bounds) (*AnomalyResult, error) {
	bd, err := s.detectorFor(batteryID, contamination)
	if err != nil {
		return nil, err
	}

	bd.mu.Lock()
	annotated, err := bd.detector.DetectAll(frame, thresholds)
	bd.mu.Unlock()
	if err != nil {
		return nil, err
	}

	summary := analytics.Summarize(annotated)
	result := &AnomalyResult{
		BatteryID: batteryID,
		Summary:   summary,
		Anomalies: anomalousRecords(annotated),
		Frame:     annotated,
	}

	metrics.AnomaliesDetected.Add(float64(summary.AnomalyCount))
	metrics.AnomalyRate.Set(summary.AnomalyPercentage)

	if s.repo != nil {
		if err := s.repo.SaveAnomalyReport(ctx, batteryID, frame.Len(), summary); err != nil {
			s.logger.Warn("failed to persist anomaly report",
				zap.String("battery_id", batteryID), zap.Error(err))
		}
	}
	if s.cache != nil {
		if err := s.cache.SetAnomalySummary(ctx, batteryID, summary); err != nil {
			s.logger.Warn("failed to cache anomaly summary",
				zap.String("battery_id", batteryID), zap.Error(err))
		}
	}
	if s.hub != nil {
		s.hub.Broadcast(models.AnomalyEvent{
			BatteryID: batteryID,
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Summary:   summary,
		})
	}

	s.logger.Info("anomaly detection finished",
		zap.String("battery_id", batteryID),
		zap.Int("records", frame.Len()),
		zap.Int("anomalies", summary.AnomalyCount))
	return result, nil
}

// detectorFor returns the battery's detector, creating it on first use. A
// request with a different contamination replaces the detector, which also
// discards the previously fitted forest. A nil contamination applies the
// configured default.
func (s *AnalyticsService) detectorFor(batteryID string, requested *float64) (*batteryDetector, error) {
	contamination := s.opts.DefaultContamination
	if requested != nil {
		contamination = *requested
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	bd, ok := s.detectors[batteryID]
	if ok && bd.contamination == contamination {
		return bd, nil
	}

	detector, err := analytics.NewDetector(contamination)
	if err != nil {
		return nil, err
	}
	bd = &batteryDetector{detector: detector, contamination: contamination}
	s.detectors[batteryID] = bd
	return bd, nil
}

func anomalousRecords(f *timeseries.Frame) []map[string]any {
	flags := f.Flag("is_anomaly")
	if flags == nil {
		return nil
	}
	var idx []int
	for i, v := range flags {
		if v {
			idx = append(idx, i)
			if len(idx) == maxInlineAnomalies {
				break
			}
		}
	}
	if len(idx) == 0 {
		return nil
	}
	return f.Select(idx).Records()
}

// LatestMetrics returns the most recent metrics snapshot for a battery,
// cache first, then the repository.
func (s *AnalyticsService) LatestMetrics(ctx context.Context, batteryID string) (analytics.Snapshot, error) {
	if s.cache != nil {
		var snapshot analytics.Snapshot
		err := s.cache.GetMetrics(ctx, batteryID, &snapshot)
		if err == nil {
			return snapshot, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("metrics cache read failed",
				zap.String("battery_id", batteryID), zap.Error(err))
		}
	}

	if s.repo != nil {
		var snapshot analytics.Snapshot
		_, err := s.repo.LatestMetricsSnapshot(ctx, batteryID, &snapshot)
		if err == nil {
			if s.cache != nil {
				if cerr := s.cache.SetMetrics(ctx, batteryID, snapshot); cerr != nil {
					s.logger.Warn("metrics cache backfill failed", zap.Error(cerr))
				}
			}
			return snapshot, nil
		}
		if !errors.Is(err, repository.ErrNoSnapshot) {
			return nil, err
		}
	}
	return nil, ErrNoMetrics
}
