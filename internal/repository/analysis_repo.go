package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ErrNoSnapshot is returned when a battery has no stored snapshot.
var ErrNoSnapshot = errors.New("repository: no snapshot for battery")

// AnalysisRepository persists metrics snapshots and anomaly reports.
type AnalysisRepository struct {
	db *sql.DB
}

// NewAnalysisRepository returns repository.
func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

// EnsureSchema creates the analytics tables when absent.
func (r *AnalysisRepository) EnsureSchema(ctx context.Context) error {
	const ddl = `
		CREATE TABLE IF NOT EXISTS metrics_snapshots (
			id           BIGSERIAL PRIMARY KEY,
			battery_id   TEXT NOT NULL,
			record_count INTEGER NOT NULL,
			metrics      JSONB NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_metrics_snapshots_battery
			ON metrics_snapshots (battery_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS anomaly_reports (
			id           BIGSERIAL PRIMARY KEY,
			battery_id   TEXT NOT NULL,
			record_count INTEGER NOT NULL,
			summary      JSONB NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_anomaly_reports_battery
			ON anomaly_reports (battery_id, created_at DESC);
	`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// SaveMetricsSnapshot stores a computed snapshot for a battery.
func (r *AnalysisRepository) SaveMetricsSnapshot(ctx context.Context, batteryID string, recordCount int, metrics any) error {
	payload, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO metrics_snapshots (battery_id, record_count, metrics, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	_, err = r.db.ExecContext(ctx, query, batteryID, recordCount, payload)
	return err
}

// LatestMetricsSnapshot returns the most recent snapshot for a battery.
func (r *AnalysisRepository) LatestMetricsSnapshot(ctx context.Context, batteryID string, dest any) (time.Time, error) {
	const query = `
		SELECT metrics, created_at
		FROM metrics_snapshots
		WHERE battery_id = $1
		ORDER BY created_at DESC
		LIMIT 1
	`
	var (
		payload []byte
		created time.Time
	)
	err := r.db.QueryRowContext(ctx, query, batteryID).Scan(&payload, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, ErrNoSnapshot
	}
	if err != nil {
		return time.Time{}, err
	}
	return created, json.Unmarshal(payload, dest)
}

// SaveAnomalyReport stores a detection summary for a battery.
func (r *AnalysisRepository) SaveAnomalyReport(ctx context.Context, batteryID string, recordCount int, summary any) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return err
	}
	const query = `
		INSERT INTO anomaly_reports (battery_id, record_count, summary, created_at)
		VALUES ($1, $2, $3, NOW())
	`
	_, err = r.db.ExecContext(ctx, query, batteryID, recordCount, payload)
	return err
}
