package app

import (
	"context"
	"database/sql"

	"go.uber.org/zap"

	"bess-analytics/internal/cache"
	"bess-analytics/internal/config"
	"bess-analytics/internal/db"
	httpserver "bess-analytics/internal/http"
	"bess-analytics/internal/http/handlers"
	"bess-analytics/internal/repository"
	"bess-analytics/internal/service"
	"bess-analytics/internal/storage"
	"bess-analytics/internal/ws"
)

// Version is the service version reported by the status endpoint.
const Version = "1.0.0"

// App wires analytics service dependencies. Postgres, Redis and S3 are
// optional collaborators; the service runs without them.
type App struct {
	server *httpserver.Server
	hub    *ws.Hub
	pool   *sql.DB
	cache  *cache.Cache
	logger *zap.Logger
}

// New constructs application components.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	var (
		pool *sql.DB
		repo *repository.AnalysisRepository
	)
	if cfg.Database.DSN != "" {
		var err error
		pool, err = db.NewPostgres(cfg.Database.DSN)
		if err != nil {
			return nil, err
		}
		repo = repository.NewAnalysisRepository(pool)
		if err := repo.EnsureSchema(context.Background()); err != nil {
			pool.Close()
			return nil, err
		}
	} else {
		logger.Warn("no database configured, snapshots are not persisted")
	}

	var cch *cache.Cache
	if cfg.Redis.Addr != "" {
		var err error
		cch, err = cache.New(cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			return nil, err
		}
	}

	var archiver *storage.Archiver
	if cfg.Archive.Bucket != "" {
		var err error
		archiver, err = storage.NewArchiver(cfg.Archive.Region, cfg.Archive.Bucket, cfg.Archive.Prefix)
		if err != nil {
			if pool != nil {
				pool.Close()
			}
			if cch != nil {
				cch.Close()
			}
			return nil, err
		}
	}

	hub := ws.NewHub(logger)
	analyticsService := service.NewAnalyticsService(repo, cch, archiver, hub, logger, service.Options{
		NominalCapacity:      cfg.Analytics.NominalCapacity,
		NominalVoltage:       cfg.Analytics.NominalVoltage,
		DefaultContamination: cfg.Analytics.Contamination,
	})

	routes := httpserver.Routes{
		Process:        handlers.NewProcessHandler(analyticsService, logger),
		Upload:         handlers.NewUploadHandler(analyticsService, logger),
		Anomalies:      handlers.NewAnomalyHandler(analyticsService, logger),
		BatteryMetrics: handlers.NewMetricsHandler(analyticsService, logger),
		Status:         handlers.NewStatusHandler(Version, repo != nil, cch != nil, archiver != nil),
		Health:         handlers.NewHealthHandler(),
		Stream:         hub.Handler(),
	}

	router := httpserver.NewRouter(routes)
	server := httpserver.NewServer(cfg.HTTPAddress(), router, logger)

	return &App{
		server: server,
		hub:    hub,
		pool:   pool,
		cache:  cch,
		logger: logger,
	}, nil
}

// Run starts serving HTTP requests and the websocket keepalive loop.
func (a *App) Run(ctx context.Context) error {
	go a.hub.Run(ctx)
	return a.server.Run(ctx)
}

// Close releases resources.
func (a *App) Close() {
	if a.pool != nil {
		if err := a.pool.Close(); err != nil {
			a.logger.Warn("failed to close db", zap.Error(err))
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.logger.Warn("failed to close cache", zap.Error(err))
		}
	}
}
