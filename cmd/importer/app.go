package main

import (
	"context"
	"fmt"

	"github.com/boddenberg/central-sheets-import/internal/config"
	"github.com/boddenberg/central-sheets-import/internal/domain"
	"github.com/boddenberg/central-sheets-import/internal/infra/events"
	"github.com/boddenberg/central-sheets-import/internal/infra/mysql"
	"github.com/boddenberg/central-sheets-import/internal/infra/observability"
	"github.com/boddenberg/central-sheets-import/internal/port"
	"github.com/boddenberg/central-sheets-import/internal/service"

	"go.uber.org/zap"
)

// app holds the pieces every subcommand shares: config, logger, metrics,
// the MySQL store (when configured) and the import services over it.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	metrics   *observability.Metrics
	store     *mysql.Store
	publisher *events.Publisher
	importSvc *service.ImportService
	conn      *service.ConnectionService
	closers   []func(context.Context) error
}

func newApp(opts *rootOptions) (*app, error) {
	// --- Load .env file (for local development) ---
	if err := config.LoadDotEnv(opts.EnvFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", opts.EnvFile, err)
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel, "central-sheets-import")

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("environment", cfg.Environment),
		zap.String("branch", cfg.Central.Branch),
		zap.Bool("database_configured", cfg.Validate() == nil),
		zap.Bool("google_enabled", cfg.Google.Enabled()),
		zap.Bool("events_enabled", cfg.RabbitMQURL != ""),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
	)

	a := &app{cfg: cfg, logger: logger}

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "central-sheets-import")
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}
	a.closers = append(a.closers, shutdown)

	// --- Metrics ---
	a.metrics = observability.NewMetrics()

	// --- Store ---
	var pinger port.Pinger
	if err := cfg.Validate(); err != nil {
		logger.Warn("database not configured, import routes unavailable", zap.Error(err))
	} else {
		store, err := mysql.Open(cfg.Database, logger)
		if err != nil {
			a.close()
			return nil, err
		}
		a.store = store
		pinger = store
		a.closers = append(a.closers, func(context.Context) error { return store.Close() })
	}

	// --- Events ---
	var publisher port.ReportPublisher
	if cfg.RabbitMQURL != "" {
		p, err := events.Dial(cfg.RabbitMQURL, cfg.ImportEventsQueue, a.metrics, logger)
		if err != nil {
			logger.Warn("import events disabled", zap.Error(err))
		} else {
			a.publisher = p
			publisher = p
			a.closers = append(a.closers, func(context.Context) error { return p.Close() })
		}
	}

	// --- Services ---
	a.conn = service.NewConnectionService(cfg.Database, pinger, logger)
	if a.store != nil {
		a.importSvc = service.NewImportService(
			service.NewFieldExtractor(logger),
			service.NewLeadSourceValidator(a.store, a.metrics, logger),
			service.NewDuplicateDetector(a.store, a.metrics, logger),
			service.NewRowImporter(a.store, a.metrics, logger),
			publisher,
			service.ImportDefaults{
				Branch:       cfg.Central.Branch,
				SystemUserID: cfg.Central.SystemUserID,
				Environment:  domain.Environment(cfg.Environment),
			},
			a.metrics,
			logger,
		)
	}
	return a, nil
}

// close releases resources in reverse acquisition order.
func (a *app) close() {
	ctx := context.Background()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("close failed", zap.Error(err))
		}
	}
	_ = a.logger.Sync()
}
