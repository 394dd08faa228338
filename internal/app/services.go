package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/stockd/internal/catalog"
	"github.com/odyssey-erp/stockd/internal/importer"
	"github.com/odyssey-erp/stockd/internal/observability"
	"github.com/odyssey-erp/stockd/internal/platform/cache"
	"github.com/odyssey-erp/stockd/internal/platform/db"
	"github.com/odyssey-erp/stockd/internal/stock"
	"github.com/odyssey-erp/stockd/jobs"
)

// Services is the wired object graph shared by the server, the worker and
// the import CLI.
type Services struct {
	Pool       *pgxpool.Pool
	Redis      *redis.Client
	Metrics    *observability.Metrics
	Ledger     *stock.Ledger
	Catalog    *catalog.Service
	Uploads    *importer.UploadStore
	Reconciler *importer.Reconciler
	Importer   *importer.Service
	Queue      *jobs.Client

	closers []func()
}

// ServicesOptions tunes NewServices for a binary.
type ServicesOptions struct {
	// Enqueue enables the asynq client when IMPORT_ASYNC is set.
	Enqueue bool
}

// NewServices connects to storage and builds every service.
func NewServices(ctx context.Context, cfg *Config, logger *slog.Logger, opts ServicesOptions) (*Services, error) {
	s := &Services{Metrics: observability.NewMetrics()}

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s.Pool = pool
	s.closers = append(s.closers, pool.Close)

	redisClient, err := cache.New(ctx, cache.Options{Addr: cfg.RedisAddr})
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	s.Redis = redisClient
	s.closers = append(s.closers, func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	})

	s.Ledger = stock.NewLedger(stock.NewRepository(pool), logger, stock.LedgerConfig{
		Concurrency: cfg.ImportBatchConcurrency,
	})
	s.Catalog = catalog.NewService(catalog.NewRepository(pool), s.Ledger, logger)
	s.Uploads = importer.NewUploadStore(cfg.ImportUploadDir, cfg.ImportMaxUploadBytes)

	var enqueuer importer.Enqueuer
	if opts.Enqueue && cfg.ImportAsync {
		s.Queue = jobs.NewClient(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
		s.closers = append(s.closers, func() { _ = s.Queue.Close() })
		enqueuer = s.Queue
	}
	s.Reconciler = importer.NewReconciler(s.Catalog, s.Ledger, logger, s.Metrics.Jobs())
	s.Importer = importer.NewService(
		s.Reconciler,
		importer.NewRedisJobStore(redisClient, cfg.ImportJobTTL),
		s.Uploads,
		enqueuer,
		importer.ServiceConfig{Async: cfg.ImportAsync},
		logger,
		s.Metrics.Jobs(),
	)
	return s, nil
}

// Close releases connections in reverse order of creation.
func (s *Services) Close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
	s.closers = nil
}
