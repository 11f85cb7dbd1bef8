package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/factorybooks/factorybooks/internal/accounting/reports"
	"github.com/factorybooks/factorybooks/internal/inventory"
	jobmetrics "github.com/factorybooks/factorybooks/internal/jobs"
	"github.com/factorybooks/factorybooks/internal/ledger/projection"
	"github.com/factorybooks/factorybooks/internal/observability"
	"github.com/factorybooks/factorybooks/internal/platform/cache"
	"github.com/factorybooks/factorybooks/internal/platform/db"
	"github.com/factorybooks/factorybooks/internal/posting"
	"github.com/factorybooks/factorybooks/internal/shared"
	"github.com/factorybooks/factorybooks/internal/store/memory"
	"github.com/factorybooks/factorybooks/internal/store/postgres"
	"github.com/factorybooks/factorybooks/jobs"
)

// Store is every read and write the services need from one driver.
type Store interface {
	posting.Store
	projection.Reader
	reports.JournalReader
	inventory.Reader
}

// Services holds the wired application components.
type Services struct {
	Config       *Config
	Logger       *slog.Logger
	Store        Store
	Redis        *redis.Client
	Cache        *projection.Cache
	Orchestrator *posting.Orchestrator
	Balances     *projection.BalanceService
	Reports      *reports.Service
	Metrics      *observability.Metrics
	JobMetrics   *jobmetrics.Metrics
	Jobs         *jobs.Client
	Inspector    *asynq.Inspector

	closers []func() error
}

// Build connects the configured store and cache and wires the services.
// Without Redis the balance cache is bypassed and journal intents are left
// to the in-process sweeper; production refuses to start that way.
func Build(ctx context.Context, cfg *Config, logger *slog.Logger) (*Services, error) {
	if cfg == nil {
		return nil, errors.New("app: config required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Services{Config: cfg, Logger: logger, Metrics: observability.NewMetrics()}
	s.JobMetrics = jobmetrics.NewMetrics(s.Metrics.Registerer())

	var audit shared.AuditPort
	switch cfg.StoreDriver {
	case DriverPostgres:
		pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{MaxConns: cfg.PGMaxConns})
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error { pool.Close(); return nil })
		store := postgres.New(pool, logger, cfg.PostingMaxDocsPerTx)
		if err := store.Migrate(ctx); err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Store = store
		audit = shared.NewAuditLogger(pool)
	default:
		s.Store = memory.New(cfg.PostingMaxDocsPerTx)
		audit = &shared.MemoryAudit{}
	}

	if cfg.RedisAddr != "" {
		client, err := cache.New(ctx, cfg.RedisAddr)
		switch {
		case err == nil:
			s.Redis = client
			s.closers = append(s.closers, client.Close)
		case cfg.IsProduction():
			_ = s.Close()
			return nil, fmt.Errorf("app: redis required in production: %w", err)
		default:
			logger.Warn("redis unavailable, running without cache and queue", slog.Any("error", err))
		}
	}

	s.Cache = projection.NewCache(s.Redis, cfg.BalanceCacheTTL)
	s.Balances = projection.NewBalanceService(s.Store, s.Cache)
	s.Reports = reports.NewService(s.Store, logger)

	s.Orchestrator = posting.NewOrchestrator(s.Store, audit, logger, cfg.PostingConfig())
	s.Orchestrator.WithCache(s.Cache)
	s.Orchestrator.WithRecorder(s.Metrics)
	if s.Redis != nil {
		redisOpt, err := jobs.RedisOpt(cfg.RedisAddr)
		if err != nil {
			_ = s.Close()
			return nil, err
		}
		s.Jobs = jobs.NewClient(redisOpt, cfg.OutboxMaxAttempts)
		s.Inspector = asynq.NewInspector(redisOpt)
		s.closers = append(s.closers, s.Jobs.Close, s.Inspector.Close)
		s.Orchestrator.WithPublisher(s.Jobs)
	}
	return s, nil
}

// Close releases connections in reverse order of acquisition.
func (s *Services) Close() error {
	if s == nil {
		return nil
	}
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// IntentSweeper builds the sweeper job over the orchestrator.
func (s *Services) IntentSweeper() *jobs.IntentSweepJob {
	return jobs.NewIntentSweepJob(s.Orchestrator, s.Config.OutboxSweepBatchSize, s.Logger, s.JobMetrics)
}
