package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/factorybooks/factorybooks/internal/app"
	"github.com/factorybooks/factorybooks/jobs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	if !cfg.StartupAllowed(logger, "worker") {
		return
	}

	services, err := app.Build(ctx, cfg, logger)
	if err != nil {
		logger.Error("build services", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()
	if services.Redis == nil {
		logger.Error("worker requires redis", slog.String("addr", cfg.RedisAddr))
		os.Exit(1)
	}

	if cfg.StoreDriver == app.DriverMemory {
		logger.Warn("worker is using the memory store; it will not see documents posted by the API process")
	}

	worker, err := newWorker(cfg, services)
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	metricsServer := &http.Server{
		Addr:              cfg.WorkerMetricsAddr,
		Handler:           services.Metrics.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return worker.Run(gctx)
	})
	g.Go(func() error {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return metricsServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

func newWorker(cfg *app.Config, s *app.Services) (*jobs.Worker, error) {
	intentJob := jobs.NewJournalIntentJob(s.Orchestrator, s.Logger, s.JobMetrics)
	sweepJob := s.IntentSweeper()
	depreciationJob := jobs.NewDepreciationJob(s.Orchestrator, s.Logger, s.JobMetrics)
	integrityJob := jobs.NewGLIntegrityJob(s.Reports, s.Logger, s.JobMetrics)
	warmupJob := jobs.NewBalanceWarmupJob(s.Balances, s.Logger, s.JobMetrics)

	sweepTask, err := jobs.NewIntentSweepTask(cfg.OutboxSweepBatchSize)
	if err != nil {
		return nil, err
	}
	redisOpt, err := jobs.RedisOpt(cfg.RedisAddr)
	if err != nil {
		return nil, err
	}

	return jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpt,
		Logger:      s.Logger,
		Concurrency: cfg.WorkerConcurrency,
		RetryDelay:  jobs.RetryDelay(cfg.OutboxBaseBackoff, cfg.OutboxMaxBackoff),
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskJournalIntent, Handler: intentJob.Handle},
			{Type: jobs.TaskIntentSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskDepreciationRun, Handler: depreciationJob.Handle},
			{Type: jobs.TaskGLIntegrity, Handler: integrityJob.Handle},
			{Type: jobs.TaskBalanceWarmup, Handler: warmupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.CronIntentSweep, Task: sweepTask, Options: []asynq.Option{asynq.MaxRetry(0)}},
			{Spec: cfg.CronDepreciation, Task: jobs.NewDepreciationRunTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.CronGLIntegrity, Task: jobs.NewGLIntegrityTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
			{Spec: cfg.CronBalanceWarmup, Task: jobs.NewBalanceWarmupTask(), Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
}
