package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/factorybooks/factorybooks/cmd/factorybooks/cli"
	"github.com/factorybooks/factorybooks/internal/app"
	"github.com/factorybooks/factorybooks/internal/posting"
	"github.com/factorybooks/factorybooks/jobs"
)

const usage = `usage:
  factorybooks [serve]
  factorybooks jobs trigger <intent-sweep|depreciation|gl-integrity|balance-warmup>
  factorybooks jobs exec <intent-sweep|depreciation|gl-integrity|balance-warmup>
  factorybooks jobs stats
  factorybooks jobs scheduled
  factorybooks dead-letters [limit]`

var errUsage = errors.New(usage)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	if !cfg.StartupAllowed(logger, "factorybooks") {
		return
	}

	if err := run(ctx, cfg, logger, os.Args[1:], os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintln(os.Stderr, usage)
			os.Exit(2)
		}
		logger.Error("factorybooks", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "serve" {
		return serve(ctx, cfg, logger)
	}
	switch args[0] {
	case "jobs":
		if len(args) < 2 {
			return errUsage
		}
		return runJobs(ctx, cfg, logger, args[1:], out)
	case "dead-letters":
		limit := 20
		if len(args) > 1 {
			n, err := strconv.Atoi(args[1])
			if err != nil || n <= 0 {
				return errUsage
			}
			limit = n
		}
		return withServices(ctx, cfg, logger, func(s *app.Services) error {
			letters, err := s.Orchestrator.DeadLetters(ctx, limit)
			if err != nil {
				return err
			}
			return writeJSON(out, letters)
		})
	}
	return errUsage
}

func runJobs(ctx context.Context, cfg *app.Config, logger *slog.Logger, args []string, out io.Writer) error {
	switch args[0] {
	case "exec":
		if len(args) != 2 {
			return errUsage
		}
		return withServices(ctx, cfg, logger, func(s *app.Services) error {
			return execJob(ctx, s, args[1], out)
		})
	case "trigger", "stats", "scheduled":
	default:
		return errUsage
	}

	ops, err := cli.NewJobsCLI(cfg.RedisAddr, cfg.OutboxSweepBatchSize)
	if err != nil {
		return err
	}
	defer func() { _ = ops.Close() }()

	switch args[0] {
	case "trigger":
		if len(args) != 2 {
			return errUsage
		}
		info, err := ops.Trigger(ctx, args[1])
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return err
	case "stats":
		stats, err := ops.InspectQueues(ctx)
		if err != nil {
			return err
		}
		for _, s := range stats {
			if _, err := fmt.Fprintln(out, s.String()); err != nil {
				return err
			}
		}
		return nil
	default:
		infos, err := ops.ListScheduled(ctx, 20)
		if err != nil {
			return err
		}
		for _, info := range infos {
			if _, err := fmt.Fprintf(out, "%s %s next=%s\n", info.ID, info.Type, info.NextProcessAt.Format(time.RFC3339)); err != nil {
				return err
			}
		}
		return nil
	}
}

// execJob runs a maintenance job in-process against the configured store.
func execJob(ctx context.Context, s *app.Services, name string, out io.Writer) error {
	switch name {
	case "intent-sweep", jobs.TaskIntentSweep:
		posted, err := s.IntentSweeper().Run(ctx, 0)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "posted %d intents\n", posted)
		return err
	case "depreciation", jobs.TaskDepreciationRun:
		charged, err := s.Orchestrator.DepreciateAll(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "charged %d assets\n", charged)
		return err
	case "gl-integrity", jobs.TaskGLIntegrity:
		report, err := jobs.NewGLIntegrityJob(s.Reports, s.Logger, s.JobMetrics).Run(ctx)
		if werr := writeJSON(out, report); werr != nil {
			return werr
		}
		return err
	case "balance-warmup", jobs.TaskBalanceWarmup:
		warmed, err := jobs.NewBalanceWarmupJob(s.Balances, s.Logger, s.JobMetrics).Run(ctx)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "warmed %d parties\n", warmed)
		return err
	}
	return fmt.Errorf("%w: %q", jobs.ErrUnknownTask, name)
}

func withServices(ctx context.Context, cfg *app.Config, logger *slog.Logger, fn func(*app.Services) error) error {
	services, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := services.Close(); err != nil {
			logger.Warn("close services", slog.Any("error", err))
		}
	}()
	return fn(services)
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	return withServices(ctx, cfg, logger, func(s *app.Services) error {
		server := &http.Server{
			Addr:         cfg.AppAddr,
			Handler:      app.NewRouterFromServices(s),
			ReadTimeout:  cfg.AppReadTimeout,
			WriteTimeout: cfg.AppWriteTimeout,
		}

		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() error {
			logger.Info("starting http server", slog.String("addr", cfg.AppAddr), slog.String("store", cfg.StoreDriver))
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			logger.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})
		if s.Redis != nil {
			if err := s.Cache.ListenForInvalidation(gctx, ""); err != nil {
				logger.Warn("balance cache invalidation listener", slog.Any("error", err))
			}
		}
		// Without a queue nothing else drives outbox intents.
		if s.Jobs == nil && cfg.PostingConfig().JournalMode == posting.JournalOutbox {
			sweeper := s.IntentSweeper()
			g.Go(func() error {
				ticker := time.NewTicker(cfg.OutboxSweepInterval)
				defer ticker.Stop()
				for {
					select {
					case <-gctx.Done():
						return nil
					case <-ticker.C:
						_, _ = sweeper.Run(gctx, 0)
					}
				}
			})
		}
		return g.Wait()
	})
}

func writeJSON(out io.Writer, v any) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
