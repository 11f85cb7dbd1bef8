package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/factorybooks/factorybooks/internal/jobs"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/ledger/projection"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// BalanceSource serves the cached party projections.
type BalanceSource interface {
	Parties(ctx context.Context) ([]ledger.Party, error)
	PartyBalance(ctx context.Context, name string) (projection.PartyBalance, error)
}

// BalanceWarmupJob pre-populates the balance cache for every recorded party
// so the first read after a posting burst does not fan out to the store.
type BalanceWarmupJob struct {
	Balances BalanceSource
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	// PartyTimeout bounds each party; zero means 20s.
	PartyTimeout time.Duration
	clock        func() time.Time
}

// NewBalanceWarmupJob wires dependencies for the warmup handler.
func NewBalanceWarmupJob(balances BalanceSource, logger *slog.Logger, metrics *jobmetrics.Metrics) *BalanceWarmupJob {
	return &BalanceWarmupJob{
		Balances: balances,
		Logger:   logger,
		Metrics:  metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskBalanceWarmup tasks.
func (j *BalanceWarmupJob) Handle(ctx context.Context, _ *asynq.Task) error {
	_, err := j.Run(ctx)
	return err
}

// Run warms every party and returns how many were loaded.
func (j *BalanceWarmupJob) Run(ctx context.Context) (int, error) {
	if j == nil || j.Balances == nil {
		return 0, errors.New("balance warmup: handler not configured")
	}
	tracker := j.metrics().Track(TaskBalanceWarmup)
	logger := j.logger()
	start := j.now()

	parties, err := j.Balances.Parties(ctx)
	if err != nil {
		logger.Error("load parties", slog.Any("error", err))
		return 0, tracker.End(err)
	}
	warmed := 0
	for _, p := range parties {
		if err := j.warmParty(ctx, p.Name); err != nil {
			logger.Error("warm party", slog.String("party", p.Name), slog.Any("error", err))
			return warmed, tracker.End(err)
		}
		warmed++
	}
	logger.Info("completed balance warmup", slog.Int("parties", warmed), slog.Duration("duration", j.now().Sub(start)))
	return warmed, tracker.End(nil)
}

func (j *BalanceWarmupJob) warmParty(ctx context.Context, name string) error {
	timeout := j.PartyTimeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	partyCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	_, err := j.Balances.PartyBalance(partyCtx, name)
	return err
}

func (j *BalanceWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskBalanceWarmup))
	}
	return slog.Default().With(slog.String("job", TaskBalanceWarmup))
}

func (j *BalanceWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *BalanceWarmupJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
