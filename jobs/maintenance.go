package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/factorybooks/factorybooks/internal/accounting/reports"
	jobmetrics "github.com/factorybooks/factorybooks/internal/jobs"
)

// ErrLedgerInconsistent is returned when the integrity check finds problems.
var ErrLedgerInconsistent = errors.New("gl integrity: ledger inconsistent")

// Depreciator charges periodic depreciation.
type Depreciator interface {
	DepreciateAll(ctx context.Context) (int, error)
}

// DepreciationJob runs the monthly depreciation charge.
type DepreciationJob struct {
	Assets  Depreciator
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewDepreciationJob wires the handler.
func NewDepreciationJob(assets Depreciator, logger *slog.Logger, metrics *jobmetrics.Metrics) *DepreciationJob {
	return &DepreciationJob{Assets: assets, Logger: logger, Metrics: metrics}
}

// Handle processes TaskDepreciationRun tasks. Rerunning within the same month
// charges nothing twice.
func (j *DepreciationJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Assets == nil {
		return errors.New("depreciation: handler not configured")
	}
	tracker := j.metrics().Track(TaskDepreciationRun)
	logger := j.logger()
	charged, err := j.Assets.DepreciateAll(ctx)
	if err != nil {
		logger.Error("depreciation run", slog.Int("charged", charged), slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("depreciation run completed", slog.Int("charged", charged))
	return tracker.End(nil)
}

func (j *DepreciationJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskDepreciationRun))
	}
	return slog.Default().With(slog.String("job", TaskDepreciationRun))
}

func (j *DepreciationJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// IntegrityChecker verifies the general ledger.
type IntegrityChecker interface {
	CheckIntegrity(ctx context.Context) (reports.IntegrityReport, error)
}

// GLIntegrityJob checks that posted journals balance and publishes the
// imbalance gauge.
type GLIntegrityJob struct {
	Reports IntegrityChecker
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewGLIntegrityJob wires the handler.
func NewGLIntegrityJob(checker IntegrityChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *GLIntegrityJob {
	return &GLIntegrityJob{
		Reports: checker,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskGLIntegrity tasks.
func (j *GLIntegrityJob) Handle(ctx context.Context, _ *asynq.Task) error {
	_, err := j.Run(ctx)
	return err
}

// Run performs the check. An inconsistent ledger is reported as
// ErrLedgerInconsistent and is not retried.
func (j *GLIntegrityJob) Run(ctx context.Context) (reports.IntegrityReport, error) {
	if j == nil || j.Reports == nil {
		return reports.IntegrityReport{}, errors.New("gl integrity: handler not configured")
	}
	tracker := j.metrics().Track(TaskGLIntegrity)
	started := j.now()
	report, err := j.Reports.CheckIntegrity(ctx)
	if err != nil {
		return report, tracker.End(err)
	}
	diff, _ := report.TotalDebit.Sub(report.TotalCredit).Float64()
	j.metrics().SetImbalance(diff)

	logger := j.logger().With(slog.Int("journals", report.Journals), slog.Time("started_at", started))
	if report.OK() {
		logger.Info("gl integrity check passed")
		return report, tracker.End(nil)
	}
	logger.Error("gl integrity check failed",
		slog.Any("unbalanced", report.Unbalanced),
		slog.Any("dangling", report.Dangling),
		slog.String("imbalance", report.TotalDebit.Sub(report.TotalCredit).String()))
	return report, tracker.End(fmt.Errorf("%w: %d unbalanced, %d dangling: %w",
		ErrLedgerInconsistent, len(report.Unbalanced), len(report.Dangling), asynq.SkipRetry))
}

func (j *GLIntegrityJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskGLIntegrity))
	}
	return slog.Default().With(slog.String("job", TaskGLIntegrity))
}

func (j *GLIntegrityJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *GLIntegrityJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
