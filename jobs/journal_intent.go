package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/factorybooks/factorybooks/internal/jobs"
	"github.com/factorybooks/factorybooks/internal/posting"
)

// DefaultSweepLimit bounds a sweep when the payload does not.
const DefaultSweepLimit = 100

// IntentProcessor posts outbox intents.
type IntentProcessor interface {
	ProcessIntent(ctx context.Context, intentID string) error
	DrainIntents(ctx context.Context, limit int) (int, error)
}

// JournalIntentJob posts the journals of a single intent. Failures are
// recorded on the intent by the processor; asynq only schedules the retry.
type JournalIntentJob struct {
	Intents IntentProcessor
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewJournalIntentJob wires the handler.
func NewJournalIntentJob(intents IntentProcessor, logger *slog.Logger, metrics *jobmetrics.Metrics) *JournalIntentJob {
	return &JournalIntentJob{Intents: intents, Logger: logger, Metrics: metrics}
}

// Handle processes TaskJournalIntent tasks.
func (j *JournalIntentJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Intents == nil {
		return errors.New("journal intent: handler not configured")
	}
	var payload JournalIntentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil || payload.IntentID == "" {
		return asynq.SkipRetry
	}

	tracker := j.metrics().Track(TaskJournalIntent)
	err := j.Intents.ProcessIntent(ctx, payload.IntentID)
	switch {
	case err == nil:
		j.metrics().AddIntents("posted", 1)
	case posting.IsPermanent(err):
		j.metrics().AddIntents("dead", 1)
		j.logger().Error("journal intent abandoned", slog.String("intent_id", payload.IntentID), slog.Any("error", err))
		err = fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		j.metrics().AddIntents("failed", 1)
	}
	return tracker.End(err)
}

func (j *JournalIntentJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskJournalIntent))
	}
	return slog.Default().With(slog.String("job", TaskJournalIntent))
}

func (j *JournalIntentJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// IntentSweepJob re-drives intents that are due, covering tasks lost
// between commit and enqueue.
type IntentSweepJob struct {
	Intents   IntentProcessor
	BatchSize int
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewIntentSweepJob wires the sweeper.
func NewIntentSweepJob(intents IntentProcessor, batchSize int, logger *slog.Logger, metrics *jobmetrics.Metrics) *IntentSweepJob {
	return &IntentSweepJob{Intents: intents, BatchSize: batchSize, Logger: logger, Metrics: metrics}
}

// Handle processes TaskIntentSweep tasks.
func (j *IntentSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Intents == nil {
		return errors.New("intent sweep: handler not configured")
	}
	var payload SweepPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	_, err := j.Run(ctx, payload.Limit)
	return err
}

// Run sweeps up to limit due intents and returns how many were posted.
func (j *IntentSweepJob) Run(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = j.BatchSize
	}
	if limit <= 0 {
		limit = DefaultSweepLimit
	}
	tracker := j.metrics().Track(TaskIntentSweep)
	start := time.Now()
	posted, err := j.Intents.DrainIntents(ctx, limit)
	j.metrics().AddIntents("swept", posted)
	if err != nil {
		j.logger().Error("intent sweep", slog.Int("posted", posted), slog.Any("error", err))
		return posted, tracker.End(err)
	}
	if posted > 0 {
		j.logger().Info("intent sweep completed", slog.Int("posted", posted), slog.Duration("duration", time.Since(start)))
	}
	return posted, tracker.End(nil)
}

func (j *IntentSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskIntentSweep))
	}
	return slog.Default().With(slog.String("job", TaskIntentSweep))
}

func (j *IntentSweepJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

// RetryDelay schedules asynq retries on the same curve the outbox uses for
// NextAttemptAt.
func RetryDelay(base, ceiling time.Duration) asynq.RetryDelayFunc {
	return func(n int, _ error, _ *asynq.Task) time.Duration {
		return posting.Backoff(n+1, base, ceiling)
	}
}
