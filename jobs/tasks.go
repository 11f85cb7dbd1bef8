package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"
)

const (
	// QueueCritical carries journal intents; they hold the general ledger
	// behind the subledgers until posted.
	QueueCritical = "critical"
	// QueueDefault is the queue for scheduled maintenance jobs.
	QueueDefault = "default"

	// TaskJournalIntent posts the journals of one outbox intent.
	TaskJournalIntent = "posting:journal_intent"
	// TaskIntentSweep re-drives due intents whose task was lost.
	TaskIntentSweep = "posting:intent_sweep"
	// TaskDepreciationRun charges one month of depreciation on every asset.
	TaskDepreciationRun = "assets:depreciation_run"
	// TaskGLIntegrity verifies that posted journals balance.
	TaskGLIntegrity = "accounting:gl_integrity"
	// TaskBalanceWarmup pre-computes party balances into the cache.
	TaskBalanceWarmup = "ledger:balance_warmup"
)

// ErrUnknownTask is returned when a task name cannot be mapped to a constructor.
var ErrUnknownTask = errors.New("jobs: unknown task")

// JournalIntentPayload identifies the intent to post.
type JournalIntentPayload struct {
	IntentID string `json:"intentId"`
}

// SweepPayload bounds a single sweep.
type SweepPayload struct {
	Limit int `json:"limit,omitempty"`
}

// NewJournalIntentTask constructs the task for an outbox intent.
func NewJournalIntentTask(intentID string) (*asynq.Task, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, errors.New("jobs: intent id required")
	}
	body, err := json.Marshal(JournalIntentPayload{IntentID: intentID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskJournalIntent, body, asynq.Queue(QueueCritical)), nil
}

// NewIntentSweepTask constructs a sweep over at most limit due intents.
func NewIntentSweepTask(limit int) (*asynq.Task, error) {
	body, err := json.Marshal(SweepPayload{Limit: limit})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntentSweep, body, asynq.Queue(QueueCritical)), nil
}

// NewDepreciationRunTask constructs the monthly depreciation task.
func NewDepreciationRunTask() *asynq.Task {
	return asynq.NewTask(TaskDepreciationRun, nil, asynq.Queue(QueueDefault))
}

// NewGLIntegrityTask constructs the integrity check task.
func NewGLIntegrityTask() *asynq.Task {
	return asynq.NewTask(TaskGLIntegrity, nil, asynq.Queue(QueueDefault))
}

// NewBalanceWarmupTask constructs the cache warmup task.
func NewBalanceWarmupTask() *asynq.Task {
	return asynq.NewTask(TaskBalanceWarmup, nil, asynq.Queue(QueueDefault))
}

// NewTaskByName maps an operator-facing task name onto a task. Intent tasks
// need an id and are not constructible here.
func NewTaskByName(name string, sweepLimit int) (*asynq.Task, error) {
	switch name {
	case TaskIntentSweep, "intent-sweep":
		return NewIntentSweepTask(sweepLimit)
	case TaskDepreciationRun, "depreciation":
		return NewDepreciationRunTask(), nil
	case TaskGLIntegrity, "gl-integrity":
		return NewGLIntegrityTask(), nil
	case TaskBalanceWarmup, "balance-warmup":
		return NewBalanceWarmupTask(), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTask, name)
}
