package posting

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/factorybooks/factorybooks/internal/shared"
)

// Backoff returns the delay before the given attempt: base·2^(attempt−1),
// capped at ceiling.
func Backoff(attempt int, base, ceiling time.Duration) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := base
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= ceiling || delay <= 0 {
			return ceiling
		}
	}
	if delay > ceiling {
		return ceiling
	}
	return delay
}

// ProcessIntent posts the journals of an outbox intent. It is safe to call
// more than once: journals carry deterministic ids and a finished intent is
// left alone. The intent is first claimed in a short transaction; an intent
// another worker holds under a live lease yields ErrIntentInFlight. A failed
// attempt is rescheduled with backoff; once attempts run out the intent is
// marked dead and dead-lettered, and ErrIntentDead is returned.
func (o *Orchestrator) ProcessIntent(ctx context.Context, intentID string) error {
	now := o.now()
	done, err := o.claimIntent(ctx, intentID, now)
	if err != nil {
		return o.fail("intent", err)
	}
	if done {
		return nil
	}
	err = o.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		intent, err := tx.GetIntent(ctx, intentID)
		if err != nil {
			return err
		}
		if intent.Status.Terminal() {
			done = true
			return nil
		}
		for _, j := range intent.Journals {
			if _, err := postJournal(ctx, tx, j, now); err != nil {
				return fmt.Errorf("journal %s: %w", j.ID, err)
			}
		}
		intent.Attempts++
		intent.Status = IntentSucceeded
		intent.LastError = ""
		intent.UpdatedAt = now
		return tx.UpdateIntent(ctx, intent)
	})
	if err == nil {
		if !done {
			o.metrics.ObservePosting("intent", "ok")
			o.logger.Info("journal intent posted", slog.String("intent_id", intentID))
		}
		return nil
	}
	if errors.Is(err, ErrIntentNotFound) {
		return o.fail("intent", err)
	}
	return o.recordIntentFailure(ctx, intentID, err, now)
}

// claimIntent marks the intent processing until now+IntentLease. It reports
// done for an intent that is already finished.
func (o *Orchestrator) claimIntent(ctx context.Context, intentID string, now time.Time) (bool, error) {
	var done bool
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		done = false
		intent, err := tx.GetIntent(ctx, intentID)
		if err != nil {
			return err
		}
		if intent.Status.Terminal() {
			done = true
			return nil
		}
		if intent.Status == IntentProcessing && intent.NextAttemptAt.After(now) {
			return fmt.Errorf("%w: intent %s is claimed until %s", ErrIntentInFlight, intentID, intent.NextAttemptAt.Format(time.RFC3339))
		}
		intent.Status = IntentProcessing
		intent.NextAttemptAt = now.Add(o.cfg.IntentLease)
		intent.UpdatedAt = now
		return tx.UpdateIntent(ctx, intent)
	})
	return done, err
}

func (o *Orchestrator) recordIntentFailure(ctx context.Context, intentID string, cause error, now time.Time) error {
	var dead bool
	err := o.store.WithinTx(ctx, func(ctx context.Context, tx Tx) error {
		intent, err := tx.GetIntent(ctx, intentID)
		if err != nil {
			return err
		}
		if intent.Status.Terminal() {
			return nil
		}
		intent.Attempts++
		intent.LastError = cause.Error()
		intent.UpdatedAt = now
		if intent.Attempts >= o.cfg.MaxAttempts {
			intent.Status = IntentDead
			dead = true
			payload, err := json.Marshal(intent)
			if err != nil {
				return err
			}
			if err := tx.InsertDeadLetter(ctx, DeadLetter{
				ID:            o.newID(),
				Operation:     "journal_intent",
				TransactionID: intent.TransactionID,
				Payload:       payload,
				Error:         cause.Error(),
				CreatedAt:     now,
			}); err != nil {
				return err
			}
		} else {
			intent.Status = IntentFailed
			intent.NextAttemptAt = now.Add(Backoff(intent.Attempts, o.cfg.BaseBackoff, o.cfg.MaxBackoff))
		}
		return tx.UpdateIntent(ctx, intent)
	})
	if err != nil {
		o.logger.Error("intent failure not recorded", slog.String("intent_id", intentID), slog.Any("error", err), slog.Any("cause", cause))
		return o.fail("intent", errors.Join(cause, err))
	}
	if dead {
		o.metrics.ObserveDeadLetter("journal_intent")
		o.logger.Error("journal intent dead-lettered", slog.String("intent_id", intentID), slog.Any("error", cause))
		return o.fail("intent", fmt.Errorf("%w: %s: %w", ErrIntentDead, intentID, cause))
	}
	o.logger.Warn("journal intent failed", slog.String("intent_id", intentID), slog.Any("error", cause))
	return o.fail("intent", cause)
}

// DrainIntents processes up to limit intents that are due. It returns how
// many were posted. Failures are recorded on the intent and do not stop the
// sweep.
func (o *Orchestrator) DrainIntents(ctx context.Context, limit int) (int, error) {
	due, err := o.store.ListDueIntents(ctx, o.now(), limit)
	if err != nil {
		return 0, err
	}
	posted := 0
	for _, intent := range due {
		if err := ctx.Err(); err != nil {
			return posted, err
		}
		if err := o.ProcessIntent(ctx, intent.ID); err != nil {
			continue
		}
		posted++
	}
	return posted, nil
}

// DeadLetters lists recent dead letters for operators.
func (o *Orchestrator) DeadLetters(ctx context.Context, limit int) ([]DeadLetter, error) {
	return o.store.ListDeadLetters(ctx, limit)
}

// IsPermanent reports whether retrying err cannot help.
func IsPermanent(err error) bool {
	if errors.Is(err, ErrIntentDead) {
		return true
	}
	switch shared.Kind(err) {
	case shared.ErrValidation, shared.ErrNotFound, shared.ErrConflict:
		return true
	}
	return false
}
