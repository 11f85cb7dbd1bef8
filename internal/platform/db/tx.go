package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TxFunc is the body of a transaction.
type TxFunc func(ctx context.Context, tx pgx.Tx) error

// Retry bounds how often WithRetry re-runs a transaction.
type Retry struct {
	Attempts int
	// Backoff is multiplied by the attempt number between runs.
	Backoff   time.Duration
	Retryable func(error) bool
	OnRetry   func(attempt int, err error)
}

// WithTx executes fn within a RepeatableRead transaction.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn TxFunc) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}
	return nil
}

// WithRetry runs WithTx again while r.Retryable accepts the error and
// attempts remain. The last error is returned as is.
func WithRetry(ctx context.Context, pool *pgxpool.Pool, r Retry, fn TxFunc) error {
	attempts := r.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = WithTx(ctx, pool, fn)
		if err == nil || r.Retryable == nil || !r.Retryable(err) || attempt == attempts {
			return err
		}
		if r.OnRetry != nil {
			r.OnRetry(attempt, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt) * r.Backoff):
		}
	}
	return err
}
