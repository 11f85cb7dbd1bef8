// Package postgres is the PostgreSQL document store behind the posting unit
// of work. Documents are kept as JSONB rows in a single table keyed by
// collection and id; reads of rows that are about to be written take a
// FOR UPDATE lock.
package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/factorybooks/factorybooks/internal/platform/db"
	"github.com/factorybooks/factorybooks/internal/posting"
	"github.com/factorybooks/factorybooks/internal/shared"
)

//go:embed schema.sql
var schema string

// Collections.
const (
	collEntries   = "entries"
	collPayments  = "payments"
	collCheques   = "cheques"
	collItems     = "items"
	collMovements = "movements"
	collAssets    = "assets"
	collJournals  = "journals"
	collIntents   = "intents"
	collParties   = "parties"
)

const (
	codeUniqueViolation      = "23505"
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// DefaultMaxDocuments is the per-transaction write limit used when none is
// configured.
const DefaultMaxDocuments = 500

// ErrTooManyWrites is returned when a transaction exceeds its document limit.
var ErrTooManyWrites = fmt.Errorf("%w: postgres: transaction exceeds document limit", shared.ErrStorage)

var errDuplicate = errors.New("postgres: duplicate document")

type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store persists documents in PostgreSQL.
type Store struct {
	pool       *pgxpool.Pool
	logger     *slog.Logger
	maxDocs    int
	maxRetries int
}

// New constructs the store. maxDocs <= 0 selects DefaultMaxDocuments.
func New(pool *pgxpool.Pool, logger *slog.Logger, maxDocs int) *Store {
	if maxDocs <= 0 {
		maxDocs = DefaultMaxDocuments
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger, maxDocs: maxDocs, maxRetries: 3}
}

// Migrate creates the document tables when missing.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return storageErr("migrate", err)
	}
	return nil
}

// MaxDocumentsPerTx implements posting.UnitOfWork.
func (s *Store) MaxDocumentsPerTx() int {
	return s.maxDocs
}

// WithinTx implements posting.UnitOfWork. Serialization failures are retried
// with a fresh transaction; fn must therefore re-read what it writes.
func (s *Store) WithinTx(ctx context.Context, fn func(context.Context, posting.Tx) error) error {
	retry := db.Retry{
		Attempts:  s.maxRetries,
		Backoff:   20 * time.Millisecond,
		Retryable: retryable,
		OnRetry: func(attempt int, err error) {
			s.logger.Warn("postgres tx retry",
				slog.Int("attempt", attempt),
				slog.Any("error", err),
			)
		},
	}
	err := db.WithRetry(ctx, s.pool, retry, func(ctx context.Context, tx pgx.Tx) error {
		return fn(ctx, &txView{q: tx, maxDocs: s.maxDocs})
	})
	return mapErr(err)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
	}
	return false
}

// mapErr leaves domain errors alone and files everything else from the
// driver under shared.ErrStorage.
func mapErr(err error) error {
	if err == nil || shared.Kind(err) != nil {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && (pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected) {
		return fmt.Errorf("%w: postgres: concurrent update: %w", shared.ErrConflict, err)
	}
	return storageErr("tx", err)
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: postgres %s: %w", shared.ErrStorage, op, err)
}

// document is one row of fb_documents. The lookup columns are copies of
// fields already inside body.
type document struct {
	collection    string
	id            string
	transactionID string
	partyKey      string
	refID         string
	status        string
	occurredAt    time.Time
	body          any
}

func (d document) payload() ([]byte, error) {
	raw, err := json.Marshal(d.body)
	if err != nil {
		return nil, fmt.Errorf("%w: postgres: encode %s/%s: %w", shared.ErrStorage, d.collection, d.id, err)
	}
	return raw, nil
}

func occurred(t time.Time) time.Time {
	if t.IsZero() {
		return time.Unix(0, 0).UTC()
	}
	return t.UTC()
}

const insertSQL = `INSERT INTO fb_documents
	(collection, id, transaction_id, party_key, ref_id, status, occurred_at, body, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())`

func insertDoc(ctx context.Context, q dbtx, d document) error {
	raw, err := d.payload()
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, insertSQL, d.collection, d.id, d.transactionID, d.partyKey, d.refID, d.status, occurred(d.occurredAt), raw)
	if err != nil {
		if err := mapInsertErr(err); errors.Is(err, errDuplicate) {
			return err
		}
		return storageErr("insert "+d.collection, err)
	}
	return nil
}

// mapInsertErr turns a unique violation into errDuplicate.
func mapInsertErr(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeUniqueViolation {
		return errDuplicate
	}
	return err
}

func upsertDoc(ctx context.Context, q dbtx, d document) error {
	raw, err := d.payload()
	if err != nil {
		return err
	}
	_, err = q.Exec(ctx, insertSQL+`
	ON CONFLICT (collection, id) DO UPDATE SET
		transaction_id = EXCLUDED.transaction_id,
		party_key = EXCLUDED.party_key,
		ref_id = EXCLUDED.ref_id,
		status = EXCLUDED.status,
		occurred_at = EXCLUDED.occurred_at,
		body = EXCLUDED.body,
		updated_at = now()`,
		d.collection, d.id, d.transactionID, d.partyKey, d.refID, d.status, occurred(d.occurredAt), raw)
	if err != nil {
		return storageErr("upsert "+d.collection, err)
	}
	return nil
}

// updateDoc replaces an existing row and reports whether it was there.
func updateDoc(ctx context.Context, q dbtx, d document) (bool, error) {
	raw, err := d.payload()
	if err != nil {
		return false, err
	}
	tag, err := q.Exec(ctx, `UPDATE fb_documents SET
		transaction_id = $3, party_key = $4, ref_id = $5, status = $6,
		occurred_at = $7, body = $8, updated_at = now()
		WHERE collection = $1 AND id = $2`,
		d.collection, d.id, d.transactionID, d.partyKey, d.refID, d.status, occurred(d.occurredAt), raw)
	if err != nil {
		return false, storageErr("update "+d.collection, err)
	}
	return tag.RowsAffected() > 0, nil
}

func deleteDoc(ctx context.Context, q dbtx, collection, id string) error {
	if _, err := q.Exec(ctx, `DELETE FROM fb_documents WHERE collection = $1 AND id = $2`, collection, id); err != nil {
		return storageErr("delete "+collection, err)
	}
	return nil
}

// getDoc loads one document. found is false when the row does not exist.
func getDoc[T any](ctx context.Context, q dbtx, collection, id string, forUpdate bool) (T, bool, error) {
	var out T
	sql := `SELECT body FROM fb_documents WHERE collection = $1 AND id = $2`
	if forUpdate {
		sql += ` FOR UPDATE`
	}
	var raw []byte
	if err := q.QueryRow(ctx, sql, collection, id).Scan(&raw); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return out, false, nil
		}
		return out, false, storageErr("get "+collection, err)
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("%w: postgres: decode %s/%s: %w", shared.ErrStorage, collection, id, err)
	}
	return out, true, nil
}

// listDocs decodes the body column of every row returned by sql.
func listDocs[T any](ctx context.Context, q dbtx, sql string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, storageErr("list", err)
	}
	defer rows.Close()
	var out []T
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, storageErr("scan", err)
		}
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("%w: postgres: decode: %w", shared.ErrStorage, err)
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("list", err)
	}
	return out, nil
}

var _ posting.Store = (*Store)(nil)
