package posting

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/accounting"
	"github.com/factorybooks/factorybooks/internal/assets"
	"github.com/factorybooks/factorybooks/internal/cheques"
	"github.com/factorybooks/factorybooks/internal/inventory"
	"github.com/factorybooks/factorybooks/internal/ledger"
)

// UnitOfWork runs fn inside one all-or-nothing store transaction. Every write
// made through the Tx is committed together or not at all.
type UnitOfWork interface {
	WithinTx(ctx context.Context, fn func(context.Context, Tx) error) error
	// MaxDocumentsPerTx is the number of document writes one transaction may
	// carry.
	MaxDocumentsPerTx() int
}

// Tx exposes document operations for every collection a posting touches.
// Reads of documents that are later written take a row lock where the store
// supports one.
type Tx interface {
	InsertEntry(ctx context.Context, e ledger.LedgerEntry) error
	GetEntry(ctx context.Context, transactionID string) (ledger.LedgerEntry, error)
	UpdateEntry(ctx context.Context, e ledger.LedgerEntry) error
	// SettleEntry reads the entry under lock, applies ledger.Settle and
	// writes it back.
	SettleEntry(ctx context.Context, transactionID string, amount decimal.Decimal) (ledger.LedgerEntry, error)
	DeleteEntry(ctx context.Context, transactionID string) error
	ListEntriesBySource(ctx context.Context, sourceTransactionID string) ([]ledger.LedgerEntry, error)

	InsertPayment(ctx context.Context, p ledger.Payment) error
	GetPayment(ctx context.Context, id string) (ledger.Payment, error)
	ListPaymentsByTransaction(ctx context.Context, transactionID string) ([]ledger.Payment, error)
	DeletePayment(ctx context.Context, id string) error

	InsertCheque(ctx context.Context, ch cheques.Cheque) error
	GetCheque(ctx context.Context, id string) (cheques.Cheque, error)
	UpdateCheque(ctx context.Context, ch cheques.Cheque) error
	ListChequesByTransaction(ctx context.Context, transactionID string) ([]cheques.Cheque, error)
	DeleteCheque(ctx context.Context, id string) error

	GetItemForUpdate(ctx context.Context, id string) (inventory.Item, error)
	PutItem(ctx context.Context, item inventory.Item) error
	InsertMovement(ctx context.Context, mv inventory.Movement) error
	ListMovementsByTransaction(ctx context.Context, transactionID string) ([]inventory.Movement, error)
	DeleteMovement(ctx context.Context, id string) error

	InsertAsset(ctx context.Context, a assets.FixedAsset) error
	GetAsset(ctx context.Context, id string) (assets.FixedAsset, error)
	UpdateAsset(ctx context.Context, a assets.FixedAsset) error
	ListAssetsByTransaction(ctx context.Context, transactionID string) ([]assets.FixedAsset, error)
	DeleteAsset(ctx context.Context, id string) error

	InsertJournal(ctx context.Context, j accounting.JournalEntry) error
	// GetJournal returns accounting.ErrJournalNotFound when absent.
	GetJournal(ctx context.Context, id string) (accounting.JournalEntry, error)
	UpdateJournal(ctx context.Context, j accounting.JournalEntry) error
	ListJournalsByTransaction(ctx context.Context, transactionID string) ([]accounting.JournalEntry, error)

	InsertIntent(ctx context.Context, in JournalIntent) error
	GetIntent(ctx context.Context, id string) (JournalIntent, error)
	UpdateIntent(ctx context.Context, in JournalIntent) error
	ListIntentsByTransaction(ctx context.Context, transactionID string) ([]JournalIntent, error)
	InsertDeadLetter(ctx context.Context, dl DeadLetter) error
}

// Store is the UnitOfWork plus the non-transactional reads the orchestrator
// needs for its sweeps.
type Store interface {
	UnitOfWork
	ListDueIntents(ctx context.Context, now time.Time, limit int) ([]JournalIntent, error)
	ListAssets(ctx context.Context) ([]assets.FixedAsset, error)
	ListDeadLetters(ctx context.Context, limit int) ([]DeadLetter, error)
}

// IntentPublisher hands a committed intent to the background worker.
type IntentPublisher interface {
	PublishIntent(ctx context.Context, intent JournalIntent) error
}

// CacheInvalidator drops cached balances after a commit.
type CacheInvalidator interface {
	Bump(ctx context.Context) error
}

// Recorder receives posting outcomes for metrics.
type Recorder interface {
	ObservePosting(operation, outcome string)
	ObserveDeadLetter(operation string)
}

type nopRecorder struct{}

func (nopRecorder) ObservePosting(string, string) {}
func (nopRecorder) ObserveDeadLetter(string)      {}
