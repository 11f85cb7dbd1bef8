package posting

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/accounting"
	"github.com/factorybooks/factorybooks/internal/assets"
	"github.com/factorybooks/factorybooks/internal/cheques"
	"github.com/factorybooks/factorybooks/internal/inventory"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/shared"
)

var (
	// ErrInvalidCandidate marks a posting request rejected before any write.
	ErrInvalidCandidate = fmt.Errorf("%w: posting: invalid transaction", shared.ErrValidation)
	// ErrBatchTooLarge indicates the ledger-side documents alone exceed one transaction.
	ErrBatchTooLarge = fmt.Errorf("%w: posting: transaction touches too many documents", shared.ErrValidation)
	// ErrDuplicateTransaction indicates the transaction id is taken.
	ErrDuplicateTransaction = fmt.Errorf("%w: posting: transaction id already exists", shared.ErrConflict)
	// ErrIntentInFlight blocks deletion while journals are still being written.
	ErrIntentInFlight = fmt.Errorf("%w: posting: journal posting still in progress", shared.ErrConflict)
	// ErrAlreadyDepreciated indicates the depreciation run for the month exists.
	ErrAlreadyDepreciated = fmt.Errorf("%w: posting: depreciation already booked for this month", shared.ErrConflict)
	// ErrIntentNotFound indicates a missing journal intent.
	ErrIntentNotFound = fmt.Errorf("%w: journal intent", shared.ErrNotFound)
	// ErrIntentDead is returned once an intent has exhausted its attempts.
	ErrIntentDead = fmt.Errorf("%w: posting: journal intent dead-lettered", shared.ErrConsistency)
)

// JournalMode selects how journals are written relative to ledger documents.
type JournalMode string

const (
	// JournalAtomic writes journals in the same transaction as the ledger side.
	JournalAtomic JournalMode = "atomic"
	// JournalOutbox writes a journal intent and posts journals asynchronously.
	JournalOutbox JournalMode = "outbox"
)

// PaymentInput describes a cash or bank payment against an entry.
type PaymentInput struct {
	Amount decimal.Decimal
	Method ledger.PaymentMethod
	Date   time.Time
}

func (in PaymentInput) validate() error {
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: payment amount must be positive", ErrInvalidCandidate)
	}
	switch in.Method {
	case ledger.MethodCash, ledger.MethodBank:
		return nil
	case ledger.MethodCheque:
		return fmt.Errorf("%w: cheque payments are recorded through the cheque flow", ErrInvalidCandidate)
	default:
		return fmt.Errorf("%w: unknown payment method %q", ErrInvalidCandidate, in.Method)
	}
}

// InventoryLine moves stock as part of a transaction. An empty ItemID with a
// Name creates the item on its first receipt.
type InventoryLine struct {
	ItemID         string
	Name           string
	Unit           string
	Direction      inventory.MovementDirection
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	PurchaseAmount decimal.Decimal
	Shipping       decimal.Decimal
	Other          decimal.Decimal
}

// Candidate is everything one user-visible transaction writes.
type Candidate struct {
	Entry          ledger.LedgerEntry
	InitialPayment *PaymentInput
	Cheque         *cheques.CreateInput
	Inventory      []InventoryLine
	Asset          *assets.Input
}

// Allocation assigns part of a payment to one open entry.
type Allocation struct {
	TransactionID string
	Amount        decimal.Decimal
}

// AllocationInput spreads one payment over several open entries of a party.
type AllocationInput struct {
	Party       string
	Type        ledger.PaymentType
	Amount      decimal.Decimal
	Method      ledger.PaymentMethod
	Date        time.Time
	Allocations []Allocation
}

// TransitionRequest moves a cheque to a new status.
type TransitionRequest struct {
	Target                cheques.Status
	Endorsee              string
	EndorseeTransactionID string
}

// IntentStatus tracks an outbox intent.
type IntentStatus string

const (
	IntentPending    IntentStatus = "pending"
	IntentProcessing IntentStatus = "processing"
	IntentSucceeded  IntentStatus = "succeeded"
	IntentFailed     IntentStatus = "failed"
	IntentDead       IntentStatus = "dead"
)

// Terminal reports whether the intent will not be attempted again.
func (s IntentStatus) Terminal() bool {
	return s == IntentSucceeded || s == IntentDead
}

// JournalIntent is an outbox record holding validated journal drafts that
// still have to be posted.
type JournalIntent struct {
	ID            string                    `json:"id"`
	Operation     string                    `json:"operation"`
	TransactionID string                    `json:"transactionId"`
	Journals      []accounting.JournalEntry `json:"journals"`
	Status        IntentStatus              `json:"status"`
	Attempts      int                       `json:"attempts"`
	NextAttemptAt time.Time                 `json:"nextAttemptAt"`
	LastError     string                    `json:"lastError,omitempty"`
	CreatedAt     time.Time                 `json:"createdAt"`
	UpdatedAt     time.Time                 `json:"updatedAt"`
}

// DeadLetter keeps the payload of work that could not be completed.
type DeadLetter struct {
	ID            string          `json:"id"`
	Operation     string          `json:"operation"`
	TransactionID string          `json:"transactionId"`
	Payload       json.RawMessage `json:"payload"`
	Error         string          `json:"error"`
	CreatedAt     time.Time       `json:"createdAt"`
}

// PostResult is what Post wrote.
type PostResult struct {
	Entry    ledger.LedgerEntry        `json:"entry"`
	Payments []ledger.Payment          `json:"payments,omitempty"`
	Cheque   *cheques.Cheque           `json:"cheque,omitempty"`
	COGS     *ledger.LedgerEntry       `json:"cogs,omitempty"`
	Items    []inventory.Item          `json:"items,omitempty"`
	Asset    *assets.FixedAsset        `json:"asset,omitempty"`
	Journals []accounting.JournalEntry `json:"journals,omitempty"`
	IntentID string                    `json:"intentId,omitempty"`
}

// SettleResult is what Settle wrote.
type SettleResult struct {
	Entry    ledger.LedgerEntry        `json:"entry"`
	Payment  ledger.Payment            `json:"payment"`
	Journals []accounting.JournalEntry `json:"journals,omitempty"`
	IntentID string                    `json:"intentId,omitempty"`
}

// AllocationResult is what Allocate wrote.
type AllocationResult struct {
	Payment  ledger.Payment            `json:"payment"`
	Entries  []ledger.LedgerEntry      `json:"entries"`
	Advance  *ledger.LedgerEntry       `json:"advance,omitempty"`
	Journals []accounting.JournalEntry `json:"journals,omitempty"`
	IntentID string                    `json:"intentId,omitempty"`
}

// TransitionResult is what TransitionCheque wrote.
type TransitionResult struct {
	Cheque   cheques.Cheque            `json:"cheque"`
	Payments []ledger.Payment          `json:"payments,omitempty"`
	Entries  []ledger.LedgerEntry      `json:"entries,omitempty"`
	Journals []accounting.JournalEntry `json:"journals,omitempty"`
	IntentID string                    `json:"intentId,omitempty"`
}

// DeleteResult summarises a cascading deletion.
type DeleteResult struct {
	TransactionID    string `json:"transactionId"`
	Chunks           int    `json:"chunks"`
	Documents        int    `json:"documents"`
	ReversedJournals int    `json:"reversedJournals"`
}

// DepreciationResult is what RunDepreciation wrote.
type DepreciationResult struct {
	Asset   assets.FixedAsset       `json:"asset"`
	Charge  decimal.Decimal         `json:"charge"`
	Journal accounting.JournalEntry `json:"journal"`
}
