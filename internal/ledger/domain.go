package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/shared"
)

// Entry types as stored in the type field.
const (
	TypeIncome             = "income"
	TypeExpense            = "expense"
	TypeEquityMovement     = "equity-movement"
	TypeCapitalExpenditure = "capital-expenditure"
)

// PaymentStatus describes how much of an AR/AP entry has been settled.
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "unpaid"
	PaymentPartial PaymentStatus = "partial"
	PaymentPaid    PaymentStatus = "paid"
)

// PaymentType is the cash direction of a payment.
type PaymentType string

const (
	PaymentReceipt      PaymentType = "receipt"
	PaymentDisbursement PaymentType = "disbursement"
)

// PaymentMethod tells the journal engine which cash account moved.
type PaymentMethod string

const (
	MethodCash   PaymentMethod = "cash"
	MethodBank   PaymentMethod = "bank"
	MethodCheque PaymentMethod = "cheque"
)

var (
	ErrInvalidAmount      = fmt.Errorf("%w: ledger: amount must be positive", shared.ErrValidation)
	ErrInvalidAdjustment  = fmt.Errorf("%w: ledger: discount and write-off must be non-negative and not exceed the amount", shared.ErrValidation)
	ErrPartyRequired      = fmt.Errorf("%w: ledger: counterparty name is required", shared.ErrValidation)
	ErrOverpayment        = fmt.Errorf("%w: ledger: payment exceeds remaining balance", shared.ErrValidation)
	ErrNotARAP            = fmt.Errorf("%w: ledger: entry is not tracked as receivable/payable", shared.ErrValidation)
	ErrUnknownType        = fmt.Errorf("%w: ledger: unknown entry type", shared.ErrValidation)
	ErrUnknownSubCategory = fmt.Errorf("%w: ledger: unknown sub-category", shared.ErrValidation)
	ErrEntryNotFound      = fmt.Errorf("%w: ledger entry", shared.ErrNotFound)
	ErrPaymentNotFound    = fmt.Errorf("%w: payment", shared.ErrNotFound)
)

// LedgerEntry is a posted business event. Only the settlement fields change
// after creation.
type LedgerEntry struct {
	ID             string          `json:"id"`
	TransactionID  string          `json:"transactionId"`
	Type           string          `json:"type"`
	Category       string          `json:"category"`
	SubCategory    string          `json:"subCategory,omitempty"`
	Description    string          `json:"description,omitempty"`
	Date           time.Time       `json:"date"`
	Amount         decimal.Decimal `json:"amount"`
	TotalDiscount  decimal.Decimal `json:"totalDiscount"`
	WriteoffAmount decimal.Decimal `json:"writeoffAmount"`
	// StockedAmount is the value of inventory received with the entry.
	StockedAmount decimal.Decimal `json:"stockedAmount"`

	IsARAPEntry      bool            `json:"isARAPEntry"`
	TotalPaid        decimal.Decimal `json:"totalPaid"`
	RemainingBalance decimal.Decimal `json:"remainingBalance"`
	PaymentStatus    PaymentStatus   `json:"paymentStatus,omitempty"`

	AssociatedParty     string `json:"associatedParty,omitempty"`
	OwnerName           string `json:"ownerName,omitempty"`
	LinkedPaymentID     string `json:"linkedPaymentId,omitempty"`
	SourceTransactionID string `json:"sourceTransactionId,omitempty"`
	IsAutoGenerated     bool   `json:"isAutoGenerated,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	CreatedBy string    `json:"createdBy,omitempty"`
}

// Validate checks the economics of a candidate entry.
func (e LedgerEntry) Validate() error {
	if !e.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	if e.TotalDiscount.IsNegative() || e.WriteoffAmount.IsNegative() {
		return ErrInvalidAdjustment
	}
	if e.TotalDiscount.Add(e.WriteoffAmount).GreaterThan(e.Amount) {
		return ErrInvalidAdjustment
	}
	if e.IsARAPEntry && PartyKey(e.AssociatedParty) == "" {
		return ErrPartyRequired
	}
	return nil
}

// Capitalised is the part of an expense booked to inventory rather than to
// the income statement. A purchase is stock in full.
func (e LedgerEntry) Capitalised() decimal.Decimal {
	if e.Type != TypeExpense {
		return decimal.Zero
	}
	if Normalize(e.Category) == CategoryPurchases {
		return e.Amount
	}
	return decimal.Min(decimal.Max(e.StockedAmount, decimal.Zero), e.Amount)
}

// Payment is a cash or bank movement, or one half of an endorsement.
type Payment struct {
	ID                  string          `json:"id"`
	Type                PaymentType     `json:"type"`
	Amount              decimal.Decimal `json:"amount"`
	Method              PaymentMethod   `json:"method,omitempty"`
	LinkedTransactionID string          `json:"linkedTransactionId,omitempty"`
	AssociatedParty     string          `json:"associatedParty,omitempty"`
	ChequeID            string          `json:"chequeId,omitempty"`
	IsEndorsement       bool            `json:"isEndorsement,omitempty"`
	NoCashMovement      bool            `json:"noCashMovement,omitempty"`
	Date                time.Time       `json:"date"`
	CreatedAt           time.Time       `json:"createdAt"`
	CreatedBy           string          `json:"createdBy,omitempty"`
}

// Validate rejects payments that could never count.
func (p Payment) Validate() error {
	if !p.Amount.IsPositive() {
		return ErrInvalidAmount
	}
	switch p.Type {
	case PaymentReceipt, PaymentDisbursement:
	default:
		return fmt.Errorf("%w: ledger: unknown payment type %q", shared.ErrValidation, p.Type)
	}
	return nil
}

// PartyKind groups counterparties for reporting.
type PartyKind string

const (
	PartyCustomer PartyKind = "customer"
	PartySupplier PartyKind = "supplier"
	PartyPartner  PartyKind = "partner"
	PartyOther    PartyKind = "other"
)

// Party carries the opening balance of a counterparty. Counterparties are
// referenced by name everywhere else.
type Party struct {
	Name           string          `json:"name"`
	Kind           PartyKind       `json:"kind"`
	OpeningBalance decimal.Decimal `json:"openingBalance"`
}

// ErrPartyNotFound is returned by readers for unknown counterparties.
var ErrPartyNotFound = fmt.Errorf("%w: ledger party", shared.ErrNotFound)
