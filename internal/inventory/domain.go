package inventory

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/shared"
)

// MovementDirection tells whether stock came in or went out.
type MovementDirection string

const (
	// MovementReceipt represents an inbound movement.
	MovementReceipt MovementDirection = "receipt"
	// MovementIssue represents an outbound movement.
	MovementIssue MovementDirection = "issue"
)

var (
	// ErrInsufficientQuantity is returned when an issue exceeds what is on hand.
	ErrInsufficientQuantity = fmt.Errorf("%w: insufficient inventory for this issue", shared.ErrValidation)
	// ErrInvalidQuantity is returned for zero or negative quantities.
	ErrInvalidQuantity = fmt.Errorf("%w: inventory: quantity must be positive", shared.ErrValidation)
	// ErrInvalidPrice is returned for negative prices or costs.
	ErrInvalidPrice = fmt.Errorf("%w: inventory: prices and costs must be non-negative", shared.ErrValidation)
	// ErrItemNotFound indicates the stock item does not exist.
	ErrItemNotFound = fmt.Errorf("%w: inventory item", shared.ErrNotFound)
)

// Item is a stock item valued at weighted-average cost.
type Item struct {
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Unit              string          `json:"unit,omitempty"`
	Quantity          decimal.Decimal `json:"quantity"`
	UnitPrice         decimal.Decimal `json:"unitPrice"`
	LastPurchasePrice decimal.Decimal `json:"lastPurchasePrice"`
	LastPurchaseDate  time.Time       `json:"lastPurchaseDate"`
	UpdatedAt         time.Time       `json:"updatedAt"`
}

// Value is quantity times unit cost.
func (i Item) Value() decimal.Decimal {
	return i.Quantity.Mul(i.UnitPrice)
}

// Movement records one receipt or issue so it can be reversed later.
type Movement struct {
	ID            string            `json:"id"`
	ItemID        string            `json:"itemId"`
	Direction     MovementDirection `json:"direction"`
	Quantity      decimal.Decimal   `json:"quantity"`
	UnitCost      decimal.Decimal   `json:"unitCost"`
	TransactionID string            `json:"transactionId"`
	IsSale        bool              `json:"isSale,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// ReceiptInput describes stock coming in. When PurchaseAmount is set the
// unit price is the landed cost (purchase + shipping + other) / quantity.
type ReceiptInput struct {
	Quantity       decimal.Decimal
	UnitPrice      decimal.Decimal
	PurchaseAmount decimal.Decimal
	Shipping       decimal.Decimal
	Other          decimal.Decimal
	TransactionID  string
	Date           time.Time
}

// IssueInput describes stock going out.
type IssueInput struct {
	Quantity      decimal.Decimal
	IsSale        bool
	TransactionID string
	Date          time.Time
}
