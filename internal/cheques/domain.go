package cheques

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/shared"
)

// Direction says whether we received or issued the cheque.
type Direction string

const (
	Incoming Direction = "incoming"
	Outgoing Direction = "outgoing"
)

// Status is the lifecycle state. Every state other than pending is terminal.
type Status string

const (
	StatusPending  Status = "pending"
	StatusCleared  Status = "cleared"
	StatusBounced  Status = "bounced"
	StatusEndorsed Status = "endorsed"
)

// AccountingType is chosen when the cheque is recorded together with its entry.
type AccountingType string

const (
	AccountingCashed    AccountingType = "cashed"
	AccountingPostponed AccountingType = "postponed"
	AccountingEndorsed  AccountingType = "endorsed"
)

var (
	ErrInvalidTransition = fmt.Errorf("%w: cheques: cheque is no longer pending", shared.ErrValidation)
	ErrUnknownStatus     = fmt.Errorf("%w: cheques: unknown target status", shared.ErrValidation)
	ErrEndorseeRequired  = fmt.Errorf("%w: cheques: endorsee name is required", shared.ErrValidation)
	ErrEndorseOutgoing   = fmt.Errorf("%w: cheques: only incoming cheques can be endorsed", shared.ErrValidation)
	ErrEndorseSelf       = fmt.Errorf("%w: cheques: cannot endorse a cheque back to its drawer", shared.ErrValidation)
	ErrEndorseOwnEntry   = fmt.Errorf("%w: cheques: the endorsee transaction must differ from the cheque's own", shared.ErrValidation)
	ErrInvalidCheque     = fmt.Errorf("%w: cheques: invalid cheque", shared.ErrValidation)
	ErrChequeNotFound    = fmt.Errorf("%w: cheque", shared.ErrNotFound)
)

// Cheque is a negotiable instrument tied to one transaction.
type Cheque struct {
	ID                  string          `json:"id"`
	ChequeNumber        string          `json:"chequeNumber,omitempty"`
	BankName            string          `json:"bankName,omitempty"`
	Direction           Direction       `json:"direction"`
	Status              Status          `json:"status"`
	AccountingType      AccountingType  `json:"accountingType"`
	Amount              decimal.Decimal `json:"amount"`
	DueDate             time.Time       `json:"dueDate"`
	LinkedTransactionID string          `json:"linkedTransactionId,omitempty"`
	AssociatedParty     string          `json:"associatedParty"`
	EndorsedTo          string          `json:"endorsedTo,omitempty"`
	PaymentIDs          []string        `json:"paymentIds,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// AwaitingClearance is true while the cheque can still move money.
func (c Cheque) AwaitingClearance() bool {
	return c.Status == StatusPending && c.AccountingType != AccountingEndorsed
}

// IsIncoming reports whether we are the payee.
func (c Cheque) IsIncoming() bool { return c.Direction == Incoming }

// FaceValue returns the cheque amount.
func (c Cheque) FaceValue() decimal.Decimal { return c.Amount }

// IsTerminal reports whether no further transition is possible.
func (c Cheque) IsTerminal() bool { return c.Status != StatusPending }

// ParseStatus converts user input into a Status.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusCleared, StatusBounced, StatusEndorsed:
		return Status(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
}
