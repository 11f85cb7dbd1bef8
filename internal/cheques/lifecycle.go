package cheques

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/shared"
)

// Settlement asks the caller to apply amount to an AR/AP entry, if that entry
// is tracked.
type Settlement struct {
	TransactionID string
	Amount        decimal.Decimal
}

// Outcome is everything a transition produces. The caller persists it in one
// unit of work.
type Outcome struct {
	Cheque      Cheque
	Payments    []ledger.Payment
	Settlements []Settlement
}

// TransitionInput carries the parameters a transition may need.
type TransitionInput struct {
	Endorsee              string
	// EndorseeTransactionID optionally names the endorsee's AR/AP entry the
	// endorsement pays off.
	EndorseeTransactionID string
	Actor                 string
	Now                   time.Time
	NewID                 func() string
}

func (in TransitionInput) id() string {
	if in.NewID != nil {
		return in.NewID()
	}
	return uuid.NewString()
}

func (in TransitionInput) now() time.Time {
	if in.Now.IsZero() {
		return time.Now().UTC()
	}
	return in.Now
}

// Transition moves a pending cheque to target and returns the side effects.
func Transition(ch Cheque, target Status, in TransitionInput) (Outcome, error) {
	if ch.IsTerminal() {
		return Outcome{}, fmt.Errorf("%w: %s is %s", ErrInvalidTransition, ch.ID, ch.Status)
	}
	now := in.now()
	switch target {
	case StatusCleared:
		return clear(ch, in, now), nil
	case StatusBounced:
		// The counterparty still owes the amount.
		ch.Status = StatusBounced
		ch.UpdatedAt = now
		return Outcome{Cheque: ch}, nil
	case StatusEndorsed:
		return endorse(ch, in, now)
	case StatusPending:
		return Outcome{}, fmt.Errorf("%w: cheque is already pending", ErrInvalidTransition)
	default:
		return Outcome{}, fmt.Errorf("%w: %q", ErrUnknownStatus, target)
	}
}

func clear(ch Cheque, in TransitionInput, now time.Time) Outcome {
	payType := ledger.PaymentReceipt
	if ch.Direction == Outgoing {
		payType = ledger.PaymentDisbursement
	}
	payment := ledger.Payment{
		ID:                  in.id(),
		Type:                payType,
		Amount:              ch.Amount,
		Method:              ledger.MethodCheque,
		LinkedTransactionID: ch.LinkedTransactionID,
		AssociatedParty:     ch.AssociatedParty,
		ChequeID:            ch.ID,
		Date:                now,
		CreatedAt:           now,
		CreatedBy:           in.Actor,
	}
	ch.Status = StatusCleared
	ch.PaymentIDs = []string{payment.ID}
	ch.UpdatedAt = now
	out := Outcome{Cheque: ch, Payments: []ledger.Payment{payment}}
	if ch.LinkedTransactionID != "" {
		out.Settlements = []Settlement{{TransactionID: ch.LinkedTransactionID, Amount: ch.Amount}}
	}
	return out
}

func endorse(ch Cheque, in TransitionInput, now time.Time) (Outcome, error) {
	if ch.Direction != Incoming {
		return Outcome{}, ErrEndorseOutgoing
	}
	if ledger.PartyKey(in.Endorsee) == "" {
		return Outcome{}, ErrEndorseeRequired
	}
	if ledger.SameParty(in.Endorsee, ch.AssociatedParty) {
		return Outcome{}, ErrEndorseSelf
	}
	if in.EndorseeTransactionID != "" && in.EndorseeTransactionID == ch.LinkedTransactionID {
		return Outcome{}, ErrEndorseOwnEntry
	}
	// Both halves move the claim between counterparties; no cash changes hands.
	receipt := ledger.Payment{
		ID:                  in.id(),
		Type:                ledger.PaymentReceipt,
		Amount:              ch.Amount,
		Method:              ledger.MethodCheque,
		LinkedTransactionID: ch.LinkedTransactionID,
		AssociatedParty:     ch.AssociatedParty,
		ChequeID:            ch.ID,
		IsEndorsement:       true,
		NoCashMovement:      true,
		Date:                now,
		CreatedAt:           now,
		CreatedBy:           in.Actor,
	}
	disbursement := ledger.Payment{
		ID:                  in.id(),
		Type:                ledger.PaymentDisbursement,
		Amount:              ch.Amount,
		Method:              ledger.MethodCheque,
		LinkedTransactionID: in.EndorseeTransactionID,
		AssociatedParty:     in.Endorsee,
		ChequeID:            ch.ID,
		IsEndorsement:       true,
		NoCashMovement:      true,
		Date:                now,
		CreatedAt:           now,
		CreatedBy:           in.Actor,
	}
	ch.Status = StatusEndorsed
	ch.EndorsedTo = in.Endorsee
	ch.PaymentIDs = []string{receipt.ID, disbursement.ID}
	ch.UpdatedAt = now

	out := Outcome{Cheque: ch, Payments: []ledger.Payment{receipt, disbursement}}
	if ch.LinkedTransactionID != "" {
		out.Settlements = append(out.Settlements, Settlement{TransactionID: ch.LinkedTransactionID, Amount: ch.Amount})
	}
	if in.EndorseeTransactionID != "" {
		out.Settlements = append(out.Settlements, Settlement{TransactionID: in.EndorseeTransactionID, Amount: ch.Amount})
	}
	return out, nil
}

// CreateInput describes a cheque recorded alongside (or after) its entry.
type CreateInput struct {
	ChequeNumber          string
	BankName              string
	Direction             Direction
	AccountingType        AccountingType
	Amount                decimal.Decimal
	DueDate               time.Time
	LinkedTransactionID   string
	AssociatedParty       string
	Endorsee              string
	EndorseeTransactionID string
}

// Validate checks the input before anything is built.
func (in CreateInput) Validate() error {
	if !in.Amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", ErrInvalidCheque)
	}
	switch in.Direction {
	case Incoming, Outgoing:
	default:
		return fmt.Errorf("%w: unknown direction %q", ErrInvalidCheque, in.Direction)
	}
	if ledger.PartyKey(in.AssociatedParty) == "" {
		return fmt.Errorf("%w: %w", ErrInvalidCheque, ledger.ErrPartyRequired)
	}
	switch in.AccountingType {
	case AccountingCashed, AccountingPostponed:
	case AccountingEndorsed:
		if in.Direction != Incoming {
			return ErrEndorseOutgoing
		}
		if ledger.PartyKey(in.Endorsee) == "" {
			return ErrEndorseeRequired
		}
		if ledger.SameParty(in.Endorsee, in.AssociatedParty) {
			return ErrEndorseSelf
		}
		if in.EndorseeTransactionID != "" && in.EndorseeTransactionID == in.LinkedTransactionID {
			return ErrEndorseOwnEntry
		}
	default:
		return fmt.Errorf("%w: unknown accounting type %q", ErrInvalidCheque, in.AccountingType)
	}
	return nil
}

// Create builds a pending cheque and immediately runs the sub-flow its
// accounting type selects: cashed clears, postponed waits, endorsed endorses.
func Create(in CreateInput, tin TransitionInput) (Outcome, error) {
	if err := in.Validate(); err != nil {
		return Outcome{}, err
	}
	now := tin.now()
	ch := Cheque{
		ID:                  tin.id(),
		ChequeNumber:        in.ChequeNumber,
		BankName:            in.BankName,
		Direction:           in.Direction,
		Status:              StatusPending,
		AccountingType:      in.AccountingType,
		Amount:              in.Amount,
		DueDate:             in.DueDate,
		LinkedTransactionID: in.LinkedTransactionID,
		AssociatedParty:     in.AssociatedParty,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	switch in.AccountingType {
	case AccountingCashed:
		return Transition(ch, StatusCleared, tin)
	case AccountingEndorsed:
		tin.Endorsee = in.Endorsee
		tin.EndorseeTransactionID = in.EndorseeTransactionID
		return Transition(ch, StatusEndorsed, tin)
	case AccountingPostponed:
		return Outcome{Cheque: ch}, nil
	}
	return Outcome{}, fmt.Errorf("%w: unknown accounting type %q", shared.ErrValidation, in.AccountingType)
}
