package ledger

import (
	"github.com/shopspring/decimal"
)

// Accumulator folds effects into a running balance. Folding is associative:
// two accumulators over disjoint slices of history merge into the same
// result as one accumulator over the whole history.
type Accumulator struct {
	Opening decimal.Decimal
	Debit   decimal.Decimal
	Credit  decimal.Decimal
}

// NewAccumulator starts a fold from an opening balance.
func NewAccumulator(opening decimal.Decimal) *Accumulator {
	return &Accumulator{Opening: opening}
}

// Add folds one effect.
func (a *Accumulator) Add(e Effect) {
	a.Debit = a.Debit.Add(e.TotalDebit())
	a.Credit = a.Credit.Add(e.TotalCredit())
}

// AddEntry classifies and folds an entry.
func (a *Accumulator) AddEntry(e LedgerEntry) error {
	c, err := ClassifyEntry(e)
	if err != nil {
		return err
	}
	a.Add(DeriveEntry(e, c))
	return nil
}

// AddPayment folds a payment.
func (a *Accumulator) AddPayment(p Payment, resolve LinkResolver) {
	a.Add(DerivePayment(p, resolve))
}

// Merge folds another accumulator's movements. The other opening balance is ignored.
func (a *Accumulator) Merge(other Accumulator) {
	a.Debit = a.Debit.Add(other.Debit)
	a.Credit = a.Credit.Add(other.Credit)
}

// Balance returns opening + debits - credits.
func (a Accumulator) Balance() decimal.Decimal {
	return a.Opening.Add(a.Debit).Sub(a.Credit)
}

// CalculateBalance folds every entry and payment of one counterparty.
// Positive means the counterparty owes us.
func CalculateBalance(opening decimal.Decimal, entries []LedgerEntry, payments []Payment) (decimal.Decimal, error) {
	acc := NewAccumulator(opening)
	for _, e := range entries {
		if err := acc.AddEntry(e); err != nil {
			return decimal.Zero, err
		}
	}
	resolve := IndexClasses(entries)
	for _, p := range payments {
		acc.AddPayment(p, resolve)
	}
	return acc.Balance(), nil
}

// ChequeExposure is the view of a cheque the projection needs.
type ChequeExposure interface {
	// AwaitingClearance is true for pending cheques not already endorsed away.
	AwaitingClearance() bool
	IsIncoming() bool
	FaceValue() decimal.Decimal
}

// ProjectedBalance is the balance once every pending cheque clears.
// Incoming cheques will reduce what the counterparty owes; outgoing ones
// reduce what we owe.
func ProjectedBalance[C ChequeExposure](balance decimal.Decimal, cheques []C) decimal.Decimal {
	projected := balance
	for _, ch := range cheques {
		if !ch.AwaitingClearance() {
			continue
		}
		if ch.IsIncoming() {
			projected = projected.Sub(ch.FaceValue())
		} else {
			projected = projected.Add(ch.FaceValue())
		}
	}
	return projected
}
