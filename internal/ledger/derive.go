package ledger

import (
	"github.com/shopspring/decimal"
)

// Effect is what a single entry or payment contributes to a counterparty's
// running balance. Positive net means the counterparty owes us more.
type Effect struct {
	Debit          decimal.Decimal `json:"debit"`
	Credit         decimal.Decimal `json:"credit"`
	DiscountDebit  decimal.Decimal `json:"discountDebit"`
	DiscountCredit decimal.Decimal `json:"discountCredit"`
	WriteoffDebit  decimal.Decimal `json:"writeoffDebit"`
	WriteoffCredit decimal.Decimal `json:"writeoffCredit"`
}

// TotalDebit sums the debit side including adjustments.
func (e Effect) TotalDebit() decimal.Decimal {
	return e.Debit.Add(e.DiscountDebit).Add(e.WriteoffDebit)
}

// TotalCredit sums the credit side including adjustments.
func (e Effect) TotalCredit() decimal.Decimal {
	return e.Credit.Add(e.DiscountCredit).Add(e.WriteoffCredit)
}

// Net returns TotalDebit - TotalCredit.
func (e Effect) Net() decimal.Decimal {
	return e.TotalDebit().Sub(e.TotalCredit())
}

// IsZero reports whether the effect moves nothing.
func (e Effect) IsZero() bool {
	return e.TotalDebit().IsZero() && e.TotalCredit().IsZero()
}

// DeriveEntry computes the balance effect of a classified entry.
func DeriveEntry(e LedgerEntry, c Classification) Effect {
	var out Effect
	// Synthesized from a multi-allocation payment; the payment already counts.
	if e.LinkedPaymentID != "" {
		return out
	}
	amount := e.Amount
	switch c.Class {
	case ClassLoanGiven:
		out.Debit = amount
	case ClassLoanReceived:
		out.Credit = amount
	case ClassLoanRepaymentReceivable:
		out.Credit = amount
	case ClassLoanRepaymentPayable:
		out.Debit = amount
	// Advances invert the entry's surface direction: money received from a
	// customer is a liability to deliver.
	case ClassAdvanceCustomer:
		out.Credit = amount
	case ClassAdvanceSupplier:
		out.Debit = amount
	case ClassEquity:
		if c.Drawing {
			out.Debit = amount
		} else {
			out.Credit = amount
		}
	case ClassOrdinary:
		if c.Income {
			out.Debit = amount
			out.DiscountCredit = positiveOrZero(e.TotalDiscount)
			out.WriteoffCredit = positiveOrZero(e.WriteoffAmount)
			return out
		}
		out.Credit = amount
		out.DiscountDebit = positiveOrZero(e.TotalDiscount)
		out.WriteoffDebit = positiveOrZero(e.WriteoffAmount)
	case ClassCapitalExpenditure:
		out.Credit = amount
		out.DiscountDebit = positiveOrZero(e.TotalDiscount)
		out.WriteoffDebit = positiveOrZero(e.WriteoffAmount)
	}
	return out
}

// LinkResolver looks up the class of the entry a payment settles. ok is false
// when the payment is unlinked or the entry is unknown.
type LinkResolver func(transactionID string) (TransactionClass, bool)

// DerivePayment computes the balance effect of a payment.
func DerivePayment(p Payment, resolve LinkResolver) Effect {
	var out Effect
	if !p.Amount.IsPositive() {
		return out
	}
	if p.LinkedTransactionID != "" && resolve != nil {
		if class, ok := resolve(p.LinkedTransactionID); ok && class.IsAdvance() {
			return out
		}
	}
	switch p.Type {
	case PaymentReceipt:
		out.Credit = p.Amount
	case PaymentDisbursement:
		out.Debit = p.Amount
	}
	return out
}

// IndexClasses builds a LinkResolver over entries keyed by transaction id.
// Entries that fail classification are left out.
func IndexClasses(entries []LedgerEntry) LinkResolver {
	index := make(map[string]TransactionClass, len(entries))
	for _, e := range entries {
		c, err := ClassifyEntry(e)
		if err != nil {
			continue
		}
		index[e.TransactionID] = c.Class
	}
	return func(transactionID string) (TransactionClass, bool) {
		class, ok := index[transactionID]
		return class, ok
	}
}

func positiveOrZero(d decimal.Decimal) decimal.Decimal {
	if d.IsPositive() {
		return d
	}
	return decimal.Zero
}
