package ledger

import (
	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/money"
)

// OpenSettlement initialises the AR/AP tracking fields of a new entry.
func OpenSettlement(e LedgerEntry) LedgerEntry {
	if !e.IsARAPEntry {
		e.TotalPaid = decimal.Zero
		e.RemainingBalance = decimal.Zero
		e.PaymentStatus = ""
		return e
	}
	e.TotalPaid = decimal.Zero
	e.RemainingBalance = e.Amount
	e.PaymentStatus = PaymentUnpaid
	return e
}

// Settle applies a payment of delta to an AR/AP entry and returns the
// updated copy. The caller must hold the entry under a transactional lock.
func Settle(e LedgerEntry, delta decimal.Decimal) (LedgerEntry, error) {
	if !e.IsARAPEntry {
		return e, ErrNotARAP
	}
	if !delta.IsPositive() {
		return e, ErrInvalidAmount
	}
	remaining := e.Amount.Sub(e.TotalPaid)
	if delta.GreaterThanOrEqual(remaining.Add(money.Epsilon)) {
		return e, ErrOverpayment
	}
	e.TotalPaid = e.TotalPaid.Add(delta)
	e.RemainingBalance = e.Amount.Sub(e.TotalPaid)
	e.PaymentStatus = StatusFor(e.Amount, e.TotalPaid)
	return e, nil
}

// StatusFor derives the payment status from amount and total paid.
func StatusFor(amount, totalPaid decimal.Decimal) PaymentStatus {
	remaining := amount.Sub(totalPaid)
	switch {
	case remaining.LessThan(money.Epsilon):
		return PaymentPaid
	case totalPaid.IsPositive():
		return PaymentPartial
	default:
		return PaymentUnpaid
	}
}

// Outstanding returns what is still open on an AR/AP entry.
func Outstanding(e LedgerEntry) decimal.Decimal {
	if !e.IsARAPEntry {
		return decimal.Zero
	}
	return money.Max(e.Amount.Sub(e.TotalPaid), decimal.Zero)
}

// Unsettle takes delta back off an AR/AP entry, as when the payment that
// settled it is deleted. Total paid never goes below zero.
func Unsettle(e LedgerEntry, delta decimal.Decimal) (LedgerEntry, error) {
	if !e.IsARAPEntry {
		return e, ErrNotARAP
	}
	if !delta.IsPositive() {
		return e, ErrInvalidAmount
	}
	e.TotalPaid = money.Max(e.TotalPaid.Sub(delta), decimal.Zero)
	e.RemainingBalance = e.Amount.Sub(e.TotalPaid)
	e.PaymentStatus = StatusFor(e.Amount, e.TotalPaid)
	return e, nil
}
