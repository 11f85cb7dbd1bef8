package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// AgingBucket groups open AR/AP balances by age.
type AgingBucket struct {
	Current  decimal.Decimal `json:"current"`
	Bucket30 decimal.Decimal `json:"bucket30"`
	Bucket60 decimal.Decimal `json:"bucket60"`
	Bucket90 decimal.Decimal `json:"bucket90"`
	Over90   decimal.Decimal `json:"over90"`
}

// Total sums all buckets.
func (b AgingBucket) Total() decimal.Decimal {
	return b.Current.Add(b.Bucket30).Add(b.Bucket60).Add(b.Bucket90).Add(b.Over90)
}

func (b *AgingBucket) add(days int, amount decimal.Decimal) {
	switch {
	case days <= 0:
		b.Current = b.Current.Add(amount)
	case days <= 30:
		b.Bucket30 = b.Bucket30.Add(amount)
	case days <= 60:
		b.Bucket60 = b.Bucket60.Add(amount)
	case days <= 90:
		b.Bucket90 = b.Bucket90.Add(amount)
	default:
		b.Over90 = b.Over90.Add(amount)
	}
}

// Aging splits open AR/AP entries into receivable and payable buckets by the
// number of days since the entry date.
func Aging(entries []LedgerEntry, asOf time.Time) (receivable, payable AgingBucket) {
	if asOf.IsZero() {
		asOf = time.Now()
	}
	for _, e := range entries {
		open := Outstanding(e)
		if !open.IsPositive() {
			continue
		}
		c, err := ClassifyEntry(e)
		if err != nil {
			continue
		}
		days := int(asOf.Sub(e.Date).Hours() / 24)
		if c.Class == ClassOrdinary && c.Income {
			receivable.add(days, open)
		} else {
			payable.add(days, open)
		}
	}
	return receivable, payable
}

// IncomeSummary is the income statement view of ledger entries.
type IncomeSummary struct {
	Revenue   decimal.Decimal `json:"revenue"`
	Expenses  decimal.Decimal `json:"expenses"`
	BadDebts  decimal.Decimal `json:"badDebts"`
	NetProfit decimal.Decimal `json:"netProfit"`
}

// IncomeStatement aggregates revenue and expenses between from and to
// (inclusive; zero bounds are open). Loans, advances, equity and capital
// expenditure are excluded even when their type looks like an expense.
// Stock bought is left out until it is sold and shows up as COGS.
func IncomeStatement(entries []LedgerEntry, from, to time.Time) (IncomeSummary, error) {
	var s IncomeSummary
	for _, e := range entries {
		if !from.IsZero() && e.Date.Before(from) {
			continue
		}
		if !to.IsZero() && e.Date.After(to) {
			continue
		}
		c, err := ClassifyEntry(e)
		if err != nil {
			return IncomeSummary{}, err
		}
		if c.ExcludedFromPL {
			continue
		}
		if c.Income {
			s.Revenue = s.Revenue.Add(e.Amount.Sub(e.TotalDiscount))
			s.BadDebts = s.BadDebts.Add(e.WriteoffAmount)
			continue
		}
		s.Expenses = s.Expenses.Add(e.Amount.Sub(e.Capitalised()).Sub(e.TotalDiscount).Sub(e.WriteoffAmount))
	}
	s.NetProfit = s.Revenue.Sub(s.Expenses).Sub(s.BadDebts)
	return s, nil
}
