package reports

import (
	"sort"
	"time"

	"github.com/factorybooks/factorybooks/internal/accounting"
)

// Period bounds a report. Zero values leave the bound open.
type Period struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// AccountBalances aggregates journal lines per account. Lines dated before
// the period feed the opening balance; drafts are ignored. Reversed journals
// still count because their reversal offsets them.
func AccountBalances(journals []accounting.JournalEntry, period Period) []AccountBalance {
	byCode := make(map[string]*AccountBalance)
	for _, j := range journals {
		if j.Status == accounting.JournalStatusDraft {
			continue
		}
		if !period.To.IsZero() && j.Date.After(period.To) {
			continue
		}
		opening := !period.From.IsZero() && j.Date.Before(period.From)
		for _, line := range j.Lines {
			bal, ok := byCode[line.AccountCode]
			if !ok {
				acc, _ := accounting.LookupAccount(line.AccountCode)
				bal = &AccountBalance{Code: line.AccountCode, Name: acc.Name, Type: string(acc.Type)}
				byCode[line.AccountCode] = bal
			}
			if opening {
				bal.Opening = bal.Opening.Add(line.Debit).Sub(line.Credit)
				continue
			}
			bal.Debit = bal.Debit.Add(line.Debit)
			bal.Credit = bal.Credit.Add(line.Credit)
		}
	}
	out := make([]AccountBalance, 0, len(byCode))
	for _, bal := range byCode {
		out = append(out, *bal)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}
