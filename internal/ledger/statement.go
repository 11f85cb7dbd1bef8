package ledger

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// Statement row kinds.
const (
	RowEntry       = "entry"
	RowPayment     = "payment"
	RowEndorsement = "endorsement"
)

// StatementRow is one fully resolved line handed to exporters. Debit and
// credit already include discounts and write-offs, so exporters never
// re-derive accounting logic.
type StatementRow struct {
	Date          time.Time       `json:"date"`
	TransactionID string          `json:"transactionId"`
	Kind          string          `json:"kind"`
	Description   string          `json:"description"`
	Debit         decimal.Decimal `json:"debit"`
	Credit        decimal.Decimal `json:"credit"`
	Balance       decimal.Decimal `json:"balance"`
}

type statementLine struct {
	row       StatementRow
	createdAt time.Time
}

// Statement builds the running-balance rows for one counterparty. The last
// row's balance equals CalculateBalance for the same inputs. Rows with no
// effect (synthesized advances, payments absorbed by an advance) are omitted.
func Statement(opening decimal.Decimal, entries []LedgerEntry, payments []Payment) ([]StatementRow, error) {
	lines := make([]statementLine, 0, len(entries)+len(payments))
	for _, e := range entries {
		c, err := ClassifyEntry(e)
		if err != nil {
			return nil, err
		}
		eff := DeriveEntry(e, c)
		if eff.IsZero() {
			continue
		}
		desc := e.Description
		if desc == "" {
			desc = e.Category
		}
		lines = append(lines, statementLine{
			row: StatementRow{
				Date:          e.Date,
				TransactionID: e.TransactionID,
				Kind:          RowEntry,
				Description:   desc,
				Debit:         eff.TotalDebit(),
				Credit:        eff.TotalCredit(),
			},
			createdAt: e.CreatedAt,
		})
	}
	resolve := IndexClasses(entries)
	for _, p := range payments {
		eff := DerivePayment(p, resolve)
		if eff.IsZero() {
			continue
		}
		kind := RowPayment
		if p.IsEndorsement {
			kind = RowEndorsement
		}
		lines = append(lines, statementLine{
			row: StatementRow{
				Date:          p.Date,
				TransactionID: p.LinkedTransactionID,
				Kind:          kind,
				Description:   string(p.Type),
				Debit:         eff.TotalDebit(),
				Credit:        eff.TotalCredit(),
			},
			createdAt: p.CreatedAt,
		})
	}
	sort.SliceStable(lines, func(i, j int) bool {
		if !lines[i].row.Date.Equal(lines[j].row.Date) {
			return lines[i].row.Date.Before(lines[j].row.Date)
		}
		return lines[i].createdAt.Before(lines[j].createdAt)
	})
	rows := make([]StatementRow, len(lines))
	running := opening
	for i, l := range lines {
		running = running.Add(l.row.Debit).Sub(l.row.Credit)
		l.row.Balance = running
		rows[i] = l.row
	}
	return rows, nil
}
