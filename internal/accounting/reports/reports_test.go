package reports

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/factorybooks/factorybooks/internal/accounting"
	"github.com/factorybooks/factorybooks/internal/money"
	_ "github.com/factorybooks/factorybooks/internal/testing/guard"
)

func d(v int64) decimal.Decimal { return money.FromInt(v) }

func TestBuildTrialBalance(t *testing.T) {
	accounts := []AccountBalance{
		{Code: "1000", Name: "Cash", Type: "ASSET", Opening: d(1000), Debit: d(200), Credit: d(150)},
		{Code: "1010", Name: "Bank", Type: "ASSET", Opening: d(500), Debit: d(100), Credit: d(50)},
		{Code: "2000", Name: "Accounts Payable", Type: "LIABILITY", Opening: d(0), Debit: d(10), Credit: d(400)},
	}

	tb := BuildTrialBalance(accounts)
	if len(tb.Groups) != 2 {
		t.Fatalf("expected 2 groups, got %d", len(tb.Groups))
	}
	if !tb.TotalDebit.Equal(d(310)) {
		t.Fatalf("unexpected total debit: %v", tb.TotalDebit)
	}
	if !tb.TotalCredit.Equal(d(600)) {
		t.Fatalf("unexpected total credit: %v", tb.TotalCredit)
	}
	if !tb.TotalOpening.Equal(d(1500)) {
		t.Fatalf("unexpected total opening: %v", tb.TotalOpening)
	}
	if !tb.TotalClosing.Equal(d(1210)) {
		t.Fatalf("unexpected closing total: %v", tb.TotalClosing)
	}
	if tb.Balanced {
		t.Fatalf("expected unbalanced trial balance")
	}
}

func TestBuildProfitAndLoss(t *testing.T) {
	accounts := []AccountBalance{
		{Code: "4000", Name: "Sales", Type: "REVENUE", Credit: d(1200)},
		{Code: "5000", Name: "COGS", Type: "EXPENSE", Debit: d(300)},
		{Code: "5100", Name: "Marketing", Type: "EXPENSE", Debit: d(200)},
		{Code: "1500", Name: "Fixed Assets", Type: "ASSET", Debit: d(5000)},
	}

	pl := BuildProfitAndLoss(accounts)
	if !pl.Revenue.Total.Equal(d(1200)) {
		t.Fatalf("expected revenue total 1200 got %v", pl.Revenue.Total)
	}
	if !pl.Expense.Total.Equal(d(500)) {
		t.Fatalf("expected expense total 500 got %v", pl.Expense.Total)
	}
	if !pl.NetIncome.Equal(d(700)) {
		t.Fatalf("expected net income 700 got %v", pl.NetIncome)
	}
}

type staticReader []accounting.JournalEntry

func (s staticReader) ListJournals(_ context.Context, until time.Time) ([]accounting.JournalEntry, error) {
	var out []accounting.JournalEntry
	for _, j := range s {
		if until.IsZero() || !j.Date.After(until) {
			out = append(out, j)
		}
	}
	return out, nil
}

func posted(t *testing.T, id string, date time.Time, lines ...accounting.JournalLine) accounting.JournalEntry {
	t.Helper()
	j, err := accounting.Post(accounting.JournalEntry{ID: id, Status: accounting.JournalStatusDraft, Date: date, Lines: lines}, date)
	require.NoError(t, err)
	return j
}

func line(code string, debit, credit int64) accounting.JournalLine {
	return accounting.JournalLine{AccountCode: code, Debit: d(debit), Credit: d(credit)}
}

func TestStatementsFromJournals(t *testing.T) {
	jan := time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC)
	feb := time.Date(2026, 2, 15, 0, 0, 0, 0, time.UTC)
	journals := staticReader{
		posted(t, "j1", jan, line(accounting.AccountCash, 10000, 0), line(accounting.AccountOwnerCapital, 0, 10000)),
		posted(t, "j2", feb, line(accounting.AccountFixedAssets, 5000, 0), line(accounting.AccountCash, 0, 5000)),
		posted(t, "j3", feb, line(accounting.AccountReceivable, 1200, 0), line(accounting.AccountSalesRevenue, 0, 1200)),
		posted(t, "j4", feb, line(accounting.AccountCOGS, 400, 0), line(accounting.AccountInventory, 0, 400)),
		posted(t, "j5", feb, line(accounting.AccountDepreciationExpense, 100, 0), line(accounting.AccountAccumulatedDepreciation, 0, 100)),
	}
	svc := NewService(journals, nil)
	ctx := context.Background()

	febOnly := Period{From: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	pl, err := svc.ProfitAndLoss(ctx, febOnly)
	require.NoError(t, err)
	require.True(t, pl.Revenue.Total.Equal(d(1200)))
	require.True(t, pl.Expense.Total.Equal(d(500)))
	require.True(t, pl.NetIncome.Equal(d(700)))

	tb, err := svc.TrialBalance(ctx, febOnly)
	require.NoError(t, err)
	require.True(t, tb.Balanced)
	require.True(t, tb.TotalOpening.IsZero())

	bs, err := svc.BalanceSheet(ctx, time.Time{})
	require.NoError(t, err)
	require.True(t, bs.Balanced, "assets %s vs %s", bs.Assets.Total, bs.TotalLiabilitiesAndEquity)
	require.True(t, bs.Assets.Total.Equal(d(10700)))

	report, err := svc.CheckIntegrity(ctx)
	require.NoError(t, err)
	require.True(t, report.OK())
	require.Equal(t, 5, report.Journals)
}

func TestIntegrityFlagsDanglingReversal(t *testing.T) {
	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	j := posted(t, "j1", day, line(accounting.AccountCash, 50, 0), line(accounting.AccountSalesRevenue, 0, 50))
	j.Status = accounting.JournalStatusReversed
	j.ReversedByID = "missing"

	report, err := NewService(staticReader{j}, nil).CheckIntegrity(context.Background())
	require.NoError(t, err)
	require.False(t, report.OK())
	require.Equal(t, []string{"j1"}, report.Dangling)
}
