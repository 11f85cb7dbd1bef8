package reports

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/accounting"
)

// JournalReader lists journals dated on or before a cut-off (zero means all).
type JournalReader interface {
	ListJournals(ctx context.Context, until time.Time) ([]accounting.JournalEntry, error)
}

// Service builds financial statements from posted journals.
type Service struct {
	reader JournalReader
	logger *slog.Logger
}

// NewService constructs the report service.
func NewService(reader JournalReader, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{reader: reader, logger: logger}
}

func (s *Service) balances(ctx context.Context, period Period) ([]AccountBalance, error) {
	journals, err := s.reader.ListJournals(ctx, period.To)
	if err != nil {
		return nil, err
	}
	return AccountBalances(journals, period), nil
}

// TrialBalance returns the trial balance for the period.
func (s *Service) TrialBalance(ctx context.Context, period Period) (TrialBalance, error) {
	accounts, err := s.balances(ctx, period)
	if err != nil {
		return TrialBalance{}, err
	}
	return BuildTrialBalance(accounts), nil
}

// ProfitAndLoss returns the income statement for the period.
func (s *Service) ProfitAndLoss(ctx context.Context, period Period) (ProfitAndLoss, error) {
	accounts, err := s.balances(ctx, period)
	if err != nil {
		return ProfitAndLoss{}, err
	}
	return BuildProfitAndLoss(accounts), nil
}

// BalanceSheet returns the position as of the given date.
func (s *Service) BalanceSheet(ctx context.Context, asOf time.Time) (BalanceSheet, error) {
	accounts, err := s.balances(ctx, Period{To: asOf})
	if err != nil {
		return BalanceSheet{}, err
	}
	return BuildBalanceSheet(accounts), nil
}

// IntegrityReport summarises a general ledger consistency check.
type IntegrityReport struct {
	Journals    int             `json:"journals"`
	Unbalanced  []string        `json:"unbalanced,omitempty"`
	Dangling    []string        `json:"dangling,omitempty"`
	TotalDebit  decimal.Decimal `json:"totalDebit"`
	TotalCredit decimal.Decimal `json:"totalCredit"`
}

// OK reports whether no inconsistency was found.
func (r IntegrityReport) OK() bool {
	return len(r.Unbalanced) == 0 && len(r.Dangling) == 0 && r.TotalDebit.Equal(r.TotalCredit)
}

// CheckIntegrity verifies every stored journal balances and that reversal
// links point both ways.
func (s *Service) CheckIntegrity(ctx context.Context) (IntegrityReport, error) {
	journals, err := s.reader.ListJournals(ctx, time.Time{})
	if err != nil {
		return IntegrityReport{}, err
	}
	byID := make(map[string]accounting.JournalEntry, len(journals))
	for _, j := range journals {
		byID[j.ID] = j
	}
	var report IntegrityReport
	for _, j := range journals {
		if j.Status == accounting.JournalStatusDraft {
			continue
		}
		report.Journals++
		if err := j.Validate(); err != nil {
			report.Unbalanced = append(report.Unbalanced, j.ID)
		}
		debit, credit := j.Totals()
		report.TotalDebit = report.TotalDebit.Add(debit)
		report.TotalCredit = report.TotalCredit.Add(credit)
		if j.Status == accounting.JournalStatusReversed {
			if rev, ok := byID[j.ReversedByID]; !ok || rev.ReversesEntryID != j.ID {
				report.Dangling = append(report.Dangling, j.ID)
			}
		}
	}
	if !report.OK() {
		s.logger.Warn("gl integrity check found issues",
			slog.Int("unbalanced", len(report.Unbalanced)),
			slog.Int("dangling", len(report.Dangling)),
			slog.String("debit", report.TotalDebit.String()),
			slog.String("credit", report.TotalCredit.String()))
	}
	return report, nil
}
