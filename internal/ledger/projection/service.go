// Package projection serves read-only views of counterparty balances. Views
// are folded from the stored documents on every miss and cached in Redis
// under a versioned key that each posting bumps.
package projection

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/factorybooks/factorybooks/internal/cheques"
	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/shared"
)

// Reader exposes the documents a balance is folded from.
type Reader interface {
	GetParty(ctx context.Context, name string) (ledger.Party, error)
	PutParty(ctx context.Context, p ledger.Party) error
	ListParties(ctx context.Context) ([]ledger.Party, error)
	ListEntries(ctx context.Context) ([]ledger.LedgerEntry, error)
	ListEntriesByParty(ctx context.Context, name string) ([]ledger.LedgerEntry, error)
	ListPaymentsByParty(ctx context.Context, name string) ([]ledger.Payment, error)
	ListChequesByParty(ctx context.Context, name string) ([]cheques.Cheque, error)
}

// OpenItem is an AR/AP entry that still has something outstanding.
type OpenItem struct {
	TransactionID    string               `json:"transactionId"`
	Date             time.Time            `json:"date"`
	Type             string               `json:"type"`
	Category         string               `json:"category"`
	Amount           decimal.Decimal      `json:"amount"`
	TotalPaid        decimal.Decimal      `json:"totalPaid"`
	RemainingBalance decimal.Decimal      `json:"remainingBalance"`
	PaymentStatus    ledger.PaymentStatus `json:"paymentStatus"`
}

// PendingCheque is a cheque that has not cleared, bounced or been endorsed.
type PendingCheque struct {
	ID           string            `json:"id"`
	ChequeNumber string            `json:"chequeNumber,omitempty"`
	Direction    cheques.Direction `json:"direction"`
	Amount       decimal.Decimal   `json:"amount"`
	DueDate      time.Time         `json:"dueDate"`
}

// PartyBalance is the read-only balance view of one counterparty. Balance is
// positive when the counterparty owes us.
type PartyBalance struct {
	Party            string           `json:"party"`
	Kind             ledger.PartyKind `json:"kind,omitempty"`
	OpeningBalance   decimal.Decimal  `json:"openingBalance"`
	Balance          decimal.Decimal  `json:"balance"`
	ProjectedBalance decimal.Decimal  `json:"projectedBalance"`
	PendingCheques   []PendingCheque  `json:"pendingCheques"`
	OpenItems        []OpenItem       `json:"openItems"`
}

// AgingReport buckets open items by age.
type AgingReport struct {
	Party      string             `json:"party,omitempty"`
	AsOf       time.Time          `json:"asOf"`
	Receivable ledger.AgingBucket `json:"receivable"`
	Payable    ledger.AgingBucket `json:"payable"`
}

// BalanceService folds and caches balance projections.
type BalanceService struct {
	reader Reader
	cache  *Cache
	now    func() time.Time
}

// NewBalanceService wires the service. cache may be nil.
func NewBalanceService(reader Reader, cache *Cache) *BalanceService {
	return &BalanceService{reader: reader, cache: cache, now: func() time.Time { return time.Now().UTC() }}
}

// WithNow overrides the clock for testing.
func (s *BalanceService) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

type partyDocs struct {
	party    ledger.Party
	entries  []ledger.LedgerEntry
	payments []ledger.Payment
	cheques  []cheques.Cheque
}

// load reads everything stored for a counterparty. An unknown name with no
// documents is reported as not found.
func (s *BalanceService) load(ctx context.Context, name string) (partyDocs, error) {
	var docs partyDocs
	party, err := s.reader.GetParty(ctx, name)
	known := err == nil
	switch {
	case known:
		docs.party = party
	case errors.Is(err, ledger.ErrPartyNotFound):
		docs.party = ledger.Party{Name: strings.TrimSpace(name)}
	default:
		return docs, err
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		docs.entries, err = s.reader.ListEntriesByParty(gctx, name)
		return err
	})
	g.Go(func() (err error) {
		docs.payments, err = s.reader.ListPaymentsByParty(gctx, name)
		return err
	})
	g.Go(func() (err error) {
		docs.cheques, err = s.reader.ListChequesByParty(gctx, name)
		return err
	})
	if err := g.Wait(); err != nil {
		return docs, err
	}
	if !known && len(docs.entries) == 0 && len(docs.payments) == 0 && len(docs.cheques) == 0 {
		return docs, fmt.Errorf("%w: %s", ledger.ErrPartyNotFound, name)
	}
	return docs, nil
}

func buildBalance(docs partyDocs) (PartyBalance, error) {
	balance, err := ledger.CalculateBalance(docs.party.OpeningBalance, docs.entries, docs.payments)
	if err != nil {
		return PartyBalance{}, err
	}
	out := PartyBalance{
		Party:            docs.party.Name,
		Kind:             docs.party.Kind,
		OpeningBalance:   docs.party.OpeningBalance,
		Balance:          balance,
		ProjectedBalance: ledger.ProjectedBalance(balance, docs.cheques),
		PendingCheques:   []PendingCheque{},
		OpenItems:        []OpenItem{},
	}
	for _, ch := range docs.cheques {
		if !ch.AwaitingClearance() {
			continue
		}
		out.PendingCheques = append(out.PendingCheques, PendingCheque{
			ID:           ch.ID,
			ChequeNumber: ch.ChequeNumber,
			Direction:    ch.Direction,
			Amount:       ch.Amount,
			DueDate:      ch.DueDate,
		})
	}
	for _, e := range docs.entries {
		if !ledger.Outstanding(e).IsPositive() {
			continue
		}
		out.OpenItems = append(out.OpenItems, OpenItem{
			TransactionID:    e.TransactionID,
			Date:             e.Date,
			Type:             e.Type,
			Category:         e.Category,
			Amount:           e.Amount,
			TotalPaid:        e.TotalPaid,
			RemainingBalance: e.RemainingBalance,
			PaymentStatus:    e.PaymentStatus,
		})
	}
	return out, nil
}

// PartyBalance returns the balance view of a counterparty.
func (s *BalanceService) PartyBalance(ctx context.Context, name string) (PartyBalance, error) {
	key, err := s.key(ctx, "balance", name)
	if err != nil {
		return PartyBalance{}, err
	}
	var out PartyBalance
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		docs, err := s.load(ctx, name)
		if err != nil {
			return nil, err
		}
		return buildBalance(docs)
	})
	return out, err
}

// Statement returns the running-balance rows of a counterparty.
func (s *BalanceService) Statement(ctx context.Context, name string) ([]ledger.StatementRow, error) {
	key, err := s.key(ctx, "statement", name)
	if err != nil {
		return nil, err
	}
	var rows []ledger.StatementRow
	err = s.cache.FetchJSON(ctx, key, &rows, func(ctx context.Context) (any, error) {
		docs, err := s.load(ctx, name)
		if err != nil {
			return nil, err
		}
		rows, err := ledger.Statement(docs.party.OpeningBalance, docs.entries, docs.payments)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			rows = []ledger.StatementRow{}
		}
		return rows, nil
	})
	return rows, err
}

// Aging buckets the open items of one counterparty, or of every
// counterparty when name is empty.
func (s *BalanceService) Aging(ctx context.Context, name string, asOf time.Time) (AgingReport, error) {
	if asOf.IsZero() {
		asOf = s.now()
	}
	asOf = asOf.UTC().Truncate(24 * time.Hour)
	key, err := s.key(ctx, "aging:"+asOf.Format("2006-01-02"), name)
	if err != nil {
		return AgingReport{}, err
	}
	var out AgingReport
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		var (
			entries []ledger.LedgerEntry
			err     error
		)
		if strings.TrimSpace(name) == "" {
			entries, err = s.reader.ListEntries(ctx)
		} else {
			entries, err = s.reader.ListEntriesByParty(ctx, name)
		}
		if err != nil {
			return nil, err
		}
		recv, pay := ledger.Aging(entries, asOf)
		return AgingReport{Party: strings.TrimSpace(name), AsOf: asOf, Receivable: recv, Payable: pay}, nil
	})
	return out, err
}

// IncomeStatement folds revenue and expenses of every entry dated between
// from and to. Zero bounds are open.
func (s *BalanceService) IncomeStatement(ctx context.Context, from, to time.Time) (ledger.IncomeSummary, error) {
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		return ledger.IncomeSummary{}, fmt.Errorf("%w: period ends before it starts", shared.ErrValidation)
	}
	key, err := s.cache.BuildKey(ctx, "reports", "income", dayKey(from), dayKey(to))
	if err != nil {
		return ledger.IncomeSummary{}, err
	}
	var out ledger.IncomeSummary
	err = s.cache.FetchJSON(ctx, key, &out, func(ctx context.Context) (any, error) {
		entries, err := s.reader.ListEntries(ctx)
		if err != nil {
			return nil, err
		}
		return ledger.IncomeStatement(entries, from, to)
	})
	return out, err
}

func dayKey(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}

// PutParty records a counterparty's kind and opening balance.
func (s *BalanceService) PutParty(ctx context.Context, p ledger.Party) (ledger.Party, error) {
	p.Name = strings.TrimSpace(p.Name)
	if ledger.PartyKey(p.Name) == "" {
		return ledger.Party{}, ledger.ErrPartyRequired
	}
	switch p.Kind {
	case "":
		p.Kind = ledger.PartyOther
	case ledger.PartyCustomer, ledger.PartySupplier, ledger.PartyPartner, ledger.PartyOther:
	default:
		return ledger.Party{}, fmt.Errorf("%w: unknown party kind %q", shared.ErrValidation, p.Kind)
	}
	if err := s.reader.PutParty(ctx, p); err != nil {
		return ledger.Party{}, err
	}
	if err := s.cache.Bump(ctx); err != nil {
		return p, err
	}
	return p, nil
}

// Parties lists the recorded counterparties.
func (s *BalanceService) Parties(ctx context.Context) ([]ledger.Party, error) {
	return s.reader.ListParties(ctx)
}

func (s *BalanceService) key(ctx context.Context, view, name string) (string, error) {
	party := ledger.PartyKey(name)
	if party == "" {
		party = "-"
	}
	return s.cache.BuildKey(ctx, "balances", view, party)
}
