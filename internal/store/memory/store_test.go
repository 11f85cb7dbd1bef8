package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/posting"
	"github.com/factorybooks/factorybooks/internal/shared"
)

func entry(id string, amount int64) ledger.LedgerEntry {
	return ledger.LedgerEntry{
		ID:               id,
		TransactionID:    id,
		Type:             ledger.TypeIncome,
		Category:         "Sales",
		Date:             time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		Amount:           decimal.NewFromInt(amount),
		IsARAPEntry:      true,
		RemainingBalance: decimal.NewFromInt(amount),
		PaymentStatus:    ledger.PaymentUnpaid,
		AssociatedParty:  "Acme",
	}
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	boom := errors.New("boom")

	err := s.WithinTx(ctx, func(ctx context.Context, tx posting.Tx) error {
		require.NoError(t, tx.InsertEntry(ctx, entry("TX-1", 100)))
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetEntry(ctx, "TX-1")
	require.ErrorIs(t, err, ledger.ErrEntryNotFound)
	require.Equal(t, 0, s.Commits())
}

func TestWithinTxEnforcesDocumentLimit(t *testing.T) {
	s := New(2)
	ctx := context.Background()

	err := s.WithinTx(ctx, func(ctx context.Context, tx posting.Tx) error {
		for _, id := range []string{"TX-1", "TX-2", "TX-3"} {
			if err := tx.InsertEntry(ctx, entry(id, 10)); err != nil {
				return err
			}
		}
		return nil
	})
	require.ErrorIs(t, err, ErrTooManyWrites)
	require.ErrorIs(t, err, shared.ErrStorage)

	entries, err := s.ListEntries(ctx)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestInjectFaultExpires(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	unavailable := errors.New("unavailable")
	s.InjectFault("InsertEntry", unavailable, 1)

	insert := func(id string) error {
		return s.WithinTx(ctx, func(ctx context.Context, tx posting.Tx) error {
			return tx.InsertEntry(ctx, entry(id, 10))
		})
	}
	require.ErrorIs(t, insert("TX-1"), unavailable)
	require.NoError(t, insert("TX-1"))
	require.ErrorIs(t, insert("TX-1"), posting.ErrDuplicateTransaction)
}

func TestSettleEntryRecomputesBalance(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx posting.Tx) error {
		return tx.InsertEntry(ctx, entry("TX-1", 1000))
	}))

	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx posting.Tx) error {
		_, err := tx.SettleEntry(ctx, "TX-1", decimal.NewFromInt(400))
		return err
	}))

	got, err := s.GetEntry(ctx, "TX-1")
	require.NoError(t, err)
	require.True(t, got.RemainingBalance.Equal(decimal.NewFromInt(600)))
	require.Equal(t, ledger.PaymentPartial, got.PaymentStatus)
}

func TestListByPartyIsCaseInsensitive(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx posting.Tx) error {
		e := entry("TX-1", 10)
		e.AssociatedParty = "  ACME "
		return tx.InsertEntry(ctx, e)
	}))

	entries, err := s.ListEntriesByParty(ctx, "acme")
	require.NoError(t, err)
	require.Len(t, entries, 1)
}

func TestListDueIntentsSkipsFutureAndTerminal(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, s.WithinTx(ctx, func(ctx context.Context, tx posting.Tx) error {
		for _, in := range []posting.JournalIntent{
			{ID: "due", Status: posting.IntentPending, NextAttemptAt: now.Add(-time.Minute)},
			{ID: "later", Status: posting.IntentFailed, NextAttemptAt: now.Add(time.Hour)},
			{ID: "done", Status: posting.IntentSucceeded, NextAttemptAt: now.Add(-time.Hour)},
		} {
			if err := tx.InsertIntent(ctx, in); err != nil {
				return err
			}
		}
		return nil
	}))

	due, err := s.ListDueIntents(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, "due", due[0].ID)
}

func TestWithinTxReplaysSerializationFailures(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.InjectFault("InsertEntry", ErrSerialization, 1)

	runs := 0
	err := s.WithinTx(ctx, func(ctx context.Context, tx posting.Tx) error {
		runs++
		return tx.InsertEntry(ctx, entry("TX-1", 100))
	})
	require.NoError(t, err)
	require.Equal(t, 2, runs)
	require.Equal(t, 1, s.Commits())

	s.InjectFault("InsertEntry", ErrSerialization, txAttempts)
	err = s.WithinTx(ctx, func(ctx context.Context, tx posting.Tx) error {
		return tx.InsertEntry(ctx, entry("TX-2", 100))
	})
	require.ErrorIs(t, err, shared.ErrConflict)
	_, err = s.GetEntry(ctx, "TX-2")
	require.ErrorIs(t, err, shared.ErrNotFound)
}
