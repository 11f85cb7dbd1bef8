package cheques

import (
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/money"
)

var fixedNow = time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

func pendingCheque(dir Direction) Cheque {
	return Cheque{
		ID:                  "chq-1",
		Direction:           dir,
		Status:              StatusPending,
		AccountingType:      AccountingPostponed,
		Amount:              money.FromInt(500),
		LinkedTransactionID: "TX-1",
		AssociatedParty:     "Acme",
	}
}

func balanceOf(t *testing.T, party string, entries []ledger.LedgerEntry, payments []ledger.Payment) decimal.Decimal {
	t.Helper()
	var mine []ledger.LedgerEntry
	for _, e := range entries {
		if ledger.SameParty(e.AssociatedParty, party) {
			mine = append(mine, e)
		}
	}
	var paid []ledger.Payment
	for _, p := range payments {
		if ledger.SameParty(p.AssociatedParty, party) {
			paid = append(paid, p)
		}
	}
	bal, err := ledger.CalculateBalance(decimal.Zero, mine, paid)
	require.NoError(t, err)
	return bal
}

func TestClearIncomingCreatesReceipt(t *testing.T) {
	out, err := Transition(pendingCheque(Incoming), StatusCleared, TransitionInput{Now: fixedNow, NewID: sequentialIDs()})
	require.NoError(t, err)
	require.Equal(t, StatusCleared, out.Cheque.Status)
	require.Len(t, out.Payments, 1)
	require.Equal(t, ledger.PaymentReceipt, out.Payments[0].Type)
	require.Equal(t, []string{"id-1"}, out.Cheque.PaymentIDs)
	require.Equal(t, []Settlement{{TransactionID: "TX-1", Amount: money.FromInt(500)}}, out.Settlements)
}

func TestClearOutgoingCreatesDisbursement(t *testing.T) {
	out, err := Transition(pendingCheque(Outgoing), StatusCleared, TransitionInput{Now: fixedNow})
	require.NoError(t, err)
	require.Equal(t, ledger.PaymentDisbursement, out.Payments[0].Type)
	require.False(t, out.Payments[0].NoCashMovement)
}

func TestBounceNeverChangesBalance(t *testing.T) {
	for _, dir := range []Direction{Incoming, Outgoing} {
		t.Run(string(dir), func(t *testing.T) {
			entryType := ledger.TypeIncome
			if dir == Outgoing {
				entryType = ledger.TypeExpense
			}
			entries := []ledger.LedgerEntry{{TransactionID: "TX-1", Type: entryType, Category: "general", Amount: money.FromInt(500), AssociatedParty: "Acme"}}
			before := balanceOf(t, "Acme", entries, nil)

			out, err := Transition(pendingCheque(dir), StatusBounced, TransitionInput{Now: fixedNow})
			require.NoError(t, err)
			require.Equal(t, StatusBounced, out.Cheque.Status)
			require.Empty(t, out.Payments)
			require.Empty(t, out.Settlements)
			require.True(t, before.Equal(balanceOf(t, "Acme", entries, out.Payments)))
		})
	}
}

func TestEndorsementIsZeroSum(t *testing.T) {
	entries := []ledger.LedgerEntry{
		{TransactionID: "TX-1", Type: ledger.TypeIncome, Category: ledger.CategorySales, Amount: money.FromInt(500), AssociatedParty: "Acme"},
		{TransactionID: "TX-2", Type: ledger.TypeExpense, Category: ledger.CategoryPurchases, Amount: money.FromInt(800), AssociatedParty: "Steel Co"},
	}
	acmeBefore := balanceOf(t, "Acme", entries, nil)
	steelBefore := balanceOf(t, "Steel Co", entries, nil)

	out, err := Transition(pendingCheque(Incoming), StatusEndorsed, TransitionInput{Endorsee: "Steel Co", EndorseeTransactionID: "TX-2", Now: fixedNow, NewID: sequentialIDs()})
	require.NoError(t, err)
	require.Equal(t, StatusEndorsed, out.Cheque.Status)
	require.Equal(t, "Steel Co", out.Cheque.EndorsedTo)
	require.Len(t, out.Payments, 2)
	for _, p := range out.Payments {
		require.True(t, p.NoCashMovement)
		require.True(t, p.IsEndorsement)
	}
	require.Len(t, out.Settlements, 2)

	acmeDelta := balanceOf(t, "Acme", entries, out.Payments).Sub(acmeBefore)
	steelDelta := balanceOf(t, "Steel Co", entries, out.Payments).Sub(steelBefore)
	require.True(t, acmeDelta.Equal(money.FromInt(-500)))
	require.True(t, steelDelta.Equal(money.FromInt(500)))
	require.True(t, acmeDelta.Add(steelDelta).IsZero())
}

func TestEndorseRequiresEndorsee(t *testing.T) {
	_, err := Transition(pendingCheque(Incoming), StatusEndorsed, TransitionInput{Endorsee: "  "})
	require.ErrorIs(t, err, ErrEndorseeRequired)

	_, err = Transition(pendingCheque(Outgoing), StatusEndorsed, TransitionInput{Endorsee: "Steel Co"})
	require.ErrorIs(t, err, ErrEndorseOutgoing)

	_, err = Transition(pendingCheque(Incoming), StatusEndorsed, TransitionInput{Endorsee: "ACME"})
	require.ErrorIs(t, err, ErrEndorseSelf)

	_, err = Transition(pendingCheque(Incoming), StatusEndorsed, TransitionInput{Endorsee: "Steel Co", EndorseeTransactionID: "TX-1"})
	require.ErrorIs(t, err, ErrEndorseOwnEntry)
}

func TestTerminalStatesRejectTransitions(t *testing.T) {
	for _, status := range []Status{StatusCleared, StatusBounced, StatusEndorsed} {
		ch := pendingCheque(Incoming)
		ch.Status = status
		_, err := Transition(ch, StatusBounced, TransitionInput{})
		require.ErrorIs(t, err, ErrInvalidTransition)
	}
}

func TestCreateRunsAccountingTypeSubFlow(t *testing.T) {
	base := CreateInput{
		Direction:           Incoming,
		Amount:              money.FromInt(250),
		LinkedTransactionID: "TX-9",
		AssociatedParty:     "Acme",
		DueDate:             fixedNow.AddDate(0, 1, 0),
	}

	postponed := base
	postponed.AccountingType = AccountingPostponed
	out, err := Create(postponed, TransitionInput{Now: fixedNow})
	require.NoError(t, err)
	require.Equal(t, StatusPending, out.Cheque.Status)
	require.True(t, out.Cheque.AwaitingClearance())
	require.Empty(t, out.Payments)

	cashed := base
	cashed.AccountingType = AccountingCashed
	out, err = Create(cashed, TransitionInput{Now: fixedNow})
	require.NoError(t, err)
	require.Equal(t, StatusCleared, out.Cheque.Status)
	require.Len(t, out.Payments, 1)

	endorsed := base
	endorsed.AccountingType = AccountingEndorsed
	_, err = Create(endorsed, TransitionInput{Now: fixedNow})
	require.ErrorIs(t, err, ErrEndorseeRequired)

	endorsed.Endorsee = "Steel Co"
	out, err = Create(endorsed, TransitionInput{Now: fixedNow})
	require.NoError(t, err)
	require.Equal(t, StatusEndorsed, out.Cheque.Status)
	require.False(t, out.Cheque.AwaitingClearance())
	require.Len(t, out.Payments, 2)
}

func TestCreateValidatesInput(t *testing.T) {
	_, err := Create(CreateInput{Direction: Incoming, AccountingType: AccountingCashed, Amount: money.Zero, AssociatedParty: "Acme"}, TransitionInput{})
	require.ErrorIs(t, err, ErrInvalidCheque)

	_, err = Create(CreateInput{Direction: "sideways", AccountingType: AccountingCashed, Amount: money.FromInt(1), AssociatedParty: "Acme"}, TransitionInput{})
	require.ErrorIs(t, err, ErrInvalidCheque)

	_, err = Create(CreateInput{Direction: Incoming, AccountingType: AccountingCashed, Amount: money.FromInt(1)}, TransitionInput{})
	require.ErrorIs(t, err, ledger.ErrPartyRequired)

	_, err = Create(CreateInput{
		Direction:             Incoming,
		AccountingType:        AccountingEndorsed,
		Amount:                money.FromInt(1),
		AssociatedParty:       "Acme",
		LinkedTransactionID:   "TX-1",
		Endorsee:              "Steel Co",
		EndorseeTransactionID: "TX-1",
	}, TransitionInput{})
	require.ErrorIs(t, err, ErrEndorseOwnEntry)
}
