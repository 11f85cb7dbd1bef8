package accounting

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/factorybooks/factorybooks/internal/money"
)

func journalOf(lines ...JournalLine) JournalEntry {
	return JournalEntry{ID: "j1", Status: JournalStatusDraft, Lines: lines, SourceKind: SourceEntry, SourceID: "TX-1"}
}

func dr(code, amount string) JournalLine {
	return JournalLine{AccountCode: code, Debit: money.MustParse(amount), Credit: decimal.Zero}
}

func cr(code, amount string) JournalLine {
	return JournalLine{AccountCode: code, Debit: decimal.Zero, Credit: money.MustParse(amount)}
}

func TestValidateUsesDecimalEpsilon(t *testing.T) {
	// 0.1 + 0.2 drifts in float64
	j := journalOf(dr(AccountCash, "0.1"), dr(AccountCash, "0.2"), cr(AccountSalesRevenue, "0.3"))
	require.NoError(t, j.Validate())

	j = journalOf(dr(AccountCash, "100.0009"), cr(AccountSalesRevenue, "100"))
	require.NoError(t, j.Validate())

	j = journalOf(dr(AccountCash, "100.001"), cr(AccountSalesRevenue, "100"))
	require.ErrorIs(t, j.Validate(), ErrUnbalanced)
}

func TestValidateRejectsMalformedLines(t *testing.T) {
	require.ErrorIs(t, journalOf(dr(AccountCash, "1")).Validate(), ErrTooFewLines)
	require.ErrorIs(t, journalOf(dr("", "1"), cr(AccountCash, "1")).Validate(), ErrInvalidLine)
	require.ErrorIs(t, journalOf(dr("9999", "1"), cr(AccountCash, "1")).Validate(), ErrInvalidLine)
	require.ErrorIs(t, journalOf(dr(AccountCash, "-1"), cr(AccountBank, "-1")).Validate(), ErrInvalidLine)

	both := JournalLine{AccountCode: AccountCash, Debit: money.FromInt(1), Credit: money.FromInt(1)}
	require.ErrorIs(t, journalOf(both, cr(AccountBank, "0")).Validate(), ErrInvalidLine)
}

func TestPostNeverPostsInvalidJournal(t *testing.T) {
	bad := journalOf(dr(AccountCash, "10"), cr(AccountSalesRevenue, "9"))
	out, err := Post(bad, postedOn)
	require.ErrorIs(t, err, ErrUnbalanced)
	require.Equal(t, JournalStatusDraft, out.Status)
	require.Nil(t, out.PostedAt)

	good := journalOf(dr(AccountCash, "10"), cr(AccountSalesRevenue, "10"))
	out, err = Post(good, postedOn)
	require.NoError(t, err)
	require.Equal(t, JournalStatusPosted, out.Status)

	_, err = Post(out, postedOn)
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestReverseLinksBothEntries(t *testing.T) {
	posted, err := Post(journalOf(dr(AccountReceivable, "250"), cr(AccountSalesRevenue, "250")), postedOn)
	require.NoError(t, err)

	original, reversal, err := Reverse(posted, postedOn, "u1")
	require.NoError(t, err)
	require.Equal(t, JournalStatusReversed, original.Status)
	require.Equal(t, reversal.ID, original.ReversedByID)
	require.Equal(t, original.ID, reversal.ReversesEntryID)
	require.Equal(t, JournalStatusPosted, reversal.Status)
	require.True(t, reversal.Lines[0].Credit.Equal(money.FromInt(250)))
	require.True(t, reversal.Lines[1].Debit.Equal(money.FromInt(250)))

	_, _, err = Reverse(original, postedOn, "u1")
	require.ErrorIs(t, err, ErrInvalidStatus)
}

func TestJournalIDIsDeterministic(t *testing.T) {
	require.Equal(t, JournalID(SourceEntry, "TX-1"), JournalID(SourceEntry, "TX-1"))
	require.NotEqual(t, JournalID(SourceEntry, "TX-1"), JournalID(SourcePayment, "TX-1"))
}
