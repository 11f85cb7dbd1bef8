package inventory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/money"
)

var day = time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

func stocked() Item {
	return Item{ID: "item-1", Name: "Steel sheet", Quantity: money.FromInt(10), UnitPrice: money.FromInt(100)}
}

func TestFirstReceiptUsesLandedCost(t *testing.T) {
	item, mv, err := Receive(Item{ID: "item-2", Name: "Bolt"}, true, ReceiptInput{
		Quantity:       money.FromInt(40),
		PurchaseAmount: money.FromInt(1000),
		Shipping:       money.FromInt(150),
		Other:          money.FromInt(50),
		Date:           day,
	})
	require.NoError(t, err)
	require.True(t, item.UnitPrice.Equal(money.FromInt(30)))
	require.True(t, item.Quantity.Equal(money.FromInt(40)))
	require.True(t, item.LastPurchasePrice.Equal(money.FromInt(30)))
	require.Equal(t, day, item.LastPurchaseDate)
	require.Equal(t, MovementReceipt, mv.Direction)
}

func TestWeightedAverageMonotonicity(t *testing.T) {
	higher, _, err := Receive(stocked(), false, ReceiptInput{Quantity: money.FromInt(5), UnitPrice: money.FromInt(120)})
	require.NoError(t, err)
	require.True(t, higher.UnitPrice.GreaterThan(money.FromInt(100)))
	require.True(t, higher.Quantity.Equal(money.FromInt(15)))

	lower, _, err := Receive(stocked(), false, ReceiptInput{Quantity: money.FromInt(5), UnitPrice: money.FromInt(80)})
	require.NoError(t, err)
	require.True(t, lower.UnitPrice.LessThan(money.FromInt(100)))

	same, _, err := Receive(stocked(), false, ReceiptInput{Quantity: money.FromInt(5), UnitPrice: money.FromInt(100)})
	require.NoError(t, err)
	require.True(t, same.UnitPrice.Equal(money.FromInt(100)))

	// a tiny price difference still moves the average
	nudged, _, err := Receive(stocked(), false, ReceiptInput{Quantity: money.FromInt(1), UnitPrice: money.MustParse("100.01")})
	require.NoError(t, err)
	require.True(t, nudged.UnitPrice.GreaterThan(money.FromInt(100)))
}

func TestIssueRejectsOverdraw(t *testing.T) {
	item := stocked()
	after, _, cost, err := Issue(item, IssueInput{Quantity: money.FromInt(11), IsSale: true})
	require.ErrorIs(t, err, ErrInsufficientQuantity)
	require.True(t, cost.IsZero())
	require.True(t, after.Quantity.Equal(item.Quantity))
	require.True(t, after.UnitPrice.Equal(item.UnitPrice))
}

func TestIssueComputesCost(t *testing.T) {
	item, _, err := Receive(stocked(), false, ReceiptInput{Quantity: money.FromInt(5), UnitPrice: money.FromInt(130)})
	require.NoError(t, err)
	require.True(t, item.UnitPrice.Equal(money.FromInt(110)))

	after, mv, cost, err := Issue(item, IssueInput{Quantity: money.FromInt(3), IsSale: true, TransactionID: "TX-S1"})
	require.NoError(t, err)
	require.True(t, cost.Equal(money.FromInt(330)))
	require.True(t, after.Quantity.Equal(money.FromInt(12)))
	require.True(t, after.UnitPrice.Equal(money.FromInt(110)))
	require.True(t, mv.IsSale)
	require.True(t, mv.UnitCost.Equal(money.FromInt(110)))
}

func TestReverseMovements(t *testing.T) {
	received, receipt, err := Receive(stocked(), false, ReceiptInput{Quantity: money.FromInt(10), UnitPrice: money.FromInt(200)})
	require.NoError(t, err)
	require.True(t, received.UnitPrice.Equal(money.FromInt(150)))

	restored, err := Reverse(received, receipt, day)
	require.NoError(t, err)
	require.True(t, restored.Quantity.Equal(money.FromInt(10)))
	require.True(t, restored.UnitPrice.Equal(money.FromInt(100)))

	issued, issue, _, err := Issue(stocked(), IssueInput{Quantity: money.FromInt(4)})
	require.NoError(t, err)
	back, err := Reverse(issued, issue, day)
	require.NoError(t, err)
	require.True(t, back.Quantity.Equal(money.FromInt(10)))
	require.True(t, back.UnitPrice.Equal(money.FromInt(100)))

	drained, _, _, err := Issue(received, IssueInput{Quantity: money.FromInt(15)})
	require.NoError(t, err)
	_, err = Reverse(drained, receipt, day)
	require.ErrorIs(t, err, ErrInsufficientQuantity)
}

func TestCOGSEntry(t *testing.T) {
	sale := ledger.LedgerEntry{TransactionID: "TX-S1", Type: ledger.TypeIncome, Category: ledger.CategorySales, Amount: money.FromInt(500), AssociatedParty: "Acme", Date: day}
	cogs := COGSEntry(sale, money.FromInt(330), day)
	require.Equal(t, "TX-S1-COGS", cogs.TransactionID)
	require.Equal(t, "TX-S1", cogs.SourceTransactionID)
	require.True(t, cogs.IsAutoGenerated)
	require.Empty(t, cogs.AssociatedParty)

	c, err := ledger.ClassifyEntry(cogs)
	require.NoError(t, err)
	require.Equal(t, ledger.ClassOrdinary, c.Class)
	require.False(t, c.ExcludedFromPL)
}

func TestReceiptValidation(t *testing.T) {
	_, _, err := Receive(stocked(), false, ReceiptInput{Quantity: money.Zero, UnitPrice: money.FromInt(1)})
	require.ErrorIs(t, err, ErrInvalidQuantity)
	_, _, err = Receive(stocked(), false, ReceiptInput{Quantity: money.FromInt(1), UnitPrice: money.FromInt(-1)})
	require.ErrorIs(t, err, ErrInvalidPrice)
}
