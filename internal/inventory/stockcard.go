package inventory

import (
	"time"

	"github.com/shopspring/decimal"
)

// StockCardEntry is one row of an item's stock card with running balances.
type StockCardEntry struct {
	MovementID    string            `json:"movementId"`
	TransactionID string            `json:"transactionId"`
	Direction     MovementDirection `json:"direction"`
	PostedAt      time.Time         `json:"postedAt"`
	QtyIn         decimal.Decimal   `json:"qtyIn"`
	QtyOut        decimal.Decimal   `json:"qtyOut"`
	UnitCost      decimal.Decimal   `json:"unitCost"`
	BalanceQty    decimal.Decimal   `json:"balanceQty"`
	BalanceCost   decimal.Decimal   `json:"balanceCost"`
}

// StockCard folds movements, oldest first, into running balances.
func StockCard(movements []Movement) []StockCardEntry {
	out := make([]StockCardEntry, 0, len(movements))
	qty, cost := decimal.Zero, decimal.Zero
	for _, mv := range movements {
		row := StockCardEntry{
			MovementID:    mv.ID,
			TransactionID: mv.TransactionID,
			Direction:     mv.Direction,
			PostedAt:      mv.CreatedAt,
			UnitCost:      mv.UnitCost,
			QtyIn:         decimal.Zero,
			QtyOut:        decimal.Zero,
		}
		value := mv.Quantity.Mul(mv.UnitCost)
		if mv.Direction == MovementIssue {
			row.QtyOut = mv.Quantity
			qty = qty.Sub(mv.Quantity)
			cost = cost.Sub(value)
		} else {
			row.QtyIn = mv.Quantity
			qty = qty.Add(mv.Quantity)
			cost = cost.Add(value)
		}
		row.BalanceQty = qty
		row.BalanceCost = cost
		out = append(out, row)
	}
	return out
}
