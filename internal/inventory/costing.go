package inventory

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/ledger"
	"github.com/factorybooks/factorybooks/internal/money"
)

// LandedUnitPrice returns the per-unit cost of a receipt.
func LandedUnitPrice(in ReceiptInput) (decimal.Decimal, error) {
	if !in.Quantity.IsPositive() {
		return decimal.Zero, ErrInvalidQuantity
	}
	if in.UnitPrice.IsNegative() || in.PurchaseAmount.IsNegative() || in.Shipping.IsNegative() || in.Other.IsNegative() {
		return decimal.Zero, ErrInvalidPrice
	}
	if in.PurchaseAmount.IsZero() {
		return in.UnitPrice, nil
	}
	return money.Div(money.Sum(in.PurchaseAmount, in.Shipping, in.Other), in.Quantity)
}

// Receive books stock into item. isNew marks the first receipt of an item
// that does not exist yet. The new cost is (Q*C + q*p) / (Q+q).
func Receive(item Item, isNew bool, in ReceiptInput) (Item, Movement, error) {
	price, err := LandedUnitPrice(in)
	if err != nil {
		return item, Movement{}, err
	}
	now := in.Date
	if now.IsZero() {
		now = time.Now().UTC()
	}
	if isNew || !item.Quantity.IsPositive() {
		item.UnitPrice = price
		item.Quantity = in.Quantity
	} else {
		total := item.Quantity.Mul(item.UnitPrice).Add(in.Quantity.Mul(price))
		newQty := item.Quantity.Add(in.Quantity)
		avg, err := money.Div(total, newQty)
		if err != nil {
			return item, Movement{}, err
		}
		item.Quantity = newQty
		item.UnitPrice = avg
	}
	item.LastPurchasePrice = price
	item.LastPurchaseDate = now
	item.UpdatedAt = now
	mv := Movement{
		ID:            uuid.NewString(),
		ItemID:        item.ID,
		Direction:     MovementReceipt,
		Quantity:      in.Quantity,
		UnitCost:      price,
		TransactionID: in.TransactionID,
		CreatedAt:     now,
	}
	return item, mv, nil
}

// Issue takes stock out of item at its current cost. It returns the cost of
// the issued quantity, which the caller books as COGS for sales. The item is
// returned unchanged on error.
func Issue(item Item, in IssueInput) (Item, Movement, decimal.Decimal, error) {
	if !in.Quantity.IsPositive() {
		return item, Movement{}, decimal.Zero, ErrInvalidQuantity
	}
	if in.Quantity.GreaterThan(item.Quantity) {
		return item, Movement{}, decimal.Zero, fmt.Errorf("%w: %s has %s, requested %s", ErrInsufficientQuantity, item.Name, item.Quantity, in.Quantity)
	}
	now := in.Date
	if now.IsZero() {
		now = time.Now().UTC()
	}
	cost := money.Round(in.Quantity.Mul(item.UnitPrice))
	item.Quantity = item.Quantity.Sub(in.Quantity)
	item.UpdatedAt = now
	mv := Movement{
		ID:            uuid.NewString(),
		ItemID:        item.ID,
		Direction:     MovementIssue,
		Quantity:      in.Quantity,
		UnitCost:      item.UnitPrice,
		TransactionID: in.TransactionID,
		IsSale:        in.IsSale,
		CreatedAt:     now,
	}
	return item, mv, cost, nil
}

// Reverse undoes a movement when its transaction is deleted. Reversing a
// receipt whose stock has already been issued is rejected.
func Reverse(item Item, mv Movement, now time.Time) (Item, error) {
	switch mv.Direction {
	case MovementReceipt:
		if mv.Quantity.GreaterThan(item.Quantity) {
			return item, fmt.Errorf("%w: cannot reverse receipt of %s for %s", ErrInsufficientQuantity, mv.Quantity, item.Name)
		}
		newQty := item.Quantity.Sub(mv.Quantity)
		if newQty.IsPositive() {
			remaining := item.Quantity.Mul(item.UnitPrice).Sub(mv.Quantity.Mul(mv.UnitCost))
			avg, err := money.Div(remaining, newQty)
			if err != nil {
				return item, err
			}
			item.UnitPrice = money.Max(avg, decimal.Zero)
		}
		item.Quantity = newQty
	case MovementIssue:
		newQty := item.Quantity.Add(mv.Quantity)
		total := item.Quantity.Mul(item.UnitPrice).Add(mv.Quantity.Mul(mv.UnitCost))
		avg, err := money.Div(total, newQty)
		if err != nil {
			return item, err
		}
		item.Quantity = newQty
		item.UnitPrice = avg
	default:
		return item, fmt.Errorf("inventory: unknown movement direction %q", mv.Direction)
	}
	item.UpdatedAt = now
	return item, nil
}

// COGSSuffix is appended to a sale's transaction id to key its COGS entry.
const COGSSuffix = "-COGS"

// COGSEntry builds the auto-generated cost-of-goods-sold expense for a sale.
// It has no counterparty, so it never touches a client balance, and it is
// flagged so that it is not itself treated as an inventory movement.
func COGSEntry(sale ledger.LedgerEntry, cost decimal.Decimal, now time.Time) ledger.LedgerEntry {
	return ledger.LedgerEntry{
		ID:                  uuid.NewString(),
		TransactionID:       sale.TransactionID + COGSSuffix,
		Type:                ledger.TypeExpense,
		Category:            ledger.CategoryCOGS,
		Description:         "Cost of goods sold for " + sale.TransactionID,
		Date:                sale.Date,
		Amount:              cost,
		SourceTransactionID: sale.TransactionID,
		IsAutoGenerated:     true,
		CreatedAt:           now,
		CreatedBy:           sale.CreatedBy,
	}
}
