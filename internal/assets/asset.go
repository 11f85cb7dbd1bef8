// Package assets values fixed assets bought through capital expenditure.
package assets

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/factorybooks/factorybooks/internal/money"
	"github.com/factorybooks/factorybooks/internal/shared"
)

// Method is the depreciation method.
type Method string

const (
	StraightLine Method = "straight-line"
	Declining    Method = "declining"
)

var (
	ErrInvalidAsset     = fmt.Errorf("%w: assets: invalid fixed asset", shared.ErrValidation)
	ErrFullyDepreciated = fmt.Errorf("%w: assets: asset is fully depreciated", shared.ErrValidation)
	ErrAssetNotFound    = fmt.Errorf("%w: fixed asset", shared.ErrNotFound)
)

// FixedAsset is a long-lived asset carried on the balance sheet.
type FixedAsset struct {
	ID                      string          `json:"id"`
	Name                    string          `json:"name"`
	TransactionID           string          `json:"transactionId"`
	PurchaseAmount          decimal.Decimal `json:"purchaseAmount"`
	UsefulLifeYears         int             `json:"usefulLifeYears"`
	SalvageValue            decimal.Decimal `json:"salvageValue"`
	DepreciationMethod      Method          `json:"depreciationMethod"`
	AccumulatedDepreciation decimal.Decimal `json:"accumulatedDepreciation"`
	BookValue               decimal.Decimal `json:"bookValue"`
	PurchaseDate            time.Time       `json:"purchaseDate"`
	LastDepreciatedAt       *time.Time      `json:"lastDepreciatedAt,omitempty"`
}

// Input carries the asset details captured with a capital expenditure entry.
type Input struct {
	Name               string
	UsefulLifeYears    int
	SalvageValue       decimal.Decimal
	DepreciationMethod Method
}

// New builds an asset for a purchase.
func New(transactionID string, purchase decimal.Decimal, date time.Time, in Input) (FixedAsset, error) {
	a := FixedAsset{
		ID:                 uuid.NewString(),
		Name:               in.Name,
		TransactionID:      transactionID,
		PurchaseAmount:     purchase,
		UsefulLifeYears:    in.UsefulLifeYears,
		SalvageValue:       in.SalvageValue,
		DepreciationMethod: in.DepreciationMethod,
		PurchaseDate:       date,
	}
	if a.DepreciationMethod == "" {
		a.DepreciationMethod = StraightLine
	}
	a.BookValue = a.PurchaseAmount
	return a, a.Validate()
}

// Validate checks the asset's parameters.
func (a FixedAsset) Validate() error {
	if !a.PurchaseAmount.IsPositive() {
		return fmt.Errorf("%w: purchase amount must be positive", ErrInvalidAsset)
	}
	if a.UsefulLifeYears <= 0 {
		return fmt.Errorf("%w: useful life must be at least one year", ErrInvalidAsset)
	}
	if a.SalvageValue.IsNegative() || a.SalvageValue.GreaterThan(a.PurchaseAmount) {
		return fmt.Errorf("%w: salvage value must be between zero and the purchase amount", ErrInvalidAsset)
	}
	switch a.DepreciationMethod {
	case StraightLine, Declining:
	default:
		return fmt.Errorf("%w: unknown depreciation method %q", ErrInvalidAsset, a.DepreciationMethod)
	}
	return nil
}

// AnnualDepreciation is the charge for a full year at the current book value.
// Straight-line spreads (purchase - salvage) evenly; declining applies the
// double-declining rate 2/life to the book value.
func AnnualDepreciation(a FixedAsset) decimal.Decimal {
	life := decimal.NewFromInt(int64(a.UsefulLifeYears))
	switch a.DepreciationMethod {
	case Declining:
		rate, err := money.Div(decimal.NewFromInt(2), life)
		if err != nil {
			return decimal.Zero
		}
		return a.BookValue.Mul(rate)
	default:
		annual, err := money.Div(a.PurchaseAmount.Sub(a.SalvageValue), life)
		if err != nil {
			return decimal.Zero
		}
		return annual
	}
}

// Depreciate charges months of depreciation. The charge is rounded to cents
// and capped so book value never drops below salvage.
func Depreciate(a FixedAsset, months int, at time.Time) (FixedAsset, decimal.Decimal, error) {
	if months <= 0 {
		return a, decimal.Zero, fmt.Errorf("%w: months must be positive", ErrInvalidAsset)
	}
	headroom := a.BookValue.Sub(a.SalvageValue)
	if !headroom.IsPositive() {
		return a, decimal.Zero, ErrFullyDepreciated
	}
	charge := money.Round(AnnualDepreciation(a).Mul(decimal.NewFromInt(int64(months))).Div(decimal.NewFromInt(12)))
	charge = money.Min(charge, headroom)
	a.AccumulatedDepreciation = a.AccumulatedDepreciation.Add(charge)
	a.BookValue = a.PurchaseAmount.Sub(a.AccumulatedDepreciation)
	a.LastDepreciatedAt = &at
	return a, charge, nil
}
