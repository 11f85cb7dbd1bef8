// Package money wraps shopspring/decimal with the handful of operations the
// bookkeeping engine needs. Amounts never pass through float64.
package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// DivisionPrecision is the number of fractional digits kept by Div.
const DivisionPrecision = 16

// CurrencyPlaces is the scale used when an amount is presented or posted.
const CurrencyPlaces = 2

// Epsilon is the tolerance used when comparing balances that should net to zero.
var Epsilon = decimal.New(1, -3)

// Cent is the smallest posted amount.
var Cent = decimal.New(1, -CurrencyPlaces)

// Zero is the additive identity.
var Zero = decimal.Zero

// Parse converts a string amount into a decimal.
func Parse(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("money: parse %q: %w", s, err)
	}
	return d, nil
}

// MustParse is Parse for constants and tests.
func MustParse(s string) decimal.Decimal {
	d, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return d
}

// FromInt returns n as a decimal.
func FromInt(n int64) decimal.Decimal {
	return decimal.NewFromInt(n)
}

// Add returns a + b.
func Add(a, b decimal.Decimal) decimal.Decimal { return a.Add(b) }

// Sub returns a - b.
func Sub(a, b decimal.Decimal) decimal.Decimal { return a.Sub(b) }

// Mul returns a * b.
func Mul(a, b decimal.Decimal) decimal.Decimal { return a.Mul(b) }

// Div returns a / b rounded to DivisionPrecision digits. Division by zero
// returns an error instead of panicking.
func Div(a, b decimal.Decimal) (decimal.Decimal, error) {
	if b.IsZero() {
		return decimal.Zero, fmt.Errorf("money: division by zero")
	}
	return a.DivRound(b, DivisionPrecision), nil
}

// Sum adds all values.
func Sum(values ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total
}

// Round rounds to currency precision using banker's rounding.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(CurrencyPlaces)
}

// NearlyEqual reports whether |a-b| < Epsilon.
func NearlyEqual(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThan(Epsilon)
}

// IsPositive reports whether d > 0.
func IsPositive(d decimal.Decimal) bool { return d.GreaterThan(decimal.Zero) }

// IsNegative reports whether d < 0.
func IsNegative(d decimal.Decimal) bool { return d.LessThan(decimal.Zero) }

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
