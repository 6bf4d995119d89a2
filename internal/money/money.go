package money

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Cents is an amount in the settlement currency's minor unit.
// All balances and ledger math use whole cents; decimal is only used
// at the API boundary and for percentage arithmetic.
type Cents int64

var hundred = decimal.NewFromInt(100)

// Parse converts a user-supplied decimal string ("10000.00") to cents.
// More than two fractional digits is rejected rather than rounded.
func Parse(s string) (Cents, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Exponent() < -2 {
		return 0, fmt.Errorf("invalid amount %q: more than 2 decimal places", s)
	}
	return FromDecimal(d), nil
}

// FromDecimal rounds to 2 decimal places and converts to cents.
func FromDecimal(d decimal.Decimal) Cents {
	return Cents(d.Round(2).Mul(hundred).IntPart())
}

// Decimal returns the amount in major units.
func (c Cents) Decimal() decimal.Decimal {
	return decimal.New(int64(c), -2)
}

// String formats with exactly 2 decimal places, the form the gateway expects.
func (c Cents) String() string {
	return c.Decimal().StringFixed(2)
}
