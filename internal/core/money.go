// Package core holds the trip, family and expense types shared by every
// layer, together with money parsing helpers.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Money is an amount in cents. Stored amounts are always whole cents;
// fractional values only appear inside settlement arithmetic.
type Money struct {
	Cents int64
}

var maxCents = decimal.NewFromInt(1<<53 - 1)

// ParseDecimalToCents converts a decimal string to cents.
//
// Both dot (12.34) and comma (12,34) separators are accepted. Digits past
// the second decimal place are rounded half-up. Signs, exponents, zero and
// negative amounts are rejected with ErrInvalidAmount.
//
// Examples:
//
//	ParseDecimalToCents("12.34")  -> 1234, nil
//	ParseDecimalToCents("12,345") -> 1235, nil
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" || strings.ContainsAny(s, "+-eE") {
		return 0, ErrInvalidAmount
	}
	if strings.HasPrefix(s, ".") {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if !cents.IsPositive() || cents.GreaterThan(maxCents) {
		return 0, ErrInvalidAmount
	}
	return cents.IntPart(), nil
}

// FromDecimal rounds a decimal amount to the nearest cent.
func FromDecimal(d decimal.Decimal) Money {
	return Money{Cents: d.Shift(2).Round(0).IntPart()}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the amount in currency units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// String formats the amount with two decimal places, e.g. "12.34".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}
