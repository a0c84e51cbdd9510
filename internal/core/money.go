// Package core provides money parsing and handling utilities.
//
// Amounts are held as integer cents. Decimal input (JSON numbers, form
// strings, bank statements) goes through shopspring/decimal so rounding is
// exact and half-up.
package core

import (
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// MaxCents caps a single amount at one hundred billion in major units, so
// month totals built from many amounts stay far from int64 overflow.
const MaxCents int64 = 10_000_000_000_000

var maxCents = decimal.NewFromInt(MaxCents)

// ParseDecimalToCents converts a decimal string to cents with proper rounding.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and performs
// half-up rounding on the third decimal place. The result is always positive cents.
//
// Examples:
//
//	ParseDecimalToCents("12.34") -> 1234, nil
//	ParseDecimalToCents("12,345") -> 1235, nil
//	ParseDecimalToCents("-1") -> 0, ErrInvalidAmount
func ParseDecimalToCents(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return 0, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	return DecimalToCents(d)
}

// DecimalToCents converts a positive decimal amount to cents, rounding half-up.
func DecimalToCents(d decimal.Decimal) (int64, error) {
	if !d.IsPositive() {
		return 0, ErrInvalidAmount
	}
	cents := d.Shift(2).Round(0)
	if cents.GreaterThan(maxCents) {
		return 0, ErrInvalidAmount
	}
	c := cents.IntPart()
	if c <= 0 {
		return 0, ErrInvalidAmount
	}
	return c, nil
}

// MoneyFromDecimal wraps DecimalToCents. Zero is accepted so budgets can be cleared.
func MoneyFromDecimal(d decimal.Decimal) (Money, error) {
	if d.IsZero() {
		return Money{}, nil
	}
	c, err := DecimalToCents(d)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: c}, nil
}

// MoneyFromRat converts a bank statement amount, dropping its sign.
func MoneyFromRat(r *big.Rat) (Money, error) {
	if r == nil {
		return Money{}, ErrInvalidAmount
	}
	d, err := decimal.NewFromString(new(big.Rat).Abs(r).FloatString(3))
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	c, err := DecimalToCents(d)
	if err != nil {
		return Money{}, err
	}
	return Money{Cents: c}, nil
}

func (m Money) Validate() error {
	if m.Cents <= 0 || m.Cents > MaxCents {
		return ErrInvalidAmount
	}
	return nil
}

// Decimal returns the amount in major units.
func (m Money) Decimal() decimal.Decimal {
	return decimal.NewFromInt(m.Cents).Shift(-2)
}

// Float returns the amount in major units for JSON output.
// Use cents for calculations.
func (m Money) Float() float64 {
	return m.Decimal().InexactFloat64()
}

// String renders the amount with two decimals, e.g. "12.30".
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// Format renders the amount followed by a currency code.
func (m Money) Format(currency string) string {
	if currency == "" {
		return m.String()
	}
	return m.String() + " " + currency
}
