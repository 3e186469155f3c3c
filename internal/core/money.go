// Package core provides money parsing and handling utilities.
//
// This file contains functions for parsing signed amounts as they appear in
// bank exports and for the 2-decimal rounding applied to every stored total.
package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a bank export amount string to a signed float.
//
// It accepts currency symbols, thousands separators, a leading sign and
// accounting-style parentheses for negatives. Zero is rejected with
// ErrZeroAmount so callers can count it as skipped.
//
// Examples:
//   ParseAmount("12.34")     -> 12.34, nil
//   ParseAmount("-$1,200.5") -> -1200.5, nil
//   ParseAmount("(45.00)")   -> -45, nil
//   ParseAmount("0.00")      -> 0, ErrZeroAmount
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"")
	if s == "" {
		return 0, ErrInvalidAmount
	}

	negative := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		negative = true
		s = s[1 : len(s)-1]
	}
	s = strings.NewReplacer("$", "", ",", "", " ", "", "USD", "").Replace(s)
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	} else if strings.HasPrefix(s, "+") {
		s = s[1:]
	}
	// "-$5.00" leaves the sign ahead of the symbol, "$-5.00" after it.
	if strings.HasPrefix(s, "-") {
		negative = !negative
		s = s[1:]
	}
	if s == "" {
		return 0, ErrInvalidAmount
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if negative {
		d = d.Neg()
	}
	if d.IsZero() {
		return 0, ErrZeroAmount
	}
	return d.Round(2).InexactFloat64(), nil
}

// Round2 rounds half away from zero to two decimal places.
// Totals are rounded after every mutation so repeated add/subtract cycles
// do not accumulate floating-point drift.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}

// ApproxEqual reports whether two amounts match within one cent.
func ApproxEqual(a, b float64) bool {
	return decimal.NewFromFloat(a).Sub(decimal.NewFromFloat(b)).Abs().LessThanOrEqual(decimal.NewFromFloat(0.01))
}
