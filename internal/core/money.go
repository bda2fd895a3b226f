// Package core provides money parsing and handling utilities.
//
// Amounts are decimal.Decimal throughout; floats appear only in derived
// percentages meant for display.
package core

import (
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// BalanceEpsilon is the smallest balance change worth an adjustment entry.
var BalanceEpsilon = decimal.New(1, -2)

var hundred = decimal.NewFromInt(100)

// ParseAmount converts a user supplied decimal string to a non-negative
// amount, as used by the amount range filters.
//
// It accepts both dot (12.34) and comma (12,34) separators. Signs, exponents
// and anything non-numeric are rejected with ErrMalformedAmount.
//
// Examples:
//
//	ParseAmount("12.34") -> 12.34, nil
//	ParseAmount("12,5")  -> 12.5, nil
//	ParseAmount("-1")    -> 0, ErrMalformedAmount
func ParseAmount(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	if s == "" || strings.Count(s, ".") > 1 {
		return decimal.Zero, ErrMalformedAmount
	}
	for _, r := range s {
		if r != '.' && !unicode.IsDigit(r) {
			return decimal.Zero, ErrMalformedAmount
		}
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, ErrMalformedAmount
	}
	return d, nil
}

// Percent returns part/whole*100, or 0 when whole is zero.
func Percent(part, whole decimal.Decimal) float64 {
	if whole.IsZero() {
		return 0
	}
	return part.Div(whole).Mul(hundred).InexactFloat64()
}

// CappedPercent is Percent limited to 100.
func CappedPercent(part, whole decimal.Decimal) float64 {
	return math.Min(100, Percent(part, whole))
}

// Round2 rounds a display figure to two decimals.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
