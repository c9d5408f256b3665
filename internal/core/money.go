// Package core provides money parsing and formatting utilities.
//
// Amounts are kept as decimals in the ledger; drafts carry float64 so that
// non-finite input from the renderer or an import can be rejected.
package core

import (
	"errors"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

var ErrInvalidAmount = errors.New("invalid amount")

var currencySymbols = map[string]string{
	"USD": "$",
	"EUR": "€",
	"GBP": "£",
	"CAD": "C$",
}

// ParseAmount converts a bank-statement amount to a signed float.
//
// It accepts an optional leading sign, a currency symbol, thousands
// separators and accounting parentheses for negatives.
//
// Examples:
//   ParseAmount("-5.50")     -> -5.5
//   ParseAmount("$1,200.00") -> 1200
//   ParseAmount("(45.00)")   -> -45
func ParseAmount(s string) (float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, ErrInvalidAmount
	}
	neg := false
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	if strings.HasPrefix(s, "-") {
		neg = !neg
		s = strings.TrimSpace(s[1:])
	} else if strings.HasPrefix(s, "+") {
		s = strings.TrimSpace(s[1:])
	}
	for _, sym := range []string{"C$", "$", "€", "£"} {
		s = strings.TrimPrefix(s, sym)
	}
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || strings.ContainsAny(s, "+-eE") {
		return 0, ErrInvalidAmount
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, ErrInvalidAmount
	}
	if err := ValidateAmount(v); err != nil {
		return 0, err
	}
	if neg {
		v = -v
	}
	return v, nil
}

// FormatCurrency formats an amount as e.g. "-$1,149.50". Unknown currency
// codes are used as a prefix.
func FormatCurrency(amount decimal.Decimal, currency string) string {
	sym, ok := currencySymbols[strings.ToUpper(currency)]
	if !ok {
		sym = strings.ToUpper(currency) + " "
	}
	s := amount.Abs().StringFixed(2)
	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	out := sym + b.String() + "." + frac
	if amount.IsNegative() && !amount.Round(2).IsZero() {
		return "-" + out
	}
	return out
}

// FormatPercent formats a 0-100 value with the given number of decimals.
func FormatPercent(value float64, decimals int) string {
	return strconv.FormatFloat(value, 'f', decimals, 64) + "%"
}
