// Package money holds the monetary primitives shared by the calculation
// packages: currency codes, the zakat rate, and the single rounding rule.
package money

import (
	"strings"

	"github.com/shopspring/decimal"

	dErrors "zakat/pkg/domain-errors"
)

// ZakatRate is 2.5% of zakatable wealth.
var ZakatRate = decimal.RequireFromString("0.025")

// Currency is an upper-case ISO 4217 code.
type Currency string

// ParseCurrency normalizes and validates a three-letter currency code.
func ParseCurrency(s string) (Currency, error) {
	c := strings.ToUpper(strings.TrimSpace(s))
	if len(c) != 3 {
		return "", dErrors.Newf(dErrors.CodeValidation, "invalid currency %q", s)
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return "", dErrors.Newf(dErrors.CodeValidation, "invalid currency %q", s)
		}
	}
	return Currency(c), nil
}

func (c Currency) String() string { return string(c) }

// Round2 rounds to cents, half away from zero. Banker's rounding would
// under-report obligations on exact half-cent amounts.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Max returns the larger of a and b.
func Max(a, b decimal.Decimal) decimal.Decimal {
	if a.GreaterThan(b) {
		return a
	}
	return b
}

// NonNegative floors d at zero.
func NonNegative(d decimal.Decimal) decimal.Decimal {
	return Max(d, decimal.Zero)
}
