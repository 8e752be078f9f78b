package enums

import (
	"fmt"
	"strings"
)

// Currency is an ISO 4217 alphabetic code. Conversion between currencies is
// never performed; amounts only combine when their codes are equal.
type Currency string

const (
	CurrencyUSD Currency = "USD"
	CurrencyEUR Currency = "EUR"
	CurrencyGBP Currency = "GBP"
	CurrencyCAD Currency = "CAD"
	CurrencyJPY Currency = "JPY"
	CurrencyKWD Currency = "KWD"
)

// String implements fmt.Stringer.
func (c Currency) String() string {
	return string(c)
}

// IsValid reports whether the value is shaped like an ISO 4217 code.
func (c Currency) IsValid() bool {
	if len(c) != 3 {
		return false
	}
	for _, r := range c {
		if r < 'A' || r > 'Z' {
			return false
		}
	}
	return true
}

// ParseCurrency normalizes case and whitespace before validating.
func ParseCurrency(value string) (Currency, error) {
	candidate := Currency(strings.ToUpper(strings.TrimSpace(value)))
	if !candidate.IsValid() {
		return "", fmt.Errorf("invalid currency %q", value)
	}
	return candidate, nil
}
