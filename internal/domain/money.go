package domain

import (
	"fmt"
	"math"
	"strings"
)

// Supported settlement currencies and their minor-unit exponents.
var currencyExponents = map[string]int{
	"EUR": 2,
	"USD": 2,
	"GBP": 2,
	"CHF": 2,
}

// ValidCurrency reports whether the code is a supported ISO currency.
func ValidCurrency(code string) bool {
	_, ok := currencyExponents[strings.ToUpper(code)]
	return ok
}

// ParseAmount converts a decimal string ("45.00") to integer minor units for
// the currency. It rejects unknown currencies, malformed numbers, negative
// values and excess fractional digits; money never goes through float64.
func ParseAmount(s, currency string) (int64, error) {
	exp, ok := currencyExponents[strings.ToUpper(currency)]
	if !ok {
		return 0, fmt.Errorf("unsupported currency %q", currency)
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("amount required")
	}
	if strings.HasPrefix(s, "-") {
		return 0, fmt.Errorf("amount must not be negative")
	}
	whole, frac := s, ""
	if i := strings.IndexByte(s, '.'); i >= 0 {
		whole, frac = s[:i], s[i+1:]
	}
	if whole == "" {
		whole = "0"
	}
	if len(frac) > exp {
		return 0, fmt.Errorf("amount %s has more than %d decimal places", s, exp)
	}
	for len(frac) < exp {
		frac += "0"
	}
	var units int64
	for _, r := range whole + frac {
		if r < '0' || r > '9' {
			return 0, fmt.Errorf("invalid amount %q", s)
		}
		digit := int64(r - '0')
		if units > (math.MaxInt64-digit)/10 {
			return 0, fmt.Errorf("amount %s out of range", s)
		}
		units = units*10 + digit
	}
	return units, nil
}

// Commission returns the platform cut of units at bps basis points, rounded
// down to a whole minor unit. Decomposed so the product never overflows.
func Commission(units int64, bps int) int64 {
	b := int64(bps)
	return (units/10000)*b + (units%10000)*b/10000
}

// FormatAmount renders minor units as a decimal string for the currency.
func FormatAmount(units int64, currency string) string {
	exp, ok := currencyExponents[strings.ToUpper(currency)]
	if !ok || exp == 0 {
		return fmt.Sprintf("%d", units)
	}
	div := int64(1)
	for i := 0; i < exp; i++ {
		div *= 10
	}
	sign := ""
	if units < 0 {
		sign = "-"
		units = -units
	}
	return fmt.Sprintf("%s%d.%0*d", sign, units/div, exp, units%div)
}
