// Package core provides the ledger domain model.
//
// This file contains amount parsing and display formatting. Amounts are
// shopspring decimals so sums carry exactly the precision of their inputs.
package core

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// leadingNumber matches the numeric prefix of a user-typed amount, the way
// a lenient float parser reads "12.5abc" as 12.5 and "1e3" as 1000.
var leadingNumber = regexp.MustCompile(`^\+?(\d+(?:\.\d*)?|\.\d+)(?:[eE]([+-]?\d+))?`)

// Exponents beyond the float64 range read as zero.
const (
	maxExponent = 308
	minExponent = -324
)

// ParseAmount converts free text into a non-negative decimal.
//
// It reads the longest numeric prefix, with a dot as the only decimal
// separator and an optional exponent. Anything that does not start with a
// number, including negative values, yields zero. It never fails.
//
// Examples:
//
//	ParseAmount("12.34")  -> 12.34
//	ParseAmount("12,34")  -> 12
//	ParseAmount("1e3")    -> 1000
//	ParseAmount("abc")    -> 0
//	ParseAmount("-3")     -> 0
func ParseAmount(s string) decimal.Decimal {
	m := leadingNumber.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return decimal.Zero
	}
	mantissa := strings.TrimSuffix(m[1], ".")
	if strings.HasPrefix(mantissa, ".") {
		mantissa = "0" + mantissa
	}

	d, err := decimal.NewFromString(mantissa)
	if err != nil || d.IsNegative() {
		return decimal.Zero
	}
	if m[2] != "" {
		exp, err := strconv.Atoi(m[2])
		if err != nil || exp > maxExponent || exp < minExponent {
			return decimal.Zero
		}
		d = d.Shift(int32(exp))
	}
	return d
}

// FormatAmount renders an amount with two decimals, e.g. "1250.00".
func FormatAmount(d decimal.Decimal) string {
	return d.StringFixed(2)
}

// FormatSigned renders an amount with the sign implied by its type:
// "+12.00" for income, "-12.00" for expense.
func FormatSigned(t Transaction) string {
	if t.Type == Income {
		return "+" + FormatAmount(t.Amount)
	}
	return "-" + FormatAmount(t.Amount)
}
