package utils

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// ParseBaseUnits parses an exact base-unit decimal string. Empty input is zero.
func ParseBaseUnits(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid base unit amount %q: %w", s, err)
	}
	return d, nil
}

// BaseUnitsOrZero is ParseBaseUnits that maps malformed input to zero.
func BaseUnitsOrZero(s string) decimal.Decimal {
	d, err := ParseBaseUnits(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// FromBaseUnits divides a base-unit amount by 10^precision and renders it
// with at most places fractional digits.
// Example: s="1234500000000000000", precision=18, places=8 => "1.2345"
func FromBaseUnits(s string, precision uint8, places int32) string {
	return BaseUnitsOrZero(s).Shift(-int32(precision)).Truncate(places).String()
}

// BigIntToBaseUnits renders a big.Int as a base-unit string; nil is "0".
func BigIntToBaseUnits(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}
