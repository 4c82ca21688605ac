// Package types provides common type aliases and utilities.
package types

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Quantity represents a counted amount with full precision.
// Uses decimal.Decimal because the ERP serializes quantities as strings
// ("10", "7.500") and discrepancy deltas must be exact, never floating point.
type Quantity = decimal.Decimal

// ZeroQuantity returns zero Quantity value.
func ZeroQuantity() Quantity {
	return decimal.Zero
}

// ParseQuantity parses an ERP quantity string. The ERP occasionally pads
// numeric fields with whitespace and uses the empty string for "not counted";
// both parse to zero without error.
func ParseQuantity(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return ZeroQuantity(), nil
	}
	return decimal.NewFromString(s)
}

// MustQuantity creates a Quantity from a string, panics on error.
// Use only for constants and tests.
func MustQuantity(s string) Quantity {
	d, err := ParseQuantity(s)
	if err != nil {
		panic(err)
	}
	return d
}
