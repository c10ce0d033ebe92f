// Package ledger reconciles itemised cash breakdowns against a declared
// total. It performs no I/O.
package ledger

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rayenfassatoui/amen-bank/internal/apperr"
)

// DenominationType distinguishes bank notes from coins.
type DenominationType string

const (
	Bill DenominationType = "BILL"
	Coin DenominationType = "COIN"
)

// Valid reports whether t is a known denomination type.
func (t DenominationType) Valid() bool {
	return t == Bill || t == Coin
}

// DefaultTolerance absorbs rounding between the declared total and the sum of lines.
var DefaultTolerance = decimal.RequireFromString("0.01")

// AmountScale is the number of fraction digits an amount may carry. The
// millime is the smallest TND unit and amounts are stored as NUMERIC(15, 3).
const AmountScale = 3

// MaxAmount is the largest amount NUMERIC(15, 3) holds.
var MaxAmount = decimal.RequireFromString("999999999999.999")

// Line is one row of a cash breakdown.
type Line struct {
	Type         DenominationType `json:"denominationType"`
	Denomination decimal.Decimal  `json:"denomination"`
	Quantity     int64            `json:"quantity"`
	TotalValue   decimal.Decimal  `json:"totalValue"`
}

// LineTotal returns denomination × quantity. Quantity is an integer so the
// product is exact.
func LineTotal(l Line) decimal.Decimal {
	return l.Denomination.Mul(decimal.NewFromInt(l.Quantity))
}

// ComputeTotal sums the recomputed value of every line. Supplied TotalValue
// fields are ignored.
func ComputeTotal(lines []Line) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(LineTotal(l))
	}
	return total
}

// ValidateMatches reports whether the lines sum to declared within tolerance.
func ValidateMatches(lines []Line, declared, tolerance decimal.Decimal) bool {
	return ComputeTotal(lines).Sub(declared).Abs().LessThan(tolerance)
}

// Normalize checks each line, drops zero-quantity lines and overwrites
// TotalValue with the recomputed product. At least one line must remain.
func Normalize(lines []Line, catalog Catalog) ([]Line, error) {
	out := make([]Line, 0, len(lines))
	for i, l := range lines {
		if !l.Type.Valid() {
			return nil, apperr.Validation(fmt.Sprintf("denominationDetails[%d].denominationType", i), "denomination type must be BILL or COIN")
		}
		if !l.Denomination.IsPositive() {
			return nil, apperr.Validation(fmt.Sprintf("denominationDetails[%d].denomination", i), "denomination must be positive")
		}
		if l.Quantity < 0 {
			return nil, apperr.Validation(fmt.Sprintf("denominationDetails[%d].quantity", i), "quantity must be at least 0")
		}
		if !catalog.Allows(l.Type, l.Denomination) {
			return nil, apperr.Validation(fmt.Sprintf("denominationDetails[%d].denomination", i),
				fmt.Sprintf("%s %s is not an issued denomination", l.Denomination.String(), l.Type))
		}
		if l.Quantity == 0 {
			continue
		}
		l.TotalValue = LineTotal(l)
		out = append(out, l)
	}
	if len(out) == 0 {
		return nil, apperr.Validation("denominationDetails", "at least one denomination with a positive quantity is required")
	}
	return out, nil
}

// Reconcile normalises lines and verifies they add up to declared. It
// returns the lines to persist.
func Reconcile(lines []Line, declared decimal.Decimal, catalog Catalog) ([]Line, error) {
	if !declared.IsPositive() {
		return nil, apperr.Validation("totalAmount", "total amount must be positive")
	}
	if !declared.Equal(declared.Truncate(AmountScale)) {
		return nil, apperr.Validation("totalAmount", fmt.Sprintf("total amount may have at most %d decimal places", AmountScale))
	}
	if declared.GreaterThan(MaxAmount) {
		return nil, apperr.Validation("totalAmount", "total amount is too large")
	}
	normalized, err := Normalize(lines, catalog)
	if err != nil {
		return nil, err
	}
	if !ValidateMatches(normalized, declared, DefaultTolerance) {
		return nil, apperr.WithMetadata(apperr.KindValidation,
			"sum of denomination totals must equal the total amount",
			map[string]string{
				"field":    "totalAmount",
				"declared": declared.String(),
				"computed": ComputeTotal(normalized).String(),
			})
	}
	return normalized, nil
}
