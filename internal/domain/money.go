/**
 * @description
 * Exact decimal-to-cents conversion for request intake. Client-facing APIs accept
 * amounts as decimal strings ("40.00"); internally every amount is an int64 cent
 * value. Conversion goes through shopspring/decimal so no binary floating point
 * ever touches a monetary value.
 */

package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// ErrAmountPrecision indicates an amount finer than the ledger's currency
// precision (two decimal places).
var ErrAmountPrecision = errors.New("amount has more than two decimal places")

// ErrAmountNotPositive indicates a zero or negative amount.
var ErrAmountNotPositive = errors.New("amount must be greater than zero")

// ErrAmountTooLarge indicates a cent value outside the int64 ledger range.
var ErrAmountTooLarge = errors.New("amount exceeds the supported maximum")

var centFactor = decimal.NewFromInt(100)

// ParseAmount converts a decimal-string amount into cents. It rejects
// non-positive values and anything not representable at two decimal places.
func ParseAmount(raw string) (int64, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return 0, err
	}
	if !d.IsPositive() {
		return 0, ErrAmountNotPositive
	}
	cents := d.Mul(centFactor)
	if !cents.IsInteger() {
		return 0, ErrAmountPrecision
	}
	// IntPart silently wraps outside int64 range; check before converting.
	if !cents.BigInt().IsInt64() {
		return 0, ErrAmountTooLarge
	}
	return cents.IntPart(), nil
}

// FormatAmount renders cents as a decimal string for receipts and responses.
func FormatAmount(cents int64) string {
	return decimal.NewFromInt(cents).Div(centFactor).StringFixed(2)
}
