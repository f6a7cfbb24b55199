package util

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// WeiDecimals is the number of decimals of the native CELO unit.
const WeiDecimals = 18

// FormatUnits renders an integer base-unit amount with the given decimals,
// rounded to places fractional digits. The amount is never converted to a
// float.
func FormatUnits(amount string, decimals int32, places int32) (string, error) {
	d, err := decimal.NewFromString(amount)
	if err != nil {
		return "", fmt.Errorf("parse amount %q: %w", amount, err)
	}
	if !d.Equal(d.Truncate(0)) {
		return "", fmt.Errorf("amount %q is not an integer", amount)
	}
	return d.Shift(-decimals).StringFixed(places), nil
}

// FormatWei renders a wei amount as CELO with four decimals.
func FormatWei(wei string) (string, error) {
	return FormatUnits(wei, WeiDecimals, 4)
}

// FormatFixed renders f with places fractional digits using decimal rounding.
func FormatFixed(f float64, places int32) string {
	return decimal.NewFromFloat(f).StringFixed(places)
}
