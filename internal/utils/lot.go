package utils

import (
	"math"
)

// TruncateToLot rounds size down to a whole number of lots. A non-positive
// lot size leaves the size untouched.
func TruncateToLot(size, lotSize float64) float64 {
	if lotSize <= 0 {
		return size
	}

	// the epsilon absorbs division noise like 1/0.001 = 999.999...
	lots := math.Floor(size/lotSize + 1e-9)
	if lots <= 0 {
		return 0
	}

	return lots * lotSize
}

// RoundToDecimalPrecision floors a quantity to the given number of decimal
// places, matching venue quantity filters.
func RoundToDecimalPrecision(quantity float64, decimalPrecision int) float64 {
	multiplier := math.Pow10(decimalPrecision)

	return math.Floor(quantity*multiplier) / multiplier
}
