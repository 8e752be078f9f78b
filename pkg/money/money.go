// Package money holds the currency precision table and rounding rules used by
// every monetary computation.
package money

import (
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

const defaultMinorUnits = 2

var minorUnitsByCurrency = map[enums.Currency]int32{
	"BIF": 0, "CLP": 0, "DJF": 0, "GNF": 0, "ISK": 0,
	"JPY": 0, "KMF": 0, "KRW": 0, "PYG": 0, "RWF": 0,
	"UGX": 0, "VND": 0, "VUV": 0, "XAF": 0, "XOF": 0, "XPF": 0,
	"BHD": 3, "IQD": 3, "JOD": 3, "KWD": 3, "LYD": 3, "OMR": 3, "TND": 3,
}

// MinorUnits returns the number of decimal places used by currency.
func MinorUnits(currency enums.Currency) int32 {
	if units, ok := minorUnitsByCurrency[currency]; ok {
		return units
	}
	return defaultMinorUnits
}

// Round rounds half away from zero to the currency's minor units.
func Round(amount decimal.Decimal, currency enums.Currency) decimal.Decimal {
	return amount.Round(MinorUnits(currency))
}

// ToMinor converts amount to an integer count of minor units, e.g. cents.
func ToMinor(amount decimal.Decimal, currency enums.Currency) int64 {
	return Round(amount, currency).Shift(MinorUnits(currency)).IntPart()
}

// FromMinor converts an integer count of minor units back into an amount.
func FromMinor(minor int64, currency enums.Currency) decimal.Decimal {
	return decimal.New(minor, -MinorUnits(currency))
}

// Sum adds amounts without rounding.
func Sum(amounts ...decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total
}
