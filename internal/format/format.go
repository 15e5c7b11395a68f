// Package format renders money and decimal odds for display.
package format

import (
	"math"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/shopspring/decimal"
)

// Currency formats an amount as "$1,234.56".
func Currency(amount float64) string {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return "-"
	}
	rounded := Round2(amount)
	if rounded < 0 {
		return "-$" + humanize.FormatFloat("#,###.##", -rounded)
	}
	return "$" + humanize.FormatFloat("#,###.##", rounded)
}

// Odds formats decimal odds with two decimals, or "-" when not a finite number.
func Odds(odds float64) string {
	if math.IsNaN(odds) || math.IsInf(odds, 0) {
		return "-"
	}
	return strconv.FormatFloat(odds, 'f', 2, 64)
}

// Round2 rounds half away from zero to cents.
func Round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
