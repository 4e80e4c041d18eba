// Package util provides money rounding and formatting helpers shared by the
// alert summarizer and formatter.
package util

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
)

// Decimal converts a float, mapping NaN and infinities to zero.
func Decimal(x float64) decimal.Decimal {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(x)
}

// RoundToTick rounds x to the nearest multiple of tick, half away from zero.
// Non-finite inputs and non-positive ticks return x unchanged.
func RoundToTick(x, tick float64) float64 {
	if tick <= 0 || math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	t := decimal.NewFromFloat(tick)
	f, _ := decimal.NewFromFloat(x).Div(t).Round(0).Mul(t).Float64()
	return f
}

// FormatUSD renders d as dollars with thousands separators, e.g. "-$1,234.50".
func FormatUSD(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() && !d.Round(2).IsZero() {
		sign = "-"
	}
	fixed := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")
	return sign + "$" + groupThousands(whole) + "." + frac
}

// FormatPercent renders a percentage with one decimal, e.g. "12.5%".
func FormatPercent(pct float64) string {
	return Decimal(pct).StringFixed(1) + "%"
}

func groupThousands(digits string) string {
	if len(digits) <= 3 {
		return digits
	}
	var b strings.Builder
	lead := len(digits) % 3
	if lead > 0 {
		b.WriteString(digits[:lead])
	}
	for i := lead; i < len(digits); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}
