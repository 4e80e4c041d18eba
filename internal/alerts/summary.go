// Package alerts turns close recommendations into alerts, renders them
// through templates and delivers them to notification channels.
package alerts

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/util"
)

// MaxAnnualizedYield caps the yield quoted in guidance; near expiry the
// raw figure explodes.
const MaxAnnualizedYield = 500.0

var (
	sharesPerContract = decimal.NewFromInt(100)
	hundred           = decimal.NewFromInt(100)
	daysPerYear       = decimal.NewFromInt(365)
)

// AnnualizedYield returns premium/underlying scaled to a year, in percent.
// The second return is false when the figure is undefined or outside
// [0, MaxAnnualizedYield].
func AnnualizedYield(premium, underlying float64, dte int) (float64, bool) {
	if dte <= 0 || underlying <= 0 || premium < 0 {
		return 0, false
	}
	y := util.Decimal(premium).
		Div(util.Decimal(underlying)).
		Mul(daysPerYear).
		Div(decimal.NewFromInt(int64(dte))).
		Mul(hundred)
	f, _ := y.Round(2).Float64()
	if f < 0 || f > MaxAnnualizedYield {
		return 0, false
	}
	return f, true
}

// Summarize explains in dollars what acting on the recommendation means:
// the net result of closing now, how much of the credit that keeps, and
// guidance framed by the account's risk profile.
func Summarize(rec *models.Recommendation) string {
	m := rec.Metrics
	shares := sharesPerContract.Mul(decimal.NewFromInt(int64(rec.Contracts)))
	entry := util.Decimal(m.EntryPremium)
	current := util.Decimal(m.CurrentPrice)
	net := util.Decimal(m.PLDollars).Round(2)

	if m.PLPercent < 0 {
		return fmt.Sprintf(
			"Closing now would realize a %s loss (%s). Avoid locking in the loss: wait for time decay to work or roll out to a later expiration for a net credit.",
			util.FormatUSD(net.Abs()), util.FormatPercent(m.PLPercent))
	}

	if rec.Direction == models.DirectionLong {
		return fmt.Sprintf("Closing now nets %s (%s on the %s paid).",
			util.FormatUSD(net), util.FormatPercent(m.PLPercent), util.FormatUSD(entry.Mul(shares)))
	}

	credit := entry.Mul(shares)
	captured := decimal.Zero
	if entry.IsPositive() {
		captured = entry.Sub(current).Div(entry).Mul(hundred)
	}
	capturedPct, _ := captured.Float64()
	remaining := current.Mul(shares)

	var b strings.Builder
	fmt.Fprintf(&b, "Closing now nets %s, capturing %s of the %s credit.",
		util.FormatUSD(net), util.FormatPercent(capturedPct), util.FormatUSD(credit))

	conservative := fmt.Sprintf(" Conservative: buy to close and bank the gain rather than risk the last %s.",
		util.FormatUSD(remaining))
	aggressive := fmt.Sprintf(" Aggressive: hold for the remaining %s of premium", util.FormatUSD(remaining))
	if y, ok := AnnualizedYield(m.CurrentPrice, m.UnderlyingPrice, m.DTE); ok {
		aggressive += fmt.Sprintf(", about %s annualized.", util.FormatPercent(y))
	} else {
		aggressive += "."
	}

	switch strings.ToLower(rec.RiskLevel) {
	case "aggressive", "high":
		b.WriteString(aggressive)
	case "conservative", "low":
		b.WriteString(conservative)
	default:
		b.WriteString(conservative)
		b.WriteString(aggressive)
	}
	return b.String()
}
