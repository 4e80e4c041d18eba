package scanner

import (
	"fmt"
	"math"
	"time"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// Roll signal labels for short calls.
const (
	RollSignalNearStrike = "YES - near strike"
	RollSignalMonitor    = "Monitor"
	RollSignalNone       = "No action needed"
)

// assignmentSpread controls how quickly the assignment curve saturates,
// in percent of strike.
const assignmentSpread = 2.5

// Snapshot freezes the numbers for one position at scan time.
func Snapshot(pos *models.Position, m *models.OptionMetrics, mc *models.MarketConditions, now time.Time) models.MetricsSnapshot {
	snap := models.MetricsSnapshot{
		CurrentPrice:      m.Price,
		UnderlyingPrice:   m.UnderlyingPrice,
		EntryPremium:      pos.Premium,
		PLPercent:         pos.ProfitPercent(m.Price),
		PLDollars:         pos.ProfitDollars(m.Price),
		ImpliedVolatility: m.ImpliedVolatility,
		IntrinsicValue:    m.IntrinsicValue,
		TimeValue:         m.TimeValue,
		DTE:               pos.CalculateDTE(now),
	}
	if mc != nil {
		snap.VixLevel = mc.VixLevel
	}

	if m.UnderlyingPrice > 0 {
		dist := DistanceToStrike(pos.OptionType, pos.Strike, m.UnderlyingPrice)
		snap.DistanceToStrikePercent = dist
		snap.MoneynessStatus = MoneynessStatus(dist)
		if pos.IsShortCall() {
			prob := AssignmentProbability(pos.Strike, m.UnderlyingPrice)
			snap.AssignmentProbability = &prob
			snap.RollSignal = RollSignal(pos.Strike, m.UnderlyingPrice)
		}
	}
	return snap
}

// DistanceToStrike returns how far the underlying is out of the money, in
// percent of the underlying price. Negative values are in the money.
func DistanceToStrike(side models.OptionSide, strike, underlying float64) float64 {
	if underlying <= 0 {
		return 0
	}
	if side == models.OptionSidePut {
		return (underlying - strike) / underlying * 100
	}
	return (strike - underlying) / underlying * 100
}

// MoneynessStatus renders a distance as "3.21% OTM", "1.05% ITM" or "ATM"
// when the strike sits exactly at the underlying.
func MoneynessStatus(distance float64) string {
	switch {
	case distance > 0:
		return fmt.Sprintf("%.2f%% OTM", distance)
	case distance < 0:
		return fmt.Sprintf("%.2f%% ITM", math.Abs(distance))
	default:
		return "ATM"
	}
}

// AssignmentProbability estimates the chance a short call is assigned from
// how far the underlying sits above the strike. It is 50 at the money and
// rises monotonically with the underlying price.
func AssignmentProbability(strike, underlying float64) float64 {
	if strike <= 0 || underlying <= 0 {
		return 0
	}
	itm := (underlying - strike) / strike * 100
	prob := 100 / (1 + math.Exp(-itm/assignmentSpread))
	return math.Round(prob*10) / 10
}

// RollSignal flags short calls whose underlying is closing in on the strike.
func RollSignal(strike, underlying float64) string {
	switch {
	case underlying > strike*0.95:
		return RollSignalNearStrike
	case underlying > strike*0.85:
		return RollSignalMonitor
	default:
		return RollSignalNone
	}
}
