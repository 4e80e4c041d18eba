package rules

import (
	"fmt"
	"math"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// Input is the per-position data the evaluator needs.
type Input struct {
	OptionSide        models.OptionSide
	DTE               int
	PLPercent         float64
	IntrinsicValue    float64
	TimeValue         float64
	Premium           float64
	ImpliedVolatility float64 // percent
}

// Decision is the preliminary, rule-based outcome.
type Decision struct {
	Action models.Action
	Reason string
}

// Evaluate applies the exit policy. The first matching rule wins, and the
// result depends only on its arguments. mc may be nil.
func Evaluate(in Input, p Policy, mc *models.MarketConditions) Decision {
	// Stop loss
	if in.PLPercent <= p.StopLossPercent {
		return Decision{models.ActionBuyToClose, fmt.Sprintf(
			"Stop loss triggered: P/L %.1f%% is at or below %.0f%%", in.PLPercent, p.StopLossPercent)}
	}

	// Underwater positions are never closed on time pressure alone
	if in.PLPercent < 0 {
		return Decision{models.ActionHold, fmt.Sprintf(
			"Position is underwater (%.1f%%) with %d DTE; avoid closing at a loss, consider rolling or letting it expire",
			in.PLPercent, in.DTE)}
	}

	if in.DTE < p.BtcDteMax {
		return Decision{models.ActionBuyToClose, fmt.Sprintf(
			"Low DTE (%d days) - time decay risk, close to lock in %.1f%% profit", in.DTE, in.PLPercent)}
	}

	if in.DTE < approachingExpiryDte {
		return Decision{models.ActionBuyToClose, fmt.Sprintf(
			"Approaching expiry (%d days remaining), close before gamma risk grows", in.DTE)}
	}

	if in.OptionSide == models.OptionSidePut && in.IntrinsicValue <= 0 &&
		in.ImpliedVolatility > p.HighVolatilityPercent && mc.Elevated() {
		return Decision{models.ActionBuyToClose, fmt.Sprintf(
			"OTM put with high IV (%.1f%%) in an %s volatility market, close to reduce downside exposure",
			in.ImpliedVolatility, mc.VixLevel)}
	}

	if in.DTE >= p.HoldDteMin {
		if in.PLPercent > 0 {
			return Decision{models.ActionHold, fmt.Sprintf(
				"Profitable position with adequate DTE (%d days remaining)", in.DTE)}
		}
		return Decision{models.ActionHold, fmt.Sprintf("Adequate DTE (%d days remaining)", in.DTE)}
	}

	if in.PLPercent > 0 {
		return Decision{models.ActionHold, fmt.Sprintf(
			"Profitable position (%.1f%%), let time decay work", in.PLPercent)}
	}

	if tv := TimeValuePercent(in.TimeValue, in.Premium); tv >= p.HoldTimeValuePercentMin {
		return Decision{models.ActionHold, fmt.Sprintf(
			"Time value still %.1f%% of premium, hold for further decay", tv)}
	}

	return Decision{models.ActionHold, "No strong signal, continue monitoring"}
}

// TimeValuePercent returns time value as a percentage of premium, 0 when
// the premium is not positive.
func TimeValuePercent(timeValue, premium float64) float64 {
	if premium <= 0 || math.IsNaN(premium) {
		return 0
	}
	return timeValue / premium * 100
}

// IsCandidate reports whether the position should be escalated to the oracle.
func IsCandidate(in Input, p Policy) bool {
	return math.Abs(in.PLPercent) >= p.CandidatePLPercent ||
		in.DTE < p.CandidateDteMax ||
		in.ImpliedVolatility >= p.CandidateIVMin
}
