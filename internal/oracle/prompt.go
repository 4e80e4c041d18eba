package oracle

import (
	"fmt"
	"strings"
)

// SystemPrompt frames the model as a covered-call and cash-secured-put advisor.
const SystemPrompt = "You are an expert options advisor helping an investor manage covered calls " +
	"and cash-secured puts. You review one open position at a time and either confirm or " +
	"override a rule-based recommendation. Reply with a single JSON object and nothing else: " +
	`{"recommendation": "HOLD" | "BUY_TO_CLOSE" | "ROLL" | "OPEN_NEW", "explanation": "<two or three sentences>"}`

// BuildPrompt renders the user message for one position.
func BuildPrompt(req Request) string {
	var b strings.Builder
	p := req.Position
	m := req.Metrics

	fmt.Fprintf(&b, "Position: %s (%s), %d contract(s), direction %s\n",
		p.Description(), p.StrategyLabel(), p.Contracts, directionLabel(p.IsShort()))
	fmt.Fprintf(&b, "Entry premium: $%.2f per share\n", p.Premium)
	fmt.Fprintf(&b, "Current option price: $%.2f, underlying: $%.2f\n", m.CurrentPrice, m.UnderlyingPrice)
	fmt.Fprintf(&b, "P/L: %.1f%% ($%.2f)\n", m.PLPercent, m.PLDollars)
	fmt.Fprintf(&b, "Days to expiration: %d\n", m.DTE)
	fmt.Fprintf(&b, "Implied volatility: %.1f%%\n", m.ImpliedVolatility)
	fmt.Fprintf(&b, "Intrinsic value: $%.2f, time value: $%.2f\n", m.IntrinsicValue, m.TimeValue)
	if m.MoneynessStatus != "" {
		fmt.Fprintf(&b, "Moneyness: %s\n", m.MoneynessStatus)
	}
	if m.AssignmentProbability != nil {
		fmt.Fprintf(&b, "Assignment probability: %.0f%%\n", *m.AssignmentProbability)
	}
	if c := req.Conditions; c != nil {
		fmt.Fprintf(&b, "Market: VIX %.1f (%s), trend %s\n", c.VIX, c.VixLevel, c.Trend)
	}
	risk := req.RiskLevel
	if risk == "" {
		risk = "unspecified"
	}
	fmt.Fprintf(&b, "Account risk profile: %s\n", risk)
	fmt.Fprintf(&b, "Rule-based recommendation: %s (%s)\n", req.PreliminaryAction, req.PreliminaryReason)
	b.WriteString("Confirm or override this recommendation.")
	return b.String()
}

func directionLabel(short bool) string {
	if short {
		return "short"
	}
	return "long"
}
