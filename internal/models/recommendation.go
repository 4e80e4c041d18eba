package models

import (
	"strings"
	"time"
)

// Action is a recommended next step for a position.
type Action string

const (
	// ActionHold keeps the position open
	ActionHold Action = "HOLD"
	// ActionBuyToClose closes a short position
	ActionBuyToClose Action = "BUY_TO_CLOSE"
	// ActionRoll closes the contract and reopens at a later expiration
	ActionRoll Action = "ROLL"
	// ActionOpenNew opens a fresh contract after the current one is gone
	ActionOpenNew Action = "OPEN_NEW"
)

// Valid returns true if the action is one of the defined constants
func (a Action) Valid() bool {
	switch a {
	case ActionHold, ActionBuyToClose, ActionRoll, ActionOpenNew:
		return true
	default:
		return false
	}
}

// IsClose returns true when acting on the recommendation closes the
// current contract. Rolling closes before reopening.
func (a Action) IsClose() bool {
	return a == ActionBuyToClose || a == ActionRoll
}

// ParseAction normalizes free-form action text ("buy to close", "close",
// "Roll") into an Action. The second return is false for unknown text.
func ParseAction(s string) (Action, bool) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	switch norm {
	case "HOLD", "KEEP", "HOLD_POSITION":
		return ActionHold, true
	case "BUY_TO_CLOSE", "BTC", "CLOSE", "CLOSE_POSITION":
		return ActionBuyToClose, true
	case "ROLL", "ROLL_OUT", "ROLL_UP_AND_OUT":
		return ActionRoll, true
	case "OPEN_NEW", "SELL_NEW", "OPEN":
		return ActionOpenNew, true
	default:
		return "", false
	}
}

// Source records which stage produced the final action.
type Source string

const (
	// SourceRules marks a rule-based decision
	SourceRules Source = "rules"
	// SourceAI marks an oracle decision
	SourceAI Source = "ai"
)

// MetricsSnapshot freezes the numbers a recommendation was based on.
type MetricsSnapshot struct {
	AssignmentProbability   *float64 `json:"assignment_probability,omitempty"`
	MoneynessStatus         string   `json:"moneyness_status,omitempty"`
	RollSignal              string   `json:"roll_signal,omitempty"`
	VixLevel                string   `json:"vix_level,omitempty"`
	CurrentPrice            float64  `json:"current_price"`
	UnderlyingPrice         float64  `json:"underlying_price"`
	EntryPremium            float64  `json:"entry_premium"`
	PLPercent               float64  `json:"pl_percent"`
	PLDollars               float64  `json:"pl_dollars"`
	ImpliedVolatility       float64  `json:"implied_volatility"`
	IntrinsicValue          float64  `json:"intrinsic_value"`
	TimeValue               float64  `json:"time_value"`
	DistanceToStrikePercent float64  `json:"distance_to_strike_percent"`
	DTE                     int      `json:"dte"`
}

// Recommendation is the persisted outcome of scanning one position.
type Recommendation struct {
	CreatedAt         time.Time       `json:"created_at"`
	Expiration        time.Time       `json:"expiration"`
	ID                string          `json:"id"`
	PositionID        string          `json:"position_id"`
	AccountID         string          `json:"account_id"`
	Symbol            string          `json:"symbol"`
	Ticker            string          `json:"ticker"`
	OptionType        OptionSide      `json:"option_type"`
	Direction         Direction       `json:"direction"`
	Action            Action          `json:"action"`
	Reason            string          `json:"reason"`
	Source            Source          `json:"source"`
	PreliminaryAction Action          `json:"preliminary_action"`
	PreliminaryReason string          `json:"preliminary_reason"`
	RiskLevel         string          `json:"risk_level,omitempty"`
	Metrics           MetricsSnapshot `json:"metrics"`
	Strike            float64         `json:"strike"`
	Contracts         int             `json:"contracts"`
}

// IsShortCall returns true for written calls.
func (r *Recommendation) IsShortCall() bool {
	return r.Direction != DirectionLong && r.OptionType == OptionSideCall
}

// Position rebuilds the contract fields of the scanned position.
func (r *Recommendation) Position() Position {
	return Position{
		ID:         r.PositionID,
		AccountID:  r.AccountID,
		Type:       PositionTypeOption,
		Ticker:     r.Ticker,
		OptionType: r.OptionType,
		Direction:  r.Direction,
		Strike:     r.Strike,
		Expiration: r.Expiration,
		Premium:    r.Metrics.EntryPremium,
		Contracts:  r.Contracts,
	}
}
