// Package models provides the data structures shared by the scanner, the
// recommendation store and alert delivery.
package models

import (
	"fmt"
	"math"
	"time"
)

const sharesPerContract = 100.0

// PositionType distinguishes option holdings from plain equity.
type PositionType string

const (
	// PositionTypeOption is an option contract holding
	PositionTypeOption PositionType = "option"
	// PositionTypeStock is an equity holding
	PositionTypeStock PositionType = "stock"
)

// OptionSide represents the type of option contract
type OptionSide string

const (
	// OptionSideCall represents a call option contract
	OptionSideCall OptionSide = "call"
	// OptionSidePut represents a put option contract
	OptionSidePut OptionSide = "put"
)

// Valid returns true if the side is call or put
func (s OptionSide) Valid() bool {
	return s == OptionSideCall || s == OptionSidePut
}

// Direction tells whether the contracts were sold (short) or bought (long).
type Direction string

const (
	// DirectionShort is a written contract (covered call, cash-secured put)
	DirectionShort Direction = "short"
	// DirectionLong is a purchased contract
	DirectionLong Direction = "long"
)

// Account is the read-only account record used for oracle context.
type Account struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	RiskLevel string `json:"risk_level"`
}

// Position is an option or stock holding owned by an account.
type Position struct {
	Expiration time.Time    `json:"expiration"`
	ID         string       `json:"id"`
	AccountID  string       `json:"account_id"`
	Type       PositionType `json:"type"`
	Ticker     string       `json:"ticker"`
	OptionType OptionSide   `json:"option_type,omitempty"`
	Direction  Direction    `json:"direction,omitempty"`
	Strike     float64      `json:"strike,omitempty"`
	Premium    float64      `json:"premium"` // entry premium per share
	Contracts  int          `json:"contracts"`
}

// IsEligible reports whether the position can be scanned: it must be an
// option carrying a strike, an expiration and a side.
func (p *Position) IsEligible() bool {
	if p.Type != PositionTypeOption {
		return false
	}
	return p.Strike > 0 && !p.Expiration.IsZero() && p.OptionType.Valid()
}

// IsShort returns true unless the position was explicitly bought.
func (p *Position) IsShort() bool {
	return p.Direction != DirectionLong
}

// IsShortCall returns true for written calls.
func (p *Position) IsShortCall() bool {
	return p.IsShort() && p.OptionType == OptionSideCall
}

// CalculateDTE returns whole days between now and expiration, clamped at 0.
func (p *Position) CalculateDTE(now time.Time) int {
	today := now.UTC().Truncate(24 * time.Hour)
	exp := p.Expiration.UTC().Truncate(24 * time.Hour)
	days := int(exp.Sub(today).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}

// ProfitPercent returns P/L as a percentage of the entry premium at the given
// option price. Short positions profit when the option price falls.
func (p *Position) ProfitPercent(currentPrice float64) float64 {
	if p.Premium == 0 {
		return 0
	}
	pl := currentPrice - p.Premium
	if p.IsShort() {
		pl = p.Premium - currentPrice
	}
	return pl / math.Abs(p.Premium) * 100
}

// ProfitDollars returns unrealized P/L in dollars across all contracts.
func (p *Position) ProfitDollars(currentPrice float64) float64 {
	pl := currentPrice - p.Premium
	if p.IsShort() {
		pl = p.Premium - currentPrice
	}
	return pl * sharesPerContract * float64(p.Contracts)
}

// Description renders a human readable contract label, e.g. "TSLA $475 Call 2026-01-30".
func (p *Position) Description() string {
	side := "Call"
	if p.OptionType == OptionSidePut {
		side = "Put"
	}
	return fmt.Sprintf("%s $%s %s %s", p.Ticker, formatStrike(p.Strike), side, p.Expiration.Format("2006-01-02"))
}

// StrategyLabel names the position's strategy for alert templates.
func (p *Position) StrategyLabel() string {
	switch {
	case p.IsShort() && p.OptionType == OptionSideCall:
		return "Covered Call"
	case p.IsShort() && p.OptionType == OptionSidePut:
		return "Cash-Secured Put"
	case p.OptionType == OptionSideCall:
		return "Long Call"
	default:
		return "Long Put"
	}
}

func formatStrike(strike float64) string {
	if strike == math.Trunc(strike) {
		return fmt.Sprintf("%.0f", strike)
	}
	return fmt.Sprintf("%.2f", strike)
}
