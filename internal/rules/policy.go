// Package rules holds the deterministic exit policy for open option
// positions and the thresholds that select cases for oracle escalation.
package rules

import (
	"fmt"
)

// Policy defines the thresholds the evaluator and candidate filter use.
type Policy struct {
	StopLossPercent         float64 // close at or below this P/L%, e.g. -50
	BtcDteMax               int     // close below this DTE when not underwater
	HoldDteMin              int     // hold at or above this DTE
	HoldTimeValuePercentMin float64 // hold while time value is this share of premium
	HighVolatilityPercent   float64 // IV that makes an OTM put worth closing in an elevated market

	CandidatePLPercent float64 // escalate when |P/L%| reaches this
	CandidateDteMax    int     // escalate below this DTE
	CandidateIVMin     float64 // escalate when IV reaches this
	MaxParallel        int     // oracle calls per batch
}

// approachingExpiryDte is the fixed second close band after BtcDteMax.
const approachingExpiryDte = 10

// DefaultPolicy provides the documented defaults.
var DefaultPolicy = Policy{
	StopLossPercent:         -50,
	BtcDteMax:               7,
	HoldDteMin:              14,
	HoldTimeValuePercentMin: 20,
	HighVolatilityPercent:   40,
	CandidatePLPercent:      12,
	CandidateDteMax:         14,
	CandidateIVMin:          55,
	MaxParallel:             6,
}

// PolicyOverrides is the optional overlay read from configuration. Nil
// fields keep the default.
type PolicyOverrides struct {
	StopLossPercent         *float64 `yaml:"stop_loss_percent,omitempty"`
	BtcDteMax               *int     `yaml:"btc_dte_max,omitempty"`
	HoldDteMin              *int     `yaml:"hold_dte_min,omitempty"`
	HoldTimeValuePercentMin *float64 `yaml:"hold_time_value_percent_min,omitempty"`
	HighVolatilityPercent   *float64 `yaml:"high_volatility_percent,omitempty"`
	CandidatePLPercent      *float64 `yaml:"candidates_pl_percent,omitempty"`
	CandidateDteMax         *int     `yaml:"candidates_dte_max,omitempty"`
	CandidateIVMin          *float64 `yaml:"candidates_iv_min,omitempty"`
	MaxParallel             *int     `yaml:"max_parallel,omitempty"`
}

// Merge overlays the non-nil overrides onto base and returns the result.
func (o PolicyOverrides) Merge(base Policy) Policy {
	p := base
	if o.StopLossPercent != nil {
		p.StopLossPercent = *o.StopLossPercent
	}
	if o.BtcDteMax != nil {
		p.BtcDteMax = *o.BtcDteMax
	}
	if o.HoldDteMin != nil {
		p.HoldDteMin = *o.HoldDteMin
	}
	if o.HoldTimeValuePercentMin != nil {
		p.HoldTimeValuePercentMin = *o.HoldTimeValuePercentMin
	}
	if o.HighVolatilityPercent != nil {
		p.HighVolatilityPercent = *o.HighVolatilityPercent
	}
	if o.CandidatePLPercent != nil {
		p.CandidatePLPercent = *o.CandidatePLPercent
	}
	if o.CandidateDteMax != nil {
		p.CandidateDteMax = *o.CandidateDteMax
	}
	if o.CandidateIVMin != nil {
		p.CandidateIVMin = *o.CandidateIVMin
	}
	if o.MaxParallel != nil {
		p.MaxParallel = *o.MaxParallel
	}
	return p
}

// Resolve merges overrides over DefaultPolicy and validates the result.
func (o PolicyOverrides) Resolve() (Policy, error) {
	p := o.Merge(DefaultPolicy)
	if err := p.Validate(); err != nil {
		return Policy{}, err
	}
	return p, nil
}

// Validate checks that thresholds are consistent.
func (p Policy) Validate() error {
	if p.StopLossPercent >= 0 {
		return fmt.Errorf("stop_loss_percent must be negative, got %.2f", p.StopLossPercent)
	}
	if p.BtcDteMax < 0 {
		return fmt.Errorf("btc_dte_max must be >= 0")
	}
	if p.HoldDteMin < 0 {
		return fmt.Errorf("hold_dte_min must be >= 0")
	}
	if p.HoldTimeValuePercentMin < 0 || p.HoldTimeValuePercentMin > 100 {
		return fmt.Errorf("hold_time_value_percent_min must be between 0 and 100")
	}
	if p.HighVolatilityPercent <= 0 {
		return fmt.Errorf("high_volatility_percent must be > 0")
	}
	if p.CandidatePLPercent < 0 || p.CandidateDteMax < 0 || p.CandidateIVMin < 0 {
		return fmt.Errorf("candidate thresholds must be >= 0")
	}
	if p.MaxParallel <= 0 {
		return fmt.Errorf("max_parallel must be > 0")
	}
	return nil
}
