package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

var elevated = &models.MarketConditions{VIX: 25, VixLevel: models.VixElevated, Trend: models.TrendDown}

func TestEvaluate_StopLossWinsRegardlessOfDTEAndIV(t *testing.T) {
	for _, dte := range []int{0, 3, 8, 13, 20, 60} {
		for _, iv := range []float64{10, 45, 90} {
			for _, pl := range []float64{-50, -75.5, -300} {
				d := Evaluate(Input{
					OptionSide:        models.OptionSideCall,
					DTE:               dte,
					PLPercent:         pl,
					ImpliedVolatility: iv,
					Premium:           2,
					TimeValue:         1,
				}, DefaultPolicy, elevated)
				assert.Equal(t, models.ActionBuyToClose, d.Action, "dte=%d iv=%.0f pl=%.1f", dte, iv, pl)
				assert.Contains(t, d.Reason, "Stop loss")
			}
		}
	}
}

func TestEvaluate_UnderwaterNeverClosesOutsideStopLoss(t *testing.T) {
	for _, side := range []models.OptionSide{models.OptionSideCall, models.OptionSidePut} {
		for dte := 0; dte <= 45; dte++ {
			for _, pl := range []float64{-49.9, -25, -0.1} {
				d := Evaluate(Input{
					OptionSide:        side,
					DTE:               dte,
					PLPercent:         pl,
					ImpliedVolatility: 80,
					Premium:           1.5,
				}, DefaultPolicy, elevated)
				assert.Equal(t, models.ActionHold, d.Action, "side=%s dte=%d pl=%.1f", side, dte, pl)
				assert.Contains(t, d.Reason, "avoid closing at a loss")
			}
		}
	}
}

func TestEvaluate_Branches(t *testing.T) {
	tests := []struct {
		name       string
		in         Input
		mc         *models.MarketConditions
		wantAction models.Action
		wantReason string
	}{
		{
			name:       "low dte profitable",
			in:         Input{DTE: 5, PLPercent: 10, Premium: 2, OptionSide: models.OptionSideCall},
			wantAction: models.ActionBuyToClose,
			wantReason: "time decay risk",
		},
		{
			name:       "approaching expiry",
			in:         Input{DTE: 8, PLPercent: 3, Premium: 2, OptionSide: models.OptionSideCall},
			wantAction: models.ActionBuyToClose,
			wantReason: "Approaching expiry",
		},
		{
			name:       "otm put high iv elevated market",
			in:         Input{DTE: 12, PLPercent: 2, ImpliedVolatility: 45, Premium: 2, OptionSide: models.OptionSidePut},
			mc:         elevated,
			wantAction: models.ActionBuyToClose,
			wantReason: "high IV",
		},
		{
			name:       "otm put high iv calm market holds",
			in:         Input{DTE: 12, PLPercent: 2, ImpliedVolatility: 45, Premium: 2, OptionSide: models.OptionSidePut},
			mc:         &models.MarketConditions{VixLevel: models.VixNormal},
			wantAction: models.ActionHold,
			wantReason: "Profitable position",
		},
		{
			name:       "itm put high iv elevated market holds",
			in:         Input{DTE: 12, PLPercent: 2, ImpliedVolatility: 45, IntrinsicValue: 1, Premium: 2, OptionSide: models.OptionSidePut},
			mc:         elevated,
			wantAction: models.ActionHold,
		},
		{
			name:       "adequate dte profitable",
			in:         Input{DTE: 20, PLPercent: 5, TimeValue: 0.5, Premium: 2, OptionSide: models.OptionSideCall},
			wantAction: models.ActionHold,
			wantReason: "Profitable position",
		},
		{
			name:       "adequate dte flat",
			in:         Input{DTE: 30, PLPercent: 0, Premium: 2, OptionSide: models.OptionSideCall},
			wantAction: models.ActionHold,
			wantReason: "Adequate DTE",
		},
		{
			name:       "time value floor",
			in:         Input{DTE: 12, PLPercent: 0, TimeValue: 0.5, Premium: 2, OptionSide: models.OptionSideCall},
			wantAction: models.ActionHold,
			wantReason: "Time value",
		},
		{
			name:       "no signal",
			in:         Input{DTE: 12, PLPercent: 0, TimeValue: 0.1, Premium: 2, OptionSide: models.OptionSideCall},
			wantAction: models.ActionHold,
			wantReason: "No strong signal",
		},
		{
			name:       "zero premium does not divide",
			in:         Input{DTE: 12, PLPercent: 0, TimeValue: 0.5, Premium: 0, OptionSide: models.OptionSideCall},
			wantAction: models.ActionHold,
			wantReason: "No strong signal",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Evaluate(tt.in, DefaultPolicy, tt.mc)
			assert.Equal(t, tt.wantAction, d.Action)
			if tt.wantReason != "" {
				assert.Contains(t, d.Reason, tt.wantReason)
			}
		})
	}
}

func TestEvaluate_Deterministic(t *testing.T) {
	in := Input{DTE: 9, PLPercent: 15, ImpliedVolatility: 33, Premium: 3, TimeValue: 1, OptionSide: models.OptionSidePut}
	assert.Equal(t, Evaluate(in, DefaultPolicy, elevated), Evaluate(in, DefaultPolicy, elevated))
}

func TestIsCandidate(t *testing.T) {
	p := DefaultPolicy
	assert.True(t, IsCandidate(Input{PLPercent: -12, DTE: 30}, p))
	assert.True(t, IsCandidate(Input{PLPercent: 12, DTE: 30}, p))
	assert.True(t, IsCandidate(Input{PLPercent: 1, DTE: 13}, p))
	assert.True(t, IsCandidate(Input{PLPercent: 1, DTE: 30, ImpliedVolatility: 55}, p))
	assert.False(t, IsCandidate(Input{PLPercent: 11.9, DTE: 14, ImpliedVolatility: 54.9}, p))
}

func TestPolicyOverrides_Merge(t *testing.T) {
	stop := -30.0
	parallel := 2
	p, err := PolicyOverrides{StopLossPercent: &stop, MaxParallel: &parallel}.Resolve()
	require.NoError(t, err)

	assert.Equal(t, -30.0, p.StopLossPercent)
	assert.Equal(t, 2, p.MaxParallel)
	assert.Equal(t, DefaultPolicy.BtcDteMax, p.BtcDteMax)
	assert.Equal(t, DefaultPolicy.CandidateIVMin, p.CandidateIVMin)

	// DefaultPolicy itself is untouched
	assert.Equal(t, -50.0, DefaultPolicy.StopLossPercent)

	d := Evaluate(Input{DTE: 30, PLPercent: -35}, p, nil)
	assert.Equal(t, models.ActionBuyToClose, d.Action)
}

func TestPolicyOverrides_Invalid(t *testing.T) {
	positive := 10.0
	_, err := PolicyOverrides{StopLossPercent: &positive}.Resolve()
	assert.Error(t, err)

	zero := 0
	_, err = PolicyOverrides{MaxParallel: &zero}.Resolve()
	assert.Error(t, err)
}
