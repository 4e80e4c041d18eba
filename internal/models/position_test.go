package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPosition_IsEligible(t *testing.T) {
	exp := time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		pos  Position
		want bool
	}{
		{"complete option", Position{Type: PositionTypeOption, Strike: 475, Expiration: exp, OptionType: OptionSideCall}, true},
		{"missing strike", Position{Type: PositionTypeOption, Expiration: exp, OptionType: OptionSideCall}, false},
		{"missing expiration", Position{Type: PositionTypeOption, Strike: 475, OptionType: OptionSidePut}, false},
		{"missing side", Position{Type: PositionTypeOption, Strike: 475, Expiration: exp}, false},
		{"stock", Position{Type: PositionTypeStock, Strike: 475, Expiration: exp, OptionType: OptionSideCall}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.pos.IsEligible())
		})
	}
}

func TestPosition_CalculateDTE(t *testing.T) {
	now := time.Date(2026, 1, 10, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name       string
		expiration time.Time
		want       int
	}{
		{"same day", time.Date(2026, 1, 10, 0, 0, 0, 0, time.UTC), 0},
		{"three days ahead", time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC), 3},
		{"past clamps to zero", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Position{Expiration: tt.expiration}
			assert.Equal(t, tt.want, p.CalculateDTE(now))
		})
	}
}

func TestPosition_Profit(t *testing.T) {
	short := &Position{Premium: 2.00, Contracts: 2}
	assert.InDelta(t, 50.0, short.ProfitPercent(1.00), 1e-9)
	assert.InDelta(t, -100.0, short.ProfitPercent(4.00), 1e-9)
	assert.InDelta(t, 200.0, short.ProfitDollars(1.00), 1e-9)

	long := &Position{Premium: 2.00, Contracts: 1, Direction: DirectionLong}
	assert.InDelta(t, 50.0, long.ProfitPercent(3.00), 1e-9)
	assert.InDelta(t, 100.0, long.ProfitDollars(3.00), 1e-9)

	zero := &Position{}
	assert.Equal(t, 0.0, zero.ProfitPercent(1.00))
}

func TestPosition_Labels(t *testing.T) {
	p := &Position{
		Ticker:     "TSLA",
		Strike:     475,
		OptionType: OptionSideCall,
		Expiration: time.Date(2026, 1, 30, 0, 0, 0, 0, time.UTC),
	}
	assert.Equal(t, "TSLA $475 Call 2026-01-30", p.Description())
	assert.Equal(t, "Covered Call", p.StrategyLabel())

	p.OptionType = OptionSidePut
	p.Strike = 92.5
	assert.Equal(t, "TSLA $92.50 Put 2026-01-30", p.Description())
	assert.Equal(t, "Cash-Secured Put", p.StrategyLabel())
}

func TestClassifyVIX(t *testing.T) {
	assert.Equal(t, VixLow, ClassifyVIX(12))
	assert.Equal(t, VixNormal, ClassifyVIX(17))
	assert.Equal(t, VixElevated, ClassifyVIX(24))
	assert.Equal(t, VixExtreme, ClassifyVIX(41))
	assert.Equal(t, VixNormal, ClassifyVIX(0))

	var nilConditions *MarketConditions
	assert.False(t, nilConditions.Elevated())
	assert.True(t, (&MarketConditions{VixLevel: VixExtreme}).Elevated())
}
