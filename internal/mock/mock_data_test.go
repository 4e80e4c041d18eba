package mock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/options_advisor/internal/marketdata"
	"github.com/eddiefleurent/options_advisor/internal/models"
)

func TestDataProvider_GetOptionMetrics(t *testing.T) {
	provider := NewDataProvider()
	provider.SetPrice("TSLA", 400)
	provider.SetImpliedVolatility(50)

	exp := time.Now().AddDate(0, 0, 30)
	m, err := provider.GetOptionMetrics(context.Background(), "TSLA", exp, 450, models.OptionSideCall)
	require.NoError(t, err)

	assert.InDelta(t, 400, m.UnderlyingPrice, 1.01)
	assert.Equal(t, 0.0, m.IntrinsicValue)
	assert.Greater(t, m.Price, 0.0)
	assert.Equal(t, 50.0, m.ImpliedVolatility)

	put, err := provider.GetOptionMetrics(context.Background(), "TSLA", exp, 450, models.OptionSidePut)
	require.NoError(t, err)
	assert.Greater(t, put.IntrinsicValue, 40.0)
	assert.GreaterOrEqual(t, put.TimeValue, 0.0)
}

func TestDataProvider_PastExpiration(t *testing.T) {
	provider := NewDataProvider()
	provider.SetPrice("SPY", 500)

	past := time.Now().AddDate(0, 0, -30)
	m, err := provider.GetOptionMetrics(context.Background(), "SPY", past, 450, models.OptionSideCall)
	require.NoError(t, err)
	assert.InDelta(t, m.IntrinsicValue, m.Price, 0.01)
}

func TestDataProvider_InvalidStrike(t *testing.T) {
	provider := NewDataProvider()
	_, err := provider.GetOptionMetrics(context.Background(), "SPY", time.Now(), 0, models.OptionSideCall)
	assert.ErrorIs(t, err, marketdata.ErrNoData)
}

func TestDataProvider_GetMarketConditions(t *testing.T) {
	provider := NewDataProvider()
	provider.SetVIX(32)

	mc, err := provider.GetMarketConditions(context.Background(), "SPY")
	require.NoError(t, err)
	assert.Equal(t, models.VixExtreme, mc.VixLevel)
	assert.True(t, mc.Elevated())
	assert.Equal(t, models.TrendSideways, mc.Trend)
}
