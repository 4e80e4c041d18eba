// Package mock provides a synthetic market data provider for paper mode
// and local runs without a Tradier key.
package mock

import (
	"context"
	"crypto/rand"
	"fmt"
	"math"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/eddiefleurent/options_advisor/internal/marketdata"
	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/util"
)

// pennyTick is the minimum option price increment.
const pennyTick = 0.01

// DataProvider walks per-underlying prices randomly and prices contracts
// with a rough volatility heuristic.
type DataProvider struct {
	prices map[string]float64
	now    func() time.Time
	vix    float64
	midIV  float64 // percent
	mu     sync.Mutex
}

// secureFloat64 generates a cryptographically secure random float64 between 0 and 1
func secureFloat64() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<53))
	if err != nil {
		return 0.5
	}
	return float64(n.Int64()) / (1 << 53)
}

// NewDataProvider creates a provider with a VIX around 14-24 and implied
// volatility around 25-55%.
func NewDataProvider() *DataProvider {
	return &DataProvider{
		prices: map[string]float64{},
		now:    time.Now,
		vix:    14.0 + secureFloat64()*10,
		midIV:  25.0 + secureFloat64()*30,
	}
}

// Ensure DataProvider implements marketdata.Provider at compile time.
var _ marketdata.Provider = (*DataProvider)(nil)

// SetPrice seeds an underlying's spot price.
func (m *DataProvider) SetPrice(symbol string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prices[strings.ToUpper(symbol)] = price
}

// SetVIX fixes the volatility index print.
func (m *DataProvider) SetVIX(vix float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.vix = vix
}

// SetImpliedVolatility fixes the IV percentage reported for every contract.
func (m *DataProvider) SetImpliedVolatility(iv float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.midIV = iv
}

// quote returns the next price for symbol, moving it by up to ±1.
func (m *DataProvider) quote(symbol string) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := strings.ToUpper(symbol)
	price, ok := m.prices[key]
	if !ok {
		price = 50.0 + secureFloat64()*450
	}
	price = math.Max(1, price+(secureFloat64()-0.5)*2)
	m.prices[key] = price
	return price
}

// GetOptionMetrics prices the contract from the current synthetic spot.
func (m *DataProvider) GetOptionMetrics(_ context.Context, underlying string, expiration time.Time,
	strike float64, side models.OptionSide) (*models.OptionMetrics, error) {
	if strike <= 0 {
		return nil, fmt.Errorf("%w: invalid strike %.2f", marketdata.ErrNoData, strike)
	}
	spot := m.quote(underlying)

	dte := expiration.Sub(m.now()).Hours() / 24
	if dte < 0 {
		dte = 0 // Clamp to minimum 0 to prevent negative time values
	}

	m.mu.Lock()
	iv := m.midIV
	m.mu.Unlock()

	intrinsic := math.Max(0, spot-strike)
	if side == models.OptionSidePut {
		intrinsic = math.Max(0, strike-spot)
	}

	// Time value decays with distance from the strike and with time left.
	distance := math.Abs(strike-spot) / spot
	atmValue := 0.4 * (iv / 100) * math.Sqrt(dte/365.0) * spot
	timeValue := atmValue * math.Exp(-distance*8)
	price := util.RoundToTick(intrinsic+timeValue, pennyTick)

	return &models.OptionMetrics{
		Price:             price,
		UnderlyingPrice:   spot,
		ImpliedVolatility: iv,
		IntrinsicValue:    intrinsic,
		TimeValue:         math.Max(0, price-intrinsic),
	}, nil
}

// GetMarketConditions reports the synthetic VIX and a trend from the last move.
func (m *DataProvider) GetMarketConditions(_ context.Context, underlying string) (*models.MarketConditions, error) {
	m.mu.Lock()
	prev, seeded := m.prices[strings.ToUpper(underlying)]
	m.vix = math.Max(9, math.Min(80, m.vix+(secureFloat64()-0.5)))
	vix := m.vix
	m.mu.Unlock()

	trend := models.TrendSideways
	if seeded && prev > 0 {
		cur := m.quote(underlying)
		trend = models.ClassifyTrend((cur - prev) / prev * 100)
	}

	return &models.MarketConditions{
		VIX:      vix,
		VixLevel: models.ClassifyVIX(vix),
		Trend:    trend,
	}, nil
}
