package models

// OptionMetrics is the market snapshot for a single contract. Values are
// supplied by the market data provider; nothing here is priced locally.
type OptionMetrics struct {
	Price             float64 `json:"price"`
	UnderlyingPrice   float64 `json:"underlying_price"`
	ImpliedVolatility float64 `json:"implied_volatility"` // percent, e.g. 42.5
	IntrinsicValue    float64 `json:"intrinsic_value"`
	TimeValue         float64 `json:"time_value"`
}

// VIX level classifications
const (
	VixLow      = "low"
	VixNormal   = "normal"
	VixElevated = "elevated"
	VixExtreme  = "extreme"
)

// Trend classifications
const (
	TrendUp       = "up"
	TrendDown     = "down"
	TrendSideways = "sideways"
)

// MarketConditions describes the volatility regime around an underlying.
type MarketConditions struct {
	VixLevel string  `json:"vix_level"`
	Trend    string  `json:"trend"`
	VIX      float64 `json:"vix"`
}

// Elevated reports whether volatility is at least "elevated". An extreme
// regime counts as elevated.
func (m *MarketConditions) Elevated() bool {
	if m == nil {
		return false
	}
	return m.VixLevel == VixElevated || m.VixLevel == VixExtreme
}

// ClassifyVIX maps a VIX print onto a level label.
func ClassifyVIX(vix float64) string {
	switch {
	case vix <= 0:
		return VixNormal
	case vix < 15:
		return VixLow
	case vix < 20:
		return VixNormal
	case vix < 30:
		return VixElevated
	default:
		return VixExtreme
	}
}

// ClassifyTrend maps a daily change percentage onto a trend label.
func ClassifyTrend(changePct float64) string {
	switch {
	case changePct >= 1:
		return TrendUp
	case changePct <= -1:
		return TrendDown
	default:
		return TrendSideways
	}
}
