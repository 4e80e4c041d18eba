// Package marketdata supplies option metrics and market conditions to the
// scanner, memoized for a TTL window to bound provider cost.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// ErrNoData is returned when the provider has nothing for the request.
var ErrNoData = errors.New("no market data")

// Provider fetches market data. Implementations return ErrNoData rather
// than a nil value with a nil error.
type Provider interface {
	GetOptionMetrics(ctx context.Context, underlying string, expiration time.Time,
		strike float64, side models.OptionSide) (*models.OptionMetrics, error)
	GetMarketConditions(ctx context.Context, underlying string) (*models.MarketConditions, error)
}

// MetricsKey builds the cache key for one contract.
func MetricsKey(underlying string, expiration time.Time, strike float64, side models.OptionSide) string {
	return fmt.Sprintf("metrics|%s|%s|%.2f|%s", underlying, expiration.Format("2006-01-02"), strike, side)
}

// ConditionsKey builds the cache key for an underlying's market conditions.
func ConditionsKey(underlying string) string {
	return "conditions|" + underlying
}
