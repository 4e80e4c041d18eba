package marketdata

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/options_advisor/internal/breaker"
	"github.com/eddiefleurent/options_advisor/internal/models"
)

// BreakerProvider wraps a Provider with circuit breaker functionality
type BreakerProvider struct {
	next    Provider
	breaker *breaker.Breaker
}

// NewBreakerProvider wraps next. Missing data does not count as a failure.
func NewBreakerProvider(next Provider, settings breaker.Settings, logger logrus.FieldLogger) *BreakerProvider {
	return &BreakerProvider{
		next: next,
		breaker: breaker.New("MarketDataCircuitBreaker", settings, logger, func(err error) bool {
			return errors.Is(err, ErrNoData)
		}),
	}
}

// Ensure BreakerProvider implements Provider at compile time.
var _ Provider = (*BreakerProvider)(nil)

// GetOptionMetrics wraps the underlying provider call with circuit breaker
func (b *BreakerProvider) GetOptionMetrics(ctx context.Context, underlying string, expiration time.Time,
	strike float64, side models.OptionSide) (*models.OptionMetrics, error) {
	return breaker.Run(b.breaker, func() (*models.OptionMetrics, error) {
		return b.next.GetOptionMetrics(ctx, underlying, expiration, strike, side)
	})
}

// GetMarketConditions wraps the underlying provider call with circuit breaker
func (b *BreakerProvider) GetMarketConditions(ctx context.Context, underlying string) (*models.MarketConditions, error) {
	return breaker.Run(b.breaker, func() (*models.MarketConditions, error) {
		return b.next.GetMarketConditions(ctx, underlying)
	})
}

// State exposes the breaker state for health reporting.
func (b *BreakerProvider) State() gobreaker.State {
	return b.breaker.State()
}
