package marketdata

import (
	"context"
	"time"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// CachedProvider routes provider calls through a Cache.
type CachedProvider struct {
	next  Provider
	cache *Cache
}

// NewCachedProvider wraps next.
func NewCachedProvider(next Provider, cache *Cache) *CachedProvider {
	return &CachedProvider{next: next, cache: cache}
}

// Ensure CachedProvider implements Provider at compile time.
var _ Provider = (*CachedProvider)(nil)

// GetOptionMetrics returns cached metrics for the contract or fetches them.
func (p *CachedProvider) GetOptionMetrics(ctx context.Context, underlying string, expiration time.Time,
	strike float64, side models.OptionSide) (*models.OptionMetrics, error) {
	key := MetricsKey(underlying, expiration, strike, side)
	return GetCachedOrFetch(ctx, p.cache, key, func(ctx context.Context) (*models.OptionMetrics, error) {
		return p.next.GetOptionMetrics(ctx, underlying, expiration, strike, side)
	})
}

// GetMarketConditions returns cached conditions for the underlying or fetches them.
func (p *CachedProvider) GetMarketConditions(ctx context.Context, underlying string) (*models.MarketConditions, error) {
	return GetCachedOrFetch(ctx, p.cache, ConditionsKey(underlying), func(ctx context.Context) (*models.MarketConditions, error) {
		return p.next.GetMarketConditions(ctx, underlying)
	})
}
