package oracle

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/eddiefleurent/options_advisor/internal/breaker"
)

// BreakerOracle stops calling a failing oracle for a while so scans fall
// back to rules quickly.
type BreakerOracle struct {
	next    Oracle
	breaker *breaker.Breaker
}

// NewBreakerOracle wraps next. Malformed replies do not trip the breaker.
func NewBreakerOracle(next Oracle, settings breaker.Settings, logger logrus.FieldLogger) *BreakerOracle {
	return &BreakerOracle{
		next: next,
		breaker: breaker.New("OracleCircuitBreaker", settings, logger, func(err error) bool {
			return errors.Is(err, ErrMalformedResponse)
		}),
	}
}

// Ensure BreakerOracle implements Oracle at compile time.
var _ Oracle = (*BreakerOracle)(nil)

// Decide wraps the underlying oracle call with circuit breaker
func (b *BreakerOracle) Decide(ctx context.Context, req Request) (Decision, error) {
	return breaker.Run(b.breaker, func() (Decision, error) {
		return b.next.Decide(ctx, req)
	})
}

// State exposes the breaker state for health reporting.
func (b *BreakerOracle) State() gobreaker.State {
	return b.breaker.State()
}
