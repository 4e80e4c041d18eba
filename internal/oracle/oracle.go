// Package oracle asks an external AI model to confirm or override a
// rule-based recommendation.
package oracle

import (
	"context"
	"errors"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// ErrMalformedResponse is returned when the model reply has no usable decision.
var ErrMalformedResponse = errors.New("oracle: malformed response")

// Request carries everything the oracle sees about one position.
type Request struct {
	Position          models.Position
	Metrics           models.MetricsSnapshot
	Conditions        *models.MarketConditions
	PreliminaryAction models.Action
	PreliminaryReason string
	RiskLevel         string
}

// Decision is a well-formed oracle verdict.
type Decision struct {
	Action      models.Action `json:"recommendation"`
	Explanation string        `json:"explanation"`
}

// Oracle returns a decision or an error. Any error means the caller keeps
// the preliminary decision.
type Oracle interface {
	Decide(ctx context.Context, req Request) (Decision, error)
}

// Func adapts a function to Oracle.
type Func func(ctx context.Context, req Request) (Decision, error)

// Decide calls f.
func (f Func) Decide(ctx context.Context, req Request) (Decision, error) {
	return f(ctx, req)
}
