// Package breaker wraps sony/gobreaker with the advisor's trip policy and a
// typed Run helper.
package breaker

import (
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"
)

// Settings configures circuit breaker behavior
type Settings struct {
	MaxRequests  uint32        // probes allowed while half-open
	Interval     time.Duration // closed-state count reset
	Timeout      time.Duration // how long the circuit stays open
	MinRequests  uint32        // requests seen before the ratio applies
	FailureRatio float64
}

// DefaultSettings trips after a sustained run of failures.
var DefaultSettings = Settings{
	MaxRequests:  3,
	Interval:     60 * time.Second,
	Timeout:      30 * time.Second,
	MinRequests:  5,
	FailureRatio: 0.6,
}

func (s Settings) shouldTrip(c gobreaker.Counts) bool {
	if c.Requests == 0 || c.Requests < s.MinRequests {
		return false
	}
	return float64(c.TotalFailures)/float64(c.Requests) >= s.FailureRatio
}

// Breaker guards one upstream dependency.
type Breaker struct {
	cb *gobreaker.CircuitBreaker
}

// New builds a breaker. Errors for which ignore returns true are passed
// through without counting as failures.
func New(name string, settings Settings, logger logrus.FieldLogger, ignore func(error) bool) *Breaker {
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: settings.MaxRequests,
		Interval:    settings.Interval,
		Timeout:     settings.Timeout,
		ReadyToTrip: settings.shouldTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.WithFields(logrus.Fields{"breaker": name, "from": from.String(), "to": to.String()}).
				Warn("Circuit breaker state changed")
		},
	}
	if ignore != nil {
		st.IsSuccessful = func(err error) bool { return err == nil || ignore(err) }
	}
	return &Breaker{cb: gobreaker.NewCircuitBreaker(st)}
}

// Name returns the breaker name used in logs.
func (b *Breaker) Name() string { return b.cb.Name() }

// State reports closed, half-open or open.
func (b *Breaker) State() gobreaker.State { return b.cb.State() }

// Run calls fn through the breaker. gobreaker.ErrOpenState and
// gobreaker.ErrTooManyRequests are returned unwrapped.
func Run[T any](b *Breaker, fn func() (T, error)) (T, error) {
	var zero T
	out, err := b.cb.Execute(func() (interface{}, error) { return fn() })
	if err != nil || out == nil {
		return zero, err
	}
	v, ok := out.(T)
	if !ok {
		return zero, fmt.Errorf("breaker %s: unexpected result type %T", b.cb.Name(), out)
	}
	return v, nil
}
