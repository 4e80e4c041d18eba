// Package retry re-runs transient market data calls with jittered backoff.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
)

// Config controls attempts and backoff.
type Config struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Timeout        time.Duration // covers every attempt and the waits between them
}

// DefaultConfig keeps total retry time well under a scan's budget.
var DefaultConfig = Config{
	MaxRetries:     2,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     5 * time.Second,
	Timeout:        30 * time.Second,
}

func (c Config) withDefaults() Config {
	if c.MaxRetries < 0 {
		c.MaxRetries = DefaultConfig.MaxRetries
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = DefaultConfig.InitialBackoff
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = DefaultConfig.MaxBackoff
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultConfig.Timeout
	}
	return c
}

// Client runs operations with retry.
type Client struct {
	logger logrus.FieldLogger
	config Config
}

// NewClient creates a retry client. A nil logger discards output.
func NewClient(logger logrus.FieldLogger, config ...Config) *Client {
	cfg := DefaultConfig
	if len(config) > 0 {
		cfg = config[0].withDefaults()
	}
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}
	return &Client{logger: logger, config: cfg}
}

// Do runs fn until it succeeds, returns a permanent error, or the attempts
// are used up.
func Do[T any](ctx context.Context, c *Client, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := ctx.Err(); err != nil {
		return zero, fmt.Errorf("%s: %w", op, err)
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.Timeout)
	defer cancel()

	attempts := c.config.MaxRetries + 1
	wait := c.config.InitialBackoff
	for attempt := 1; ; attempt++ {
		v, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				c.logger.Debugf("%s succeeded on attempt %d", op, attempt)
			}
			return v, nil
		}
		if attempt == attempts || !IsTransientError(err) {
			return zero, fmt.Errorf("%s failed after %d attempt(s): %w", op, attempt, err)
		}

		c.logger.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "of": attempts, "wait": wait}).
			Warnf("%s failed, retrying", op)
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, fmt.Errorf("%s: gave up during backoff: %w", op, ctx.Err())
		}
		wait = c.next(wait)
	}
}

// next grows d by half, caps it, and adds up to a quarter of jitter.
func (c *Client) next(d time.Duration) time.Duration {
	d += d / 2
	if d > c.config.MaxBackoff {
		d = c.config.MaxBackoff
	}
	if spread := int64(d / 4); spread > 0 {
		if j, err := rand.Int(rand.Reader, big.NewInt(spread)); err == nil {
			d += time.Duration(j.Int64())
		}
	}
	return d
}

// StatusCoder is implemented by errors that carry an HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// Fallback substrings for errors that only surface as text.
var transientText = []string{
	"timeout", "connection refused", "connection reset", "temporary failure",
	"rate limit", "429", "502", "503", "504", "unexpected eof",
}

// IsTransientError reports whether err looks like a network blip, a rate
// limit or a gateway failure. Context cancellation is never transient.
func IsTransientError(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		s := sc.StatusCode()
		return s == http.StatusTooManyRequests || s >= http.StatusInternalServerError
	}

	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, s := range transientText {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
