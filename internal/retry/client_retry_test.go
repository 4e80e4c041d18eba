package retry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastConfig() Config {
	return Config{
		MaxRetries:     3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     5 * time.Millisecond,
		Timeout:        250 * time.Millisecond,
	}
}

func TestNewClient_ConfigSanitizationAndDefaults(t *testing.T) {
	c := NewClient(nil, Config{MaxRetries: -1})

	require.NotNil(t, c.logger)
	assert.Equal(t, DefaultConfig.MaxRetries, c.config.MaxRetries)
	assert.Equal(t, DefaultConfig.InitialBackoff, c.config.InitialBackoff)
	assert.Equal(t, DefaultConfig.MaxBackoff, c.config.MaxBackoff)
	assert.Equal(t, DefaultConfig.Timeout, c.config.Timeout)
}

func TestIsTransientError_Patterns(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"timeout", errors.New("request TIMEOUT while processing"), true},
		{"conn refused", errors.New("connection refused by target"), true},
		{"conn reset", errors.New("read: connection reset by peer"), true},
		{"rate limit", errors.New("rate limit exceeded"), true},
		{"429", errors.New("API error 429: slow down"), true},
		{"503", errors.New("Service Unavailable (503)"), true},
		{"unexpected eof", errors.New("unexpected EOF"), true},
		{"non-transient", errors.New("API error 401: unauthorized"), false},
		{"empty string", errors.New(""), false},
		{"canceled", fmt.Errorf("quotes: %w", context.Canceled), false},
		{"deadline", context.DeadlineExceeded, true},
		{"wrapped unexpected eof", fmt.Errorf("read body: %w", io.ErrUnexpectedEOF), true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsTransientError(tc.err))
		})
	}
}

func TestNext_GrowsCapsAndJitters(t *testing.T) {
	c := NewClient(nil, Config{
		MaxRetries:     2,
		InitialBackoff: 4 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
		Timeout:        1 * time.Second,
	})

	grown := c.next(4 * time.Millisecond)
	assert.GreaterOrEqual(t, grown, 6*time.Millisecond)
	assert.Less(t, grown, 7*time.Millisecond+500*time.Microsecond)

	capped := c.next(8 * time.Millisecond)
	assert.GreaterOrEqual(t, capped, 10*time.Millisecond)
	assert.Less(t, capped, 12*time.Millisecond+500*time.Microsecond)
}

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	var calls int32
	c := NewClient(nil, fastConfig())

	v, err := Do(context.Background(), c, "quote", func(context.Context) (float64, error) {
		atomic.AddInt32(&calls, 1)
		return 101.5, nil
	})

	require.NoError(t, err)
	assert.Equal(t, 101.5, v)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_RetriesTransientThenSucceeds(t *testing.T) {
	var calls int32
	logger, hook := logtest.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	c := NewClient(logger, fastConfig())

	v, err := Do(context.Background(), c, "chain", func(context.Context) (string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", errors.New("timeout while fetching")
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", v)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
	assert.Len(t, hook.AllEntries(), 3) // two warnings plus the success debug line
}

func TestDo_PermanentErrorStopsImmediately(t *testing.T) {
	var calls int32
	c := NewClient(nil, fastConfig())

	_, err := Do(context.Background(), c, "chain", func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, errors.New("API error 400: bad symbol")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad symbol")
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDo_ExhaustsRetries(t *testing.T) {
	var calls int32
	c := NewClient(nil, fastConfig())

	_, err := Do(context.Background(), c, "chain", func(context.Context) (int, error) {
		atomic.AddInt32(&calls, 1)
		return 0, errors.New("503 service unavailable")
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 4 attempt(s)")
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
}

func TestDo_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	c := NewClient(nil, fastConfig())

	_, err := Do(ctx, c, "chain", func(context.Context) (int, error) {
		t.Fatal("fn must not run on a canceled context")
		return 0, nil
	})

	assert.ErrorIs(t, err, context.Canceled)
}

type statusErr int

func (s statusErr) Error() string   { return "status error with port 127.0.0.1:45029" }
func (s statusErr) StatusCode() int { return int(s) }

func TestIsTransientError_StatusCoder(t *testing.T) {
	assert.True(t, IsTransientError(statusErr(503)))
	assert.True(t, IsTransientError(fmt.Errorf("wrapped: %w", statusErr(429))))
	assert.False(t, IsTransientError(statusErr(401)))
}
