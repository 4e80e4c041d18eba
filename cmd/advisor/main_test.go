package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eddiefleurent/options_advisor/internal/alerts"
	"github.com/eddiefleurent/options_advisor/internal/config"
	"github.com/eddiefleurent/options_advisor/internal/events"
	"github.com/eddiefleurent/options_advisor/internal/marketdata"
	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/oracle"
	"github.com/eddiefleurent/options_advisor/internal/storage"
)

func testConfig(t *testing.T, yaml string) *config.Config {
	t.Helper()
	cfg, err := config.Parse([]byte(yaml))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestBuildHelpers(t *testing.T) {
	logger, _ := test.NewNullLogger()

	cfg := testConfig(t, `
scanner:
  accounts: [acct-1]
market_data:
  circuit_breaker: true
alerts:
  webhook:
    url: https://hooks.example.com/x
  social:
    endpoint: https://social.example.com/api/posts
    token: tok
  email:
    host: smtp.example.com
    from: advisor@example.com
    to: [ops@example.com]
`)

	provider, closer, err := buildMarketData(cfg, logger)
	require.NoError(t, err)
	assert.Nil(t, closer)
	assert.IsType(t, &marketdata.CachedProvider{}, provider)

	assert.Nil(t, buildOracle(cfg, logger), "oracle disabled by default")
	assert.IsType(t, events.Noop{}, buildPublisher(cfg.Events))

	channels, err := buildChannels(cfg.Alerts, time.Second)
	require.NoError(t, err)
	require.Len(t, channels, 3)
	assert.Equal(t, models.ChannelWebhook, channels[0].Name())
	assert.Equal(t, models.ChannelSocial, channels[1].Name())
	assert.Equal(t, models.ChannelEmail, channels[2].Name())
	assert.Implements(t, (*alerts.AlertSender)(nil), channels[2])

	cfg.Oracle.Enabled = true
	cfg.Oracle.APIKey = "key"
	cfg.Oracle.CircuitBreaker = true
	assert.IsType(t, &oracle.BreakerOracle{}, buildOracle(cfg, logger))

	cfg.Events.Brokers = []string{"localhost:9092"}
	cfg.Events.Topic = "t"
	pub := buildPublisher(cfg.Events)
	assert.IsType(t, &events.KafkaPublisher{}, pub)
	require.NoError(t, pub.Close())
}

func TestNewLogger(t *testing.T) {
	logger := newLogger(config.EnvironmentConfig{LogLevel: "debug", LogFormat: "json"})
	assert.Equal(t, "debug", logger.GetLevel().String())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)
}

// TestFullCycle runs scan, persist and delivery against a JSON store and a
// local webhook.
func TestFullCycle(t *testing.T) {
	var (
		mu    sync.Mutex
		posts []string
	)
	hook := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		posts = append(posts, string(body))
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer hook.Close()

	dir := t.TempDir()
	cfg := testConfig(t, `
storage:
  backend: json
  path: `+filepath.Join(dir, "advisor.json")+`
scanner:
  accounts: [acct-1]
alerts:
  webhook:
    url: `+hook.URL+`
  configs:
    - job_type: options_scan
      enabled: true
      template: compact
      channels: [webhook]
`)

	ctx := context.Background()
	logger, _ := test.NewNullLogger()
	app, err := buildApp(ctx, cfg, logger)
	require.NoError(t, err)
	defer func() { require.NoError(t, app.Close()) }()

	require.NoError(t, app.Store.SaveAccount(ctx, &models.Account{ID: "acct-1", Name: "Brokerage"}))
	// A deep in-the-money short call is far past the stop loss whatever the
	// synthetic price turns out to be.
	require.NoError(t, app.Store.SavePosition(ctx, &models.Position{
		ID:         "pos-1",
		AccountID:  "acct-1",
		Type:       models.PositionTypeOption,
		Ticker:     "XYZ",
		OptionType: models.OptionSideCall,
		Direction:  models.DirectionShort,
		Strike:     1,
		Premium:    1,
		Contracts:  1,
		Expiration: time.Now().AddDate(0, 0, 30),
	}))

	report, err := app.Runner.RunScan(ctx)
	require.NoError(t, err)
	assert.Zero(t, report.Failed)
	assert.Equal(t, 1, report.Totals.Processed)
	assert.Equal(t, 1, report.Recorded.Alerts)

	stats, err := app.Runner.RunDelivery(ctx)
	require.NoError(t, err)
	assert.Equal(t, alerts.DeliveryStats{Processed: 1, Delivered: 1}, stats)

	mu.Lock()
	require.Len(t, posts, 1)
	assert.Contains(t, posts[0], "BUY TO CLOSE XYZ $1 Call")
	mu.Unlock()

	list, err := app.Store.ListAlerts(ctx, storage.AlertFilter{Type: models.JobTypeOptionsScan})
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsSent(models.ChannelWebhook))

	// Sent channels are not retried
	stats, err = app.Runner.RunDelivery(ctx)
	require.NoError(t, err)
	assert.Equal(t, alerts.DeliveryStats{Processed: 1, Skipped: 1}, stats)
}
