package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/eddiefleurent/options_advisor/internal/alerts"
	"github.com/eddiefleurent/options_advisor/internal/breaker"
	"github.com/eddiefleurent/options_advisor/internal/config"
	"github.com/eddiefleurent/options_advisor/internal/events"
	"github.com/eddiefleurent/options_advisor/internal/jobs"
	"github.com/eddiefleurent/options_advisor/internal/marketdata"
	"github.com/eddiefleurent/options_advisor/internal/mock"
	"github.com/eddiefleurent/options_advisor/internal/oracle"
	"github.com/eddiefleurent/options_advisor/internal/scanner"
	"github.com/eddiefleurent/options_advisor/internal/storage"
)

// App holds the wired components and everything that must be closed.
type App struct {
	Store     storage.Interface
	Runner    *jobs.Runner
	Publisher events.Publisher
	closers   []func() error
}

// Close releases resources in reverse order of creation.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func newLogger(cfg config.EnvironmentConfig) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stdout)
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}
	if cfg.LogFormat == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}

func buildApp(ctx context.Context, cfg *config.Config, logger logrus.FieldLogger) (*App, error) {
	app := &App{}

	store, err := storage.Open(ctx, cfg.Storage.Backend, cfg.StorageTarget())
	if err != nil {
		return nil, fmt.Errorf("open %s storage: %w", cfg.Storage.Backend, err)
	}
	app.Store = store
	app.closers = append(app.closers, store.Close)

	provider, closeProvider, err := buildMarketData(cfg, logger)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	if closeProvider != nil {
		app.closers = append(app.closers, closeProvider)
	}

	sc := scanner.New(store, provider, buildOracle(cfg, logger), scanner.Config{
		Policy:        cfg.Policy(),
		OracleTimeout: cfg.OracleTimeout(),
	}, logger.WithField("component", "scanner"))

	app.Publisher = buildPublisher(cfg.Events)
	app.closers = append(app.closers, app.Publisher.Close)
	recorder := alerts.NewRecorder(store, app.Publisher, logger.WithField("component", "recorder"))

	channels, err := buildChannels(cfg.Alerts, cfg.SendTimeout())
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	dispatcher := alerts.NewDispatcher(
		store,
		alerts.StaticConfigs(cfg.Alerts.Configs),
		alerts.NewFormatter(cfg.Alerts.Templates),
		channels,
		alerts.DispatcherConfig{SendTimeout: cfg.SendTimeout()},
		logger.WithField("component", "dispatcher"),
	)

	app.Runner = jobs.NewRunner(cfg.Scanner.Accounts, sc, recorder, dispatcher, logger.WithField("component", "runner"))
	return app, nil
}

// buildMarketData layers provider, breaker and cache. The returned closer
// is nil unless a Redis client was opened.
func buildMarketData(cfg *config.Config, logger logrus.FieldLogger) (marketdata.Provider, func() error, error) {
	md := cfg.MarketData
	log := logger.WithField("component", "marketdata")

	var provider marketdata.Provider
	switch md.Provider {
	case config.ProviderTradier:
		provider = marketdata.NewTradierProvider(md.APIKey, md.Sandbox, md.BaseURL, cfg.MarketDataTimeout(), log)
	case config.ProviderMock:
		log.Warn("Using mock market data")
		provider = mock.NewDataProvider()
	default:
		return nil, nil, fmt.Errorf("unknown market data provider %q", md.Provider)
	}

	if md.CircuitBreaker {
		provider = marketdata.NewBreakerProvider(provider, breaker.DefaultSettings, log)
	}

	var (
		store  marketdata.Store
		closer func() error
	)
	if md.Cache.Backend == config.CacheRedis {
		rs := marketdata.NewRedisStore(&redis.Options{
			Addr:     md.Cache.RedisAddr,
			Password: md.Cache.RedisPassword,
			DB:       md.Cache.RedisDB,
		}, md.Cache.Prefix)
		store, closer = rs, rs.Close
	} else {
		store = marketdata.NewMemoryStore()
	}

	return marketdata.NewCachedProvider(provider, marketdata.NewCache(store, cfg.CacheTTL(), log)), closer, nil
}

// buildOracle returns nil when escalation is disabled.
func buildOracle(cfg *config.Config, logger logrus.FieldLogger) oracle.Oracle {
	if !cfg.Oracle.Enabled {
		return nil
	}
	log := logger.WithField("component", "oracle")
	client := oracle.NewClient(oracle.ClientConfig{
		APIKey:      cfg.Oracle.APIKey,
		BaseURL:     cfg.Oracle.BaseURL,
		Model:       cfg.Oracle.Model,
		Temperature: cfg.Oracle.Temperature,
		MaxTokens:   cfg.Oracle.MaxTokens,
		Timeout:     cfg.OracleClientTimeout(),
	}, log)
	if cfg.Oracle.CircuitBreaker {
		return oracle.NewBreakerOracle(client, breaker.DefaultSettings, log)
	}
	return client
}

func buildPublisher(cfg config.EventsConfig) events.Publisher {
	if len(cfg.Brokers) == 0 {
		return events.Noop{}
	}
	return events.NewKafkaPublisher(cfg.Brokers, cfg.Topic)
}

func buildChannels(cfg config.AlertsConfig, sendTimeout time.Duration) ([]alerts.Channel, error) {
	var channels []alerts.Channel
	client := &http.Client{Timeout: alerts.DefaultSendTimeout}
	if cfg.Webhook.URL != "" {
		channels = append(channels, alerts.NewWebhookChannel(cfg.Webhook.URL, client))
	}
	if cfg.Social.Endpoint != "" && cfg.Social.Token != "" {
		channels = append(channels, alerts.NewSocialChannel(cfg.Social.Endpoint, cfg.Social.Token, client))
	}
	if cfg.Email.Configured() {
		email, err := alerts.NewEmailChannel(alerts.EmailSettings{
			Host:     cfg.Email.Host,
			Port:     cfg.Email.Port,
			Username: cfg.Email.Username,
			Password: cfg.Email.Password,
			From:     cfg.Email.From,
			To:       cfg.Email.To,
			TLS:      cfg.Email.TLS,
			Timeout:  sendTimeout,
		})
		if err != nil {
			return nil, err
		}
		channels = append(channels, email)
	}
	return channels, nil
}
