// Package config provides configuration management for the options advisor.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	yaml "gopkg.in/yaml.v3"

	"github.com/eddiefleurent/options_advisor/internal/alerts"
	"github.com/eddiefleurent/options_advisor/internal/marketdata"
	"github.com/eddiefleurent/options_advisor/internal/models"
	"github.com/eddiefleurent/options_advisor/internal/rules"
	"github.com/eddiefleurent/options_advisor/internal/storage"
)

// Storage backends
const (
	StorageJSON     = storage.BackendJSON
	StoragePostgres = storage.BackendPostgres
)

// Market data providers
const (
	ProviderTradier = "tradier"
	ProviderMock    = "mock"
)

// Cache backends
const (
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

const (
	defaultStoragePath   = "data/advisor.json"
	defaultCacheTTL      = marketdata.DefaultTTL
	defaultScanSchedule  = "*/15 9-16 * * 1-5"
	defaultDeliverySched = "*/5 * * * *"
	defaultAPIPort       = 8080
	defaultKafkaTopic    = "options-advisor.events"
	defaultRedisPrefix   = "advisor:"
)

// Config represents the complete application configuration.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Storage     StorageConfig     `yaml:"storage"`
	MarketData  MarketDataConfig  `yaml:"market_data"`
	Scanner     ScannerConfig     `yaml:"scanner"`
	Oracle      OracleConfig      `yaml:"oracle"`
	Alerts      AlertsConfig      `yaml:"alerts"`
	Events      EventsConfig      `yaml:"events"`
	API         APIConfig         `yaml:"api"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
}

// EnvironmentConfig defines logging settings.
type EnvironmentConfig struct {
	LogLevel  string `yaml:"log_level"`  // debug | info | warn | error
	LogFormat string `yaml:"log_format"` // text | json
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Backend string `yaml:"backend"` // json | postgres
	Path    string `yaml:"path"`
	DSN     string `yaml:"dsn"`
}

// MarketDataConfig defines the quote and chain source.
type MarketDataConfig struct {
	Provider       string      `yaml:"provider"` // tradier | mock
	APIKey         string      `yaml:"api_key"`
	BaseURL        string      `yaml:"base_url"`
	Sandbox        bool        `yaml:"sandbox"`
	Timeout        string      `yaml:"timeout"`
	CircuitBreaker bool        `yaml:"circuit_breaker"`
	Cache          CacheConfig `yaml:"cache"`
}

// CacheConfig defines the market data response cache.
type CacheConfig struct {
	Backend       string `yaml:"backend"` // memory | redis
	TTL           string `yaml:"ttl"`
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	Prefix        string `yaml:"prefix"`
}

// ScannerConfig lists the accounts to scan and the policy overlay.
type ScannerConfig struct {
	Accounts      []string              `yaml:"accounts"`
	OracleTimeout string                `yaml:"oracle_timeout"`
	Policy        rules.PolicyOverrides `yaml:"policy"`
}

// OracleConfig defines the AI escalation client.
type OracleConfig struct {
	Enabled        bool    `yaml:"enabled"`
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	Model          string  `yaml:"model"`
	Temperature    float64 `yaml:"temperature"`
	MaxTokens      int64   `yaml:"max_tokens"`
	Timeout        string  `yaml:"timeout"`
	CircuitBreaker bool    `yaml:"circuit_breaker"`
}

// AlertsConfig defines delivery configs, custom templates and channels.
type AlertsConfig struct {
	Configs     []models.AlertConfig `yaml:"configs"`
	Templates   map[string]string    `yaml:"templates"`
	Webhook     WebhookConfig        `yaml:"webhook"`
	Social      SocialConfig         `yaml:"social"`
	Email       EmailConfig          `yaml:"email"`
	SendTimeout string               `yaml:"send_timeout"`
}

// WebhookConfig defines the chat webhook channel.
type WebhookConfig struct {
	URL string `yaml:"url"`
}

// SocialConfig defines the social posting channel.
type SocialConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
}

// EmailConfig defines the SMTP channel.
type EmailConfig struct {
	Host     string   `yaml:"host"`
	Port     int      `yaml:"port"`
	Username string   `yaml:"username"`
	Password string   `yaml:"password"`
	From     string   `yaml:"from"`
	To       []string `yaml:"to"`
	TLS      string   `yaml:"tls"` // mandatory | opportunistic | none
}

// Configured reports whether enough is set to build the channel.
func (e EmailConfig) Configured() bool {
	return e.Host != "" && e.From != "" && len(e.To) > 0
}

// EventsConfig defines the Kafka event stream. No brokers disables it.
type EventsConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
}

// APIConfig defines the operations HTTP API.
type APIConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	AuthToken string `yaml:"auth_token"`
}

// ScheduleConfig defines the cron expressions for the two jobs.
type ScheduleConfig struct {
	Scan     string `yaml:"scan"`
	Deliver  string `yaml:"deliver"`
	Timezone string `yaml:"timezone"` // e.g., "America/New_York"
}

// Secrets are read from the environment and override the file.
type Secrets struct {
	TradierAPIKey string   `env:"TRADIER_API_KEY"`
	OracleAPIKey  string   `env:"XAI_API_KEY"`
	DatabaseURL   string   `env:"ADVISOR_DATABASE_URL"`
	RedisPassword string   `env:"ADVISOR_REDIS_PASSWORD"`
	WebhookURL    string   `env:"ADVISOR_WEBHOOK_URL"`
	SocialToken   string   `env:"ADVISOR_SOCIAL_TOKEN"`
	SMTPPassword  string   `env:"ADVISOR_SMTP_PASSWORD"`
	APIAuthToken  string   `env:"ADVISOR_API_TOKEN"`
	KafkaBrokers  []string `env:"ADVISOR_KAFKA_BROKERS" envSeparator:","`
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	config, err := Parse(data)
	if err != nil {
		return nil, err
	}

	secrets, err := env.ParseAs[Secrets]()
	if err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	config.ApplySecrets(secrets)

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Parse decodes YAML after expanding environment variables. Unknown keys
// are an error.
func Parse(data []byte) (*Config, error) {
	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	return &config, nil
}

// ApplySecrets overlays the non-empty secrets.
func (c *Config) ApplySecrets(s Secrets) {
	set := func(dst *string, v string) {
		if v != "" {
			*dst = v
		}
	}
	set(&c.MarketData.APIKey, s.TradierAPIKey)
	set(&c.Oracle.APIKey, s.OracleAPIKey)
	set(&c.Storage.DSN, s.DatabaseURL)
	set(&c.MarketData.Cache.RedisPassword, s.RedisPassword)
	set(&c.Alerts.Webhook.URL, s.WebhookURL)
	set(&c.Alerts.Social.Token, s.SocialToken)
	set(&c.Alerts.Email.Password, s.SMTPPassword)
	set(&c.API.AuthToken, s.APIAuthToken)
	if len(s.KafkaBrokers) > 0 {
		c.Events.Brokers = s.KafkaBrokers
	}
}

// Validate normalizes defaults and checks that all values are valid and
// consistent.
func (c *Config) Validate() error {
	c.normalize()

	// Environment validation
	if _, err := logrus.ParseLevel(c.Environment.LogLevel); err != nil {
		return fmt.Errorf("environment.log_level invalid: %w", err)
	}
	if c.Environment.LogFormat != "text" && c.Environment.LogFormat != "json" {
		return fmt.Errorf("environment.log_format must be 'text' or 'json'")
	}

	// Storage validation
	switch c.Storage.Backend {
	case StorageJSON:
		if c.Storage.Path == "" {
			return fmt.Errorf("storage.path is required for the json backend")
		}
	case StoragePostgres:
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn is required for the postgres backend")
		}
	default:
		return fmt.Errorf("storage.backend must be '%s' or '%s'", StorageJSON, StoragePostgres)
	}

	// Market data validation
	switch c.MarketData.Provider {
	case ProviderTradier:
		if c.MarketData.APIKey == "" {
			return fmt.Errorf("market_data.api_key is required for the tradier provider")
		}
	case ProviderMock:
	default:
		return fmt.Errorf("market_data.provider must be '%s' or '%s'", ProviderTradier, ProviderMock)
	}
	if err := validDuration("market_data.timeout", c.MarketData.Timeout); err != nil {
		return err
	}
	if err := validDuration("market_data.cache.ttl", c.MarketData.Cache.TTL); err != nil {
		return err
	}
	switch c.MarketData.Cache.Backend {
	case CacheMemory:
	case CacheRedis:
		if c.MarketData.Cache.RedisAddr == "" {
			return fmt.Errorf("market_data.cache.redis_addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("market_data.cache.backend must be '%s' or '%s'", CacheMemory, CacheRedis)
	}

	// Scanner validation
	if len(c.Scanner.Accounts) == 0 {
		return fmt.Errorf("scanner.accounts must list at least one account")
	}
	if _, err := c.Scanner.Policy.Resolve(); err != nil {
		return fmt.Errorf("scanner.policy: %w", err)
	}
	if err := validDuration("scanner.oracle_timeout", c.Scanner.OracleTimeout); err != nil {
		return err
	}

	// Oracle validation
	if c.Oracle.Enabled && c.Oracle.APIKey == "" {
		return fmt.Errorf("oracle.api_key is required when the oracle is enabled")
	}
	if c.Oracle.Temperature < 0 || c.Oracle.Temperature > 2 {
		return fmt.Errorf("oracle.temperature must be between 0 and 2")
	}
	if err := validDuration("oracle.timeout", c.Oracle.Timeout); err != nil {
		return err
	}

	// Alerts validation
	if err := c.validateAlerts(); err != nil {
		return err
	}

	// API validation
	if c.API.Enabled && (c.API.Port <= 0 || c.API.Port > 65535) {
		return fmt.Errorf("api.port must be between 1 and 65535")
	}

	// Schedule validation
	if _, err := cron.ParseStandard(c.Schedule.Scan); err != nil {
		return fmt.Errorf("schedule.scan invalid: %w", err)
	}
	if _, err := cron.ParseStandard(c.Schedule.Deliver); err != nil {
		return fmt.Errorf("schedule.deliver invalid: %w", err)
	}
	if c.Schedule.Timezone != "" {
		if _, err := time.LoadLocation(c.Schedule.Timezone); err != nil {
			return fmt.Errorf("schedule.timezone invalid: %w", err)
		}
	}

	return nil
}

func (c *Config) validateAlerts() error {
	if err := validDuration("alerts.send_timeout", c.Alerts.SendTimeout); err != nil {
		return err
	}
	if err := c.Alerts.Email.validate(); err != nil {
		return err
	}
	for i := range c.Alerts.Configs {
		ac := &c.Alerts.Configs[i]
		prefix := fmt.Sprintf("alerts.configs[%d]", i)
		if ac.JobType == "" {
			return fmt.Errorf("%s.job_type is required", prefix)
		}
		if ac.TemplateID != "" && !c.HasTemplate(ac.TemplateID) {
			return fmt.Errorf("%s.template %q is not defined", prefix, ac.TemplateID)
		}
		if err := ac.QuietHours.Validate(); err != nil {
			return fmt.Errorf("%s.%w", prefix, err)
		}
		if ac.Enabled && len(ac.Channels) == 0 {
			return fmt.Errorf("%s.channels must not be empty when enabled", prefix)
		}
		for _, ch := range ac.Channels {
			switch ch {
			case models.ChannelWebhook:
				if ac.Enabled && c.Alerts.Webhook.URL == "" {
					return fmt.Errorf("%s uses the webhook channel but alerts.webhook.url is empty", prefix)
				}
			case models.ChannelSocial:
				if ac.Enabled && (c.Alerts.Social.Endpoint == "" || c.Alerts.Social.Token == "") {
					return fmt.Errorf("%s uses the social channel but alerts.social endpoint or token is empty", prefix)
				}
			case models.ChannelEmail:
				if ac.Enabled && !c.Alerts.Email.Configured() {
					return fmt.Errorf("%s uses the email channel but alerts.email host, from or to is empty", prefix)
				}
			default:
				return fmt.Errorf("%s.channels: unknown channel %q", prefix, ch)
			}
		}
		if t := ac.Thresholds.MaxDTE; t != nil && *t < 0 {
			return fmt.Errorf("%s.thresholds.max_dte must be >= 0", prefix)
		}
		if t := ac.Thresholds.MinPLPercent; t != nil && *t < 0 {
			return fmt.Errorf("%s.thresholds.min_pl_percent must be >= 0", prefix)
		}
	}
	return nil
}

func (e EmailConfig) validate() error {
	switch e.TLS {
	case "", alerts.EmailTLSMandatory, alerts.EmailTLSOpportunistic, alerts.EmailTLSNone:
	default:
		return fmt.Errorf("alerts.email.tls must be mandatory, opportunistic or none, got %q", e.TLS)
	}
	if e.Port < 0 || e.Port > 65535 {
		return fmt.Errorf("alerts.email.port out of range: %d", e.Port)
	}
	return nil
}

// StorageTarget returns the path or DSN for the selected backend.
func (c *Config) StorageTarget() string {
	if c.Storage.Backend == StoragePostgres {
		return c.Storage.DSN
	}
	return c.Storage.Path
}

// HasTemplate reports whether id names a built-in or custom template.
func (c *Config) HasTemplate(id string) bool {
	return alerts.NewFormatter(c.Alerts.Templates).Has(id)
}

// Policy returns the resolved rule policy. Call after Validate.
func (c *Config) Policy() rules.Policy {
	p, err := c.Scanner.Policy.Resolve()
	if err != nil {
		return rules.DefaultPolicy
	}
	return p
}

// CacheTTL returns the market data cache lifetime.
func (c *Config) CacheTTL() time.Duration {
	return durationOr(c.MarketData.Cache.TTL, defaultCacheTTL)
}

// MarketDataTimeout returns the per-request HTTP timeout; zero lets the
// provider pick its default.
func (c *Config) MarketDataTimeout() time.Duration {
	return durationOr(c.MarketData.Timeout, 0)
}

// OracleTimeout returns the per-escalation deadline the scanner applies.
func (c *Config) OracleTimeout() time.Duration {
	return durationOr(c.Scanner.OracleTimeout, 0)
}

// OracleClientTimeout returns the HTTP timeout of the oracle client.
func (c *Config) OracleClientTimeout() time.Duration {
	return durationOr(c.Oracle.Timeout, 0)
}

// SendTimeout returns the per-channel delivery timeout.
func (c *Config) SendTimeout() time.Duration {
	return durationOr(c.Alerts.SendTimeout, 0)
}

// Location returns the schedule timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	if c.Schedule.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Schedule.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// normalize sets default values for omitted settings
func (c *Config) normalize() {
	if c.Environment.LogLevel == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Environment.LogFormat == "" {
		c.Environment.LogFormat = "text"
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = StorageJSON
	}
	if c.Storage.Backend == StorageJSON && c.Storage.Path == "" {
		c.Storage.Path = defaultStoragePath
	}
	if c.MarketData.Provider == "" {
		c.MarketData.Provider = ProviderMock
	}
	if c.MarketData.Cache.Backend == "" {
		c.MarketData.Cache.Backend = CacheMemory
	}
	if c.MarketData.Cache.Prefix == "" {
		c.MarketData.Cache.Prefix = defaultRedisPrefix
	}
	if len(c.Events.Brokers) > 0 && c.Events.Topic == "" {
		c.Events.Topic = defaultKafkaTopic
	}
	if c.API.Enabled && c.API.Port == 0 {
		c.API.Port = defaultAPIPort
	}
	if c.Schedule.Scan == "" {
		c.Schedule.Scan = defaultScanSchedule
	}
	if c.Schedule.Deliver == "" {
		c.Schedule.Deliver = defaultDeliverySched
	}
}

func validDuration(field, s string) error {
	if s == "" {
		return nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("%s invalid: %w", field, err)
	}
	if d < 0 {
		return fmt.Errorf("%s must not be negative", field)
	}
	return nil
}

func durationOr(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
