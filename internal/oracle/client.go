package oracle

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/sirupsen/logrus"
)

// DefaultBaseURL is xAI's OpenAI-compatible endpoint.
const DefaultBaseURL = "https://api.x.ai/v1"

// ClientConfig configures the chat-completions client.
type ClientConfig struct {
	HTTPClient  *http.Client
	APIKey      string
	BaseURL     string
	Model       string
	Temperature float64
	MaxTokens   int64
	Timeout     time.Duration
}

// DefaultClientConfig favors short, stable answers.
var DefaultClientConfig = ClientConfig{
	BaseURL:     DefaultBaseURL,
	Model:       "grok-4-0709",
	Temperature: 0.2,
	MaxTokens:   400,
	Timeout:     20 * time.Second,
}

// Client talks to an OpenAI-compatible chat-completions API.
type Client struct {
	api    openai.Client
	logger logrus.FieldLogger
	cfg    ClientConfig
}

// Ensure Client implements Oracle at compile time.
var _ Oracle = (*Client)(nil)

// NewClient builds a client. Zero fields fall back to DefaultClientConfig.
// The SDK's own retries are disabled; a failed call falls back to rules.
func NewClient(cfg ClientConfig, logger logrus.FieldLogger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultClientConfig.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultClientConfig.Model
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultClientConfig.MaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultClientConfig.Timeout
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	}
	if cfg.HTTPClient != nil {
		opts = append(opts, option.WithHTTPClient(cfg.HTTPClient))
	}

	return &Client{
		api:    openai.NewClient(opts...),
		logger: logger,
		cfg:    cfg,
	}
}

// Decide sends one position to the model and parses its verdict.
func (c *Client) Decide(ctx context.Context, req Request) (Decision, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	completion, err := c.api.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(SystemPrompt),
			openai.UserMessage(BuildPrompt(req)),
		},
		Temperature: openai.Float(c.cfg.Temperature),
		MaxTokens:   openai.Int(c.cfg.MaxTokens),
	})
	if err != nil {
		return Decision{}, fmt.Errorf("oracle request for %s: %w", req.Position.Ticker, err)
	}
	if len(completion.Choices) == 0 {
		return Decision{}, fmt.Errorf("%w: no choices", ErrMalformedResponse)
	}

	content := completion.Choices[0].Message.Content
	decision, ok := ParseDecision(content)
	if !ok {
		c.logger.WithField("ticker", req.Position.Ticker).Debugf("Unparseable oracle reply: %.200s", content)
		return Decision{}, ErrMalformedResponse
	}
	return decision, nil
}
