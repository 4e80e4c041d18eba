package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/slack-go/slack"
	"golang.org/x/oauth2"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// Channel length caps
const (
	WebhookMaxLength = 3000
	SocialMaxLength  = 280
)

const defaultChannelTimeout = 10 * time.Second

// Channel delivers rendered text to one destination.
type Channel interface {
	Name() string
	// MaxLength caps the rendered text in runes; 0 means no cap.
	MaxLength() int
	Send(ctx context.Context, text string) error
}

// StatusError is a non-2xx reply from a channel endpoint.
type StatusError struct {
	Channel    string
	Body       string
	StatusCode int
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: http status %d", e.Channel, e.StatusCode)
	}
	return fmt.Sprintf("%s: http status %d: %s", e.Channel, e.StatusCode, e.Body)
}

// WebhookChannel posts to a Slack-compatible incoming webhook.
type WebhookChannel struct {
	client *http.Client
	url    string
}

// NewWebhookChannel creates a webhook channel. A nil client gets a default
// with a timeout.
func NewWebhookChannel(url string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: defaultChannelTimeout}
	}
	return &WebhookChannel{url: url, client: client}
}

func (w *WebhookChannel) Name() string   { return models.ChannelWebhook }
func (w *WebhookChannel) MaxLength() int { return WebhookMaxLength }

// Send posts {"text": text}.
func (w *WebhookChannel) Send(ctx context.Context, text string) error {
	if err := slack.PostWebhookCustomHTTPContext(ctx, w.url, w.client, &slack.WebhookMessage{Text: text}); err != nil {
		return fmt.Errorf("%s: %w", models.ChannelWebhook, err)
	}
	return nil
}

// SocialChannel posts short status updates to a bearer-token API.
type SocialChannel struct {
	client   *http.Client
	endpoint string
}

// NewSocialChannel creates a social channel authenticated with a static
// OAuth2 bearer token. base carries transport settings and may be nil.
func NewSocialChannel(endpoint, token string, base *http.Client) *SocialChannel {
	if base == nil {
		base = &http.Client{Timeout: defaultChannelTimeout}
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
	client := oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"}))
	client.Timeout = base.Timeout
	return &SocialChannel{endpoint: endpoint, client: client}
}

func (s *SocialChannel) Name() string   { return models.ChannelSocial }
func (s *SocialChannel) MaxLength() int { return SocialMaxLength }

type socialPost struct {
	Text string `json:"text"`
}

// Send posts {"text": text}. Any non-2xx status is an error.
func (s *SocialChannel) Send(ctx context.Context, text string) error {
	body, err := json.Marshal(socialPost{Text: text})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: %w", models.ChannelSocial, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: %w", models.ChannelSocial, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Channel: models.ChannelSocial, StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	return nil
}

var (
	_ Channel = (*WebhookChannel)(nil)
	_ Channel = (*SocialChannel)(nil)
)
