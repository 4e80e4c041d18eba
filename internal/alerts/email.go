package alerts

import (
	"context"
	"fmt"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// SMTP transport security
const (
	EmailTLSMandatory     = "mandatory"
	EmailTLSOpportunistic = "opportunistic"
	EmailTLSNone          = "none"
)

const (
	defaultSMTPPort      = 587
	emailSubjectFormat   = "[{severity}] {action}: {symbol}"
	emailFallbackSubject = "Options advisor alert"
)

// AlertSender is a Channel that also wants the alert itself, for example to
// build a subject line. The Dispatcher prefers SendAlert when present.
type AlertSender interface {
	Channel
	SendAlert(ctx context.Context, alert *models.Alert, text string) error
}

// EmailSettings configures an EmailChannel.
type EmailSettings struct {
	Host     string
	Port     int
	Username string // empty disables SMTP AUTH
	Password string
	From     string
	To       []string
	TLS      string        // mandatory (default) | opportunistic | none
	Timeout  time.Duration // dial and per-command deadline
}

type mailSender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// EmailChannel sends each alert as a plain-text SMTP message.
type EmailChannel struct {
	sender mailSender
	from   string
	to     []string
}

// NewEmailChannel validates s and prepares the SMTP client. Nothing is
// dialed until the first send.
func NewEmailChannel(s EmailSettings) (*EmailChannel, error) {
	if s.From == "" || len(s.To) == 0 {
		return nil, fmt.Errorf("%s: sender and at least one recipient are required", models.ChannelEmail)
	}
	policy, err := tlsPolicy(s.TLS)
	if err != nil {
		return nil, err
	}
	if s.Port == 0 {
		s.Port = defaultSMTPPort
	}
	if s.Timeout <= 0 {
		s.Timeout = defaultChannelTimeout
	}

	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithTimeout(s.Timeout),
		mail.WithTLSPolicy(policy),
	}
	if s.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.Username),
			mail.WithPassword(s.Password),
		)
	}
	client, err := mail.NewClient(s.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", models.ChannelEmail, err)
	}
	return &EmailChannel{sender: client, from: s.From, to: s.To}, nil
}

func tlsPolicy(name string) (mail.TLSPolicy, error) {
	switch name {
	case "", EmailTLSMandatory:
		return mail.TLSMandatory, nil
	case EmailTLSOpportunistic:
		return mail.TLSOpportunistic, nil
	case EmailTLSNone:
		return mail.NoTLS, nil
	default:
		return mail.NoTLS, fmt.Errorf("%s: unknown tls policy %q", models.ChannelEmail, name)
	}
}

func (e *EmailChannel) Name() string   { return models.ChannelEmail }
func (e *EmailChannel) MaxLength() int { return 0 }

// Send mails text under a generic subject.
func (e *EmailChannel) Send(ctx context.Context, text string) error {
	return e.send(ctx, emailFallbackSubject, text)
}

// SendAlert mails text under a subject naming the severity, action and
// contract.
func (e *EmailChannel) SendAlert(ctx context.Context, alert *models.Alert, text string) error {
	return e.send(ctx, EmailSubject(alert), text)
}

// EmailSubject renders e.g. "[CRITICAL] BUY TO CLOSE: TSLA $475 Call 2026-01-30".
func EmailSubject(a *models.Alert) string {
	return Substitute(emailSubjectFormat, Variables(a))
}

func (e *EmailChannel) send(ctx context.Context, subject, body string) error {
	msg := mail.NewMsg()
	if err := msg.From(e.from); err != nil {
		return fmt.Errorf("%s: from: %w", models.ChannelEmail, err)
	}
	if err := msg.To(e.to...); err != nil {
		return fmt.Errorf("%s: to: %w", models.ChannelEmail, err)
	}
	msg.Subject(subject)
	msg.SetBodyString(mail.TypeTextPlain, body)

	if err := e.sender.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("%s: %w", models.ChannelEmail, err)
	}
	return nil
}

var (
	_ AlertSender = (*EmailChannel)(nil)
	_ mailSender  = (*mail.Client)(nil)
)
