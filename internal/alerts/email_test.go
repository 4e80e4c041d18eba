package alerts

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

type recordingSender struct {
	mu   sync.Mutex
	err  error
	msgs []*mail.Msg
}

func (r *recordingSender) DialAndSendWithContext(_ context.Context, msgs ...*mail.Msg) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msgs...)
	return r.err
}

func (r *recordingSender) subjects() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, m := range r.msgs {
		out = append(out, m.GetGenHeader(mail.HeaderSubject)...)
	}
	return out
}

func testEmailChannel(sender mailSender) *EmailChannel {
	return &EmailChannel{sender: sender, from: "advisor@example.com", to: []string{"ops@example.com"}}
}

func TestEmailSubject(t *testing.T) {
	a := sampleAlert()
	assert.Equal(t, "[WARNING] BUY TO CLOSE: TSLA $475 Call 2026-01-30", EmailSubject(a))

	a.Severity = "critical"
	assert.Equal(t, "[CRITICAL] BUY TO CLOSE: TSLA $475 Call 2026-01-30", EmailSubject(a))
}

func TestEmailChannel_SendAlert(t *testing.T) {
	sender := &recordingSender{}
	ch := testEmailChannel(sender)
	assert.Equal(t, models.ChannelEmail, ch.Name())
	assert.Zero(t, ch.MaxLength())

	a := sampleAlert()
	require.NoError(t, ch.SendAlert(context.Background(), a, "TSLA call is deep in profit"))
	require.NoError(t, ch.Send(context.Background(), "plain text"))

	assert.Equal(t, []string{EmailSubject(a), emailFallbackSubject}, sender.subjects())

	var buf bytes.Buffer
	_, err := sender.msgs[0].WriteTo(&buf)
	require.NoError(t, err)
	assert.Contains(t, buf.String(), "ops@example.com")
	assert.Contains(t, buf.String(), "advisor@example.com")
	assert.Contains(t, buf.String(), "deep in profit")
}

func TestEmailChannel_SendErrorIsWrapped(t *testing.T) {
	ch := testEmailChannel(&recordingSender{err: errors.New("dial tcp: i/o timeout")})

	err := ch.Send(context.Background(), "hello")
	require.Error(t, err)
	assert.Contains(t, err.Error(), models.ChannelEmail)
	assert.Contains(t, err.Error(), "i/o timeout")
}

func TestNewEmailChannel(t *testing.T) {
	ch, err := NewEmailChannel(EmailSettings{
		Host: "smtp.example.com", Username: "advisor", Password: "secret",
		From: "advisor@example.com", To: []string{"ops@example.com"},
	})
	require.NoError(t, err)
	assert.IsType(t, &mail.Client{}, ch.sender)

	_, err = NewEmailChannel(EmailSettings{Host: "smtp.example.com", To: []string{"ops@example.com"}})
	assert.Error(t, err)

	_, err = NewEmailChannel(EmailSettings{Host: "smtp.example.com", From: "a@example.com"})
	assert.Error(t, err)

	_, err = NewEmailChannel(EmailSettings{
		Host: "smtp.example.com", From: "a@example.com", To: []string{"b@example.com"}, TLS: "sometimes",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sometimes")

	_, err = NewEmailChannel(EmailSettings{From: "a@example.com", To: []string{"b@example.com"}})
	assert.Error(t, err, "host is required")
}

func TestDispatcher_EmailGetsAlertSubject(t *testing.T) {
	sender := &recordingSender{}
	store := storeWithAlert(t)
	d := newDispatcher(store, []models.AlertConfig{jobConfig(models.ChannelEmail)}, testEmailChannel(sender))

	stats, err := d.Deliver(context.Background(), models.JobTypeOptionsScan)
	require.NoError(t, err)
	assert.Equal(t, DeliveryStats{Processed: 1, Delivered: 1}, stats)
	assert.Equal(t, []string{"[WARNING] BUY TO CLOSE: TSLA $475 Call 2026-01-30"}, sender.subjects())

	a, err := store.GetAlert(context.Background(), "alert-1")
	require.NoError(t, err)
	assert.True(t, a.IsSent(models.ChannelEmail))
}
