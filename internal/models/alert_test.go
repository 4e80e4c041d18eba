package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuietHours_WrapsMidnight(t *testing.T) {
	q := &QuietHours{Start: "22:00", End: "06:00"}

	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 4, h, m, 0, 0, time.UTC)
	}

	assert.True(t, q.Contains(at(23, 30)))
	assert.True(t, q.Contains(at(3, 0)))
	assert.True(t, q.Contains(at(22, 0)))
	assert.False(t, q.Contains(at(12, 0)))
	assert.False(t, q.Contains(at(6, 0)))
}

func TestQuietHours_SameDayWindow(t *testing.T) {
	q := &QuietHours{Start: "09:00", End: "17:00"}

	assert.True(t, q.Contains(time.Date(2026, 3, 4, 12, 0, 0, 0, time.UTC)))
	assert.False(t, q.Contains(time.Date(2026, 3, 4, 18, 0, 0, 0, time.UTC)))
}

func TestQuietHours_Timezone(t *testing.T) {
	q := &QuietHours{Start: "22:00", End: "06:00", Timezone: "America/New_York"}
	require.NoError(t, q.Validate())

	// 04:00 UTC is 23:00 the previous evening in New York (EST).
	assert.True(t, q.Contains(time.Date(2026, 1, 15, 4, 0, 0, 0, time.UTC)))
	// 17:00 UTC is noon in New York.
	assert.False(t, q.Contains(time.Date(2026, 1, 15, 17, 0, 0, 0, time.UTC)))
}

func TestQuietHours_Validate(t *testing.T) {
	assert.NoError(t, (*QuietHours)(nil).Validate())
	assert.Error(t, (&QuietHours{Start: "25:00", End: "06:00"}).Validate())
	assert.Error(t, (&QuietHours{Start: "22:00", End: "6am"}).Validate())
	assert.Error(t, (&QuietHours{Start: "22:00", End: "06:00", Timezone: "Mars/Olympus"}).Validate())

	var nilWindow *QuietHours
	assert.False(t, nilWindow.Contains(time.Now()))
}

func TestThresholds_Meets(t *testing.T) {
	minPL := 10.0
	maxDTE := 14
	th := Thresholds{MinPLPercent: &minPL, MaxDTE: &maxDTE}

	assert.True(t, th.Meets(MetricsSnapshot{PLPercent: -25, DTE: 5}))
	assert.False(t, th.Meets(MetricsSnapshot{PLPercent: 5, DTE: 5}))
	assert.False(t, th.Meets(MetricsSnapshot{PLPercent: 30, DTE: 20}))
	assert.True(t, Thresholds{}.Meets(MetricsSnapshot{}))
}

func TestAlert_SetDelivery(t *testing.T) {
	a := &Alert{}
	assert.Equal(t, DeliveryPending, a.ChannelState(ChannelWebhook))

	require.NoError(t, a.SetDelivery(ChannelWebhook, DeliveryRecord{Status: DeliveryFailed, Error: "boom"}))
	assert.Equal(t, DeliveryFailed, a.ChannelState(ChannelWebhook))

	require.NoError(t, a.SetDelivery(ChannelWebhook, DeliveryRecord{Status: DeliverySent}))
	assert.True(t, a.IsSent(ChannelWebhook))

	err := a.SetDelivery(ChannelWebhook, DeliveryRecord{Status: DeliveryFailed})
	assert.ErrorIs(t, err, ErrAlreadySent)
	assert.True(t, a.IsSent(ChannelWebhook))

	assert.Error(t, ValidateDeliveryTransition(DeliveryPending, DeliveryPending))
}

func TestParseAction(t *testing.T) {
	tests := map[string]Action{
		"HOLD":         ActionHold,
		"buy to close": ActionBuyToClose,
		"Buy-To-Close": ActionBuyToClose,
		"close":        ActionBuyToClose,
		" roll ":       ActionRoll,
		"open_new":     ActionOpenNew,
	}
	for in, want := range tests {
		got, ok := ParseAction(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseAction("panic sell")
	assert.False(t, ok)

	assert.True(t, ActionRoll.IsClose())
	assert.True(t, ActionBuyToClose.IsClose())
	assert.False(t, ActionHold.IsClose())
}
