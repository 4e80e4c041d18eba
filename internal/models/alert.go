package models

import (
	"time"
)

// Severity levels
const (
	SeverityCritical = "critical"
	SeverityUrgent   = "urgent"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Job types that produce alerts
const (
	JobTypeOptionsScan = "options_scan"
)

// Notification channel names
const (
	ChannelWebhook = "webhook"
	ChannelSocial  = "social"
	ChannelEmail   = "email"
)

// DeliveryRecord is the outcome of the last attempt on one channel.
type DeliveryRecord struct {
	AttemptedAt time.Time     `json:"attempted_at"`
	Status      DeliveryState `json:"status"`
	Error       string        `json:"error,omitempty"`
}

// Alert is an actionable notification created from a close recommendation.
type Alert struct {
	CreatedAt        time.Time                 `json:"created_at"`
	Expiration       time.Time                 `json:"expiration"`
	DeliveryStatus   map[string]DeliveryRecord `json:"delivery_status"`
	ID               string                    `json:"id"`
	Type             string                    `json:"type"`
	RecommendationID string                    `json:"recommendation_id"`
	PositionID       string                    `json:"position_id"`
	AccountID        string                    `json:"account_id"`
	AccountName      string                    `json:"account_name,omitempty"`
	Symbol           string                    `json:"symbol"`
	Ticker           string                    `json:"ticker"`
	Recommendation   Action                    `json:"recommendation"`
	Reason           string                    `json:"reason"`
	Severity         string                    `json:"severity"`
	Strategy         string                    `json:"strategy"`
	RiskLevel        string                    `json:"risk_level,omitempty"`
	Metrics          MetricsSnapshot           `json:"metrics"`
	Strike           float64                   `json:"strike"`
	Acknowledged     bool                      `json:"acknowledged"`
}

// ChannelState returns the delivery state for a channel, pending when the
// channel was never attempted.
func (a *Alert) ChannelState(channel string) DeliveryState {
	if rec, ok := a.DeliveryStatus[channel]; ok {
		return rec.Status
	}
	return DeliveryPending
}

// IsSent reports whether the alert already reached the channel.
func (a *Alert) IsSent(channel string) bool {
	return a.ChannelState(channel) == DeliverySent
}

// SetDelivery validates the transition and records the outcome.
func (a *Alert) SetDelivery(channel string, rec DeliveryRecord) error {
	if err := ValidateDeliveryTransition(a.ChannelState(channel), rec.Status); err != nil {
		return err
	}
	if a.DeliveryStatus == nil {
		a.DeliveryStatus = make(map[string]DeliveryRecord)
	}
	a.DeliveryStatus[channel] = rec
	return nil
}
