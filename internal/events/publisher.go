// Package events publishes recommendation and alert events for downstream
// consumers.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/eddiefleurent/options_advisor/internal/models"
)

// Event types
const (
	EventRecommendationCreated = "RECOMMENDATION_CREATED"
	EventAlertCreated          = "ALERT_CREATED"
)

// Event is the JSON envelope written to the topic.
type Event struct {
	Timestamp      time.Time              `json:"timestamp"`
	Recommendation *models.Recommendation `json:"recommendation,omitempty"`
	Alert          *models.Alert          `json:"alert,omitempty"`
	EventType      string                 `json:"event_type"`
	Ticker         string                 `json:"ticker"`
	AccountID      string                 `json:"account_id"`
}

// Publisher emits events. Implementations must be safe for concurrent use.
type Publisher interface {
	PublishRecommendation(ctx context.Context, rec *models.Recommendation) error
	PublishAlert(ctx context.Context, alert *models.Alert) error
	Close() error
}

// messageWriter is the part of kafka.Writer the publisher uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events keyed by ticker so one underlying stays on
// one partition.
type KafkaPublisher struct {
	writer messageWriter
	now    func() time.Time
	topic  string
}

// NewKafkaPublisher creates a publisher for the given brokers and topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  topic,
		Balancer:               &kafka.Hash{},
		BatchTimeout:           10 * time.Millisecond,
		AllowAutoTopicCreation: true,
	}
	return &KafkaPublisher{writer: writer, topic: topic, now: time.Now}
}

// PublishRecommendation publishes a recommendation created event
func (p *KafkaPublisher) PublishRecommendation(ctx context.Context, rec *models.Recommendation) error {
	return p.publish(ctx, Event{
		EventType:      EventRecommendationCreated,
		Ticker:         rec.Ticker,
		AccountID:      rec.AccountID,
		Recommendation: rec,
		Timestamp:      p.now().UTC(),
	})
}

// PublishAlert publishes an alert created event
func (p *KafkaPublisher) PublishAlert(ctx context.Context, alert *models.Alert) error {
	return p.publish(ctx, Event{
		EventType: EventAlertCreated,
		Ticker:    alert.Ticker,
		AccountID: alert.AccountID,
		Alert:     alert,
		Timestamp: p.now().UTC(),
	})
}

func (p *KafkaPublisher) publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	msg := kafka.Message{
		Key:   []byte(event.Ticker),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to kafka topic %s: %w", p.topic, err)
	}
	return nil
}

// Close closes the Kafka writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// Noop discards events. It is used when no brokers are configured.
type Noop struct{}

func (Noop) PublishRecommendation(context.Context, *models.Recommendation) error { return nil }
func (Noop) PublishAlert(context.Context, *models.Alert) error                   { return nil }
func (Noop) Close() error                                                         { return nil }

var (
	_ Publisher = (*KafkaPublisher)(nil)
	_ Publisher = Noop{}
)
