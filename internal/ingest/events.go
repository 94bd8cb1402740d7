package ingest

import (
	"context"
	"encoding/json"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/example/ridepool/internal/models"
)

// Event is one lifecycle record published for downstream analytics.
type Event struct {
	Type      string    `json:"type"`
	Phone     string    `json:"phone"`
	PeerPhone string    `json:"peer_phone,omitempty"`
	SessionID string    `json:"session_id"`
	Timestamp time.Time `json:"timestamp"`
}

// EventProducer publishes match and expiry events to Kafka. Publishing
// is best-effort; a broker outage never blocks a conversation turn.
type EventProducer struct {
	writer *kafka.Writer
}

func NewEventProducer(brokers []string, topic string) *EventProducer {
	w := kafka.NewWriter(kafka.WriterConfig{Brokers: brokers, Topic: topic, Balancer: &kafka.LeastBytes{}})
	return &EventProducer{writer: w}
}

// PublishMatch records that two sessions were paired.
func (p *EventProducer) PublishMatch(requester, matched models.RiderSession) error {
	return p.publish(Event{
		Type:      "match_made",
		Phone:     requester.Phone,
		PeerPhone: matched.Phone,
		SessionID: requester.ID,
		Timestamp: time.Now(),
	})
}

// PublishExpiry records that a searching session was reaped.
func (p *EventProducer) PublishExpiry(s models.RiderSession) error {
	return p.publish(Event{
		Type:      "session_expired",
		Phone:     s.Phone,
		SessionID: s.ID,
		Timestamp: time.Now(),
	})
}

func (p *EventProducer) publish(e Event) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	b, _ := json.Marshal(e)
	return p.writer.WriteMessages(ctx, kafka.Message{Key: []byte(e.Phone), Value: b})
}

func (p *EventProducer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}
