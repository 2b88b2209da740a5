package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"

	"github.com/jdtheefirst/creator-hq-sub000/libs/kafkax"
	"github.com/jdtheefirst/creator-hq-sub000/services/booking-service/internal/model"
)

// Kind names a booking lifecycle change.
type Kind string

const (
	KindRequested        Kind = "requested"
	KindConfirmed        Kind = "confirmed"
	KindPaid             Kind = "paid"
	KindPaymentRequested Kind = "payment_requested"
	KindRescheduled      Kind = "rescheduled"
	KindMeetingLinkSet   Kind = "meeting_link_set"
	KindCompleted        Kind = "completed"
	KindCancelled        Kind = "cancelled"
	KindRefunded         Kind = "refunded"
)

// LifecycleEvent is the JSON envelope published for downstream consumers.
type LifecycleEvent struct {
	EventID         string    `json:"event_id"`
	Kind            Kind      `json:"kind"`
	BookingID       string    `json:"booking_id"`
	CreatorID       string    `json:"creator_id"`
	ServiceType     string    `json:"service_type"`
	Status          string    `json:"status"`
	PaymentStatus   string    `json:"payment_status"`
	Start           time.Time `json:"start"`
	DurationMinutes int       `json:"duration_minutes"`
	Price           string    `json:"price"`
	Currency        string    `json:"currency"`
	OccurredAt      time.Time `json:"occurred_at"`
}

func NewLifecycleEvent(kind Kind, b model.Booking, at time.Time) LifecycleEvent {
	return LifecycleEvent{
		EventID:         uuid.NewString(),
		Kind:            kind,
		BookingID:       b.ID,
		CreatorID:       b.CreatorID,
		ServiceType:     string(b.ServiceType),
		Status:          string(b.Status),
		PaymentStatus:   string(b.PaymentStatus),
		Start:           b.BookingDate.UTC(),
		DurationMinutes: b.DurationMinutes,
		Price:           b.Price.StringFixed(2),
		Currency:        b.Currency,
		OccurredAt:      at.UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev LifecycleEvent) error
}

// MessageWriter is the subset of *kafka.Writer the publisher needs.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

type KafkaPublisher struct {
	writer MessageWriter
	prefix string
}

func NewKafkaPublisher(w MessageWriter, topicPrefix string) *KafkaPublisher {
	return &KafkaPublisher{writer: w, prefix: strings.Trim(strings.TrimSpace(topicPrefix), ".")}
}

// Topic returns the per-kind topic, e.g. "creatorhq.booking.paid.v1".
func (p *KafkaPublisher) Topic(k Kind) string {
	t := "booking." + string(k) + ".v1"
	if p.prefix != "" {
		t = p.prefix + "." + t
	}
	return t
}

func (p *KafkaPublisher) Publish(ctx context.Context, ev LifecycleEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("events: marshal: %w", err)
	}
	msg := kafka.Message{
		Topic: p.Topic(ev.Kind),
		Key:   []byte(ev.BookingID),
		Value: payload,
		Time:  ev.OccurredAt,
		Headers: []kafka.Header{
			{Key: "event_id", Value: []byte(ev.EventID)},
			{Key: "event_type", Value: []byte(ev.Kind)},
		},
	}
	msg.Headers = kafkax.InjectTraceHeaders(ctx, msg.Headers)
	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("events: write %s: %w", msg.Topic, err)
	}
	return nil
}

type NoopPublisher struct{}

func (NoopPublisher) Publish(context.Context, LifecycleEvent) error { return nil }
