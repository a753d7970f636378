package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/port"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	if span := trace.SpanFromContext(ctx); span != nil {
		if sc := span.SpanContext(); sc.IsValid() {
			metadata["trace_id"] = sc.TraceID().String()
		}
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishPinConfigured publishes reauth.pin.configured events.
func (p *EventPublisher) PublishPinConfigured(ctx context.Context, event domain.PinConfiguredEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		PinLength int       `json:"pin_length"`
		At        time.Time `json:"at"`
	}{
		UserID:    event.UserID,
		PinLength: event.PinLength,
		At:        event.At.UTC(),
	}
	return p.publish(ctx, event.EventID, "reauth.pin.configured", event.UserID, event.At, payload)
}

// PublishPinLocked publishes reauth.pin.locked events.
func (p *EventPublisher) PublishPinLocked(ctx context.Context, event domain.PinLockedEvent) error {
	payload := struct {
		UserID      string    `json:"user_id"`
		DeviceID    string    `json:"device_id"`
		Attempts    int       `json:"attempts"`
		LockedUntil time.Time `json:"locked_until"`
		At          time.Time `json:"at"`
	}{
		UserID:      event.UserID,
		DeviceID:    event.DeviceID,
		Attempts:    event.Attempts,
		LockedUntil: event.LockedUntil.UTC(),
		At:          event.At.UTC(),
	}
	return p.publish(ctx, event.EventID, "reauth.pin.locked", event.UserID, event.At, payload)
}

// PublishFullLoginRecorded publishes reauth.login.recorded events.
func (p *EventPublisher) PublishFullLoginRecorded(ctx context.Context, event domain.FullLoginRecordedEvent) error {
	payload := struct {
		UserID   string    `json:"user_id"`
		DeviceID string    `json:"device_id"`
		At       time.Time `json:"at"`
	}{
		UserID:   event.UserID,
		DeviceID: event.DeviceID,
		At:       event.At.UTC(),
	}
	return p.publish(ctx, event.EventID, "reauth.login.recorded", event.UserID, event.At, payload)
}

// PublishSessionsInvalidated publishes reauth.sessions.invalidated events.
func (p *EventPublisher) PublishSessionsInvalidated(ctx context.Context, event domain.SessionsInvalidatedEvent) error {
	payload := struct {
		UserID string    `json:"user_id"`
		Count  int       `json:"count"`
		Reason string    `json:"reason"`
		At     time.Time `json:"at"`
	}{
		UserID: event.UserID,
		Count:  event.Count,
		Reason: event.Reason,
		At:     event.At.UTC(),
	}
	return p.publish(ctx, event.EventID, "reauth.sessions.invalidated", event.UserID, event.At, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
