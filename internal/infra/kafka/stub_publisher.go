package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishPinConfigured logs reauth.pin.configured events.
func (p *StubPublisher) PublishPinConfigured(_ context.Context, event domain.PinConfiguredEvent) error {
	payload := map[string]any{
		"user_id":    event.UserID,
		"pin_length": event.PinLength,
		"at":         event.At,
	}
	p.logEvent("reauth.pin.configured", event.UserID, event.At, payload)
	return nil
}

// PublishPinLocked logs reauth.pin.locked events.
func (p *StubPublisher) PublishPinLocked(_ context.Context, event domain.PinLockedEvent) error {
	payload := map[string]any{
		"user_id":      event.UserID,
		"device_id":    event.DeviceID,
		"attempts":     event.Attempts,
		"locked_until": event.LockedUntil,
		"at":           event.At,
	}
	p.logEvent("reauth.pin.locked", event.UserID, event.At, payload)
	return nil
}

// PublishFullLoginRecorded logs reauth.login.recorded events.
func (p *StubPublisher) PublishFullLoginRecorded(_ context.Context, event domain.FullLoginRecordedEvent) error {
	payload := map[string]any{
		"user_id":   event.UserID,
		"device_id": event.DeviceID,
		"at":        event.At,
	}
	p.logEvent("reauth.login.recorded", event.UserID, event.At, payload)
	return nil
}

// PublishSessionsInvalidated logs reauth.sessions.invalidated events.
func (p *StubPublisher) PublishSessionsInvalidated(_ context.Context, event domain.SessionsInvalidatedEvent) error {
	payload := map[string]any{
		"user_id": event.UserID,
		"count":   event.Count,
		"reason":  event.Reason,
		"at":      event.At,
	}
	p.logEvent("reauth.sessions.invalidated", event.UserID, event.At, payload)
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
