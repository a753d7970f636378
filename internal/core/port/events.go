package port

import (
	"context"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
)

// EventPublisher publishes security events to the message bus.
type EventPublisher interface {
	PublishPinConfigured(ctx context.Context, event domain.PinConfiguredEvent) error
	PublishPinLocked(ctx context.Context, event domain.PinLockedEvent) error
	PublishFullLoginRecorded(ctx context.Context, event domain.FullLoginRecordedEvent) error
	PublishSessionsInvalidated(ctx context.Context, event domain.SessionsInvalidatedEvent) error
}
