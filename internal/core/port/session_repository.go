package port

import (
	"context"
	"time"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
)

// DeviceSessionRepository deals with per-(user, device) session storage.
type DeviceSessionRepository interface {
	Upsert(ctx context.Context, session domain.DeviceSession) error
	Get(ctx context.Context, userID, deviceID string) (*domain.DeviceSession, error)
	GetByID(ctx context.Context, sessionID string) (*domain.DeviceSession, error)
	ListActiveByUser(ctx context.Context, userID string) ([]domain.DeviceSession, error)
	Refresh(ctx context.Context, userID, deviceID string, level domain.AuthLevel, at time.Time) error
	Invalidate(ctx context.Context, sessionID string) (bool, error)
	InvalidateAllForUser(ctx context.Context, userID string) (int, error)
}
