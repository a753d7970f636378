package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/port"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/repository"
)

var (
	// ErrSessionNotFound indicates that the requested session does not exist.
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionForbidden indicates the session belongs to a different user.
	ErrSessionForbidden = errors.New("session not owned by user")
)

// SessionService owns device session bookkeeping: one record per
// (user, device) pair, refreshed on full login, individually or bulk
// invalidated on logout and security events.
type SessionService struct {
	sessions port.DeviceSessionRepository
	creds    port.CredentialRepository
	events   port.EventPublisher
	logger   *zap.Logger
	now      func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(
	sessions port.DeviceSessionRepository,
	creds port.CredentialRepository,
	events port.EventPublisher,
	logger *zap.Logger,
) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions: sessions,
		creds:    creds,
		events:   events,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) *SessionService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// RecordFullLogin upserts the device session at level full and stamps the
// user's last full login. A successful primary sign-in always clears any PIN
// lockout and attempt state, even if a verification is mid-flight.
func (s *SessionService) RecordFullLogin(ctx context.Context, userID, deviceID string, info domain.DeviceInfo) (*domain.DeviceSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}
	if deviceID == "" {
		return nil, fmt.Errorf("device id is required")
	}

	now := s.now()
	session := domain.DeviceSession{
		ID:           uuid.NewString(),
		UserID:       userID,
		DeviceID:     deviceID,
		DeviceInfo:   info,
		AuthLevel:    domain.AuthLevelFull,
		LastActivity: now,
		CreatedAt:    now,
		IsActive:     true,
	}

	if err := s.sessions.Upsert(ctx, session); err != nil {
		return nil, fmt.Errorf("upsert device session: %w", err)
	}

	if err := s.creds.RecordFullLogin(ctx, userID, now); err != nil {
		return nil, fmt.Errorf("record full login: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishFullLoginRecorded(ctx, domain.FullLoginRecordedEvent{
			EventID:  uuid.NewString(),
			UserID:   userID,
			DeviceID: deviceID,
			At:       now,
		}); err != nil {
			s.logger.Warn("publish full login event", zap.Error(err))
		}
	}

	stored, err := s.sessions.Get(ctx, userID, deviceID)
	if err != nil {
		// The upsert succeeded; return the in-memory view.
		return &session, nil
	}
	return stored, nil
}

// ListSessions returns the user's active sessions, most recently active first.
func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]domain.DeviceSession, error) {
	if userID == "" {
		return nil, fmt.Errorf("user id is required")
	}

	sessions, err := s.sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// InvalidateSession marks one session inactive (single device logout). Only
// the owning user may invalidate a session. Idempotent: invalidating an
// already inactive session returns false.
func (s *SessionService) InvalidateSession(ctx context.Context, userID, sessionID string) (bool, error) {
	if userID == "" {
		return false, fmt.Errorf("user id is required")
	}
	if sessionID == "" {
		return false, fmt.Errorf("session id is required")
	}

	session, err := s.sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrSessionNotFound
		}
		return false, fmt.Errorf("load session: %w", err)
	}
	if session.UserID != userID {
		return false, ErrSessionForbidden
	}

	changed, err := s.sessions.Invalidate(ctx, sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrSessionNotFound
		}
		return false, fmt.Errorf("invalidate session: %w", err)
	}
	return changed, nil
}

// InvalidateAllSessions marks every session of the user inactive with level
// expired. Used for security events such as a password reset. Returns the
// number of sessions affected.
func (s *SessionService) InvalidateAllSessions(ctx context.Context, userID, reason string) (int, error) {
	if userID == "" {
		return 0, fmt.Errorf("user id is required")
	}
	if reason == "" {
		reason = "security_event"
	}

	count, err := s.sessions.InvalidateAllForUser(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("invalidate all sessions: %w", err)
	}

	if s.events != nil && count > 0 {
		if err := s.events.PublishSessionsInvalidated(ctx, domain.SessionsInvalidatedEvent{
			EventID: uuid.NewString(),
			UserID:  userID,
			Count:   count,
			Reason:  reason,
			At:      s.now(),
		}); err != nil {
			s.logger.Warn("publish sessions invalidated event", zap.Error(err))
		}
	}

	return count, nil
}
