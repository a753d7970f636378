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
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/security"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/telemetry"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/repository"
)

var (
	// ErrInvalidPin indicates malformed input: wrong length or non-digit
	// characters. Rejected before any storage access.
	ErrInvalidPin = errors.New("pin must be a numeric string of an allowed length")
	// ErrWrongPin indicates the hash comparison failed and the attempt
	// counter was incremented.
	ErrWrongPin = errors.New("pin does not match")
	// ErrPinLocked indicates the lockout window is active; no comparison was
	// performed.
	ErrPinLocked = errors.New("pin verification locked")
	// ErrNoPinConfigured indicates the user has no PIN set.
	ErrNoPinConfigured = errors.New("no pin configured")
)

// VerifyOutcome carries the authoritative post-attempt counters so callers
// can surface exact attempts-remaining or lock-expiry values.
type VerifyOutcome struct {
	AttemptsRemaining int
	LockedUntil       *time.Time
}

// PinService owns the per-user PIN credential: set and verify operations,
// the failed-attempt counter, and the brute-force lockout.
type PinService struct {
	creds    port.CredentialRepository
	sessions port.DeviceSessionRepository
	attempts port.PinAttemptLog
	events   port.EventPublisher
	policy   domain.TrustPolicy
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewPinService constructs a PinService.
func NewPinService(
	creds port.CredentialRepository,
	sessions port.DeviceSessionRepository,
	attempts port.PinAttemptLog,
	events port.EventPublisher,
	policy domain.TrustPolicy,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *PinService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PinService{
		creds:    creds,
		sessions: sessions,
		attempts: attempts,
		events:   events,
		policy:   policy,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *PinService) WithClock(clock func() time.Time) *PinService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// SetPin validates and stores a new PIN for the user. Only numeric strings
// of an allowed length are accepted; the stored value is a salted hash and
// the chosen length, never the plaintext. Overwrites any previous hash and
// clears attempt and lock state. The last full login timestamp is untouched.
func (s *PinService) SetPin(ctx context.Context, userID, pin string) error {
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	if err := s.validatePin(pin); err != nil {
		return err
	}

	hash, err := security.HashPin(pin)
	if err != nil {
		return fmt.Errorf("hash pin: %w", err)
	}

	now := s.now()
	if err := s.creds.SetPin(ctx, userID, hash, len(pin), now); err != nil {
		return fmt.Errorf("store pin: %w", err)
	}

	if s.events != nil {
		if err := s.events.PublishPinConfigured(ctx, domain.PinConfiguredEvent{
			EventID:   uuid.NewString(),
			UserID:    userID,
			PinLength: len(pin),
			At:        now,
		}); err != nil {
			s.logger.Warn("publish pin configured event", zap.Error(err))
		}
	}

	return nil
}

// VerifyPin checks the supplied PIN against the stored hash.
//
// While the lockout window is open the call fails with ErrPinLocked before
// any comparison, so a locked account cannot be probed for timing. On
// mismatch the failure is registered through a single atomic per-user
// update; the lockout trips at exactly the configured cumulative failure
// count regardless of cross-device interleaving. Every attempt is appended
// to the audit log.
func (s *PinService) VerifyPin(ctx context.Context, userID, deviceID, pin string) (VerifyOutcome, error) {
	if userID == "" || deviceID == "" {
		return VerifyOutcome{}, fmt.Errorf("user id and device id are required")
	}
	if err := s.validatePin(pin); err != nil {
		return VerifyOutcome{}, err
	}

	record, err := s.creds.Get(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return VerifyOutcome{}, ErrNoPinConfigured
		}
		return VerifyOutcome{}, fmt.Errorf("load credential: %w", err)
	}
	if !record.HasPin() {
		return VerifyOutcome{}, ErrNoPinConfigured
	}

	now := s.now()

	if record.IsLocked(now) {
		lockedUntil := *record.PinLockedUntil
		s.appendAttempt(ctx, userID, deviceID, false, now)
		s.metrics.ObserveVerification("locked")
		return VerifyOutcome{LockedUntil: &lockedUntil}, ErrPinLocked
	}

	match, err := security.VerifyPin(pin, *record.PinHash)
	if err != nil {
		return VerifyOutcome{}, fmt.Errorf("verify pin hash: %w", err)
	}

	if !match {
		return s.registerFailure(ctx, userID, deviceID, now)
	}

	if err := s.creds.RegisterSuccess(ctx, userID, now); err != nil {
		return VerifyOutcome{}, fmt.Errorf("register pin success: %w", err)
	}

	if err := s.sessions.Refresh(ctx, userID, deviceID, domain.AuthLevelPin, now); err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return VerifyOutcome{}, fmt.Errorf("refresh device session: %w", err)
		}
		s.logger.Warn("pin verified without an active device session",
			zap.String("user_id", userID),
		)
	}

	s.appendAttempt(ctx, userID, deviceID, true, now)
	s.metrics.ObserveVerification("success")

	return VerifyOutcome{AttemptsRemaining: s.policy.MaxPinAttempts}, nil
}

func (s *PinService) registerFailure(ctx context.Context, userID, deviceID string, now time.Time) (VerifyOutcome, error) {
	outcome, err := s.creds.RegisterFailure(ctx, userID, s.policy.MaxPinAttempts, now.Add(s.policy.LockoutDuration))
	if err != nil {
		return VerifyOutcome{}, fmt.Errorf("register pin failure: %w", err)
	}

	s.appendAttempt(ctx, userID, deviceID, false, now)
	s.metrics.ObserveVerification("wrong_pin")

	remaining := s.policy.MaxPinAttempts - outcome.Attempts
	if remaining < 0 {
		remaining = 0
	}

	result := VerifyOutcome{
		AttemptsRemaining: remaining,
		LockedUntil:       outcome.LockedUntil,
	}

	if outcome.JustLocked {
		s.metrics.ObserveLockout()
		s.logger.Warn("pin lockout triggered",
			zap.String("user_id", userID),
			zap.Int("attempts", outcome.Attempts),
		)
		if s.events != nil && outcome.LockedUntil != nil {
			if err := s.events.PublishPinLocked(ctx, domain.PinLockedEvent{
				EventID:     uuid.NewString(),
				UserID:      userID,
				DeviceID:    deviceID,
				Attempts:    outcome.Attempts,
				LockedUntil: *outcome.LockedUntil,
				At:          now,
			}); err != nil {
				s.logger.Warn("publish pin locked event", zap.Error(err))
			}
		}
	}

	return result, ErrWrongPin
}

func (s *PinService) appendAttempt(ctx context.Context, userID, deviceID string, success bool, at time.Time) {
	if s.attempts == nil {
		return
	}
	entry := domain.PinAttemptEntry{
		ID:       uuid.NewString(),
		UserID:   userID,
		DeviceID: deviceID,
		Success:  success,
		At:       at,
	}
	if err := s.attempts.Append(ctx, entry); err != nil {
		s.logger.Error("append pin attempt audit entry", zap.Error(err))
	}
}

func (s *PinService) validatePin(pin string) error {
	if !s.policy.AllowsPinLength(len(pin)) {
		return ErrInvalidPin
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return ErrInvalidPin
		}
	}
	return nil
}
