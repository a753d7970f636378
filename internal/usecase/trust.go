package usecase

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/port"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/telemetry"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/repository"
)

// TrustService resolves the authentication challenge required for a
// (user, device) pair. It only reads records; mutation is owned by
// PinService and SessionService.
type TrustService struct {
	creds    port.CredentialRepository
	sessions port.DeviceSessionRepository
	policy   domain.TrustPolicy
	metrics  *telemetry.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// NewTrustService constructs a TrustService.
func NewTrustService(
	creds port.CredentialRepository,
	sessions port.DeviceSessionRepository,
	policy domain.TrustPolicy,
	metrics *telemetry.Metrics,
	logger *zap.Logger,
) *TrustService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrustService{
		creds:    creds,
		sessions: sessions,
		policy:   policy,
		metrics:  metrics,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *TrustService) WithClock(clock func() time.Time) *TrustService {
	if clock != nil {
		s.now = clock
	}
	return s
}

// Policy returns the active trust policy thresholds.
func (s *TrustService) Policy() domain.TrustPolicy {
	return s.policy
}

// ResolveAuthState derives the required authentication level from fresh
// stored state. Storage failures never surface to the caller: ambiguity
// resolves to the strictest challenge (full re-authentication).
func (s *TrustService) ResolveAuthState(ctx context.Context, userID, deviceID string) domain.AuthState {
	if userID == "" || deviceID == "" {
		return domain.FailClosedAuthState()
	}

	record, err := s.creds.Get(ctx, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("resolve auth state: load credential", zap.Error(err))
		s.observe(domain.RequiredAuthFull)
		return domain.FailClosedAuthState()
	}

	if record != nil && record.AuthPolicy == domain.AuthPolicyBypass {
		state := domain.AuthState{
			HasPin:            record.HasPin(),
			Bypass:            true,
			PinLength:         record.PinLength,
			AttemptsRemaining: s.policy.MaxPinAttempts,
			RequiredAuthLevel: domain.RequiredAuthNone,
		}
		s.observe(state.RequiredAuthLevel)
		return state
	}

	session, err := s.sessions.Get(ctx, userID, deviceID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		s.logger.Error("resolve auth state: load device session", zap.Error(err))
		s.observe(domain.RequiredAuthFull)
		return domain.FailClosedAuthState()
	}

	state := domain.ResolveTrust(record, session, s.now(), s.policy)
	s.observe(state.RequiredAuthLevel)
	return state
}

func (s *TrustService) observe(level domain.RequiredAuthLevel) {
	s.metrics.ObserveResolution(string(level))
}
