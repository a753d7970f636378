package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/port"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/repository"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/transport/http/middleware"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/usecase"
)

type stubCredentialRepo struct {
	get func(ctx context.Context, userID string) (*domain.UserAuthRecord, error)
}

func (s *stubCredentialRepo) Get(ctx context.Context, userID string) (*domain.UserAuthRecord, error) {
	return s.get(ctx, userID)
}

func (s *stubCredentialRepo) SetPin(context.Context, string, string, int, time.Time) error {
	return nil
}

func (s *stubCredentialRepo) RegisterFailure(context.Context, string, int, time.Time) (port.FailureOutcome, error) {
	return port.FailureOutcome{}, nil
}

func (s *stubCredentialRepo) RegisterSuccess(context.Context, string, time.Time) error {
	return nil
}

func (s *stubCredentialRepo) RecordFullLogin(context.Context, string, time.Time) error {
	return nil
}

type stubSessionRepo struct{}

func (s *stubSessionRepo) Upsert(context.Context, domain.DeviceSession) error { return nil }

func (s *stubSessionRepo) Get(context.Context, string, string) (*domain.DeviceSession, error) {
	return nil, repository.ErrNotFound
}

func (s *stubSessionRepo) GetByID(context.Context, string) (*domain.DeviceSession, error) {
	return nil, repository.ErrNotFound
}

func (s *stubSessionRepo) ListActiveByUser(context.Context, string) ([]domain.DeviceSession, error) {
	return nil, nil
}

func (s *stubSessionRepo) Refresh(context.Context, string, string, domain.AuthLevel, time.Time) error {
	return nil
}

func (s *stubSessionRepo) Invalidate(context.Context, string) (bool, error) { return false, nil }

func (s *stubSessionRepo) InvalidateAllForUser(context.Context, string) (int, error) { return 0, nil }

func newResolveStateRouter(t *testing.T, creds port.CredentialRepository, resolveTimeout time.Duration) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	trust := usecase.NewTrustService(creds, &stubSessionRepo{}, domain.DefaultTrustPolicy(), nil, zap.NewNop())
	handler := NewAuthHandler(trust, nil, nil, resolveTimeout)

	r := gin.New()
	r.GET("/state", func(c *gin.Context) {
		c.Set(middleware.UserIDKey, "user-1")
	}, handler.ResolveState)
	return r
}

func resolveState(t *testing.T, r *gin.Engine) AuthStateResponse {
	t.Helper()

	req := httptest.NewRequest(http.MethodGet, "/state", nil)
	req.Header.Set(deviceIDHeader, "device-1")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}

	var payload AuthStateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &payload); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	return payload
}

func TestResolveStateSurfacesBypass(t *testing.T) {
	creds := &stubCredentialRepo{
		get: func(_ context.Context, userID string) (*domain.UserAuthRecord, error) {
			return &domain.UserAuthRecord{
				UserID:     userID,
				AuthPolicy: domain.AuthPolicyBypass,
			}, nil
		},
	}

	payload := resolveState(t, newResolveStateRouter(t, creds, time.Second))

	if payload.RequiredAuthLevel != string(domain.RequiredAuthNone) {
		t.Fatalf("expected level none for bypass identity, got %s", payload.RequiredAuthLevel)
	}
	if !payload.Bypass {
		t.Fatalf("expected bypass flag in resolved state")
	}
}

func TestResolveStateStandardIdentityNotBypass(t *testing.T) {
	creds := &stubCredentialRepo{
		get: func(_ context.Context, _ string) (*domain.UserAuthRecord, error) {
			return nil, repository.ErrNotFound
		},
	}

	payload := resolveState(t, newResolveStateRouter(t, creds, time.Second))

	if payload.Bypass {
		t.Fatalf("expected no bypass flag for standard identity")
	}
	if payload.RequiredAuthLevel != string(domain.RequiredAuthFull) {
		t.Fatalf("expected level full without a credential record, got %s", payload.RequiredAuthLevel)
	}
}

func TestResolveStateTimeoutFailsClosed(t *testing.T) {
	creds := &stubCredentialRepo{
		get: func(ctx context.Context, _ string) (*domain.UserAuthRecord, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}

	payload := resolveState(t, newResolveStateRouter(t, creds, 20*time.Millisecond))

	if payload.RequiredAuthLevel != string(domain.RequiredAuthFull) {
		t.Fatalf("expected level full when resolution times out, got %s", payload.RequiredAuthLevel)
	}
}
