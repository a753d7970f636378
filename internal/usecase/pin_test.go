package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/security"
)

type pinFixture struct {
	svc      *PinService
	creds    *fakeCredentialRepository
	sessions *fakeSessionRepository
	attempts *fakeAttemptLog
	events   *fakeEventPublisher
}

func newPinFixture(t *testing.T, now time.Time) *pinFixture {
	t.Helper()
	f := &pinFixture{
		creds:    newFakeCredentialRepository(),
		sessions: newFakeSessionRepository(),
		attempts: &fakeAttemptLog{},
		events:   &fakeEventPublisher{},
	}
	f.creds.now = fixedClock(now)
	f.svc = NewPinService(f.creds, f.sessions, f.attempts, f.events, domain.DefaultTrustPolicy(), nil, nil).
		WithClock(fixedClock(now))
	return f
}

func (f *pinFixture) seedUser(t *testing.T, userID, pin string, now time.Time) {
	t.Helper()
	hash, err := security.HashPin(pin)
	if err != nil {
		t.Fatalf("hash pin: %v", err)
	}
	f.creds.put(domain.UserAuthRecord{
		UserID:        userID,
		PinHash:       &hash,
		PinLength:     len(pin),
		LastFullLogin: now.Add(-time.Hour),
		AuthPolicy:    domain.AuthPolicyStandard,
	})
	f.sessions.put(activeSession(userID, "device-1", now.Add(-time.Hour)))
}

func TestSetPinStoresHashAndLength(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newPinFixture(t, now)

	if err := f.svc.SetPin(context.Background(), "user-1", "481632"); err != nil {
		t.Fatalf("SetPin returned error: %v", err)
	}

	record, err := f.creds.Get(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}
	if !record.HasPin() {
		t.Fatal("expected a stored pin hash")
	}
	if *record.PinHash == "481632" {
		t.Fatal("pin stored in plaintext")
	}
	if record.PinLength != 6 {
		t.Fatalf("expected pin length 6, got %d", record.PinLength)
	}
	if len(f.events.configured) != 1 || f.events.configured[0].PinLength != 6 {
		t.Fatalf("expected one pin configured event, got %+v", f.events.configured)
	}
}

func TestSetPinOverwriteClearsLockState(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newPinFixture(t, now)
	f.seedUser(t, "user-1", "1234", now)

	lock := now.Add(10 * time.Minute)
	record, _ := f.creds.Get(context.Background(), "user-1")
	record.PinAttempts = 5
	record.PinLockedUntil = &lock
	f.creds.put(*record)

	if err := f.svc.SetPin(context.Background(), "user-1", "9876"); err != nil {
		t.Fatalf("SetPin returned error: %v", err)
	}

	record, _ = f.creds.Get(context.Background(), "user-1")
	if record.PinAttempts != 0 || record.PinLockedUntil != nil {
		t.Fatalf("expected attempt and lock state cleared, got %+v", record)
	}
	if record.LastFullLogin.IsZero() {
		t.Fatal("expected last full login preserved")
	}
}

func TestSetPinRejectsMalformedInput(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newPinFixture(t, now)

	for _, pin := range []string{"", "123", "12345", "1234567", "12a4", "12 4", "١٢٣٤"} {
		if err := f.svc.SetPin(context.Background(), "user-1", pin); !errors.Is(err, ErrInvalidPin) {
			t.Fatalf("pin %q: expected ErrInvalidPin, got %v", pin, err)
		}
	}
	if len(f.events.configured) != 0 {
		t.Fatal("no events expected for rejected pins")
	}
}

func TestVerifyPinSuccess(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newPinFixture(t, now)
	f.seedUser(t, "user-1", "1234", now)

	outcome, err := f.svc.VerifyPin(context.Background(), "user-1", "device-1", "1234")
	if err != nil {
		t.Fatalf("VerifyPin returned error: %v", err)
	}
	if outcome.AttemptsRemaining != 5 {
		t.Fatalf("expected full attempt budget after success, got %d", outcome.AttemptsRemaining)
	}

	record, _ := f.creds.Get(context.Background(), "user-1")
	if record.PinAttempts != 0 {
		t.Fatalf("expected attempt counter reset, got %d", record.PinAttempts)
	}
	if record.LastPinVerify == nil || !record.LastPinVerify.Equal(now) {
		t.Fatalf("expected last pin verify stamped at %v, got %v", now, record.LastPinVerify)
	}

	session, err := f.sessions.Get(context.Background(), "user-1", "device-1")
	if err != nil {
		t.Fatalf("session lookup: %v", err)
	}
	if session.AuthLevel != domain.AuthLevelPin || !session.LastActivity.Equal(now) {
		t.Fatalf("expected session refreshed at pin level, got %+v", session)
	}

	if f.attempts.count(true) != 1 {
		t.Fatalf("expected one successful audit entry, got %d", f.attempts.count(true))
	}
}

func TestVerifyPinWrongIncrementsCounter(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newPinFixture(t, now)
	f.seedUser(t, "user-1", "1234", now)

	outcome, err := f.svc.VerifyPin(context.Background(), "user-1", "device-1", "0000")
	if !errors.Is(err, ErrWrongPin) {
		t.Fatalf("expected ErrWrongPin, got %v", err)
	}
	if outcome.AttemptsRemaining != 4 {
		t.Fatalf("expected 4 attempts remaining, got %d", outcome.AttemptsRemaining)
	}
	if outcome.LockedUntil != nil {
		t.Fatalf("no lock expected on first failure, got %v", outcome.LockedUntil)
	}
	if f.attempts.count(false) != 1 {
		t.Fatalf("expected one failed audit entry, got %d", f.attempts.count(false))
	}
}

func TestVerifyPinLockoutTripsAtFifthFailure(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newPinFixture(t, now)
	f.seedUser(t, "user-1", "1234", now)
	f.sessions.put(activeSession("user-1", "device-2", now.Add(-time.Hour)))

	// Failures interleave across two devices; the counter is per user.
	for i := 0; i < 4; i++ {
		device := fmt.Sprintf("device-%d", i%2+1)
		outcome, err := f.svc.VerifyPin(context.Background(), "user-1", device, "0000")
		if !errors.Is(err, ErrWrongPin) {
			t.Fatalf("attempt %d: expected ErrWrongPin, got %v", i+1, err)
		}
		if outcome.LockedUntil != nil {
			t.Fatalf("attempt %d: premature lock", i+1)
		}
	}

	outcome, err := f.svc.VerifyPin(context.Background(), "user-1", "device-2", "0000")
	if !errors.Is(err, ErrWrongPin) {
		t.Fatalf("fifth attempt: expected ErrWrongPin, got %v", err)
	}
	wantLock := now.Add(15 * time.Minute)
	if outcome.LockedUntil == nil || !outcome.LockedUntil.Equal(wantLock) {
		t.Fatalf("expected lock until %v, got %v", wantLock, outcome.LockedUntil)
	}
	if outcome.AttemptsRemaining != 0 {
		t.Fatalf("expected 0 attempts remaining, got %d", outcome.AttemptsRemaining)
	}
	if len(f.events.locked) != 1 || f.events.locked[0].Attempts != 5 {
		t.Fatalf("expected one lockout event with 5 attempts, got %+v", f.events.locked)
	}

	// While the window is open even the correct pin is refused without a
	// comparison, and the attempt still lands in the audit log.
	before := f.attempts.count(false)
	outcome, err = f.svc.VerifyPin(context.Background(), "user-1", "device-1", "1234")
	if !errors.Is(err, ErrPinLocked) {
		t.Fatalf("expected ErrPinLocked, got %v", err)
	}
	if outcome.LockedUntil == nil || !outcome.LockedUntil.Equal(wantLock) {
		t.Fatalf("expected lock expiry surfaced, got %v", outcome.LockedUntil)
	}
	if f.attempts.count(false) != before+1 {
		t.Fatal("expected locked attempt recorded in audit log")
	}
	if len(f.events.locked) != 1 {
		t.Fatal("lockout event must not repeat for attempts during the window")
	}
}

func TestVerifyPinLockExpiryRestoresVerification(t *testing.T) {
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newPinFixture(t, start)
	f.seedUser(t, "user-1", "1234", start)

	for i := 0; i < 5; i++ {
		if _, err := f.svc.VerifyPin(context.Background(), "user-1", "device-1", "0000"); !errors.Is(err, ErrWrongPin) {
			t.Fatalf("attempt %d: expected ErrWrongPin, got %v", i+1, err)
		}
	}

	// Advance past the lockout window. The correct pin verifies again.
	later := start.Add(16 * time.Minute)
	f.svc.WithClock(fixedClock(later))
	f.creds.now = fixedClock(later)

	if _, err := f.svc.VerifyPin(context.Background(), "user-1", "device-1", "1234"); err != nil {
		t.Fatalf("expected verification after lock expiry, got %v", err)
	}
}

func TestVerifyPinWithoutConfiguredPin(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newPinFixture(t, now)

	f.creds.put(domain.UserAuthRecord{
		UserID:        "user-1",
		LastFullLogin: now.Add(-time.Hour),
		AuthPolicy:    domain.AuthPolicyStandard,
	})

	if _, err := f.svc.VerifyPin(context.Background(), "user-1", "device-1", "1234"); !errors.Is(err, ErrNoPinConfigured) {
		t.Fatalf("expected ErrNoPinConfigured, got %v", err)
	}
	if _, err := f.svc.VerifyPin(context.Background(), "ghost", "device-1", "1234"); !errors.Is(err, ErrNoPinConfigured) {
		t.Fatalf("expected ErrNoPinConfigured for unknown user, got %v", err)
	}
}

func TestVerifyPinRejectsMalformedInputBeforeStorage(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newPinFixture(t, now)
	f.creds.getErr = errStorage

	if _, err := f.svc.VerifyPin(context.Background(), "user-1", "device-1", "12ab"); !errors.Is(err, ErrInvalidPin) {
		t.Fatalf("expected ErrInvalidPin before any storage access, got %v", err)
	}
}
