package port

import (
	"context"
	"time"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
)

// FailureOutcome reports the post-increment attempt counter and, when the
// threshold was crossed by this failure, the lockout expiry that was set.
type FailureOutcome struct {
	Attempts    int
	LockedUntil *time.Time
	JustLocked  bool
}

// CredentialRepository exposes persistence behavior for user auth records.
//
// RegisterFailure must be a single atomic read-modify-write per user: two
// concurrent failures must never both observe the pre-increment counter, so
// the lockout trips at exactly the configured cumulative failure count.
type CredentialRepository interface {
	Get(ctx context.Context, userID string) (*domain.UserAuthRecord, error)
	SetPin(ctx context.Context, userID, pinHash string, pinLength int, at time.Time) error
	RegisterFailure(ctx context.Context, userID string, maxAttempts int, lockedUntil time.Time) (FailureOutcome, error)
	RegisterSuccess(ctx context.Context, userID string, at time.Time) error
	RecordFullLogin(ctx context.Context, userID string, at time.Time) error
}
