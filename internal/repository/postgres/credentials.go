package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/port"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CredentialRepository implements port.CredentialRepository backed by PostgreSQL.
type CredentialRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewCredentialRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewCredentialRepository(exec pgExecutor) *CredentialRepository {
	return &CredentialRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Get fetches the credential record for a user.
func (r *CredentialRepository) Get(ctx context.Context, userID string) (*domain.UserAuthRecord, error) {
	stmt, args, err := r.builder.
		Select(
			"user_id",
			"pin_hash",
			"pin_length",
			"pin_attempts",
			"pin_locked_until",
			"last_full_login",
			"last_pin_verify",
			"auth_policy",
			"updated_at",
		).
		From("reauth.user_credentials").
		Where(squirrel.Eq{"user_id": userID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select credential sql: %w", err)
	}

	var record domain.UserAuthRecord
	row := r.exec.QueryRow(ctx, stmt, args...)
	if err := row.Scan(
		&record.UserID,
		&record.PinHash,
		&record.PinLength,
		&record.PinAttempts,
		&record.PinLockedUntil,
		&record.LastFullLogin,
		&record.LastPinVerify,
		&record.AuthPolicy,
		&record.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("select credential: %w", err)
	}

	return &record, nil
}

// SetPin stores a new PIN hash and chosen length, clearing attempt and lock
// state. The last full login timestamp is left untouched.
func (r *CredentialRepository) SetPin(ctx context.Context, userID, pinHash string, pinLength int, at time.Time) error {
	const stmt = `
		INSERT INTO reauth.user_credentials (user_id, pin_hash, pin_length, pin_attempts, pin_locked_until, last_full_login, auth_policy, updated_at)
		VALUES ($1, $2, $3, 0, NULL, $4, 'standard', $4)
		ON CONFLICT (user_id) DO UPDATE SET
			pin_hash = EXCLUDED.pin_hash,
			pin_length = EXCLUDED.pin_length,
			pin_attempts = 0,
			pin_locked_until = NULL,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.exec.Exec(ctx, stmt, userID, pinHash, pinLength, at); err != nil {
		return fmt.Errorf("upsert pin: %w", err)
	}

	return nil
}

// RegisterFailure increments the failed-attempt counter and, when the
// post-increment count reaches maxAttempts, sets the lockout expiry in the
// same statement so concurrent failures from different devices serialize on
// the row lock and the lockout trips at exactly the threshold.
func (r *CredentialRepository) RegisterFailure(ctx context.Context, userID string, maxAttempts int, lockedUntil time.Time) (port.FailureOutcome, error) {
	const stmt = `
		UPDATE reauth.user_credentials
		SET pin_attempts = pin_attempts + 1,
			pin_locked_until = CASE
				WHEN pin_attempts + 1 >= $2 AND (pin_locked_until IS NULL OR pin_locked_until <= NOW()) THEN $3
				ELSE pin_locked_until
			END,
			updated_at = NOW()
		WHERE user_id = $1
		RETURNING pin_attempts, pin_locked_until`

	var outcome port.FailureOutcome
	row := r.exec.QueryRow(ctx, stmt, userID, maxAttempts, lockedUntil)
	if err := row.Scan(&outcome.Attempts, &outcome.LockedUntil); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return port.FailureOutcome{}, repository.ErrNotFound
		}
		return port.FailureOutcome{}, fmt.Errorf("register pin failure: %w", err)
	}

	outcome.JustLocked = outcome.LockedUntil != nil && outcome.LockedUntil.Equal(lockedUntil)
	return outcome, nil
}

// RegisterSuccess resets attempt and lock state and stamps the successful
// PIN verification time.
func (r *CredentialRepository) RegisterSuccess(ctx context.Context, userID string, at time.Time) error {
	stmt, args, err := r.builder.
		Update("reauth.user_credentials").
		Set("pin_attempts", 0).
		Set("pin_locked_until", nil).
		Set("last_pin_verify", at).
		Set("updated_at", at).
		Where(squirrel.Eq{"user_id": userID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build register success sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("register pin success: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RecordFullLogin stamps a primary sign-in and unconditionally clears attempt
// and lock state. Full login always wins over an in-flight verification.
func (r *CredentialRepository) RecordFullLogin(ctx context.Context, userID string, at time.Time) error {
	const stmt = `
		INSERT INTO reauth.user_credentials (user_id, pin_attempts, pin_locked_until, last_full_login, auth_policy, updated_at)
		VALUES ($1, 0, NULL, $2, 'standard', $2)
		ON CONFLICT (user_id) DO UPDATE SET
			pin_attempts = 0,
			pin_locked_until = NULL,
			last_full_login = EXCLUDED.last_full_login,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.exec.Exec(ctx, stmt, userID, at); err != nil {
		return fmt.Errorf("record full login: %w", err)
	}

	return nil
}

var _ port.CredentialRepository = (*CredentialRepository)(nil)
