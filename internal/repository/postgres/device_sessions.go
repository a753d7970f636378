package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/port"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/repository"
)

// DeviceSessionRepository implements port.DeviceSessionRepository for PostgreSQL.
type DeviceSessionRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewDeviceSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewDeviceSessionRepository(exec pgExecutor) *DeviceSessionRepository {
	return &DeviceSessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

var sessionColumns = []string{
	"id",
	"user_id",
	"device_id",
	"device_class",
	"browser",
	"os",
	"auth_level",
	"last_activity",
	"created_at",
	"is_active",
}

// Upsert creates or refreshes the session row for a (user, device) pair.
func (r *DeviceSessionRepository) Upsert(ctx context.Context, session domain.DeviceSession) error {
	const stmt = `
		INSERT INTO reauth.device_sessions (id, user_id, device_id, device_class, browser, os, auth_level, last_activity, created_at, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (user_id, device_id) DO UPDATE SET
			auth_level = EXCLUDED.auth_level,
			last_activity = EXCLUDED.last_activity,
			is_active = EXCLUDED.is_active`

	if _, err := r.exec.Exec(ctx, stmt,
		session.ID,
		session.UserID,
		session.DeviceID,
		session.DeviceInfo.DeviceClass,
		session.DeviceInfo.Browser,
		session.DeviceInfo.OS,
		session.AuthLevel,
		session.LastActivity,
		session.CreatedAt,
		session.IsActive,
	); err != nil {
		return fmt.Errorf("upsert device session: %w", err)
	}

	return nil
}

// Get fetches the session for a (user, device) pair.
func (r *DeviceSessionRepository) Get(ctx context.Context, userID, deviceID string) (*domain.DeviceSession, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("reauth.device_sessions").
		Where(squirrel.Eq{"user_id": userID, "device_id": deviceID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select device session sql: %w", err)
	}

	return r.scanOne(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByID fetches a session by its identifier.
func (r *DeviceSessionRepository) GetByID(ctx context.Context, sessionID string) (*domain.DeviceSession, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("reauth.device_sessions").
		Where(squirrel.Eq{"id": sessionID}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select device session sql: %w", err)
	}

	return r.scanOne(r.exec.QueryRow(ctx, stmt, args...))
}

// ListActiveByUser returns active sessions only, most-recently-active first.
func (r *DeviceSessionRepository) ListActiveByUser(ctx context.Context, userID string) ([]domain.DeviceSession, error) {
	stmt, args, err := r.builder.
		Select(sessionColumns...).
		From("reauth.device_sessions").
		Where(squirrel.Eq{"user_id": userID, "is_active": true}).
		OrderBy("last_activity DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list device sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list device sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.DeviceSession, 0)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate device sessions: %w", err)
	}

	return sessions, nil
}

// Refresh stamps a verification event on the (user, device) session.
func (r *DeviceSessionRepository) Refresh(ctx context.Context, userID, deviceID string, level domain.AuthLevel, at time.Time) error {
	stmt, args, err := r.builder.
		Update("reauth.device_sessions").
		Set("auth_level", level).
		Set("last_activity", at).
		Where(squirrel.Eq{"user_id": userID, "device_id": deviceID, "is_active": true}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build refresh device session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("refresh device session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// Invalidate marks one session inactive. Idempotent: returns false when the
// session was already inactive or absent.
func (r *DeviceSessionRepository) Invalidate(ctx context.Context, sessionID string) (bool, error) {
	stmt, args, err := r.builder.
		Update("reauth.device_sessions").
		Set("is_active", false).
		Where(squirrel.Eq{"id": sessionID, "is_active": true}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build invalidate session sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("invalidate session: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// InvalidateAllForUser marks every session of the user inactive with level
// expired and returns the number of sessions affected.
func (r *DeviceSessionRepository) InvalidateAllForUser(ctx context.Context, userID string) (int, error) {
	stmt, args, err := r.builder.
		Update("reauth.device_sessions").
		Set("is_active", false).
		Set("auth_level", domain.AuthLevelExpired).
		Where(squirrel.Eq{"user_id": userID, "is_active": true}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build invalidate all sessions sql: %w", err)
	}

	tag, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("invalidate all sessions: %w", err)
	}

	return int(tag.RowsAffected()), nil
}

func (r *DeviceSessionRepository) scanOne(row pgx.Row) (*domain.DeviceSession, error) {
	session, err := scanSession(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, err
	}
	return session, nil
}

func scanSession(row pgx.Row) (*domain.DeviceSession, error) {
	var session domain.DeviceSession
	if err := row.Scan(
		&session.ID,
		&session.UserID,
		&session.DeviceID,
		&session.DeviceInfo.DeviceClass,
		&session.DeviceInfo.Browser,
		&session.DeviceInfo.OS,
		&session.AuthLevel,
		&session.LastActivity,
		&session.CreatedAt,
		&session.IsActive,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scan device session: %w", err)
	}
	return &session, nil
}

var _ port.DeviceSessionRepository = (*DeviceSessionRepository)(nil)
