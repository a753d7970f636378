package postgres

import (
	"context"
	"fmt"

	squirrel "github.com/Masterminds/squirrel"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/port"
)

// PinAttemptRepository implements port.PinAttemptLog for PostgreSQL. The
// underlying table is append-only; no update or delete statements exist here.
type PinAttemptRepository struct {
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewPinAttemptRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewPinAttemptRepository(exec pgExecutor) *PinAttemptRepository {
	return &PinAttemptRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// Append inserts one attempt entry.
func (r *PinAttemptRepository) Append(ctx context.Context, entry domain.PinAttemptEntry) error {
	stmt, args, err := r.builder.Insert("reauth.pin_attempt_log").
		Columns("id", "user_id", "device_id", "success", "at").
		Values(entry.ID, entry.UserID, entry.DeviceID, entry.Success, entry.At).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert attempt sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	return nil
}

// ListRecent returns the latest attempt entries for a user, newest first.
func (r *PinAttemptRepository) ListRecent(ctx context.Context, userID string, limit int) ([]domain.PinAttemptEntry, error) {
	if limit <= 0 {
		limit = 50
	}

	stmt, args, err := r.builder.
		Select("id", "user_id", "device_id", "success", "at").
		From("reauth.pin_attempt_log").
		Where(squirrel.Eq{"user_id": userID}).
		OrderBy("at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list attempts sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	entries := make([]domain.PinAttemptEntry, 0, limit)
	for rows.Next() {
		var entry domain.PinAttemptEntry
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.DeviceID, &entry.Success, &entry.At); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}

	return entries, nil
}

var _ port.PinAttemptLog = (*PinAttemptRepository)(nil)
