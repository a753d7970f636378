package postgres

import (
	"context"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
)

func TestPinAttemptRepository_Append(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPinAttemptRepository(mock)

	entry := domain.PinAttemptEntry{
		ID:       "attempt-1",
		UserID:   "user-1",
		DeviceID: "device-1",
		Success:  false,
		At:       time.Now().UTC(),
	}

	mock.ExpectExec(`INSERT INTO reauth\.pin_attempt_log`).
		WithArgs(entry.ID, entry.UserID, entry.DeviceID, entry.Success, entry.At).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Append(context.Background(), entry); err != nil {
		t.Fatalf("Append returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestPinAttemptRepository_ListRecent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewPinAttemptRepository(mock)

	now := time.Now().UTC()

	rows := pgxmock.NewRows([]string{"id", "user_id", "device_id", "success", "at"}).
		AddRow("attempt-2", "user-1", "device-1", true, now).
		AddRow("attempt-1", "user-1", "device-1", false, now.Add(-time.Minute))

	mock.ExpectQuery(`SELECT .*FROM reauth\.pin_attempt_log`).
		WithArgs("user-1").
		WillReturnRows(rows)

	entries, err := repo.ListRecent(context.Background(), "user-1", 10)
	if err != nil {
		t.Fatalf("ListRecent returned error: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].ID != "attempt-2" || !entries[0].Success {
		t.Fatalf("expected newest successful attempt first, got %+v", entries[0])
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
