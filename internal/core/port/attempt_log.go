package port

import (
	"context"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
)

// PinAttemptLog records every PIN verification attempt for audit and
// rate-limiting analysis. Append-only: entries are never updated or deleted.
type PinAttemptLog interface {
	Append(ctx context.Context, entry domain.PinAttemptEntry) error
	ListRecent(ctx context.Context, userID string, limit int) ([]domain.PinAttemptEntry, error)
}
