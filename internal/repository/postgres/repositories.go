package postgres

import "github.com/jackc/pgx/v5/pgxpool"

// Repositories groups concrete PostgreSQL repository implementations.
type Repositories struct {
	Credentials *CredentialRepository
	Sessions    *DeviceSessionRepository
	Attempts    *PinAttemptRepository
}

// NewRepositories wires all repositories backed by the provided pool.
func NewRepositories(pool *pgxpool.Pool) *Repositories {
	return &Repositories{
		Credentials: NewCredentialRepository(pool),
		Sessions:    NewDeviceSessionRepository(pool),
		Attempts:    NewPinAttemptRepository(pool),
	}
}
