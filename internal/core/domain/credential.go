package domain

import "time"

// AuthPolicy enumerates how re-authentication policy applies to an identity.
type AuthPolicy string

const (
	// AuthPolicyStandard applies the full trust-decay rules.
	AuthPolicyStandard AuthPolicy = "standard"
	// AuthPolicyBypass skips PIN policy entirely (sandboxed/demo identities).
	// Persisted on the record so the exemption is auditable.
	AuthPolicyBypass AuthPolicy = "bypass"
)

// UserAuthRecord mirrors the persisted per-user credential row.
// PinHash is nil when no PIN has been configured.
type UserAuthRecord struct {
	UserID         string
	PinHash        *string
	PinLength      int
	PinAttempts    int
	PinLockedUntil *time.Time
	LastFullLogin  time.Time
	LastPinVerify  *time.Time
	AuthPolicy     AuthPolicy
	UpdatedAt      time.Time
}

// HasPin reports whether a PIN is configured for the user.
func (r UserAuthRecord) HasPin() bool {
	return r.PinHash != nil && *r.PinHash != ""
}

// IsLocked reports whether the lockout window is still open at the supplied moment.
func (r UserAuthRecord) IsLocked(at time.Time) bool {
	return r.PinLockedUntil != nil && r.PinLockedUntil.After(at)
}

// PinVerifyBaseline returns the timestamp the PIN-reverify window is measured
// from: the last successful PIN check, or the last full login when the PIN
// has never been verified.
func (r UserAuthRecord) PinVerifyBaseline() time.Time {
	if r.LastPinVerify != nil {
		return *r.LastPinVerify
	}
	return r.LastFullLogin
}

// PinAttemptEntry is one append-only row of the PIN verification audit log.
// Entries are never updated or deleted.
type PinAttemptEntry struct {
	ID       string
	UserID   string
	DeviceID string
	Success  bool
	At       time.Time
}
