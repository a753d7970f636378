package domain

import "time"

// RequiredAuthLevel enumerates the challenge a user must clear before
// proceeding on a given device.
type RequiredAuthLevel string

const (
	// RequiredAuthNone lets the user through with no further challenge.
	RequiredAuthNone RequiredAuthLevel = "none"
	// RequiredAuthPin demands a short PIN re-verification.
	RequiredAuthPin RequiredAuthLevel = "pin"
	// RequiredAuthFull demands full re-authentication with primary credentials.
	RequiredAuthFull RequiredAuthLevel = "full"
)

// TrustPolicy holds the tunable trust-decay thresholds.
type TrustPolicy struct {
	MaxPinAttempts      int
	LockoutDuration     time.Duration
	PinReverifyInterval time.Duration
	FullReauthInterval  time.Duration
	PinLengths          []int
}

// DefaultTrustPolicy returns the stock thresholds: five attempts, fifteen
// minute lockout, thirty day PIN window, ninety day full-login ceiling.
func DefaultTrustPolicy() TrustPolicy {
	return TrustPolicy{
		MaxPinAttempts:      5,
		LockoutDuration:     15 * time.Minute,
		PinReverifyInterval: 30 * 24 * time.Hour,
		FullReauthInterval:  90 * 24 * time.Hour,
		PinLengths:          []int{4, 6},
	}
}

// AllowsPinLength reports whether the supplied digit count is an accepted PIN length.
func (p TrustPolicy) AllowsPinLength(n int) bool {
	for _, l := range p.PinLengths {
		if l == n {
			return true
		}
	}
	return false
}

// AuthState is the resolved trust decision for a (user, device) pair at a
// point in time. It is derived from stored records and never cached across
// round-trips by callers.
type AuthState struct {
	HasPin             bool
	Bypass             bool
	PinLength          int
	IsLocked           bool
	LockExpiresAt      *time.Time
	AttemptsRemaining  int
	RequiredAuthLevel  RequiredAuthLevel
	DaysSinceFullLogin int
	DaysSincePinVerify int
}

// FailClosedAuthState is the state returned whenever stored records cannot be
// read: ambiguity always resolves to the strictest challenge.
func FailClosedAuthState() AuthState {
	return AuthState{RequiredAuthLevel: RequiredAuthFull}
}

// ResolveTrust computes the required authentication level for a device from
// the user's credential record and that device's session. Rules are evaluated
// in order and the first match wins:
//
//  1. No record, no active session for the device, or the full-login ceiling
//     reached -> full. The ceiling is absolute; intervening PIN verification
//     never extends it.
//  2. Lockout window open -> full. Lockout forces a step-up, not a retry loop.
//  3. PIN-reverify window elapsed -> pin when a PIN exists, otherwise full.
//  4. Otherwise -> none.
func ResolveTrust(record *UserAuthRecord, session *DeviceSession, now time.Time, policy TrustPolicy) AuthState {
	if record == nil {
		return FailClosedAuthState()
	}

	state := AuthState{
		HasPin:    record.HasPin(),
		PinLength: record.PinLength,
	}

	state.AttemptsRemaining = policy.MaxPinAttempts - record.PinAttempts
	if state.AttemptsRemaining < 0 {
		state.AttemptsRemaining = 0
	}

	if record.IsLocked(now) {
		state.IsLocked = true
		expiry := *record.PinLockedUntil
		state.LockExpiresAt = &expiry
	}

	sinceFullLogin := now.Sub(record.LastFullLogin)
	sincePinVerify := now.Sub(record.PinVerifyBaseline())
	state.DaysSinceFullLogin = wholeDays(sinceFullLogin)
	state.DaysSincePinVerify = wholeDays(sincePinVerify)

	switch {
	case session == nil || !session.IsActive || record.LastFullLogin.IsZero() || sinceFullLogin >= policy.FullReauthInterval:
		state.RequiredAuthLevel = RequiredAuthFull
	case state.IsLocked:
		state.RequiredAuthLevel = RequiredAuthFull
	case sincePinVerify >= policy.PinReverifyInterval:
		if state.HasPin {
			state.RequiredAuthLevel = RequiredAuthPin
		} else {
			state.RequiredAuthLevel = RequiredAuthFull
		}
	default:
		state.RequiredAuthLevel = RequiredAuthNone
	}

	return state
}

func wholeDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / (24 * time.Hour))
}
