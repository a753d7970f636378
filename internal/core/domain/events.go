package domain

import "time"

// PinConfiguredEvent is published when a user sets or replaces their PIN.
type PinConfiguredEvent struct {
	EventID   string
	UserID    string
	PinLength int
	At        time.Time
}

// PinLockedEvent is published when repeated failures trip the lockout.
type PinLockedEvent struct {
	EventID     string
	UserID      string
	DeviceID    string
	Attempts    int
	LockedUntil time.Time
	At          time.Time
}

// FullLoginRecordedEvent is published when a primary sign-in is recorded
// against a device session.
type FullLoginRecordedEvent struct {
	EventID  string
	UserID   string
	DeviceID string
	At       time.Time
}

// SessionsInvalidatedEvent is published when a security event bulk-invalidates
// every device session of a user.
type SessionsInvalidatedEvent struct {
	EventID string
	UserID  string
	Count   int
	Reason  string
	At      time.Time
}
