package domain

import "time"

// AuthLevel describes the strongest challenge a device session last satisfied.
type AuthLevel string

const (
	// AuthLevelFull means primary credentials were presented on this device.
	AuthLevelFull AuthLevel = "full"
	// AuthLevelPin means the most recent challenge satisfied was a PIN check.
	AuthLevelPin AuthLevel = "pin"
	// AuthLevelExpired marks a session invalidated by a security event.
	AuthLevelExpired AuthLevel = "expired"
)

// DeviceInfo captures display-only metadata about the device a session was
// created on. It is supplied by the caller and never interpreted.
type DeviceInfo struct {
	DeviceClass string
	Browser     string
	OS          string
}

// DeviceSession is the per-(user, device) record of how and when the user
// last satisfied an authentication challenge on that device. The device
// identifier is an opaque value generated and persisted by the caller.
type DeviceSession struct {
	ID           string
	UserID       string
	DeviceID     string
	DeviceInfo   DeviceInfo
	AuthLevel    AuthLevel
	LastActivity time.Time
	CreatedAt    time.Time
	IsActive     bool
}

// Refresh stamps a new verification event on the session.
func (s *DeviceSession) Refresh(level AuthLevel, at time.Time) {
	s.AuthLevel = level
	s.LastActivity = at
	s.IsActive = true
}

// Invalidate marks the session inactive. Returns true when the session
// changed state, false when it was already inactive.
func (s *DeviceSession) Invalidate() bool {
	if !s.IsActive {
		return false
	}
	s.IsActive = false
	return true
}
