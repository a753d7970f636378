package handlers

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
)

// ErrorResponse represents a generic error payload with trace ID for debugging.
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// NewErrorResponse creates an error response with trace ID from context
func NewErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	traceID, _ := c.Get("trace_id")
	traceIDStr, _ := traceID.(string)

	return ErrorResponse{
		Error:   errorMsg,
		TraceID: traceIDStr,
	}
}

// MessageResponse represents a simple message payload.
type MessageResponse struct {
	Message string `json:"message"`
}

// AuthStateResponse is the resolved trust decision for the calling identity
// on one device. Clients must treat it as authoritative and never cache it
// across round-trips.
type AuthStateResponse struct {
	RequiredAuthLevel  string     `json:"required_auth_level"`
	HasPin             bool       `json:"has_pin"`
	PinLength          int        `json:"pin_length,omitempty"`
	IsLocked           bool       `json:"is_locked"`
	LockExpiresAt      *time.Time `json:"lock_expires_at,omitempty"`
	AttemptsRemaining  int        `json:"attempts_remaining"`
	DaysSinceFullLogin int        `json:"days_since_full_login"`
	DaysSincePinVerify int        `json:"days_since_pin_verify"`
	Bypass             bool       `json:"bypass"`
}

func newAuthStatePayload(state domain.AuthState) AuthStateResponse {
	return AuthStateResponse{
		RequiredAuthLevel:  string(state.RequiredAuthLevel),
		HasPin:             state.HasPin,
		PinLength:          state.PinLength,
		IsLocked:           state.IsLocked,
		LockExpiresAt:      state.LockExpiresAt,
		AttemptsRemaining:  state.AttemptsRemaining,
		DaysSinceFullLogin: state.DaysSinceFullLogin,
		DaysSincePinVerify: state.DaysSincePinVerify,
		Bypass:             state.Bypass,
	}
}

// PinSetupRequest carries a new PIN. The plaintext is hashed immediately and
// never stored or logged.
type PinSetupRequest struct {
	Pin string `json:"pin" binding:"required"`
}

// PinVerifyRequest carries a PIN entry for verification on one device.
type PinVerifyRequest struct {
	Pin      string `json:"pin" binding:"required"`
	DeviceID string `json:"device_id" binding:"required"`
}

// PinVerifyResponse reports a successful verification.
type PinVerifyResponse struct {
	Verified          bool `json:"verified"`
	AttemptsRemaining int  `json:"attempts_remaining"`
}

// PinVerifyFailureResponse reports a failed or locked verification with the
// authoritative server-side counters.
type PinVerifyFailureResponse struct {
	Error             string     `json:"error"`
	AttemptsRemaining int        `json:"attempts_remaining"`
	LockExpiresAt     *time.Time `json:"lock_expires_at,omitempty"`
	TraceID           string     `json:"trace_id,omitempty"`
}

// DeviceInfoPayload mirrors the display-only device metadata supplied by
// clients at login time.
type DeviceInfoPayload struct {
	DeviceClass string `json:"device_class"`
	Browser     string `json:"browser"`
	OS          string `json:"os"`
}

// LoginEventRequest records a completed primary sign-in on a device.
type LoginEventRequest struct {
	DeviceID   string            `json:"device_id" binding:"required"`
	DeviceInfo DeviceInfoPayload `json:"device_info"`
}

// SessionPayload is the API view of one device session.
type SessionPayload struct {
	ID           string            `json:"id"`
	DeviceID     string            `json:"device_id"`
	DeviceInfo   DeviceInfoPayload `json:"device_info"`
	AuthLevel    string            `json:"auth_level"`
	LastActivity time.Time         `json:"last_activity"`
	CreatedAt    time.Time         `json:"created_at"`
	IsCurrent    bool              `json:"is_current,omitempty"`
}

func newSessionPayload(session domain.DeviceSession) SessionPayload {
	return SessionPayload{
		ID:       session.ID,
		DeviceID: session.DeviceID,
		DeviceInfo: DeviceInfoPayload{
			DeviceClass: session.DeviceInfo.DeviceClass,
			Browser:     session.DeviceInfo.Browser,
			OS:          session.DeviceInfo.OS,
		},
		AuthLevel:    string(session.AuthLevel),
		LastActivity: session.LastActivity,
		CreatedAt:    session.CreatedAt,
	}
}

// SessionListResponse wraps the active sessions of the calling user.
type SessionListResponse struct {
	Sessions []SessionPayload `json:"sessions"`
	Total    int              `json:"total"`
}

// SessionBulkInvalidateResponse reports how many sessions a bulk
// invalidation affected.
type SessionBulkInvalidateResponse struct {
	InvalidatedCount int `json:"invalidated_count"`
}

// HealthResponse reports liveness.
type HealthResponse struct {
	Status    string    `json:"status"`
	StartedAt time.Time `json:"started_at"`
}

// ReadinessResponse reports the state of each backing dependency.
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}
