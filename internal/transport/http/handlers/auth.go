package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/core/domain"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/transport/http/middleware"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/usecase"
)

// deviceIDHeader carries the caller's opaque device identifier on requests
// that have no body.
const deviceIDHeader = "X-Device-ID"

// AuthHandler exposes the re-authentication endpoints: trust state
// resolution, PIN setup and verification, and full-login recording.
type AuthHandler struct {
	trust          *usecase.TrustService
	pins           *usecase.PinService
	sessions       *usecase.SessionService
	resolveTimeout time.Duration
}

// NewAuthHandler constructs an auth handler. resolveTimeout bounds trust
// resolution; a non-positive value falls back to 3 seconds.
func NewAuthHandler(trust *usecase.TrustService, pins *usecase.PinService, sessions *usecase.SessionService, resolveTimeout time.Duration) *AuthHandler {
	if resolveTimeout <= 0 {
		resolveTimeout = 3 * time.Second
	}
	return &AuthHandler{trust: trust, pins: pins, sessions: sessions, resolveTimeout: resolveTimeout}
}

// ResolveState returns the required authentication level for the calling
// identity on the device named by the X-Device-ID header. Storage failures
// surface as a full re-authentication requirement, never as an error.
func (h *AuthHandler) ResolveState(c *gin.Context) {
	if h.trust == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "trust resolution unavailable"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	deviceID := strings.TrimSpace(c.GetHeader(deviceIDHeader))
	if deviceID == "" {
		deviceID = strings.TrimSpace(c.Query("device_id"))
	}
	if deviceID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "device id is required"))
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), h.resolveTimeout)
	defer cancel()

	state := h.trust.ResolveAuthState(ctx, userID, deviceID)
	c.JSON(http.StatusOK, newAuthStatePayload(state))
}

// SetupPin stores a new PIN for the calling identity.
func (h *AuthHandler) SetupPin(c *gin.Context) {
	if h.pins == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "pin service unavailable"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PinSetupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "pin is required"))
		return
	}

	if err := h.pins.SetPin(c.Request.Context(), userID, req.Pin); err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrInvalidPin, Status: http.StatusBadRequest, Message: "pin must be 4 or 6 digits"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to store pin")
		return
	}

	c.JSON(http.StatusCreated, MessageResponse{Message: "pin configured"})
}

// VerifyPin checks a PIN entry against the stored credential. Failure
// responses carry the authoritative attempts-remaining and lock-expiry
// values so clients never guess them locally.
func (h *AuthHandler) VerifyPin(c *gin.Context) {
	if h.pins == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "pin service unavailable"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req PinVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "pin and device_id are required"))
		return
	}

	outcome, err := h.pins.VerifyPin(c.Request.Context(), userID, req.DeviceID, req.Pin)
	if err != nil {
		switch {
		case errors.Is(err, usecase.ErrInvalidPin):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "pin must be 4 or 6 digits"))
		case errors.Is(err, usecase.ErrNoPinConfigured):
			c.JSON(http.StatusConflict, NewErrorResponse(c, "no pin configured"))
		case errors.Is(err, usecase.ErrPinLocked):
			c.JSON(http.StatusLocked, PinVerifyFailureResponse{
				Error:         "pin verification locked",
				LockExpiresAt: outcome.LockedUntil,
				TraceID:       middleware.GetTraceID(c),
			})
		case errors.Is(err, usecase.ErrWrongPin):
			c.JSON(http.StatusUnauthorized, PinVerifyFailureResponse{
				Error:             "pin does not match",
				AttemptsRemaining: outcome.AttemptsRemaining,
				LockExpiresAt:     outcome.LockedUntil,
				TraceID:           middleware.GetTraceID(c),
			})
		default:
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "failed to verify pin"))
		}
		return
	}

	c.JSON(http.StatusOK, PinVerifyResponse{
		Verified:          true,
		AttemptsRemaining: outcome.AttemptsRemaining,
	})
}

// RecordLoginEvent registers a completed primary sign-in: it upserts the
// device session at level full and clears any PIN lockout.
func (h *AuthHandler) RecordLoginEvent(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	var req LoginEventRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "device_id is required"))
		return
	}

	info := domain.DeviceInfo{
		DeviceClass: strings.TrimSpace(req.DeviceInfo.DeviceClass),
		Browser:     strings.TrimSpace(req.DeviceInfo.Browser),
		OS:          strings.TrimSpace(req.DeviceInfo.OS),
	}

	session, err := h.sessions.RecordFullLogin(c.Request.Context(), userID, req.DeviceID, info)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to record login")
		return
	}

	c.JSON(http.StatusCreated, newSessionPayload(*session))
}
