package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/transport/http/middleware"
	"github.com/ctlilley19/K9-TrainPro-sub000/internal/usecase"
)

// SessionHandler exposes endpoints for device session management.
type SessionHandler struct {
	sessions *usecase.SessionService
}

// NewSessionHandler constructs a session handler.
func NewSessionHandler(sessions *usecase.SessionService) *SessionHandler {
	return &SessionHandler{sessions: sessions}
}

// RegisterRoutes binds REST session management routes to the provided router group.
func (h *SessionHandler) RegisterRoutes(r *gin.RouterGroup) {
	if r == nil {
		return
	}

	r.GET("", h.ListSessions)
	r.DELETE("/:session_id", h.InvalidateSession)
	r.DELETE("", h.InvalidateAllSessions)
}

// ListSessions returns the caller's active sessions, most recently active first.
func (h *SessionHandler) ListSessions(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessions, err := h.sessions.ListSessions(c.Request.Context(), userID)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list sessions")
		return
	}

	currentDeviceID := strings.TrimSpace(c.GetHeader(deviceIDHeader))

	response := make([]SessionPayload, 0, len(sessions))
	for _, session := range sessions {
		payload := newSessionPayload(session)
		if currentDeviceID != "" && session.DeviceID == currentDeviceID {
			payload.IsCurrent = true
		}
		response = append(response, payload)
	}

	c.JSON(http.StatusOK, SessionListResponse{Sessions: response, Total: len(response)})
}

// InvalidateSession marks one of the caller's sessions inactive. Idempotent:
// repeating the call returns 204 either way.
func (h *SessionHandler) InvalidateSession(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	sessionID := strings.TrimSpace(c.Param("session_id"))
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "session_id is required"))
		return
	}

	_, err := h.sessions.InvalidateSession(c.Request.Context(), userID, sessionID)
	if err != nil {
		cases := []ErrorCase{
			{Err: usecase.ErrSessionForbidden, Status: http.StatusForbidden, Message: "session not owned by user"},
			{Err: usecase.ErrSessionNotFound, Status: http.StatusNotFound, Message: "session not found"},
		}
		RespondWithMappedError(c, err, cases, http.StatusInternalServerError, "failed to invalidate session")
		return
	}

	c.Status(http.StatusNoContent)
}

// InvalidateAllSessions expires every session of the caller. Requires the
// all=true query parameter as confirmation.
func (h *SessionHandler) InvalidateAllSessions(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusServiceUnavailable, NewErrorResponse(c, "session service unavailable"))
		return
	}

	userID, ok := middleware.GetAuthenticatedUserID(c)
	if !ok || userID == "" {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	confirm, err := strconv.ParseBool(c.DefaultQuery("all", "false"))
	if err != nil || !confirm {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "query parameter all=true required"))
		return
	}

	reason := strings.TrimSpace(c.Query("reason"))
	count, err := h.sessions.InvalidateAllSessions(c.Request.Context(), userID, reason)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to invalidate sessions")
		return
	}

	c.JSON(http.StatusOK, SessionBulkInvalidateResponse{InvalidatedCount: count})
}
