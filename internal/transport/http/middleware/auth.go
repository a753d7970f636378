package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/config"
)

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	TraceID string `json:"trace_id,omitempty"`
}

// newErrorResponse creates an error response with trace ID
func newErrorResponse(c *gin.Context, errorMsg string) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		TraceID: GetTraceID(c),
	}
}

// IdentityClaims are the claims expected on bearer tokens minted by the
// primary identity provider. The subject is the user identifier.
type IdentityClaims struct {
	jwt.RegisteredClaims
}

// RequireIdentity validates the Authorization header against the primary
// identity provider's shared-secret tokens and stores the user ID in the
// request context. This service never mints tokens itself.
func RequireIdentity(identity config.IdentitySettings) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header"))
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'"))
			return
		}

		token := strings.TrimSpace(parts[1])
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing access token"))
			return
		}

		claims, err := parseIdentityToken(token, identity)
		if err != nil {
			switch {
			case errors.Is(err, jwt.ErrTokenExpired):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "access token expired"))
			default:
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid access token"))
			}
			return
		}

		c.Set(UserIDKey, claims.Subject)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.UserID = claims.Subject
		}

		c.Next()
	}
}

func parseIdentityToken(token string, identity config.IdentitySettings) (*IdentityClaims, error) {
	if identity.SharedSecret == "" {
		return nil, errors.New("identity shared secret not configured")
	}

	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if identity.Issuer != "" {
		options = append(options, jwt.WithIssuer(identity.Issuer))
	}
	if identity.Audience != "" {
		options = append(options, jwt.WithAudience(identity.Audience))
	}

	claims := &IdentityClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(identity.SharedSecret), nil
	}, options...)
	if err != nil {
		return nil, fmt.Errorf("parse identity token: %w", err)
	}
	if !parsed.Valid {
		return nil, errors.New("identity token invalid")
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return nil, errors.New("identity token missing subject")
	}

	return claims, nil
}

// GetAuthenticatedUserID retrieves the user ID from context (helper for handlers)
func GetAuthenticatedUserID(c *gin.Context) (string, bool) {
	userID, exists := c.Get(UserIDKey)
	if !exists {
		return "", false
	}

	if id, ok := userID.(string); ok {
		return id, true
	}

	return "", false
}
