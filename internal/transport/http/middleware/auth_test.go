package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/ctlilley19/K9-TrainPro-sub000/internal/infra/config"
)

const testSecret = "unit-test-shared-secret"

func testIdentitySettings() config.IdentitySettings {
	return config.IdentitySettings{
		SharedSecret: testSecret,
		Issuer:       "k9-trainpro",
		Audience:     "k9-reauth",
	}
}

func signTestToken(t *testing.T, secret string, mutate func(*jwt.RegisteredClaims)) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   "user-1",
		Issuer:    "k9-trainpro",
		Audience:  jwt.ClaimStrings{"k9-reauth"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		IssuedAt:  jwt.NewNumericDate(time.Now()),
	}
	if mutate != nil {
		mutate(&claims)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newIdentityTestRouter(settings config.IdentitySettings) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(EnrichContext())
	r.GET("/protected", RequireIdentity(settings), func(c *gin.Context) {
		userID, _ := GetAuthenticatedUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return r
}

func TestRequireIdentityAcceptsValidToken(t *testing.T) {
	r := newIdentityTestRouter(testIdentitySettings())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, testSecret, nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
}

func TestRequireIdentityRejectsMissingHeader(t *testing.T) {
	r := newIdentityTestRouter(testIdentitySettings())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireIdentityRejectsWrongSignature(t *testing.T) {
	r := newIdentityTestRouter(testIdentitySettings())

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+signTestToken(t, "other-secret", nil))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireIdentityRejectsExpiredToken(t *testing.T) {
	r := newIdentityTestRouter(testIdentitySettings())

	token := signTestToken(t, testSecret, func(claims *jwt.RegisteredClaims) {
		claims.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireIdentityRejectsWrongAudience(t *testing.T) {
	r := newIdentityTestRouter(testIdentitySettings())

	token := signTestToken(t, testSecret, func(claims *jwt.RegisteredClaims) {
		claims.Audience = jwt.ClaimStrings{"another-service"}
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRequireIdentityRejectsMissingSubject(t *testing.T) {
	r := newIdentityTestRouter(testIdentitySettings())

	token := signTestToken(t, testSecret, func(claims *jwt.RegisteredClaims) {
		claims.Subject = ""
	})

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}
