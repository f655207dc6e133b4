// README: Tests for JWT auth middleware.
package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"lifeline/internal/http/middleware"
)

const testSecret = "test-secret"

func signToken(t *testing.T, subject, role string, secret string, ttl time.Duration) string {
	t.Helper()
	claims := &middleware.Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return token
}

func newTestRouter(roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/test", middleware.Auth(testSecret, roles...), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"uid":  middleware.CallerUID(c),
			"role": middleware.CallerRole(c),
		})
	})
	return r
}

func doGet(r *gin.Engine, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMissingToken(t *testing.T) {
	w := doGet(newTestRouter(), "/test", "")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuthValidToken(t *testing.T) {
	token := signToken(t, "user-1", "requester", testSecret, time.Hour)
	w := doGet(newTestRouter(), "/test", "Bearer "+token)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "user-1") {
		t.Errorf("expected uid in body, got %s", w.Body.String())
	}
}

func TestAuthWrongSecret(t *testing.T) {
	token := signToken(t, "user-1", "requester", "other-secret", time.Hour)
	w := doGet(newTestRouter(), "/test", "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuthExpiredToken(t *testing.T) {
	token := signToken(t, "user-1", "requester", testSecret, -time.Minute)
	w := doGet(newTestRouter(), "/test", "Bearer "+token)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuthRoleGate(t *testing.T) {
	r := newTestRouter("driver")

	token := signToken(t, "user-1", "requester", testSecret, time.Hour)
	if w := doGet(r, "/test", "Bearer "+token); w.Code != http.StatusForbidden {
		t.Errorf("requester on driver route: expected 403, got %d", w.Code)
	}

	token = signToken(t, "AMB-1", "driver", testSecret, time.Hour)
	if w := doGet(r, "/test", "Bearer "+token); w.Code != http.StatusOK {
		t.Errorf("driver on driver route: expected 200, got %d", w.Code)
	}
}

func TestAuthQueryTokenFallback(t *testing.T) {
	token := signToken(t, "user-1", "requester", testSecret, time.Hour)
	w := doGet(newTestRouter(), "/test?token="+token, "")
	if w.Code != http.StatusOK {
		t.Errorf("expected 200 with query token, got %d", w.Code)
	}
}
