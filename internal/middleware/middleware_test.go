package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/brototype/portal-backend/internal/response"
	"github.com/brototype/portal-backend/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuth struct {
	claims *service.Claims
	err    error
}

func (s stubAuth) Authenticate(_ context.Context, _ string) (*service.Claims, error) {
	return s.claims, s.err
}

type stubAdmin struct {
	ok  bool
	err error
}

func (s stubAdmin) IsAdmin(_ context.Context, _ uuid.UUID) (bool, error) {
	return s.ok, s.err
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) response.ErrCode {
	t.Helper()
	var body response.Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	if body.Error == nil {
		return ""
	}
	return body.Error.Code
}

func serve(r *gin.Engine, target, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func claimsFor(userID string) *service.Claims {
	return &service.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
		SessionID:        "sid-1",
	}
}

func TestRequireAuth(t *testing.T) {
	tests := []struct {
		name   string
		token  string
		auth   stubAuth
		status int
		code   response.ErrCode
	}{
		{"missing token", "", stubAuth{}, http.StatusUnauthorized, response.ErrTokenRequired},
		{"bad token", "x", stubAuth{err: service.ErrTokenInvalid}, http.StatusUnauthorized, response.ErrTokenInvalid},
		{"ended session", "x", stubAuth{err: service.ErrSessionNotFound}, http.StatusUnauthorized, response.ErrSessionInvalidated},
		{"redis down", "x", stubAuth{err: errors.New("dial tcp: refused")}, http.StatusServiceUnavailable, response.ErrProviderUnavailable},
		{"valid", "x", stubAuth{claims: claimsFor(uuid.NewString())}, http.StatusOK, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			r.GET("/me", RequireAuth(tt.auth), func(c *gin.Context) {
				require.NotNil(t, GetClaims(c))
				response.Success(c, http.StatusOK, nil)
			})

			w := serve(r, "/me", tt.token)
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestBearerTokenQueryFallback(t *testing.T) {
	r := gin.New()
	var got string
	r.GET("/ws", func(c *gin.Context) { got = BearerToken(c) })

	serve(r, "/ws?access_token=abc", "")
	assert.Equal(t, "abc", got)

	serve(r, "/ws?access_token=abc", "from-header")
	assert.Equal(t, "from-header", got)
}

func TestRequireAdmin(t *testing.T) {
	tests := []struct {
		name   string
		admin  stubAdmin
		status int
		code   response.ErrCode
	}{
		{"admin", stubAdmin{ok: true}, http.StatusOK, ""},
		{"student", stubAdmin{ok: false}, http.StatusForbidden, response.ErrNotAuthorized},
		{"lookup failure", stubAdmin{err: errors.New("timeout")}, http.StatusServiceUnavailable, response.ErrProviderUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := gin.New()
			auth := stubAuth{claims: claimsFor(uuid.NewString())}
			r.GET("/admin", RequireAuth(auth), RequireAdmin(tt.admin), func(c *gin.Context) {
				response.Success(c, http.StatusOK, nil)
			})

			w := serve(r, "/admin", "x")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, errorCode(t, w))
		})
	}
}

func TestRateLimiter(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	rl := NewRateLimiter(rdb, "auth", 2, time.Minute, zerolog.New(io.Discard))
	now := time.Date(2026, 1, 1, 10, 0, 15, 0, time.UTC)
	rl.now = func() time.Time { return now }

	r := gin.New()
	r.GET("/login", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, "/login", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "/login", "").Code)

	w := serve(r, "/login", "")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, response.ErrRateLimitExceeded, errorCode(t, w))
	assert.Equal(t, "46", w.Header().Get("Retry-After"))

	// Next window starts fresh.
	now = now.Add(time.Minute)
	assert.Equal(t, http.StatusNoContent, serve(r, "/login", "").Code)
}

func TestRateLimiterFailsOpen(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	mr.Close()

	rl := NewRateLimiter(rdb, "auth", 1, time.Minute, zerolog.New(io.Discard))
	r := gin.New()
	r.GET("/login", rl.Middleware(), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	assert.Equal(t, http.StatusNoContent, serve(r, "/login", "").Code)
	assert.Equal(t, http.StatusNoContent, serve(r, "/login", "").Code)
}

func TestNoStore(t *testing.T) {
	r := gin.New()
	r.GET("/x", NoStore(), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, "/x", "")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
}
