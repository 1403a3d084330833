package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/brototype/portal-backend/internal/response"
	"github.com/brototype/portal-backend/internal/service"
	"github.com/gin-gonic/gin"
)

const (
	// ContextKeyClaims is the Gin context key for JWT claims.
	ContextKeyClaims = "claims"
)

// Authenticator validates an access token against a live session.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*service.Claims, error)
}

// RequireAuth validates the bearer token and checks its session is still
// live in Redis.
func RequireAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenStr := BearerToken(c)
		if tokenStr == "" {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		claims, err := auth.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			switch {
			case errors.Is(err, service.ErrTokenInvalid):
				response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			case errors.Is(err, service.ErrSessionNotFound):
				response.AbortFail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
			default:
				response.AbortFail(c, http.StatusServiceUnavailable, response.ErrProviderUnavailable)
			}
			return
		}

		c.Set(ContextKeyClaims, claims)
		c.Next()
	}
}

// GetClaims retrieves the JWT claims from the Gin context.
func GetClaims(c *gin.Context) *service.Claims {
	val, exists := c.Get(ContextKeyClaims)
	if !exists {
		return nil
	}
	claims, ok := val.(*service.Claims)
	if !ok {
		return nil
	}
	return claims
}

// BearerToken returns the token from the Authorization header, falling back
// to the access_token query parameter for WebSocket upgrades.
func BearerToken(c *gin.Context) string {
	authHeader := c.GetHeader("Authorization")
	if authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			return strings.TrimSpace(parts[1])
		}
	}
	return c.Query("access_token")
}
