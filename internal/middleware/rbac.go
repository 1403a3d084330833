package middleware

import (
	"context"
	"net/http"

	"github.com/brototype/portal-backend/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// AdminChecker resolves whether a user currently holds the admin role.
type AdminChecker interface {
	IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error)
}

// RequireAdmin reads the stored role on every request. Nothing in the
// token can grant admin access. Must run after RequireAuth.
func RequireAdmin(roles AdminChecker) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := GetClaims(c)
		if claims == nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenRequired)
			return
		}

		userID, err := claims.UserID()
		if err != nil {
			response.AbortFail(c, http.StatusUnauthorized, response.ErrTokenInvalid)
			return
		}

		ok, err := roles.IsAdmin(c.Request.Context(), userID)
		if err != nil {
			response.AbortFail(c, http.StatusServiceUnavailable, response.ErrProviderUnavailable)
			return
		}
		if !ok {
			response.AbortFail(c, http.StatusForbidden, response.ErrNotAuthorized)
			return
		}

		c.Next()
	}
}
