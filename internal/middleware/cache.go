package middleware

import (
	"github.com/gin-gonic/gin"
)

// NoStore stops browsers and proxies from caching responses that carry
// tokens or user data.
func NoStore() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Cache-Control", "no-store")
		c.Header("Pragma", "no-cache")
		c.Next()
	}
}
