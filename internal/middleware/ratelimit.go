package middleware

import (
	"net/http"
	"strconv"
	"time"

	"github.com/brototype/portal-backend/internal/config"
	"github.com/brototype/portal-backend/internal/response"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// RateLimiter is a per-IP fixed-window limiter backed by Redis, so every
// server instance shares the same budget.
type RateLimiter struct {
	rdb      *redis.Client
	scope    string
	rate     int           // Requests per interval
	interval time.Duration // Window length
	log      zerolog.Logger
	now      func() time.Time
}

// NewRateLimiter creates a RateLimiter (e.g., 30 requests per minute).
func NewRateLimiter(rdb *redis.Client, scope string, rate int, interval time.Duration, log zerolog.Logger) *RateLimiter {
	return &RateLimiter{
		rdb:      rdb,
		scope:    scope,
		rate:     rate,
		interval: interval,
		log:      log.With().Str("component", "rate_limiter").Str("scope", scope).Logger(),
		now:      time.Now,
	}
}

// Middleware returns a Gin middleware that rate-limits requests by IP.
// Redis failures let the request through.
func (rl *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		now := rl.now()
		window := now.Truncate(rl.interval)
		key := config.CacheKey.RateLimitKey(rl.scope, c.ClientIP(), window.Unix())

		ctx := c.Request.Context()
		pipe := rl.rdb.TxPipeline()
		incr := pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, rl.interval)
		if _, err := pipe.Exec(ctx); err != nil {
			rl.log.Error().Err(err).Msg("Rate limit check failed")
			c.Next()
			return
		}

		if incr.Val() > int64(rl.rate) {
			retryAfter := window.Add(rl.interval).Sub(now)
			c.Header("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			response.AbortFail(c, http.StatusTooManyRequests, response.ErrRateLimitExceeded)
			return
		}

		c.Next()
	}
}
