package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// SessionKey returns the cache key holding a live session record.
func (r *CacheKeyStruct) SessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s", sessionID)
}

// RefreshTokenKey maps a refresh token hash to its session ID.
func (r *CacheKeyStruct) RefreshTokenKey(tokenHash string) string {
	return fmt.Sprintf("refresh:%s", tokenHash)
}

// UserSessionsKey returns the set of session IDs owned by a user.
func (r *CacheKeyStruct) UserSessionsKey(userID string) string {
	return fmt.Sprintf("user:%s:sessions", userID)
}

// RecoveryTokenKey returns the cache key for a password recovery token hash.
func (r *CacheKeyStruct) RecoveryTokenKey(tokenHash string) string {
	return fmt.Sprintf("recovery:%s", tokenHash)
}

// SessionEventsChannel returns the Redis PubSub channel carrying
// session-change events for one session.
func (r *CacheKeyStruct) SessionEventsChannel(sessionID string) string {
	return fmt.Sprintf("session:%s:events", sessionID)
}

var CacheKey = NewCacheKeyStruct()

// RateLimitKey counts requests from one IP in one fixed window.
func (r *CacheKeyStruct) RateLimitKey(scope, ip string, window int64) string {
	return fmt.Sprintf("ratelimit:%s:%s:%d", scope, ip, window)
}
