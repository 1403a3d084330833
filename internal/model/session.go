package model

import (
	"time"

	"github.com/google/uuid"
)

// Session is an authenticated identity issued by the provider.
type Session struct {
	ID           string    `json:"session_id"`
	UserID       uuid.UUID `json:"user_id"`
	Email        string    `json:"email"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenType    string    `json:"token_type"`
	IssuedAt     time.Time `json:"issued_at"`
	ExpiresAt    time.Time `json:"expires_at"`
	// Recovery marks sessions created from a password reset link.
	Recovery bool  `json:"recovery,omitempty"`
	User     *User `json:"user,omitempty"`
}

// SessionEventType enumerates session-change notifications.
type SessionEventType string

const (
	EventInitialSession   SessionEventType = "INITIAL_SESSION"
	EventSignedIn         SessionEventType = "SIGNED_IN"
	EventSignedOut        SessionEventType = "SIGNED_OUT"
	EventTokenRefreshed   SessionEventType = "TOKEN_REFRESHED"
	EventUserUpdated      SessionEventType = "USER_UPDATED"
	EventPasswordRecovery SessionEventType = "PASSWORD_RECOVERY"
)

// SessionEvent is pushed to subscribers whenever the session changes.
// Session is nil after a sign-out or when no session could be restored.
type SessionEvent struct {
	Type    SessionEventType `json:"type"`
	Session *Session         `json:"session"`
	Seq     uint64           `json:"seq"`
}
