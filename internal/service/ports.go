package service

import (
	"context"

	"github.com/brototype/portal-backend/internal/model"
	"github.com/google/uuid"
)

// AuthResult is what a successful sign-up or sign-in yields.
type AuthResult struct {
	User    *model.User
	Session *model.Session
}

// IdentityProvider is the client-side view of the identity provider used
// by the auth flows. AuthClient is the production implementation.
type IdentityProvider interface {
	SignUp(ctx context.Context, email, password string, meta model.UserMetadata) (*AuthResult, error)
	SignIn(ctx context.Context, email, password string) (*AuthResult, error)
	SignOut(ctx context.Context) error
	RequestPasswordReset(ctx context.Context, email, redirectURL string) error
	UpdateCredential(ctx context.Context, newPassword string) error
	// Subscribe registers a session-change listener. The returned function
	// unsubscribes and closes the channel; it is safe to call twice.
	Subscribe() (<-chan model.SessionEvent, func())
	// LastEventSeq is the Seq of the newest event delivered to every
	// listener. An operation's own event is covered once it returns.
	LastEventSeq() uint64
}

// PasscodeStore gates student self-registration.
type PasscodeStore interface {
	IsValid(ctx context.Context, code string) (bool, error)
	Consume(ctx context.Context, code string, userID uuid.UUID) error
}

// RoleStore returns the stored role for a user.
type RoleStore interface {
	GetRole(ctx context.Context, userID uuid.UUID) (model.Role, error)
}

// SessionTerminator ends the current session. Both IdentityProvider and
// SessionManager satisfy it.
type SessionTerminator interface {
	SignOut(ctx context.Context) error
}

// RecoveryProvider is what the password reset flow needs from the
// identity provider.
type RecoveryProvider interface {
	RequestPasswordReset(ctx context.Context, email, redirectURL string) error
	UpdateCredential(ctx context.Context, newPassword string) error
	VerifyRecovery(ctx context.Context, token string) (*AuthResult, error)
}
