package service

import (
	"errors"
	"fmt"

	"github.com/brototype/portal-backend/internal/repository"
)

// Kind classifies failures surfaced by the auth flows.
type Kind string

const (
	KindInvalidPasscode     Kind = "InvalidPasscode"
	KindSignupRejected      Kind = "SignupRejected"
	KindNotAuthorized       Kind = "NotAuthorized"
	KindCredentialError     Kind = "CredentialError"
	KindProviderUnavailable Kind = "ProviderUnavailable"
	KindValidation          Kind = "ValidationError"
)

// Error is the error type returned by the auth flows. Message is safe to
// show to the end user; Err keeps the underlying cause for logs.
type Error struct {
	Kind    Kind
	Message string
	Fields  map[string]string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotAuthorized)
// works regardless of message or cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrInvalidPasscode     = &Error{Kind: KindInvalidPasscode, Message: "The passcode you entered is invalid or has already been used."}
	ErrSignupRejected      = &Error{Kind: KindSignupRejected, Message: "Sign up failed."}
	ErrNotAuthorized       = &Error{Kind: KindNotAuthorized, Message: "You don't have admin privileges."}
	ErrCredential          = &Error{Kind: KindCredentialError, Message: "Invalid email or password."}
	ErrProviderUnavailable = &Error{Kind: KindProviderUnavailable, Message: "The service is temporarily unavailable. Please try again."}
	ErrValidation          = &Error{Kind: KindValidation, Message: "Please fill in all fields."}
)

func newError(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

func validationError(msg string, fields map[string]string) *Error {
	return &Error{Kind: KindValidation, Message: msg, Fields: fields}
}

// KindOf returns the kind of err, or "" if err is not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

// knownProviderErrors are the identity provider failures callers already
// map to a specific response.
var knownProviderErrors = []error{
	ErrTokenInvalid,
	ErrSessionNotFound,
	ErrNoSession,
	ErrInvalidRecoveryToken,
	ErrInvalidCredentials,
	ErrEmailTaken,
	ErrInvalidEmail,
	ErrWeakPassword,
	ErrBusy,
	ErrInvalidResetState,
}

// ProviderError classifies an error returned straight from the identity
// provider backend. Known auth failures pass through. Anything else means
// Redis or Postgres could not answer and becomes ProviderUnavailable.
func ProviderError(err error) error {
	if err == nil || KindOf(err) != "" {
		return err
	}
	for _, known := range knownProviderErrors {
		if errors.Is(err, known) {
			return err
		}
	}
	if errors.Is(err, repository.ErrUserNotFound) {
		return fmt.Errorf("%w: %w", ErrSessionNotFound, err)
	}
	return newError(KindProviderUnavailable, ErrProviderUnavailable.Message, err)
}
