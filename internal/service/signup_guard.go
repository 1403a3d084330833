package service

import (
	"context"
	"errors"

	"github.com/brototype/portal-backend/internal/logger"
	"github.com/brototype/portal-backend/internal/model"
	"github.com/brototype/portal-backend/internal/validator"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PhaseOutcome records whether one step of a multi-step flow completed.
type PhaseOutcome struct {
	Done bool
	Err  error
}

// SignupResult separates the account creation (the outcome the user sees)
// from passcode bookkeeping, which may fail after the account exists.
type SignupResult struct {
	User     *model.User
	Session  *model.Session
	Account  PhaseOutcome
	Passcode PhaseOutcome
}

// Complete reports whether both phases succeeded.
func (r *SignupResult) Complete() bool {
	return r.Account.Done && r.Passcode.Done
}

// ConsumeFailureHook is called when an account was created but its
// passcode could not be marked used.
type ConsumeFailureHook func(ctx context.Context, code string, userID uuid.UUID, err error)

// SignupGuard gates student self-registration behind single-use passcodes.
type SignupGuard struct {
	provider         IdentityProvider
	passcodes        PasscodeStore
	onConsumeFailure ConsumeFailureHook
	log              zerolog.Logger
}

// SignupOption configures a SignupGuard.
type SignupOption func(*SignupGuard)

// WithConsumeFailureHook registers a hook for failed passcode consumption.
func WithConsumeFailureHook(hook ConsumeFailureHook) SignupOption {
	return func(g *SignupGuard) { g.onConsumeFailure = hook }
}

// NewSignupGuard creates a new SignupGuard.
func NewSignupGuard(provider IdentityProvider, passcodes PasscodeStore, log zerolog.Logger, opts ...SignupOption) *SignupGuard {
	g := &SignupGuard{
		provider:  provider,
		passcodes: passcodes,
		log:       log.With().Str("component", "signup_guard").Logger(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Signup validates the passcode, creates the account and consumes the
// passcode, in that order. A passcode that cannot be consumed after the
// account exists does not fail the signup.
func (g *SignupGuard) Signup(ctx context.Context, in model.StudentSignupRequest) (*SignupResult, error) {
	if fields := validator.Struct(&in); fields != nil {
		return nil, validationError(ErrValidation.Message, fields)
	}

	ok, err := g.passcodes.IsValid(ctx, in.Passcode)
	if err != nil {
		g.log.Error().Err(err).Msg("Passcode lookup failed")
		return nil, newError(KindInvalidPasscode, ErrInvalidPasscode.Message, err)
	}
	if !ok {
		return nil, newError(KindInvalidPasscode, ErrInvalidPasscode.Message, nil)
	}

	res, err := g.provider.SignUp(ctx, in.Email, in.Password, model.UserMetadata{
		FullName: in.FullName,
		Role:     model.RoleStudent,
	})
	if err != nil {
		return nil, newError(KindSignupRejected, providerMessage(err, ErrSignupRejected.Message), err)
	}

	result := &SignupResult{
		User:    res.User,
		Session: res.Session,
		Account: PhaseOutcome{Done: true},
	}

	if err := g.passcodes.Consume(ctx, in.Passcode, res.User.ID); err != nil {
		result.Passcode.Err = err
		g.log.Warn().Err(err).
			Str("user_id", res.User.ID.String()).
			Str("passcode", logger.MaskSecret(in.Passcode)).
			Msg("Account created but passcode was not consumed")
		if g.onConsumeFailure != nil {
			g.onConsumeFailure(ctx, in.Passcode, res.User.ID, err)
		}
		return result, nil
	}

	result.Passcode.Done = true
	g.log.Info().Str("user_id", res.User.ID.String()).Msg("Student signed up")
	return result, nil
}

// providerMessage returns err's text when it is one of the provider's
// user-facing errors, and fallback otherwise.
func providerMessage(err error, fallback string) string {
	for _, known := range []error{ErrEmailTaken, ErrInvalidEmail, ErrWeakPassword, ErrInvalidCredentials} {
		if errors.Is(err, known) {
			return known.Error()
		}
	}
	return fallback
}
