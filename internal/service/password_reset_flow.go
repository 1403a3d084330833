package service

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"slices"
	"sync"

	"github.com/brototype/portal-backend/internal/model"
	"github.com/brototype/portal-backend/internal/validator"
	"github.com/rs/zerolog"
)

// ResetState is a step of the password reset flow.
type ResetState string

const (
	ResetIdle            ResetState = "idle"
	ResetRequested       ResetState = "reset_requested"
	ResetEmailSent       ResetState = "email_sent"
	ResetMode            ResetState = "reset_mode"
	ResetPasswordUpdated ResetState = "password_updated"
)

// DashboardRedirect is where clients go after a successful reset.
const DashboardRedirect = "/dashboard"

// ResetMarkerParam is the query parameter that switches the auth page
// into reset mode when set to "true".
const ResetMarkerParam = "reset"

var ErrInvalidResetState = errors.New("action is not available at this step of the password reset")

var resetTransitions = map[ResetState][]ResetState{
	ResetIdle:            {ResetRequested, ResetMode},
	ResetRequested:       {ResetEmailSent, ResetIdle},
	ResetEmailSent:       {ResetRequested, ResetMode, ResetIdle},
	ResetMode:            {ResetPasswordUpdated, ResetIdle},
	ResetPasswordUpdated: {ResetIdle},
}

// PasswordResetFlow drives one client through forgot-password and
// set-new-password. Failures never retry; they return the flow to the
// last state the user can act from.
type PasswordResetFlow struct {
	provider    RecoveryProvider
	redirectURL string
	log         zerolog.Logger

	mu    sync.Mutex
	state ResetState
}

// NewPasswordResetFlow creates a flow in the idle state. redirectURL is
// embedded in reset emails and should carry the reset marker.
func NewPasswordResetFlow(provider RecoveryProvider, redirectURL string, log zerolog.Logger) *PasswordResetFlow {
	return &PasswordResetFlow{
		provider:    provider,
		redirectURL: redirectURL,
		log:         log.With().Str("component", "password_reset").Logger(),
		state:       ResetIdle,
	}
}

// State returns the current state.
func (f *PasswordResetFlow) State() ResetState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// transition moves to next if the table allows it. Callers hold mu.
func (f *PasswordResetFlow) transition(next ResetState) error {
	if !slices.Contains(resetTransitions[f.state], next) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidResetState, f.state, next)
	}
	f.log.Debug().Str("from", string(f.state)).Str("to", string(next)).Msg("Reset state changed")
	f.state = next
	return nil
}

// IsResetURL reports whether raw carries the reset-mode marker.
func IsResetURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return u.Query().Get(ResetMarkerParam) == "true"
}

// EnterFromURL switches to reset mode when raw carries the reset marker.
// A recovery token in the URL is exchanged for a recovery session first.
// It reports whether reset mode was entered.
func (f *PasswordResetFlow) EnterFromURL(ctx context.Context, raw string) (bool, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Query().Get(ResetMarkerParam) != "true" {
		return false, nil
	}

	// Refuse before the one-time token is spent.
	if err := f.checkCanEnter(); err != nil {
		return false, err
	}

	if token := u.Query().Get("token"); token != "" {
		if _, err := f.provider.VerifyRecovery(ctx, token); err != nil {
			if errors.Is(err, ErrInvalidRecoveryToken) {
				return false, newError(KindCredentialError, ErrInvalidRecoveryToken.Error(), err)
			}
			return false, newError(KindProviderUnavailable, ErrProviderUnavailable.Message, err)
		}
	}

	if err := f.EnterResetMode(); err != nil {
		return false, err
	}
	return true, nil
}

func (f *PasswordResetFlow) checkCanEnter() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == ResetMode || slices.Contains(resetTransitions[f.state], ResetMode) {
		return nil
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidResetState, f.state, ResetMode)
}

// EnterResetMode switches to reset mode for a client that already holds a
// recovery session.
func (f *PasswordResetFlow) EnterResetMode() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == ResetMode {
		return nil
	}
	return f.transition(ResetMode)
}

// RequestReset sends a reset email to email. On failure the flow returns
// to idle.
func (f *PasswordResetFlow) RequestReset(ctx context.Context, email string) error {
	if fields := validator.Struct(&model.ForgotPasswordRequest{Email: email}); fields != nil {
		return validationError("Please enter your email address.", fields)
	}

	f.mu.Lock()
	if err := f.transition(ResetRequested); err != nil {
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()

	err := f.provider.RequestPasswordReset(ctx, email, f.redirectURL)

	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.log.Error().Err(err).Msg("Password reset request failed")
		f.state = ResetIdle
		return newError(KindProviderUnavailable, "Could not send the reset email. Please try again.", err)
	}
	return f.transition(ResetEmailSent)
}

// UpdatePassword validates and applies a new password while in reset
// mode. Validation failures never reach the provider. On success the
// returned path is where the client should navigate.
func (f *PasswordResetFlow) UpdatePassword(ctx context.Context, newPassword, confirmPassword string) (string, error) {
	f.mu.Lock()
	if f.state != ResetMode {
		state := f.state
		f.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrInvalidResetState, state)
	}
	f.mu.Unlock()

	req := model.UpdatePasswordRequest{NewPassword: newPassword, ConfirmPassword: confirmPassword}
	if fields := validator.Struct(&req); fields != nil {
		return "", validationError(ErrValidation.Message, fields)
	}
	if newPassword != confirmPassword {
		return "", validationError("Passwords do not match.", map[string]string{
			"confirm_password": "confirm_password must match new_password",
		})
	}
	if len(newPassword) < MinPasswordLength {
		return "", validationError("Password must be at least 6 characters.", map[string]string{
			"new_password": "new_password must be at least 6 characters in length",
		})
	}

	if err := f.provider.UpdateCredential(ctx, newPassword); err != nil {
		f.log.Error().Err(err).Msg("Password update failed")
		switch {
		case errors.Is(err, ErrNoSession), errors.Is(err, ErrSessionNotFound):
			return "", newError(KindCredentialError, "Your reset link has expired. Please request a new one.", err)
		case errors.Is(err, ErrWeakPassword):
			return "", validationError(ErrWeakPassword.Error(), map[string]string{"new_password": ErrWeakPassword.Error()})
		default:
			return "", newError(KindProviderUnavailable, "Could not update your password. Please try again.", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.transition(ResetPasswordUpdated); err != nil {
		return "", err
	}
	return DashboardRedirect, nil
}

// BackToLogin abandons the flow.
func (f *PasswordResetFlow) BackToLogin() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != ResetIdle {
		_ = f.transition(ResetIdle)
	}
}
