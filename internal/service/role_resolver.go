package service

import (
	"context"
	"errors"

	"github.com/brototype/portal-backend/internal/model"
	"github.com/brototype/portal-backend/internal/repository"
	"github.com/brototype/portal-backend/internal/validator"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RoleResolver signs users in and enforces admin-only access using the
// stored role, which is always read fresh.
type RoleResolver struct {
	provider   IdentityProvider
	roles      RoleStore
	terminator SessionTerminator
	log        zerolog.Logger
}

// RoleResolverOption configures a RoleResolver.
type RoleResolverOption func(*RoleResolver)

// WithSessionTerminator routes the compensating sign-out through t instead
// of the provider. Pass a SessionManager to have AdminLogin return only
// after the app state shows no user.
func WithSessionTerminator(t SessionTerminator) RoleResolverOption {
	return func(r *RoleResolver) { r.terminator = t }
}

// NewRoleResolver creates a new RoleResolver.
func NewRoleResolver(provider IdentityProvider, roles RoleStore, log zerolog.Logger, opts ...RoleResolverOption) *RoleResolver {
	r := &RoleResolver{
		provider:   provider,
		roles:      roles,
		terminator: provider,
		log:        log.With().Str("component", "role_resolver").Logger(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// StudentLogin signs in with email and password. No role check applies.
func (r *RoleResolver) StudentLogin(ctx context.Context, in model.LoginRequest) (*AuthResult, error) {
	if fields := validator.Struct(&in); fields != nil {
		return nil, validationError(ErrValidation.Message, fields)
	}

	res, err := r.provider.SignIn(ctx, in.Email, in.Password)
	if err != nil {
		return nil, signInError(err)
	}
	return res, nil
}

// AdminLogin signs in and keeps the session only when the stored role is
// admin. Otherwise the new session is signed out again and NotAuthorized
// is returned, even if that sign-out fails.
func (r *RoleResolver) AdminLogin(ctx context.Context, in model.LoginRequest) (*AuthResult, error) {
	if fields := validator.Struct(&in); fields != nil {
		return nil, validationError(ErrValidation.Message, fields)
	}

	res, err := r.provider.SignIn(ctx, in.Email, in.Password)
	if err != nil {
		return nil, signInError(err)
	}

	role, err := r.roles.GetRole(ctx, res.User.ID)
	if err == nil && role == model.RoleAdmin {
		r.log.Info().Str("user_id", res.User.ID.String()).Msg("Admin signed in")
		return res, nil
	}

	evt := r.log.Warn().Str("user_id", res.User.ID.String())
	if err != nil {
		evt = evt.Err(err)
	} else {
		evt = evt.Str("role", string(role))
	}
	evt.Msg("Admin login refused")

	if signOutErr := r.terminator.SignOut(context.WithoutCancel(ctx)); signOutErr != nil {
		r.log.Error().Err(signOutErr).
			Str("user_id", res.User.ID.String()).
			Msg("Compensating sign-out failed")
	}
	return nil, newError(KindNotAuthorized, ErrNotAuthorized.Message, err)
}

// IsAdmin reports whether the stored role of userID is admin. Lookup
// failures other than a missing profile are returned to the caller.
func (r *RoleResolver) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return isAdmin(ctx, r.roles, userID)
}

// AdminGate answers admin checks for already authenticated requests. It
// needs only the role store, no identity provider.
type AdminGate struct {
	roles RoleStore
}

func NewAdminGate(roles RoleStore) *AdminGate {
	return &AdminGate{roles: roles}
}

func (g *AdminGate) IsAdmin(ctx context.Context, userID uuid.UUID) (bool, error) {
	return isAdmin(ctx, g.roles, userID)
}

func isAdmin(ctx context.Context, roles RoleStore, userID uuid.UUID) (bool, error) {
	role, err := roles.GetRole(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrProfileNotFound) {
			return false, nil
		}
		return false, err
	}
	return role == model.RoleAdmin, nil
}

func signInError(err error) error {
	if errors.Is(err, ErrInvalidCredentials) {
		return newError(KindCredentialError, ErrCredential.Message, err)
	}
	return newError(KindProviderUnavailable, ErrProviderUnavailable.Message, err)
}
