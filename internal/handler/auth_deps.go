package handler

import (
	"github.com/brototype/portal-backend/internal/model"
	"github.com/brototype/portal-backend/internal/service"
	"github.com/rs/zerolog"
)

// AuthDeps are the collaborators every auth flow is assembled from. HTTP
// requests and socket connections each get their own AuthClient and flows
// built over the same backend.
type AuthDeps struct {
	Backend          *service.AuthService
	Passcodes        service.PasscodeStore
	Roles            service.RoleStore
	OnConsumeFailure service.ConsumeFailureHook
	ResetRedirect    string
	Log              zerolog.Logger
}

func (d *AuthDeps) newClient(opts ...service.ClientOption) *service.AuthClient {
	return service.NewAuthClient(d.Backend, d.Log, opts...)
}

func (d *AuthDeps) signupGuard(provider service.IdentityProvider) *service.SignupGuard {
	var opts []service.SignupOption
	if d.OnConsumeFailure != nil {
		opts = append(opts, service.WithConsumeFailureHook(d.OnConsumeFailure))
	}
	return service.NewSignupGuard(provider, d.Passcodes, d.Log, opts...)
}

func (d *AuthDeps) roleResolver(provider service.IdentityProvider, opts ...service.RoleResolverOption) *service.RoleResolver {
	return service.NewRoleResolver(provider, d.Roles, d.Log, opts...)
}

func (d *AuthDeps) resetFlow(provider service.RecoveryProvider) *service.PasswordResetFlow {
	return service.NewPasswordResetFlow(provider, d.ResetRedirect, d.Log)
}

func authResponse(user *model.User, sess *model.Session) model.AuthResponse {
	return model.AuthResponse{
		User:     user,
		Session:  sess,
		Role:     service.DisplayRole(user),
		Redirect: service.DashboardRedirect,
	}
}
