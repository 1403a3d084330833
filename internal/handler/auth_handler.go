package handler

import (
	"net/http"

	"github.com/brototype/portal-backend/internal/middleware"
	"github.com/brototype/portal-backend/internal/model"
	"github.com/brototype/portal-backend/internal/response"
	"github.com/brototype/portal-backend/internal/service"
	"github.com/brototype/portal-backend/internal/validator"
	"github.com/gin-gonic/gin"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	deps *AuthDeps
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(deps *AuthDeps) *AuthHandler {
	return &AuthHandler{deps: deps}
}

// StudentSignup godoc
// POST /api/v1/auth/student/signup
// Registers a student account gated by a single-use passcode.
func (h *AuthHandler) StudentSignup(c *gin.Context) {
	var req model.StudentSignupRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	client := h.deps.newClient(service.WithoutRemoteWatch())
	defer client.Close()

	result, err := h.deps.signupGuard(client).Signup(c.Request.Context(), req)
	if err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusCreated, authResponse(result.User, result.Session))
}

// StudentLogin godoc
// POST /api/v1/auth/student/login
// Authenticates a student with email and password.
func (h *AuthHandler) StudentLogin(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	client := h.deps.newClient(service.WithoutRemoteWatch())
	defer client.Close()

	res, err := h.deps.roleResolver(client).StudentLogin(c.Request.Context(), req)
	if err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, authResponse(res.User, res.Session))
}

// AdminLogin godoc
// POST /api/v1/auth/admin/login
// Authenticates and requires the stored role to be admin. A non-admin
// session is revoked before the response is sent.
func (h *AuthHandler) AdminLogin(c *gin.Context) {
	var req model.LoginRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	client := h.deps.newClient(service.WithoutRemoteWatch())
	defer client.Close()

	res, err := h.deps.roleResolver(client).AdminLogin(c.Request.Context(), req)
	if err != nil {
		failWithError(c, err)
		return
	}

	resp := authResponse(res.User, res.Session)
	resp.Role = model.RoleAdmin
	response.Success(c, http.StatusOK, resp)
}

// Logout godoc
// POST /api/v1/auth/logout
// Ends the session behind the bearer token.
func (h *AuthHandler) Logout(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	if err := h.deps.Backend.Logout(c.Request.Context(), claims.SessionID); err != nil {
		response.Fail(c, http.StatusServiceUnavailable, response.ErrProviderUnavailable)
		return
	}

	response.Success(c, http.StatusOK, gin.H{})
}

// RefreshToken godoc
// POST /api/v1/auth/token/refresh
// Rotates the access and refresh tokens of a session.
func (h *AuthHandler) RefreshToken(c *gin.Context) {
	var req model.RefreshTokenRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.deps.Backend.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		failWithError(c, service.ProviderError(err))
		return
	}

	response.Success(c, http.StatusOK, authResponse(res.User, res.Session))
}

// ForgotPassword godoc
// POST /api/v1/auth/password/forgot
// Sends a password reset link. Unknown emails get the same response.
func (h *AuthHandler) ForgotPassword(c *gin.Context) {
	var req model.ForgotPasswordRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	client := h.deps.newClient(service.WithoutRemoteWatch())
	defer client.Close()

	flow := h.deps.resetFlow(client)
	if err := flow.RequestReset(c.Request.Context(), req.Email); err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"state":   flow.State(),
		"message": "Check your email for the password reset link.",
	})
}

// RecoverSession godoc
// POST /api/v1/auth/password/recover
// Exchanges the token from a reset email for a recovery session.
func (h *AuthHandler) RecoverSession(c *gin.Context) {
	var req model.RecoverSessionRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.deps.Backend.VerifyRecovery(c.Request.Context(), req.Token)
	if err != nil {
		failWithError(c, service.ProviderError(err))
		return
	}

	resp := authResponse(res.User, res.Session)
	resp.Redirect = ""
	response.Success(c, http.StatusOK, resp)
}

// UpdatePassword godoc
// POST /api/v1/auth/password/update
// Sets a new password for the signed-in user.
func (h *AuthHandler) UpdatePassword(c *gin.Context) {
	var req model.UpdatePasswordRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	ctx := c.Request.Context()
	client := h.deps.newClient(service.WithoutRemoteWatch())
	defer client.Close()

	if err := client.Initialize(ctx, middleware.BearerToken(c)); err != nil {
		failWithError(c, service.ProviderError(err))
		return
	}
	if client.Session() == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrSessionInvalidated)
		return
	}

	flow := h.deps.resetFlow(client)
	if err := flow.EnterResetMode(); err != nil {
		failWithError(c, err)
		return
	}

	redirect, err := flow.UpdatePassword(ctx, req.NewPassword, req.ConfirmPassword)
	if err != nil {
		failWithError(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user":     client.Session().User,
		"redirect": redirect,
	})
}

// Me godoc
// GET /api/v1/auth/me
// Returns the signed-in user and their display role.
func (h *AuthHandler) Me(c *gin.Context) {
	res, err := h.deps.Backend.Restore(c.Request.Context(), middleware.BearerToken(c))
	if err != nil {
		failWithError(c, service.ProviderError(err))
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"user": res.User,
		"role": service.DisplayRole(res.User),
	})
}
