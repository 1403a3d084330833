package model

// StudentSignupRequest is the payload for passcode-gated self-registration.
type StudentSignupRequest struct {
	FullName string `json:"full_name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
	Passcode string `json:"passcode" binding:"required"`
}

// LoginRequest is the payload for student and admin login.
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// ForgotPasswordRequest starts the password reset flow.
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

// RecoverSessionRequest exchanges the token from a reset email for a
// recovery session.
type RecoverSessionRequest struct {
	Token string `json:"token" binding:"required"`
}

// UpdatePasswordRequest sets a new password while in reset mode.
type UpdatePasswordRequest struct {
	NewPassword     string `json:"new_password" binding:"required"`
	ConfirmPassword string `json:"confirm_password" binding:"required"`
}

// RefreshTokenRequest rotates a session's tokens.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

// AuthResponse is returned by every flow that yields a session.
type AuthResponse struct {
	User     *User    `json:"user"`
	Session  *Session `json:"session"`
	Role     Role     `json:"role"`
	Redirect string   `json:"redirect,omitempty"`
}
