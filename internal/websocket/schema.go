package websocket

import "github.com/brototype/portal-backend/internal/model"

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionRestore        Action = "restore"
	ActionLogin          Action = "login"
	ActionAdminLogin     Action = "admin_login"
	ActionSignup         Action = "signup"
	ActionSignOut        Action = "sign_out"
	ActionRefresh        Action = "refresh"
	ActionForgotPassword Action = "forgot_password"
	ActionEnterReset     Action = "enter_reset"
	ActionUpdatePassword Action = "update_password"
	ActionBackToLogin    Action = "back_to_login"
	ActionPing           Action = "ping"
)

// RequestEnvelope is used to peek at the action before full parsing.
// RequestID is echoed back on the matching result or error.
type RequestEnvelope struct {
	Action    Action `json:"action"`
	RequestID string `json:"request_id,omitempty"`
}

// RestoreRequest adopts a previously issued session.
type RestoreRequest struct {
	AccessToken string `json:"access_token"`
}

// LoginRequest is sent for both student and admin login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// SignupRequest is sent for passcode-gated self-registration.
type SignupRequest struct {
	FullName string `json:"full_name"`
	Email    string `json:"email"`
	Password string `json:"password"`
	Passcode string `json:"passcode"`
}

// ForgotPasswordRequest asks for a reset email.
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// EnterResetRequest carries the page URL the client landed on.
type EnterResetRequest struct {
	URL string `json:"url"`
}

// UpdatePasswordRequest sets a new password while in reset mode.
type UpdatePasswordRequest struct {
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventState  Event = "state"
	EventResult Event = "result"
	EventError  Event = "error"
	EventPong   Event = "pong"
)

// StateResponse is pushed whenever the session state changes.
type StateResponse struct {
	Event      Event       `json:"event"`
	User       *model.User `json:"user"`
	Role       model.Role  `json:"role,omitempty"`
	Settled    bool        `json:"settled"`
	ResetState string      `json:"reset_state"`
	Busy       bool        `json:"busy"`
}

// ResultResponse reports a completed action.
type ResultResponse struct {
	Event     Event          `json:"event"`
	Action    Action         `json:"action"`
	RequestID string         `json:"request_id,omitempty"`
	Session   *model.Session `json:"session,omitempty"`
	Redirect  string         `json:"redirect,omitempty"`
	Message   string         `json:"message,omitempty"`
}

// ErrorResponse reports a failed action.
type ErrorResponse struct {
	Event     Event             `json:"event"`
	Action    Action            `json:"action,omitempty"`
	RequestID string            `json:"request_id,omitempty"`
	Code      string            `json:"code"`
	Error     string            `json:"error"`
	Fields    map[string]string `json:"fields,omitempty"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
