package response

// ErrCode is a typed error code enum for consistent API error identification.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrInvalidCredentials ErrCode = "INVALID_CREDENTIALS"
	ErrSessionInvalidated ErrCode = "SESSION_INVALIDATED"
	ErrTokenRequired      ErrCode = "TOKEN_REQUIRED"
	ErrTokenInvalid       ErrCode = "TOKEN_INVALID"
	ErrRecoveryInvalid    ErrCode = "RECOVERY_TOKEN_INVALID"

	// ─── Authorization ─────────────────────────────────────────────────
	ErrNotAuthorized ErrCode = "NOT_AUTHORIZED"

	// ─── Signup ────────────────────────────────────────────────────────
	ErrInvalidPasscode ErrCode = "INVALID_PASSCODE"
	ErrSignupRejected  ErrCode = "SIGNUP_REJECTED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"
	ErrInvalidState   ErrCode = "INVALID_STATE"

	// ─── Concurrency ───────────────────────────────────────────────────
	ErrBusy ErrCode = "BUSY"

	// ─── Rate Limiting ─────────────────────────────────────────────────
	ErrRateLimitExceeded ErrCode = "RATE_LIMIT_EXCEEDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrProviderUnavailable ErrCode = "PROVIDER_UNAVAILABLE"
	ErrNotFound            ErrCode = "NOT_FOUND"
	ErrInternal            ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	// ─── Authentication ────────────────────────────────────────────────
	case ErrInvalidCredentials:
		return "Invalid email or password."
	case ErrSessionInvalidated:
		return "Your session has ended. Please sign in again."
	case ErrTokenRequired:
		return "Authentication token is required."
	case ErrTokenInvalid:
		return "Authentication token is invalid or expired."
	case ErrRecoveryInvalid:
		return "The reset link is invalid or has expired."

	// ─── Authorization ─────────────────────────────────────────────────
	case ErrNotAuthorized:
		return "You don't have admin privileges."

	// ─── Signup ────────────────────────────────────────────────────────
	case ErrInvalidPasscode:
		return "The passcode you entered is invalid or has already been used."
	case ErrSignupRejected:
		return "Sign up failed."

	// ─── Validation ────────────────────────────────────────────────────
	case ErrValidation:
		return "Please check the highlighted fields."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrInvalidState:
		return "This action is not available right now."

	// ─── Concurrency ───────────────────────────────────────────────────
	case ErrBusy:
		return "Another request is still in progress."

	// ─── Rate Limiting ─────────────────────────────────────────────────
	case ErrRateLimitExceeded:
		return "Too many requests. Please try again later."

	// ─── Server ────────────────────────────────────────────────────────
	case ErrProviderUnavailable:
		return "The service is temporarily unavailable. Please try again."
	case ErrNotFound:
		return "Resource not found."
	case ErrInternal:
		return "Internal server error."
	default:
		return "An unexpected error occurred."
	}
}
