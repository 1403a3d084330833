package handler

import (
	"errors"
	"net/http"

	"github.com/brototype/portal-backend/internal/response"
	"github.com/brototype/portal-backend/internal/service"
	"github.com/gin-gonic/gin"
)

// apiError is how a failed auth operation is shown to clients.
type apiError struct {
	Status  int
	Code    response.ErrCode
	Message string
	Fields  map[string]string
}

var kindStatus = map[service.Kind]struct {
	status int
	code   response.ErrCode
}{
	service.KindInvalidPasscode:     {http.StatusBadRequest, response.ErrInvalidPasscode},
	service.KindSignupRejected:      {http.StatusUnprocessableEntity, response.ErrSignupRejected},
	service.KindNotAuthorized:       {http.StatusForbidden, response.ErrNotAuthorized},
	service.KindCredentialError:     {http.StatusUnauthorized, response.ErrInvalidCredentials},
	service.KindProviderUnavailable: {http.StatusServiceUnavailable, response.ErrProviderUnavailable},
	service.KindValidation:          {http.StatusBadRequest, response.ErrValidation},
}

// describeError maps service errors onto HTTP status and error codes.
func describeError(err error) apiError {
	var authErr *service.Error
	if errors.As(err, &authErr) {
		if m, ok := kindStatus[authErr.Kind]; ok {
			return apiError{Status: m.status, Code: m.code, Message: authErr.Message, Fields: authErr.Fields}
		}
	}

	var ae apiError
	switch {
	case errors.Is(err, service.ErrBusy):
		ae = apiError{Status: http.StatusConflict, Code: response.ErrBusy}
	case errors.Is(err, service.ErrInvalidResetState):
		ae = apiError{Status: http.StatusConflict, Code: response.ErrInvalidState}
	case errors.Is(err, service.ErrTokenInvalid):
		ae = apiError{Status: http.StatusUnauthorized, Code: response.ErrTokenInvalid}
	case errors.Is(err, service.ErrSessionNotFound):
		ae = apiError{Status: http.StatusUnauthorized, Code: response.ErrSessionInvalidated}
	case errors.Is(err, service.ErrNoSession):
		ae = apiError{Status: http.StatusUnauthorized, Code: response.ErrTokenRequired}
	case errors.Is(err, service.ErrInvalidRecoveryToken):
		ae = apiError{Status: http.StatusBadRequest, Code: response.ErrRecoveryInvalid}
	default:
		ae = apiError{Status: http.StatusInternalServerError, Code: response.ErrInternal}
	}
	ae.Message = response.GetMessage(ae.Code)
	return ae
}

// describeSocketError extends describeError with socket-only failures.
func describeSocketError(err error) apiError {
	if errors.Is(err, errBadPayload) {
		return apiError{Status: http.StatusBadRequest, Code: response.ErrInvalidPayload, Message: response.GetMessage(response.ErrInvalidPayload)}
	}
	return describeError(err)
}

// failWithError writes the response for a failed auth operation.
func failWithError(c *gin.Context, err error) {
	ae := describeError(err)
	response.FailWithMessage(c, ae.Status, ae.Code, ae.Message, ae.Fields)
}
