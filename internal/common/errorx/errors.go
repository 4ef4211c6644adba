package errorx

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a machine-readable error for the provisioning surface.
// Code is a stable string clients can branch on; Message is prose.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"error"`
	HTTPStatus int    `json:"-"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// WithMessage returns a copy of the error with a more specific message.
func (e *APIError) WithMessage(format string, args ...any) *APIError {
	clone := *e
	clone.Message = fmt.Sprintf(format, args...)
	return &clone
}

var (
	ErrValidation = &APIError{
		Code:       "validation_error",
		Message:    "invalid or missing input",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrTenantNotFound = &APIError{
		Code:       "tenant_not_found",
		Message:    "tenant not found or inactive",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUserNotFound = &APIError{
		Code:       "user_not_found",
		Message:    "user not found or MCP access not enabled",
		HTTPStatus: http.StatusNotFound,
	}

	ErrTenantExists = &APIError{
		Code:       "tenant_exists",
		Message:    "tenant already exists",
		HTTPStatus: http.StatusConflict,
	}

	ErrUserExists = &APIError{
		Code:       "user_exists",
		Message:    "user already exists in tenant",
		HTTPStatus: http.StatusConflict,
	}

	ErrDeploymentNotFound = &APIError{
		Code:       "deployment_not_found",
		Message:    "deployment not found",
		HTTPStatus: http.StatusNotFound,
	}

	ErrQuotaExceeded = &APIError{
		Code:       "quota_exceeded",
		Message:    "tenant quota exceeded",
		HTTPStatus: http.StatusTooManyRequests,
	}

	ErrSystem = &APIError{
		Code:       "system_error",
		Message:    "internal server error",
		HTTPStatus: http.StatusInternalServerError,
	}
)

// AsAPIError converts any error to an APIError. Unknown errors become
// system_error so store internals never leak to clients.
func AsAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var oauthErr *OAuth2Error
	if errors.As(err, &oauthErr) {
		return &APIError{
			Code:       oauthErr.ErrorType,
			Message:    oauthErr.ErrorDescription,
			HTTPStatus: oauthErr.HTTPStatus,
		}
	}
	return ErrSystem
}
