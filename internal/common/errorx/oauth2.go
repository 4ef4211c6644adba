package errorx

import (
	"encoding/json"
	"errors"
	"net/http"
)

// OAuth2Error is the RFC 6749 error shape returned by the /oauth endpoints.
type OAuth2Error struct {
	ErrorType        string `json:"error"`
	ErrorDescription string `json:"error_description,omitempty"`
	HTTPStatus       int    `json:"-"`
}

func (e *OAuth2Error) Error() string {
	out, _ := json.Marshal(e)
	return string(out)
}

// WithDescription returns a copy of the error with a specific description.
func (e *OAuth2Error) WithDescription(desc string) *OAuth2Error {
	clone := *e
	clone.ErrorDescription = desc
	return &clone
}

var (
	ErrInvalidRequest = &OAuth2Error{
		ErrorType:  "invalid_request",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidClient = &OAuth2Error{
		ErrorType:  "invalid_client",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrInvalidGrant = &OAuth2Error{
		ErrorType:  "invalid_grant",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrUnsupportedGrantType = &OAuth2Error{
		ErrorType:  "unsupported_grant_type",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrInvalidRedirectURI = &OAuth2Error{
		ErrorType:        "invalid_request",
		ErrorDescription: "redirect_uri is not registered for this client",
		HTTPStatus:       http.StatusBadRequest,
	}

	ErrInvalidToken = &OAuth2Error{
		ErrorType:  "invalid_token",
		HTTPStatus: http.StatusUnauthorized,
	}

	ErrTokenExpired = &OAuth2Error{
		ErrorType:        "invalid_token",
		ErrorDescription: "token expired",
		HTTPStatus:       http.StatusUnauthorized,
	}
)

// AsOAuth2Error converts any error to an OAuth2Error. Unknown errors are
// reported as server_error.
func AsOAuth2Error(err error) *OAuth2Error {
	var oauthErr *OAuth2Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return &OAuth2Error{
		ErrorType:  "server_error",
		HTTPStatus: http.StatusInternalServerError,
	}
}
