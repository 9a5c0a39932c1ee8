package serviceerr

import (
	"errors"
	"fmt"
	"net/http"
)

type Code string

const (
	// RFC6749 authorization errors
	CodeInvalidRequest Code = "invalid_request"
	CodeAccessDenied   Code = "access_denied"
	CodeServerError    Code = "server_error"

	// Custom codes
	CodeUnknown                  Code = "unknown"
	CodeConflict                 Code = "conflict"
	CodeNotFound                 Code = "not_found"
	CodeConfiguration            Code = "configuration_error"
	CodeCSRFValidation           Code = "csrf_validation_failed"
	CodeMissingAuthorizationCode Code = "missing_authorization_code"
	CodeTokenExchange            Code = "token_exchange_failed"
	CodeUpstreamAPI              Code = "upstream_api_error"
	CodeSecretStore              Code = "secret_store_error"
	CodeCredentialNotFound       Code = "credential_not_found"
	CodeUnknownProvider          Code = "unknown_provider"
	CodeInvalidIDToken           Code = "invalid_id_token"
)

type Error struct {
	Err         Code
	Description string
}

var (
	ErrInvalidRequest = &Error{Err: CodeInvalidRequest}
	ErrAccessDenied   = &Error{Err: CodeAccessDenied, Description: "the authorization request was denied"}
	ErrServerError    = &Error{Err: CodeServerError}

	ErrUnknown                  = &Error{Err: CodeUnknown, Description: "unknown error"}
	ErrConflict                 = &Error{Err: CodeConflict, Description: "already exists"}
	ErrNotFound                 = &Error{Err: CodeNotFound, Description: "not found"}
	ErrConfiguration            = &Error{Err: CodeConfiguration, Description: "client credentials are not configured"}
	ErrCSRFValidation           = &Error{Err: CodeCSRFValidation, Description: "state mismatch"}
	ErrMissingAuthorizationCode = &Error{Err: CodeMissingAuthorizationCode, Description: "no authorization code provided"}
	ErrTokenExchange            = &Error{Err: CodeTokenExchange, Description: "exchanging the authorization code failed"}
	ErrUpstreamAPI              = &Error{Err: CodeUpstreamAPI, Description: "upstream API request failed"}
	ErrSecretStore              = &Error{Err: CodeSecretStore, Description: "secret store operation failed"}
	ErrCredentialNotFound       = &Error{Err: CodeCredentialNotFound, Description: "no stored credential for subject"}
	ErrUnknownProvider          = &Error{Err: CodeUnknownProvider, Description: "unknown provider"}
	ErrInvalidIDToken           = &Error{Err: CodeInvalidIDToken, Description: "id token verification failed"}
)

func (e *Error) Error() string {
	if e.Description == "" {
		return string(e.Err)
	}

	return fmt.Sprintf("%s: %s", e.Err, e.Description)
}

func (e *Error) HTTPStatus() int {
	switch e.Err {
	case CodeInvalidRequest, CodeCSRFValidation, CodeMissingAuthorizationCode:
		return http.StatusBadRequest
	case CodeAccessDenied:
		return http.StatusForbidden
	case CodeInvalidIDToken:
		return http.StatusUnauthorized
	case CodeNotFound, CodeCredentialNotFound, CodeUnknownProvider:
		return http.StatusNotFound
	case CodeConflict:
		return http.StatusConflict
	case CodeTokenExchange, CodeUpstreamAPI:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// UpstreamError carries the status and body of a failed call to a provider.
type UpstreamError struct {
	Base       *Error
	StatusCode int
	Body       string
}

func TokenExchangeError(statusCode int, body string) *UpstreamError {
	return &UpstreamError{Base: ErrTokenExchange, StatusCode: statusCode, Body: body}
}

func UpstreamAPIError(statusCode int, body string) *UpstreamError {
	return &UpstreamError{Base: ErrUpstreamAPI, StatusCode: statusCode, Body: body}
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s (upstream status %d): %s", e.Base.Error(), e.StatusCode, e.Body)
}

func (e *UpstreamError) Unwrap() error {
	return e.Base
}

// HTTPStatus returns the status code for err, defaulting to 500 for errors
// outside the taxonomy.
func HTTPStatus(err error) int {
	var serr *Error
	if errors.As(err, &serr) {
		return serr.HTTPStatus()
	}

	return http.StatusInternalServerError
}

// AsError returns the taxonomy error wrapped in err, or ErrUnknown.
func AsError(err error) *Error {
	var serr *Error
	if errors.As(err, &serr) {
		return serr
	}

	return ErrUnknown
}
