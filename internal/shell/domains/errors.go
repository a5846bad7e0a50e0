package domains

import (
	"errors"
	"fmt"
	"net/http"
)

// Code classifies a domain workflow failure. The values are part of the
// HTTP error contract and are what clients switch on.
type Code string

const (
	CodeInvalidRequest Code = "INVALID_REQUEST"
	CodeRegistrar      Code = "VERCEL_ERROR"
	CodeKV             Code = "KV_ERROR"
	CodeTenantStore    Code = "CONVEX_ERROR"
	CodeNotFound       Code = "NOT_FOUND"
	CodeForbidden      Code = "FORBIDDEN"
	CodeDomainTaken    Code = "DOMAIN_TAKEN"
	CodeUnauthorized   Code = "UNAUTHORIZED"

	// CodeNetwork never leaves the server; clients synthesize it when the
	// request itself fails.
	CodeNetwork Code = "NETWORK_ERROR"
)

// Error is a classified workflow failure.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus maps the code onto a response status.
func (e *Error) HTTPStatus() int {
	return StatusFor(e.Code)
}

// StatusFor returns the HTTP status for a code.
func StatusFor(code Code) int {
	switch code {
	case CodeInvalidRequest:
		return http.StatusBadRequest
	case CodeUnauthorized:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeDomainTaken:
		return http.StatusConflict
	case CodeRegistrar, CodeNetwork:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func newError(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// CodeOf returns the code of err, or "" when err is not an *Error.
func CodeOf(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}
