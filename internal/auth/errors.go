package auth

import (
	"errors"
	"net/http"
)

// Code is a machine-readable authentication failure code.
type Code string

const (
	CodeInvalidEmail       Code = "INVALID_EMAIL"
	CodeWeakPassword       Code = "WEAK_PASSWORD"
	CodeEmailExists        Code = "EMAIL_EXISTS"
	CodeMissingCredentials Code = "MISSING_CREDENTIALS"
	CodeInvalidCredentials Code = "INVALID_CREDENTIALS"
	CodeAccountLocked      Code = "ACCOUNT_LOCKED"
	CodeAccountDeactivated Code = "ACCOUNT_DEACTIVATED"
	CodeTokenExpired       Code = "TOKEN_EXPIRED"
	CodeInvalidToken       Code = "INVALID_TOKEN"
	CodeTokenRevoked       Code = "TOKEN_REVOKED"
	CodeInternal           Code = "INTERNAL_ERROR"
)

// Error is an expected authentication failure carrying a machine code and a
// human message. Infrastructure faults are never wrapped into one of these
// except as CodeInternal with an opaque message.
type Error struct {
	Code    Code
	Message string
}

func (e *Error) Error() string { return e.Message }

func newError(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// ErrInternal is the opaque failure surfaced for unexpected store or codec
// faults. Detail stays in logs and Sentry, never in the client response.
var ErrInternal = newError(CodeInternal, "operation failed")

// CodeOf extracts the failure code, defaulting to CodeInternal.
func CodeOf(err error) Code {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Code
	}
	return CodeInternal
}

// httpStatus maps failure codes to HTTP statuses at the handler boundary.
// Token failures collapse to 401 to avoid a verification oracle; revoked is
// surfaced identically to invalid.
func httpStatus(code Code) int {
	switch code {
	case CodeInvalidEmail, CodeWeakPassword, CodeMissingCredentials:
		return http.StatusBadRequest
	case CodeEmailExists:
		return http.StatusConflict
	case CodeInvalidCredentials, CodeTokenExpired, CodeInvalidToken, CodeTokenRevoked:
		return http.StatusUnauthorized
	case CodeAccountLocked:
		return http.StatusLocked
	case CodeAccountDeactivated:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// Store-level sentinels, reported by the repository and translated by the
// service.
var (
	ErrUserNotFound   = errors.New("user not found")
	ErrEmailTaken     = errors.New("email already registered")
	ErrRefreshRevoked = errors.New("refresh token revoked")
)
