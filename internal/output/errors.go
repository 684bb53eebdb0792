package output

import (
	"errors"
	"fmt"
)

// Error is a structured error with code, message, and optional hint.
type Error struct {
	Code       string
	Message    string
	Hint       string
	HTTPStatus int
	Retryable  bool
	RetryAfter int // seconds, from a Retry-After header
	Cause      error
}

func (e *Error) Error() string {
	if e.Hint != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Hint)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// ExitCode returns the appropriate exit code for this error.
func (e *Error) ExitCode() int {
	return ExitCodeFor(e.Code)
}

// Error constructors for common cases.

func ErrUsage(msg string) *Error {
	return &Error{Code: CodeUsage, Message: msg}
}

func ErrUsageHint(msg, hint string) *Error {
	return &Error{Code: CodeUsage, Message: msg, Hint: hint}
}

func ErrNotFound(resource, identifier string) *Error {
	return &Error{
		Code:       CodeNotFound,
		Message:    fmt.Sprintf("%s not found: %s", resource, identifier),
		HTTPStatus: 404,
	}
}

func ErrUnauthorized(status int) *Error {
	return &Error{
		Code:       CodeAuth,
		Message:    "API credential rejected",
		Hint:       "Check RIOT_API_KEY; development keys expire every 24 hours",
		HTTPStatus: status,
	}
}

func ErrRateLimit(retryAfter int) *Error {
	hint := "Try again later"
	if retryAfter > 0 {
		hint = fmt.Sprintf("Try again in %d seconds", retryAfter)
	}
	return &Error{
		Code:       CodeRateLimit,
		Message:    "Rate limited",
		Hint:       hint,
		HTTPStatus: 429,
		Retryable:  true,
		RetryAfter: retryAfter,
	}
}

// ErrGateRejected is returned when a local rate limiter, bulkhead or circuit
// breaker refuses an operation before it reaches the network.
func ErrGateRejected(reason string) *Error {
	return &Error{
		Code:      CodeRateLimit,
		Message:   "Request throttled locally",
		Hint:      reason,
		Retryable: true,
	}
}

func ErrTransport(cause error) *Error {
	return &Error{
		Code:      CodeTransport,
		Message:   "Network error",
		Hint:      cause.Error(),
		Retryable: true,
		Cause:     cause,
	}
}

func ErrDecode(cause error) *Error {
	return &Error{
		Code:    CodeTransport,
		Message: "Malformed response",
		Hint:    cause.Error(),
		Cause:   cause,
	}
}

func ErrAPI(status int, msg string) *Error {
	return &Error{
		Code:       CodeAPI,
		Message:    msg,
		HTTPStatus: status,
		Retryable:  status >= 500,
	}
}

func ErrNotConfigured(setting, env string) *Error {
	return &Error{
		Code:    CodeNotConfigured,
		Message: fmt.Sprintf("%s is not configured", setting),
		Hint:    fmt.Sprintf("Set %s", env),
	}
}

// AsError attempts to convert an error to an *Error.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return &Error{
		Code:    CodeAPI,
		Message: err.Error(),
		Cause:   err,
	}
}

// IsCode reports whether err carries the given error code.
func IsCode(err error, code string) bool {
	var e *Error
	return errors.As(err, &e) && e.Code == code
}
