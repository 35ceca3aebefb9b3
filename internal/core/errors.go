package core

import "fmt"

// Error represents a structured error with code and optional cause.
type Error struct {
	Code    string
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause for errors.Is/As support.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is matching by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WrapError creates a new error with the same code but with a cause.
func WrapError(base *Error, cause error) *Error {
	return &Error{
		Code:    base.Code,
		Message: base.Message,
		Cause:   cause,
	}
}

// Predefined errors
var (
	// Provider errors. None of these ever reach a caller of the fallback
	// chain; they exist so logs and metrics can tell failure kinds apart.
	ErrProviderUnavailable = &Error{Code: "PROVIDER_UNAVAILABLE", Message: "provider not available"}
	ErrProviderCall        = &Error{Code: "PROVIDER_CALL_FAILED", Message: "provider call failed"}
	ErrNotSupported        = &Error{Code: "NOT_SUPPORTED", Message: "operation not supported by provider"}
	ErrNoData              = &Error{Code: "NO_DATA", Message: "no data available"}

	// Failure kinds wrapped inside ErrProviderCall causes.
	ErrUpstreamTimeout = &Error{Code: "UPSTREAM_TIMEOUT", Message: "upstream request timed out"}
	ErrAuthFailed      = &Error{Code: "AUTH_FAILED", Message: "upstream rejected credentials"}
	ErrDecodeFailed    = &Error{Code: "DECODE_FAILED", Message: "malformed upstream payload"}

	// Config errors
	ErrConfigInvalid = &Error{Code: "CONFIG_INVALID", Message: "configuration invalid"}
	ErrConfigMissing = &Error{Code: "CONFIG_MISSING", Message: "required configuration missing"}
)
