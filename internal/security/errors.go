// Package security implements the request security pipeline: rate and DDoS
// guards, IP blocking, payload threat scanning, CSRF validation, suspicious
// activity tracking, and the middleware that chains them per request.
package security

import "errors"

// ErrorCode is the stable rejection code surfaced to clients.
type ErrorCode string

const (
	CodeDDoSProtection  ErrorCode = "DDOS_PROTECTION"
	CodeIPBlocked       ErrorCode = "IP_BLOCKED"
	CodeRateLimit       ErrorCode = "RATE_LIMIT"
	CodeInputValidation ErrorCode = "INPUT_VALIDATION"
	CodeCSRFProtection  ErrorCode = "CSRF_PROTECTION"
	CodeInternal        ErrorCode = "INTERNAL"
)

// AppError is a typed application error.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

// Error returns the error message.
func (e *AppError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *AppError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Wrap creates a new AppError.
func Wrap(code ErrorCode, msg string, err error) error {
	return &AppError{Code: code, Message: msg, Err: err}
}

// CodeOf returns the ErrorCode for an error.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}
