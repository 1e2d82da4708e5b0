// Package errors defines AppError, the coded error every layer returns when a failure
// has a user-facing meaning, and MapDBError which turns Postgres failures into one.
package errors

import (
	"errors"
	"fmt"
)

// ErrorCode represents a category of application error.
type ErrorCode string

const (
	ErrCodeNotFound   ErrorCode = "not_found"
	ErrCodeConflict   ErrorCode = "conflict"
	ErrCodeValidation ErrorCode = "validation"
	ErrCodeForeignKey ErrorCode = "foreign_key"
	ErrCodeInternal   ErrorCode = "internal"
	ErrCodeTimeout    ErrorCode = "timeout"
	ErrCodeCanceled   ErrorCode = "canceled"
	// ErrCodeInvalidCredentials covers a rejected email/password pair and an expired session.
	ErrCodeInvalidCredentials ErrorCode = "invalid_credentials"
	// ErrCodeNetwork means an upstream (identity provider, Postgres, Redis) was unreachable.
	ErrCodeNetwork ErrorCode = "network"
	// ErrCodeProviderCancelled means the user abandoned a federated sign-in.
	ErrCodeProviderCancelled ErrorCode = "provider_cancelled"
	ErrCodePermissionDenied  ErrorCode = "permission_denied"
)

// AppError carries a code, a message safe to show users, an optional offending field
// and an optional cause reachable through errors.Is and errors.As.
type AppError struct {
	Code    ErrorCode
	Message string
	Cause   error
	Field   string
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Cause }

// New returns an AppError with no cause.
func New(code ErrorCode, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Wrap attaches code and message to err. It returns nil for a nil err.
func Wrap(err error, code ErrorCode, message string) *AppError {
	if err == nil {
		return nil
	}
	return &AppError{Code: code, Message: message, Cause: err}
}

func NotFound(message string) *AppError { return New(ErrCodeNotFound, message) }

func NotFoundf(format string, args ...any) *AppError {
	return New(ErrCodeNotFound, fmt.Sprintf(format, args...))
}

func Conflict(message string) *AppError { return New(ErrCodeConflict, message) }

func Validation(message string) *AppError { return New(ErrCodeValidation, message) }

func Validationf(format string, args ...any) *AppError {
	return New(ErrCodeValidation, fmt.Sprintf(format, args...))
}

// ValidationField blames a single input field.
func ValidationField(field, message string) *AppError {
	return &AppError{Code: ErrCodeValidation, Message: message, Field: field}
}

func ForeignKey(message string) *AppError { return New(ErrCodeForeignKey, message) }

func Internal(message string) *AppError { return New(ErrCodeInternal, message) }

func InvalidCredentials(message string) *AppError { return New(ErrCodeInvalidCredentials, message) }

// Network wraps an upstream connectivity failure.
func Network(err error, message string) *AppError { return Wrap(err, ErrCodeNetwork, message) }

func ProviderCancelled(message string) *AppError { return New(ErrCodeProviderCancelled, message) }

func PermissionDenied(message string) *AppError { return New(ErrCodePermissionDenied, message) }

// Is reports whether any AppError in err's chain carries code.
func Is(err error, code ErrorCode) bool {
	return GetCode(err) == code && code != ""
}

func IsNotFound(err error) bool           { return Is(err, ErrCodeNotFound) }
func IsConflict(err error) bool           { return Is(err, ErrCodeConflict) }
func IsValidation(err error) bool         { return Is(err, ErrCodeValidation) }
func IsForeignKey(err error) bool         { return Is(err, ErrCodeForeignKey) }
func IsInternal(err error) bool           { return Is(err, ErrCodeInternal) }
func IsTimeout(err error) bool            { return Is(err, ErrCodeTimeout) }
func IsCanceled(err error) bool           { return Is(err, ErrCodeCanceled) }
func IsInvalidCredentials(err error) bool { return Is(err, ErrCodeInvalidCredentials) }
func IsNetwork(err error) bool            { return Is(err, ErrCodeNetwork) }
func IsProviderCancelled(err error) bool  { return Is(err, ErrCodeProviderCancelled) }
func IsPermissionDenied(err error) bool   { return Is(err, ErrCodePermissionDenied) }

// GetCode returns the code of the outermost AppError in err's chain, or "".
func GetCode(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ""
}

// GetField returns the offending field of the outermost AppError in err's chain, or "".
func GetField(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Field
	}
	return ""
}
