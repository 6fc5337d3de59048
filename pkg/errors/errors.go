package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an AppError for transport-level mapping.
type ErrorCode string

const (
	CodeInvalidInput  ErrorCode = "INVALID_INPUT"
	CodeNotFound      ErrorCode = "NOT_FOUND"
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"
	CodeUnauthorized  ErrorCode = "UNAUTHORIZED"
	CodeConflict      ErrorCode = "CONFLICT"
	CodeInternal      ErrorCode = "INTERNAL_ERROR"
	CodeUnavailable   ErrorCode = "SERVICE_UNAVAILABLE"
)

// AppError is the application-level error carried across layers.
// Message is safe to show to operators; Err keeps the underlying cause.
type AppError struct {
	Code    ErrorCode
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewInvalidInputError reports rejected caller input.
func NewInvalidInputError(message string) *AppError {
	return &AppError{Code: CodeInvalidInput, Message: message}
}

// NewNotFoundError reports a missing entity.
func NewNotFoundError(message string) *AppError {
	return &AppError{Code: CodeNotFound, Message: message}
}

// NewAlreadyExistsError reports a uniqueness violation.
func NewAlreadyExistsError(message string) *AppError {
	return &AppError{Code: CodeAlreadyExists, Message: message}
}

// NewUnauthorizedError reports a failed or missing authentication.
func NewUnauthorizedError(message string) *AppError {
	return &AppError{Code: CodeUnauthorized, Message: message}
}

// NewConflictError reports an operation refused in the current state,
// e.g. deleting a knowledge base that bots still reference.
func NewConflictError(message string) *AppError {
	return &AppError{Code: CodeConflict, Message: message}
}

// NewInternalError reports an unexpected failure.
func NewInternalError(message string) *AppError {
	return &AppError{Code: CodeInternal, Message: message}
}

// NewInternalErrorWithCause wraps cause as an internal error.
func NewInternalErrorWithCause(message string, cause error) *AppError {
	return &AppError{Code: CodeInternal, Message: message, Err: cause}
}

// NewUnavailableError reports an upstream service failure.
func NewUnavailableError(message string, cause error) *AppError {
	return &AppError{Code: CodeUnavailable, Message: message, Err: cause}
}

func codeOf(err error) (ErrorCode, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code, true
	}
	return "", false
}

// IsNotFound reports whether err is a NOT_FOUND AppError.
func IsNotFound(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeNotFound
}

// IsInvalidInput reports whether err is an INVALID_INPUT AppError.
func IsInvalidInput(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeInvalidInput
}

// IsAlreadyExists reports whether err is an ALREADY_EXISTS AppError.
func IsAlreadyExists(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeAlreadyExists
}

// IsUnauthorized reports whether err is an UNAUTHORIZED AppError.
func IsUnauthorized(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeUnauthorized
}

// IsConflict reports whether err is a CONFLICT AppError.
func IsConflict(err error) bool {
	code, ok := codeOf(err)
	return ok && code == CodeConflict
}
