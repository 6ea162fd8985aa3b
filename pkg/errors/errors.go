package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Standard error kinds
var (
	ErrValidation    = errors.New("validation failed")
	ErrNotFound      = errors.New("resource not found")
	ErrTransientIO   = errors.New("store unavailable")
	ErrBulkOperation = errors.New("bulk operation failed")
	ErrInternal      = errors.New("internal server error")
)

// AppError represents a structured application error
type AppError struct {
	Err        error
	StatusCode int
	Message    string
	Retryable  bool
}

// Error returns the error message
func (e *AppError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Err
}

// NewAppError creates a new AppError with the given parameters
func NewAppError(err error, message string, statusCode int, retryable bool) *AppError {
	return &AppError{
		Err:        err,
		Message:    message,
		StatusCode: statusCode,
		Retryable:  retryable,
	}
}

// IsRetryable checks if the error is retryable
func IsRetryable(err error) bool {
	var appErr *AppError

	if errors.As(err, &appErr) {
		return appErr.Retryable
	}

	return errors.Is(err, ErrTransientIO)
}

// StatusCode maps an error to the HTTP status the API should answer with
func StatusCode(err error) int {
	var appErr *AppError

	if !errors.Is(err, ErrBulkOperation) && errors.As(err, &appErr) && appErr.StatusCode != 0 {
		return appErr.StatusCode
	}

	// Bulk failures wrap their cause, so they are matched first
	switch {
	case errors.Is(err, ErrBulkOperation):
		return http.StatusConflict
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrTransientIO):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// ValidationError reports a single invalid field
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrValidation
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError creates a validation error for the given field
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// BulkOperationError reports the ids that made a bulk request fail.
// No id in the request has been changed when this is returned.
type BulkOperationError struct {
	Operation string
	FailedIDs []string
	Cause     error
}

func (e *BulkOperationError) Error() string {
	msg := fmt.Sprintf("bulk %s failed", e.Operation)

	if len(e.FailedIDs) > 0 {
		msg += fmt.Sprintf(" for ids [%s]", strings.Join(e.FailedIDs, ", "))
	}

	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}

	return msg
}

// Is matches ErrBulkOperation and anything the cause matches
func (e *BulkOperationError) Is(target error) bool {
	return target == ErrBulkOperation
}

func (e *BulkOperationError) Unwrap() error {
	return e.Cause
}

// NewNotFoundError creates a not found error
func NewNotFoundError(message string) *AppError {
	return NewAppError(ErrNotFound, message, http.StatusNotFound, false)
}

// NewTransientError creates a retryable store error. The caller decides
// whether to re-invoke; nothing retries it automatically.
func NewTransientError(message string) *AppError {
	return NewAppError(ErrTransientIO, message, http.StatusServiceUnavailable, true)
}
