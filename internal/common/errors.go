package common

import (
	"errors"
	"fmt"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	// ErrNotFound covers both "does not exist" and "not owned by the
	// caller"; the two are indistinguishable at the API boundary.
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	// ErrSync marks a persistence failure while recording a status change.
	// It is the only error the sync service propagates; polling callers
	// swallow it and serve best-effort data.
	ErrSync       = errors.New("status sync failed")
	ErrInternal   = errors.New("internal error")
	ErrDatabase   = errors.New("database error")
	ErrValidation = errors.New("validation failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// SyncError wraps a persistence failure so callers can match it with
// errors.Is(err, ErrSync).
func SyncError(message string, cause error) error {
	return &AppError{Code: "SYNC_ERROR", Message: message, Cause: fmt.Errorf("%w: %w", ErrSync, cause)}
}
