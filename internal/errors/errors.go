package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	ErrNotFound     ErrorType = "NOT_FOUND"
	ErrConflict     ErrorType = "CONFLICT"
	ErrInvalidState ErrorType = "INVALID_STATE"
	ErrInvalidInput ErrorType = "INVALID_INPUT"
	ErrForbidden    ErrorType = "FORBIDDEN"
	ErrStageFailure ErrorType = "STAGE_FAILURE"
	ErrUnauthorized ErrorType = "UNAUTHORIZED"
	ErrInternal     ErrorType = "INTERNAL"
)

// AppError represents an application error
type AppError struct {
	Type      ErrorType
	Message   string
	Cause     error
	Timestamp time.Time
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// New creates a new AppError
func New(errType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:      errType,
		Message:   message,
		Cause:     cause,
		Timestamp: time.Now(),
	}
}

// TypeOf returns the ErrorType of the first AppError in err's chain.
// Run-in-progress errors classify as conflicts.
func TypeOf(err error) (ErrorType, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Type, true
	}
	var runErr *RunInProgressError
	if stderrors.As(err, &runErr) {
		return ErrConflict, true
	}
	return "", false
}

func is(err error, t ErrorType) bool {
	got, ok := TypeOf(err)
	return ok && got == t
}

// IsNotFound checks if the error is a not found error
func IsNotFound(err error) bool {
	return is(err, ErrNotFound)
}

// IsConflict checks if the error is a conflict, including a run already in progress
func IsConflict(err error) bool {
	return is(err, ErrConflict)
}

// IsInvalidState checks if the error is an invalid state error
func IsInvalidState(err error) bool {
	return is(err, ErrInvalidState)
}

// IsInvalidInput checks if the error is an invalid input error
func IsInvalidInput(err error) bool {
	return is(err, ErrInvalidInput)
}

// IsValidationError is an alias for IsInvalidInput
func IsValidationError(err error) bool {
	return IsInvalidInput(err)
}

// IsForbidden checks if the error is an authorization denial
func IsForbidden(err error) bool {
	return is(err, ErrForbidden)
}

// IsStageFailure checks if the error is a stage execution failure
func IsStageFailure(err error) bool {
	return is(err, ErrStageFailure)
}

// NewNotFoundError creates a new not found error
func NewNotFoundError(message string, err error) *AppError {
	return New(ErrNotFound, message, err)
}

// NewConflictError creates a new conflict error
func NewConflictError(message string, err error) *AppError {
	return New(ErrConflict, message, err)
}

// NewInvalidStateError creates a new invalid state error
func NewInvalidStateError(message string, err error) *AppError {
	return New(ErrInvalidState, message, err)
}

// NewValidationError creates a new validation error
func NewValidationError(message string, err error) *AppError {
	return New(ErrInvalidInput, message, err)
}

// NewForbiddenError creates an authorization denied error
func NewForbiddenError(message string, err error) *AppError {
	return New(ErrForbidden, message, err)
}

// NewUnauthorizedError creates a new unauthorized error
func NewUnauthorizedError(message string, err error) *AppError {
	return New(ErrUnauthorized, message, err)
}

// NewStageFailureError creates a stage execution failure
func NewStageFailureError(message string, err error) *AppError {
	return New(ErrStageFailure, message, err)
}

// NewInternalError creates a new internal error
func NewInternalError(message string, err error) *AppError {
	return New(ErrInternal, message, err)
}

// RunInProgressError is returned when a pipeline run is already active for a repository
type RunInProgressError struct {
	RepositoryID string
}

func (e *RunInProgressError) Error() string {
	return fmt.Sprintf("pipeline run already in progress for repository: %s", e.RepositoryID)
}

// NewRunInProgressError creates a new RunInProgressError
func NewRunInProgressError(repositoryID string) error {
	return &RunInProgressError{
		RepositoryID: repositoryID,
	}
}

// IsRunInProgress checks if the error reports an already active run
func IsRunInProgress(err error) bool {
	var runErr *RunInProgressError
	return stderrors.As(err, &runErr)
}

// NewRepositoryNotFoundError creates a not found error for a repository id
func NewRepositoryNotFoundError(id string) *AppError {
	return NewNotFoundError(fmt.Sprintf("repository not found: %s", id), nil)
}
