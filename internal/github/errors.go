package github

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// APIError is a non-success response, or a transport failure when StatusCode is zero.
type APIError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	msg := fmt.Sprintf("github api: status %d", e.StatusCode)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// Retryable reports whether repeating the request may succeed.
func (e *APIError) Retryable() bool {
	return e.StatusCode == 0 || e.StatusCode >= http.StatusInternalServerError
}

// RateLimitError is returned once retries are spent waiting on the rate limit.
type RateLimitError struct {
	ResetAt   time.Time
	Limit     int
	Remaining int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("github api: rate limit %d exhausted (remaining %d), resets at %s",
		e.Limit, e.Remaining, e.ResetAt.Format(time.RFC3339))
}

// ArgumentError rejects a lookup before any request is made.
type ArgumentError struct {
	Field  string
	Reason string
}

func (e *ArgumentError) Error() string {
	return fmt.Sprintf("github api: %s %s", e.Field, e.Reason)
}

// RepositoryNotFoundError means the repository does not exist or the token cannot see it.
type RepositoryNotFoundError struct {
	Owner string
	Name  string
}

func (e *RepositoryNotFoundError) Error() string {
	return fmt.Sprintf("github api: repository %s/%s not found", e.Owner, e.Name)
}

// IsRateLimitError checks if an error is a rate limit error
func IsRateLimitError(err error) bool {
	var rlErr *RateLimitError
	return stderrors.As(err, &rlErr)
}

// IsNotFound checks if the repository does not exist or is not visible
func IsNotFound(err error) bool {
	var nfErr *RepositoryNotFoundError
	return stderrors.As(err, &nfErr)
}
