package errors

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPredicatesClassifyWrappedErrors(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		check func(error) bool
	}{
		{"not found", NewRepositoryNotFoundError("r1"), IsNotFound},
		{"conflict", NewConflictError("busy", nil), IsConflict},
		{"run in progress is a conflict", NewRunInProgressError("r1"), IsConflict},
		{"invalid state", NewInvalidStateError("empty", nil), IsInvalidState},
		{"forbidden", NewForbiddenError("no", nil), IsForbidden},
		{"stage failure", NewStageFailureError("boom", nil), IsStageFailure},
		{"validation", NewValidationError("bad", nil), IsValidationError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, tt.check(tt.err))
			assert.True(t, tt.check(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}

func TestPredicatesRejectOtherTypes(t *testing.T) {
	err := NewConflictError("busy", nil)
	assert.False(t, IsNotFound(err))
	assert.False(t, IsRunInProgress(err))
	assert.False(t, IsConflict(fmt.Errorf("plain")))

	_, ok := TypeOf(fmt.Errorf("plain"))
	assert.False(t, ok)
}

func TestAppErrorMessageIncludesCause(t *testing.T) {
	err := NewStageFailureError("PARSING_FILES failed", fmt.Errorf("parser crashed"))
	assert.Equal(t, "STAGE_FAILURE: PARSING_FILES failed (caused by: parser crashed)", err.Error())
	assert.Equal(t, "NOT_FOUND: repository not found: r1", NewRepositoryNotFoundError("r1").Error())
}
