package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeOf(t *testing.T) {
	assert.Equal(t, ErrCodeNotFound, CodeOf(NotFound("delegation", "d-1")))
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("boom")))
	assert.Equal(t, ErrCodeInternal, CodeOf(nil))

	wrapped := fmt.Errorf("handling request: %w", NotFound("approval_policy", "p-1"))
	assert.Equal(t, ErrCodeNotFound, CodeOf(wrapped))
}

func TestIsReason(t *testing.T) {
	err := NewReason(ErrCodeConflict, ReasonStepOutOfOrder, "an earlier step is still pending")
	assert.True(t, IsReason(err, ReasonStepOutOfOrder))
	assert.False(t, IsReason(err, ReasonStepNotPending))
	assert.False(t, IsReason(errors.New("boom"), ReasonStepOutOfOrder))

	wrapped := fmt.Errorf("approving step: %w", err)
	assert.True(t, IsReason(wrapped, ReasonStepOutOfOrder))
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := Wrap(cause, ErrCodeInternal, "querying approval steps")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, ErrCodeInternal, CodeOf(err))
}
