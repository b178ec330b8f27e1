package errors

import (
	stdErrors "errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsCodeForIs(t *testing.T) {
	err := Clone(ErrAlreadyReviewed, "refresh and try again")
	assert.True(t, stdErrors.Is(err, ErrAlreadyReviewed))
	assert.False(t, stdErrors.Is(err, ErrInvalidState))
	assert.Equal(t, "refresh and try again", err.Message)
	assert.Equal(t, "submission already reviewed", ErrAlreadyReviewed.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	raw := fmt.Errorf("boom")
	appErr := FromError(raw)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.ErrorIs(t, appErr, raw)

	wrapped := fmt.Errorf("outer: %w", ErrCohortMismatch)
	assert.Equal(t, ErrCohortMismatch, FromError(wrapped))
	assert.Nil(t, FromError(nil))
}
