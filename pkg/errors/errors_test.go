package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	cloned := Clone(ErrAlreadyDecided, "enrollment 42 already decided")

	assert.True(t, errors.Is(cloned, ErrAlreadyDecided))
	assert.False(t, errors.Is(cloned, ErrNoPromotion))
	assert.Equal(t, "enrollment 42 already decided", cloned.Message)
	assert.Equal(t, "promotional decision already recorded", ErrAlreadyDecided.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.Equal(t, http.StatusInternalServerError, appErr.Status)
	assert.ErrorIs(t, appErr, sql.ErrConnDone)

	wrapped := fmt.Errorf("load: %w", Clone(ErrUpstream, "backend down"))
	assert.Equal(t, ErrUpstream.Code, FromError(wrapped).Code)
	assert.Nil(t, FromError(nil))
}
