package helper

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewError(t *testing.T) {
	t.Run("Wraps operation and cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := NewError("open store", cause)

		assert.Contains(t, err.Error(), "open store")
		assert.Contains(t, err.Error(), "connection refused")
	})

	t.Run("Unwraps to the cause", func(t *testing.T) {
		cause := errors.New("boom")
		err := NewError("save mapping", cause)

		assert.ErrorIs(t, err, cause)
	})
}
