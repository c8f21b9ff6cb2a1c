package domainerrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapAndInspect(t *testing.T) {
	cause := errors.New("connection reset")

	t.Run("wrap nil returns nil", func(t *testing.T) {
		assert.NoError(t, Wrap(nil, CodeInternal, "ignored"))
	})

	t.Run("code survives fmt wrapping", func(t *testing.T) {
		err := fmt.Errorf("outer: %w", Wrap(cause, CodeInternal, "store failed"))
		assert.True(t, Is(err, CodeInternal))
		assert.Equal(t, CodeInternal, CodeOf(err))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("HasCode walks nested domain errors", func(t *testing.T) {
		inner := New(CodeLowConfidence, "document quality too low")
		err := Wrap(inner, CodeValidation, "document rejected")
		assert.True(t, HasCode(err, CodeLowConfidence))
		assert.True(t, Is(err, CodeValidation))
		assert.False(t, Is(err, CodeLowConfidence))
	})

	t.Run("plain errors map to internal", func(t *testing.T) {
		assert.Equal(t, CodeInternal, CodeOf(cause))
		assert.False(t, HasCode(cause, CodeInternal))
	})
}
