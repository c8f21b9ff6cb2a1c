package pii

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHasher(t *testing.T) {
	h := NewHasher([]byte("k1"))
	a := h.Hash("3171234567890123")

	assert.Len(t, a, 64)
	assert.Equal(t, a, h.Hash("3171234567890123"))
	assert.NotEqual(t, a, NewHasher([]byte("k2")).Hash("3171234567890123"))
	assert.Empty(t, h.Hash(""))

	var nilHasher *Hasher
	assert.Empty(t, nilHasher.Hash("x"))
}
