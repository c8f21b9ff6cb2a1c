// Package pii derives stable, keyed references to personal identifiers so they can
// be used as cache keys and event attributes without storing the raw value.
package pii

import (
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Hasher produces keyed BLAKE2b-256 digests.
type Hasher struct {
	key []byte
}

// NewHasher keys the digest; keys longer than 64 bytes are truncated.
func NewHasher(key []byte) *Hasher {
	if len(key) > blake2b.Size {
		key = key[:blake2b.Size]
	}
	return &Hasher{key: key}
}

// Hash returns the hex digest of value, or "" for an empty value.
func (h *Hasher) Hash(value string) string {
	if h == nil || value == "" {
		return ""
	}
	mac, err := blake2b.New256(h.key)
	if err != nil {
		return ""
	}
	mac.Write([]byte(value))
	return hex.EncodeToString(mac.Sum(nil))
}
