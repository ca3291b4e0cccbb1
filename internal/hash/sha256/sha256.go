// Package sha256 provides SHA-256 digests used to tell colliding asset names apart.
package sha256

import (
	"crypto/sha256"
	"encoding/hex"
)

// ShortLen is the number of hex characters Short keeps.
const ShortLen = 8

// Hasher implements loader.Hasher using SHA-256.
type Hasher struct{}

// New returns a SHA-256 hasher.
func New() *Hasher {
	return &Hasher{}
}

// Hash hashes the input and returns a hex digest.
func (h *Hasher) Hash(data []byte) (string, error) {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), nil
}

// Short returns the first ShortLen hex characters of the digest of s.
func Short(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])[:ShortLen]
}
