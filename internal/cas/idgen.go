package cas

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// IDGenerator mints unguessable opaque ids for sessions and accesses. The
// core only consumes this interface, so callers may swap in their own
// generator (e.g. one seeded from an HSM) without touching session/access
// logic.
type IDGenerator interface {
	NewID(prefix string) (string, error)
}

// randomIDGenerator is the default IDGenerator: a prefix followed by 32
// random bytes, URL-safe base64 encoded, the same recipe
// domain/auth/auth.go uses for GenerateRefreshToken/GenerateResetToken,
// generalized to take an arbitrary prefix so sessions, service tickets
// and proxy tickets remain visually distinct the way CAS ticket ids
// traditionally are (TGT-, ST-, PGT-).
type randomIDGenerator struct {
	byteLen int
}

// NewRandomIDGenerator returns the default crypto/rand-backed generator.
func NewRandomIDGenerator() IDGenerator {
	return &randomIDGenerator{byteLen: 32}
}

func (g *randomIDGenerator) NewID(prefix string) (string, error) {
	buf := make([]byte, g.byteLen)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("cas: failed to generate id: %w", err)
	}
	return prefix + base64.URLEncoding.WithPadding(base64.NoPadding).EncodeToString(buf), nil
}
