package cache

import (
	"encoding/hex"
	"strings"

	"golang.org/x/crypto/blake2b"
)

// Key derives a fixed-length cache key from its parts. Parts are separated
// by a NUL byte so that ("ab", "c") and ("a", "bc") never collide.
func Key(parts ...string) string {
	sum := blake2b.Sum256([]byte(strings.Join(parts, "\x00")))

	return hex.EncodeToString(sum[:])
}
