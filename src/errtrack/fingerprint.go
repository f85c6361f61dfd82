package errtrack

import (
	"fmt"

	"github.com/spaolacci/murmur3"
)

// Fingerprint identifies a compiled report: 32 lowercase hex characters
// made of the two 64-bit halves of its MurmurHash3 x64-128 digest.
type Fingerprint string

// Hash digests text with MurmurHash3 x64-128 (seed 0).
func Hash(text string) Fingerprint {
	h1, h2 := murmur3.Sum128([]byte(text))
	return Fingerprint(fmt.Sprintf("%016x%016x", h1, h2))
}
