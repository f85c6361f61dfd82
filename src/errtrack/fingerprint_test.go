package errtrack

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHash(t *testing.T) {
	t.Run("KnownVectors", func(t *testing.T) {
		assert.Equal(t, Fingerprint("00000000000000000000000000000000"), Hash(""))
		assert.Equal(t, Fingerprint("cbd8a7b341bd9b025b1e906a48ae1d19"), Hash("hello"))
	})

	t.Run("Format", func(t *testing.T) {
		h := Hash(`{"error":"*errors.errorString","message":"boom"}`)
		assert.Regexp(t, regexp.MustCompile(`^[0-9a-f]{32}$`), string(h))
	})

	t.Run("Deterministic", func(t *testing.T) {
		assert.Equal(t, Hash("ħſðđ unicode ↓→"), Hash("ħſðđ unicode ↓→"))
		assert.NotEqual(t, Hash("a"), Hash("b"))
	})
}
