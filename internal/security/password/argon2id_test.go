package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	phc, err := Hash(Default, "correct-horse-battery")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(phc, "$argon2id$v=19$m=65536,t=3,p=1$"), phc)

	assert.True(t, Verify("correct-horse-battery", phc))
	assert.False(t, Verify("wrong-password-here", phc))

	// Salts differ per hash, so the same password never repeats a PHC string.
	again, err := Hash(Default, "correct-horse-battery")
	require.NoError(t, err)
	assert.NotEqual(t, phc, again)
	assert.True(t, Verify("correct-horse-battery", again))
}

func TestHashRejectsEmptyPassword(t *testing.T) {
	_, err := Hash(Default, "")
	assert.Error(t, err)
}

func TestVerifyMalformed(t *testing.T) {
	phc, err := Hash(Default, "correct-horse-battery")
	require.NoError(t, err)

	for name, input := range map[string]string{
		"empty":          "",
		"not a phc":      "plainly-not-a-hash",
		"wrong scheme":   strings.Replace(phc, "argon2id", "bcrypt", 1),
		"wrong version":  strings.Replace(phc, "v=19", "v=18", 1),
		"missing key":    phc[:strings.LastIndex(phc, "$")+1],
		"truncated":      phc[:len(phc)-10],
		"bad salt chars": strings.Replace(phc, "$m=65536,t=3,p=1$", "$m=65536,t=3,p=1$!!!$", 1),
	} {
		t.Run(name, func(t *testing.T) {
			assert.False(t, Verify("correct-horse-battery", input))
		})
	}
}
