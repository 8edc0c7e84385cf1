package token_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dropDatabas3/authkit/internal/security/token"
)

func TestGenerateOpaqueToken(t *testing.T) {
	a, err := token.GenerateOpaqueToken(32)
	require.NoError(t, err)
	b, err := token.GenerateOpaqueToken(32)
	require.NoError(t, err)

	assert.Len(t, a, 43, "32 bytes base64url unpadded")
	assert.NotEqual(t, a, b)
}

func TestSHA256Base64URL(t *testing.T) {
	d := token.SHA256Base64URL("secret")
	assert.Len(t, d, 43)
	assert.Equal(t, d, token.SHA256Base64URL("secret"), "digest is deterministic")
	assert.NotEqual(t, d, token.SHA256Base64URL("secret2"))
}

func TestGenerateOTP(t *testing.T) {
	for i := 0; i < 20; i++ {
		code, err := token.GenerateOTP(6)
		require.NoError(t, err)
		require.Len(t, code, 6)
		for _, r := range code {
			require.True(t, r >= '0' && r <= '9', code)
		}
	}
}

func TestConstantTimeEqual(t *testing.T) {
	assert.True(t, token.ConstantTimeEqual("abc", "abc"))
	assert.False(t, token.ConstantTimeEqual("abc", "abd"))
	assert.False(t, token.ConstantTimeEqual("abc", "abcd"))
}
