package jwtx

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testIssuer() *Issuer {
	return NewIssuer("authkit-test", []byte("0123456789abcdef0123456789abcdef"))
}

func TestIssueAccessRoundTrip(t *testing.T) {
	i := testIssuer()

	signed, exp, err := i.IssueAccess("user-1", "web", true, true)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(i.AccessTTL), exp, 2*time.Second)

	claims, err := i.ParseAccess(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.Subject)
	assert.Equal(t, "web", claims.ClientID)
	assert.True(t, claims.Authorized)
	assert.True(t, claims.Sudo)
	assert.NotEmpty(t, claims.ID)
}

// Two issuances for the same subject in the same second must still be distinct
// tokens: revocation is keyed by the signed string's digest, and identical
// strings would collapse into one stored row.
func TestIssueAccessUniquePerIssuance(t *testing.T) {
	i := testIssuer()

	a, _, err := i.IssueAccess("user-1", "web", true, true)
	require.NoError(t, err)
	b, _, err := i.IssueAccess("user-1", "web", true, true)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)

	ca, err := i.ParseAccess(a)
	require.NoError(t, err)
	cb, err := i.ParseAccess(b)
	require.NoError(t, err)
	assert.NotEqual(t, ca.ID, cb.ID)
}

func TestParseAccessRejects(t *testing.T) {
	i := testIssuer()

	_, err := i.ParseAccess("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// Signed under a different secret.
	other := NewIssuer("authkit-test", []byte("ffffffffffffffffffffffffffffffff"))
	signed, _, err := other.IssueAccess("user-1", "web", true, false)
	require.NoError(t, err)
	_, err = i.ParseAccess(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)

	// Expired.
	short := testIssuer()
	short.AccessTTL = -time.Minute
	signed, _, err = short.IssueAccess("user-1", "web", true, false)
	require.NoError(t, err)
	_, err = i.ParseAccess(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
}
