package token

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
)

// GenerateOpaqueToken returns nBytes of randomness as base64url without padding.
func GenerateOpaqueToken(nBytes int) (string, error) {
	b := make([]byte, nBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// SHA256Base64URL returns sha256(s) in base64url without padding. Stored
// instead of the raw secret so a leaked table cannot be replayed.
func SHA256Base64URL(s string) string {
	sum := sha256.Sum256([]byte(s))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// GenerateOTP returns a zero-padded numeric code of the given length.
func GenerateOTP(digits int) (string, error) {
	max := 1
	for i := 0; i < digits; i++ {
		max *= 10
	}
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	n := int(uint32(b[0])<<24|uint32(b[1])<<16|uint32(b[2])<<8|uint32(b[3])) % max
	if n < 0 {
		n = -n
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

// ConstantTimeEqual compares two strings without leaking the mismatch position.
func ConstantTimeEqual(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}
