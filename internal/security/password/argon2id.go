// Package password hashes and verifies credentials with argon2id, serialized
// as PHC strings so parameters can be tuned without invalidating stored hashes.
package password

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Params tunes the argon2id KDF.
type Params struct {
	Memory      uint32 // KiB
	Time        uint32
	Parallelism uint8
	KeyLen      uint32
}

// Default is suitable for interactive logins.
var Default = Params{Memory: 64 * 1024, Time: 3, Parallelism: 1, KeyLen: 32}

const saltLen = 16

// Hash returns a PHC string: $argon2id$v=19$m=...,t=...,p=...$<saltB64>$<dkB64>
func Hash(p Params, plain string) (string, error) {
	if plain == "" {
		return "", fmt.Errorf("password: empty password")
	}
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("password: salt: %w", err)
	}
	dk := argon2.IDKey([]byte(plain), salt, p.Time, p.Memory, p.Parallelism, p.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, p.Memory, p.Time, p.Parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(dk),
	), nil
}

// Verify checks plain against a PHC string produced by Hash. Any malformed
// input verifies false; it never errors.
func Verify(plain, phc string) bool {
	params, salt, want, ok := decode(phc)
	if !ok {
		return false
	}
	got := argon2.IDKey([]byte(plain), salt, params.Time, params.Memory, params.Parallelism, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// decode splits a PHC string into its parameters, salt, and derived key.
// Layout: "" / "argon2id" / "v=19" / "m=..,t=..,p=.." / salt / key.
func decode(phc string) (Params, []byte, []byte, bool) {
	parts := strings.Split(phc, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" {
		return Params{}, nil, nil, false
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return Params{}, nil, nil, false
	}

	var p Params
	var parallelism uint32
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &parallelism); err != nil {
		return Params{}, nil, nil, false
	}
	p.Parallelism = uint8(parallelism)

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Params{}, nil, nil, false
	}
	dk, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(dk) == 0 {
		return Params{}, nil, nil, false
	}
	return p, salt, dk, true
}
