package cryptox

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for newly hashed secrets. Verification reads the
// parameters back out of the PHC string.
const (
	memory      = 19 * 1024 // KiB
	iterations  = 2
	parallelism = 1
	keyLength   = 32
	saltLength  = 16
)

var (
	// ErrSecretMismatch reports a well formed hash that does not match.
	ErrSecretMismatch = errors.New("cryptox: secret does not match")

	// ErrInvalidHash reports a hash that is not an argon2id PHC string.
	ErrInvalidHash = errors.New("cryptox: invalid hash format")
)

// SecretHasher hashes shared secrets with argon2id and an optional pepper
// that never leaves the process.
type SecretHasher struct {
	pepper string
}

// NewSecretHasher returns a hasher using pepper, which may be empty.
func NewSecretHasher(pepper string) *SecretHasher {
	return &SecretHasher{pepper: pepper}
}

// Hash returns a PHC-format argon2id string including salt and parameters.
func (h *SecretHasher) Hash(secret string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}

	sum := argon2.IDKey([]byte(secret+h.pepper), salt, iterations, memory, parallelism, keyLength)
	return fmt.Sprintf(
		"$argon2id$v=19$m=%d,t=%d,p=%d$%s$%s",
		memory,
		iterations,
		parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// Verify compares secret against a PHC-format argon2id hash in constant time.
func (h *SecretHasher) Verify(secret, encoded string) error {
	// ["", "argon2id", "v=19", "m=X,t=Y,p=Z", salt, hash]
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != "argon2id" || parts[2] != "v=19" {
		return ErrInvalidHash
	}

	var (
		mem, iters uint32
		par        uint8
	)
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &mem, &iters, &par); err != nil {
		return fmt.Errorf("%w: parameters: %v", ErrInvalidHash, err)
	}

	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("%w: salt: %v", ErrInvalidHash, err)
	}
	expected, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(expected) == 0 {
		return fmt.Errorf("%w: hash", ErrInvalidHash)
	}

	computed := argon2.IDKey(
		[]byte(secret+h.pepper),
		salt,
		iters,
		mem,
		par,
		uint32(len(expected)), // #nosec G115 -- bounded by the decoded hash
	)

	if subtle.ConstantTimeCompare(computed, expected) == 1 {
		return nil
	}
	return ErrSecretMismatch
}
