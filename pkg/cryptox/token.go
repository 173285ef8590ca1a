package cryptox

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// Entropy sizes for GenerateToken, in bytes.
const (
	TokenSize128 = 16 // kid suffixes
	TokenSize256 = 32 // challenges and bearer tokens
)

// RandomBytes reads n bytes from the system CSPRNG.
func RandomBytes(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("cryptox: random size must be positive, got %d", n)
	}
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("cryptox: read random bytes: %w", err)
	}
	return buf, nil
}

// GenerateToken returns size random bytes as unpadded base64url.
func GenerateToken(size int) (string, error) {
	buf, err := RandomBytes(size)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// FingerprintToken is the lookup key stored in place of a bearer token:
// unpadded base64url SHA-256, always 43 characters.
func FingerprintToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
