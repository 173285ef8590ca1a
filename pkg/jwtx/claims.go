package jwtx

import (
	"crypto/rand"
	"encoding/base64"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Kind separates access from refresh tokens. A token of one kind is never
// accepted where the other is expected.
type Kind string

const (
	KindAccess  Kind = "access"
	KindRefresh Kind = "refresh"
)

// Claims are the claims carried by every token this service issues. The
// signing key id travels in the "kid" header, not in the claims.
type Claims struct {
	jwt.RegisteredClaims

	Kind Kind `json:"kind"`
}

// NewClaims builds claims for subject valid from now until expiresAt.
func NewClaims(subject string, kind Kind, issuer string, now, expiresAt time.Time) Claims {
	return Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        NewJTI(),
		},
		Kind: kind,
	}
}

// NewJTI returns a URL-safe random identifier for the "jti" claim.
func NewJTI() string {
	var b [20]byte
	_, _ = rand.Read(b[:])
	return base64.RawURLEncoding.EncodeToString(b[:])
}

// Expiry returns the exp claim, or the zero time when absent.
func (c *Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}
