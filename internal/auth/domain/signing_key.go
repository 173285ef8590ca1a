package domain

import "time"

// KeyFamily groups signing algorithms that share one active key.
type KeyFamily string

const (
	FamilyAsymmetric KeyFamily = "asymmetric"
	FamilySymmetric  KeyFamily = "symmetric"
)

// Valid reports whether f is a known family.
func (f KeyFamily) Valid() bool {
	return f == FamilyAsymmetric || f == FamilySymmetric
}

// SigningKey is a token signing key stored encrypted at rest. Superseded keys
// are deactivated on rotation but stay valid for verification until ExpiresAt.
type SigningKey struct {
	ID                  string     // ULID
	Kid                 string     // key identifier carried in token headers
	Family              KeyFamily  // asymmetric or symmetric
	Algorithm           string     // EdDSA, ES256, RS256 or HS256
	PublicKey           []byte     // PKIX PEM, empty for symmetric keys
	PrivateKeyEncrypted []byte     // AES-256-GCM sealed private PEM or HMAC secret
	Active              bool       // current key for new issuance in its family
	CreatedAt           time.Time  // when the key was created
	RotatedAt           *time.Time // when the key was superseded (nil while active)
	ExpiresAt           time.Time  // verification stops after this
}

// IsExpired returns true if the key has passed its expiration time.
func (k *SigningKey) IsExpired(now time.Time) bool {
	return !now.Before(k.ExpiresAt)
}

// CanVerify reports whether tokens signed by this key may still be accepted.
func (k *SigningKey) CanVerify(now time.Time) bool {
	return !k.IsExpired(now)
}
