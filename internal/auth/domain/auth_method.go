package domain

import "time"

// MethodKind identifies the variant carried by an AuthMethod.
type MethodKind string

const (
	KindPublicKeyCredential MethodKind = "public_key_credential"
	KindSharedSecret        MethodKind = "shared_secret"
	KindExternalIdentity    MethodKind = "external_identity"
	KindBearerToken         MethodKind = "bearer_token"
)

// MethodDetails is the variant-specific part of an AuthMethod. The set of
// implementations is closed to this package.
type MethodDetails interface {
	Kind() MethodKind
	isMethodDetails()
}

// AuthMethod is one credential bound to an Identity.
type AuthMethod struct {
	ID               string // ULID
	IdentityID       string
	Enabled          bool
	RequiresApproval bool
	Approved         bool
	ApprovedBy       string // identity id of the approver, empty when unapproved
	ApprovedAt       *time.Time
	CreatedAt        time.Time
	LastUsedAt       *time.Time

	Details MethodDetails
}

// Kind returns the variant of the method, or "" if Details is unset.
func (m *AuthMethod) Kind() MethodKind {
	if m.Details == nil {
		return ""
	}
	return m.Details.Kind()
}

// Usable reports whether the method may be used to establish the identity.
// It ignores expiry, see UsableAt.
func (m *AuthMethod) Usable() bool {
	return m.Enabled && m.Approved
}

// UsableAt is Usable with bearer token expiry applied at now.
func (m *AuthMethod) UsableAt(now time.Time) bool {
	if t, ok := m.Details.(BearerToken); ok && t.IsExpired(now) {
		return false
	}
	return m.Usable()
}

// PublicKeyCredential is a WebAuthn credential registered through a ceremony.
type PublicKeyCredential struct {
	CredentialID []byte
	PublicKey    []byte // COSE_Key encoding
	SignCount    uint32
	Transports   []string
	Scope        string // relying-party id
	AAGUID       []byte
}

// SharedSecret is a password-like secret stored as an argon2id PHC string.
type SharedSecret struct {
	SecretHash string
}

// ExternalIdentity links a subject at an external identity provider.
type ExternalIdentity struct {
	Provider string
	Subject  string
	Email    string
}

// BearerToken is a long lived machine token stored as a SHA-256 fingerprint.
type BearerToken struct {
	TokenHash   string
	Description string
	ExpiresAt   *time.Time // nil never expires
}

func (PublicKeyCredential) Kind() MethodKind { return KindPublicKeyCredential }
func (SharedSecret) Kind() MethodKind        { return KindSharedSecret }
func (ExternalIdentity) Kind() MethodKind    { return KindExternalIdentity }
func (BearerToken) Kind() MethodKind         { return KindBearerToken }

func (PublicKeyCredential) isMethodDetails() {}
func (SharedSecret) isMethodDetails()        {}
func (ExternalIdentity) isMethodDetails()    {}
func (BearerToken) isMethodDetails()         {}

// IsExpired reports whether the token has passed its expiry.
func (t BearerToken) IsExpired(now time.Time) bool {
	return t.ExpiresAt != nil && !now.Before(*t.ExpiresAt)
}
