package webauthnx

import (
	"github.com/go-webauthn/webauthn/protocol"
)

// RegistrationProof is what the client returns from navigator.credentials.create.
// Binary fields travel as base64url in JSON.
type RegistrationProof struct {
	ID                protocol.URLEncodedBase64 `json:"id"`
	ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJSON"`
	AttestationObject protocol.URLEncodedBase64 `json:"attestationObject"`
	Transports        []string                  `json:"transports,omitempty"`
}

// AssertionProof is what the client returns from navigator.credentials.get.
type AssertionProof struct {
	ID                protocol.URLEncodedBase64 `json:"id"`
	ClientDataJSON    protocol.URLEncodedBase64 `json:"clientDataJSON"`
	AuthenticatorData protocol.URLEncodedBase64 `json:"authenticatorData"`
	Signature         protocol.URLEncodedBase64 `json:"signature"`
	UserHandle        protocol.URLEncodedBase64 `json:"userHandle,omitempty"`
}

// Credential is a verified, not yet stored, public-key credential.
type Credential struct {
	ID                []byte
	PublicKey         []byte // COSE_Key
	Algorithm         int64  // COSE algorithm identifier
	SignCount         uint32
	AAGUID            []byte
	Transports        []string
	AttestationFormat string
	UserVerified      bool
}

// Assertion is the verified outcome of an authentication proof.
type Assertion struct {
	SignCount    uint32
	UserPresent  bool
	UserVerified bool
}
