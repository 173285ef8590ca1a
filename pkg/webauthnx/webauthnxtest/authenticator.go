// Package webauthnxtest provides a software authenticator that produces real,
// verifiable WebAuthn proofs for tests.
package webauthnxtest

import (
	"bytes"
	"crypto"
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"

	"github.com/aussiebroadwan/hoa/pkg/webauthnx"
)

const (
	flagUP = 0x01
	flagUV = 0x04
	flagAT = 0x40
)

// Authenticator simulates a single credential held by a roaming
// authenticator. Exported fields may be changed between calls to craft
// misbehaving proofs.
type Authenticator struct {
	RPID         string
	Origin       string
	CredentialID []byte
	AAGUID       []byte
	UserHandle   []byte

	// SignCount is the counter reported by the next proof. Assert increments
	// it first unless StaticCounter is set.
	SignCount     uint32
	StaticCounter bool

	UserPresent  bool
	UserVerified bool

	// Format is the attestation format used by Register: "none" or "packed".
	Format string

	alg    webauthncose.COSEAlgorithmIdentifier
	signer crypto.Signer
}

// Option configures an Authenticator.
type Option func(*Authenticator)

// WithEd25519 makes the credential an EdDSA key instead of ES256.
func WithEd25519() Option {
	return func(a *Authenticator) { a.alg = webauthncose.AlgEdDSA }
}

// WithFormat selects the attestation format.
func WithFormat(format string) Option {
	return func(a *Authenticator) { a.Format = format }
}

// WithUserVerified sets the UV flag.
func WithUserVerified(uv bool) Option {
	return func(a *Authenticator) { a.UserVerified = uv }
}

// WithUserPresent sets the UP flag.
func WithUserPresent(up bool) Option {
	return func(a *Authenticator) { a.UserPresent = up }
}

// WithStaticCounter makes the authenticator report a counter of zero forever,
// as many platform authenticators do.
func WithStaticCounter() Option {
	return func(a *Authenticator) { a.StaticCounter = true }
}

// New creates an authenticator with a fresh key and credential id.
func New(rpID, origin string, opts ...Option) (*Authenticator, error) {
	a := &Authenticator{
		RPID:         rpID,
		Origin:       origin,
		CredentialID: make([]byte, 32),
		AAGUID:       make([]byte, 16),
		UserPresent:  true,
		UserVerified: true,
		Format:       webauthnx.FormatPacked,
		alg:          webauthncose.AlgES256,
	}
	for _, opt := range opts {
		opt(a)
	}

	if _, err := rand.Read(a.CredentialID); err != nil {
		return nil, err
	}
	if _, err := rand.Read(a.AAGUID); err != nil {
		return nil, err
	}

	switch a.alg {
	case webauthncose.AlgEdDSA:
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		if err != nil {
			return nil, err
		}
		a.signer = priv
	default:
		priv, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
		if err != nil {
			return nil, err
		}
		a.signer = priv
	}
	return a, nil
}

// PublicKeyCOSE returns the credential public key as a COSE_Key.
func (a *Authenticator) PublicKeyCOSE() ([]byte, error) {
	switch pub := a.signer.Public().(type) {
	case ed25519.PublicKey:
		return webauthncbor.Marshal(map[int]any{
			1:  1, // OKP
			3:  int(webauthncose.AlgEdDSA),
			-1: 6, // Ed25519
			-2: []byte(pub),
		})
	case *ecdsa.PublicKey:
		return webauthncbor.Marshal(map[int]any{
			1:  2, // EC2
			3:  int(webauthncose.AlgES256),
			-1: 1, // P-256
			-2: pub.X.FillBytes(make([]byte, 32)),
			-3: pub.Y.FillBytes(make([]byte, 32)),
		})
	}
	return nil, webauthnx.ErrUnsupportedKey
}

// Register answers a creation challenge.
func (a *Authenticator) Register(challenge []byte) (webauthnx.RegistrationProof, error) {
	cose, err := a.PublicKeyCOSE()
	if err != nil {
		return webauthnx.RegistrationProof{}, err
	}

	authData := a.authenticatorData(true)
	authData = append(authData, a.AAGUID...)
	authData = binary.BigEndian.AppendUint16(authData, uint16(len(a.CredentialID)))
	authData = append(authData, a.CredentialID...)
	authData = append(authData, cose...)

	clientData, err := a.ClientDataJSON(protocol.CreateCeremony, challenge)
	if err != nil {
		return webauthnx.RegistrationProof{}, err
	}

	stmt := map[string]any{}
	if a.Format == webauthnx.FormatPacked {
		sig, err := a.sign(authData, clientData)
		if err != nil {
			return webauthnx.RegistrationProof{}, err
		}
		stmt["alg"] = int(a.alg)
		stmt["sig"] = sig
	}

	att, err := webauthncbor.Marshal(map[string]any{
		"fmt":      a.Format,
		"attStmt":  stmt,
		"authData": authData,
	})
	if err != nil {
		return webauthnx.RegistrationProof{}, err
	}

	return webauthnx.RegistrationProof{
		ID:                bytes.Clone(a.CredentialID),
		ClientDataJSON:    clientData,
		AttestationObject: att,
		Transports:        []string{"usb"},
	}, nil
}

// Assert answers an authentication challenge.
func (a *Authenticator) Assert(challenge []byte) (webauthnx.AssertionProof, error) {
	if !a.StaticCounter {
		a.SignCount++
	}

	authData := a.authenticatorData(false)
	clientData, err := a.ClientDataJSON(protocol.AssertCeremony, challenge)
	if err != nil {
		return webauthnx.AssertionProof{}, err
	}

	sig, err := a.sign(authData, clientData)
	if err != nil {
		return webauthnx.AssertionProof{}, err
	}

	return webauthnx.AssertionProof{
		ID:                bytes.Clone(a.CredentialID),
		ClientDataJSON:    clientData,
		AuthenticatorData: authData,
		Signature:         sig,
		UserHandle:        bytes.Clone(a.UserHandle),
	}, nil
}

// ClientDataJSON encodes client data the way a browser would.
func (a *Authenticator) ClientDataJSON(ceremony protocol.CeremonyType, challenge []byte) ([]byte, error) {
	return json.Marshal(protocol.CollectedClientData{
		Type:      ceremony,
		Challenge: base64.RawURLEncoding.EncodeToString(challenge),
		Origin:    a.Origin,
	})
}

func (a *Authenticator) authenticatorData(attested bool) []byte {
	rpIDHash := sha256.Sum256([]byte(a.RPID))

	var flags byte
	if a.UserPresent {
		flags |= flagUP
	}
	if a.UserVerified {
		flags |= flagUV
	}
	if attested {
		flags |= flagAT
	}

	out := make([]byte, 0, 37)
	out = append(out, rpIDHash[:]...)
	out = append(out, flags)
	return binary.BigEndian.AppendUint32(out, a.SignCount)
}

// sign signs authData ‖ sha256(clientData).
func (a *Authenticator) sign(authData, clientData []byte) ([]byte, error) {
	clientDataHash := sha256.Sum256(clientData)
	msg := append(bytes.Clone(authData), clientDataHash[:]...)

	if _, ok := a.signer.(ed25519.PrivateKey); ok {
		return a.signer.Sign(rand.Reader, msg, crypto.Hash(0))
	}
	digest := sha256.Sum256(msg)
	return a.signer.Sign(rand.Reader, digest[:], crypto.SHA256)
}
