package webauthnx

import (
	"bytes"
	"crypto/sha256"
	"crypto/subtle"
	"fmt"
	"slices"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

// Verifier checks WebAuthn proofs for one relying party. It holds no state
// and performs no I/O: the same inputs always give the same result.
type Verifier struct {
	// RPID is the relying party id, the scope credentials are bound to.
	RPID string

	// Origins lists the exact origins allowed to run ceremonies for RPID.
	Origins []string

	// AllowNoneAttestation accepts registrations without an attestation
	// statement.
	AllowNoneAttestation bool

	// RequireUserVerification demands the UV flag on every proof.
	RequireUserVerification bool
}

// VerifyRegistration checks a creation proof against the expected challenge
// and returns the credential it introduces.
func (v Verifier) VerifyRegistration(challenge []byte, proof RegistrationProof) (Credential, error) {
	if _, err := v.checkClientData(proof.ClientDataJSON, protocol.CreateCeremony, challenge); err != nil {
		return Credential{}, err
	}

	att, err := decodeAttestationObject(proof.AttestationObject)
	if err != nil {
		return Credential{}, err
	}

	var authData protocol.AuthenticatorData
	if err := authData.Unmarshal(att.AuthData); err != nil {
		return Credential{}, fmt.Errorf("%w: authenticator data: %v", ErrMalformedProof, err)
	}

	if err := v.checkAuthenticatorData(authData); err != nil {
		return Credential{}, err
	}

	if !authData.Flags.HasAttestedCredentialData() {
		return Credential{}, fmt.Errorf("%w: no attested credential data", ErrMalformedProof)
	}

	cred := authData.AttData
	if len(proof.ID) > 0 && !bytes.Equal(proof.ID, cred.CredentialID) {
		return Credential{}, fmt.Errorf("%w: credential id does not match attested data", ErrMalformedProof)
	}

	key, alg, err := parseCredentialKey(cred.CredentialPublicKey)
	if err != nil {
		return Credential{}, err
	}

	clientDataHash := sha256.Sum256(proof.ClientDataJSON)
	if err := v.verifyAttestation(att, key, alg, clientDataHash[:]); err != nil {
		return Credential{}, err
	}

	return Credential{
		ID:                slices.Clone(cred.CredentialID),
		PublicKey:         slices.Clone(cred.CredentialPublicKey),
		Algorithm:         alg,
		SignCount:         authData.Counter,
		AAGUID:            slices.Clone(cred.AAGUID),
		Transports:        slices.Clone(proof.Transports),
		AttestationFormat: att.Format,
		UserVerified:      authData.Flags.UserVerified(),
	}, nil
}

// VerifyAssertion checks an authentication proof made with the stored COSE
// publicKey. Counter policy is left to the caller.
func (v Verifier) VerifyAssertion(challenge []byte, publicKey []byte, proof AssertionProof) (Assertion, error) {
	if _, err := v.checkClientData(proof.ClientDataJSON, protocol.AssertCeremony, challenge); err != nil {
		return Assertion{}, err
	}

	var authData protocol.AuthenticatorData
	if err := authData.Unmarshal(proof.AuthenticatorData); err != nil {
		return Assertion{}, fmt.Errorf("%w: authenticator data: %v", ErrMalformedProof, err)
	}

	if err := v.checkAuthenticatorData(authData); err != nil {
		return Assertion{}, err
	}

	key, _, err := parseCredentialKey(publicKey)
	if err != nil {
		return Assertion{}, err
	}

	if len(proof.Signature) == 0 {
		return Assertion{}, fmt.Errorf("%w: empty signature", ErrMalformedProof)
	}

	clientDataHash := sha256.Sum256(proof.ClientDataJSON)
	signed := append(slices.Clone([]byte(proof.AuthenticatorData)), clientDataHash[:]...)

	ok, err := webauthncose.VerifySignature(key, signed, proof.Signature)
	if err != nil || !ok {
		return Assertion{}, ErrSignatureInvalid
	}

	return Assertion{
		SignCount:    authData.Counter,
		UserPresent:  authData.Flags.UserPresent(),
		UserVerified: authData.Flags.UserVerified(),
	}, nil
}

// checkClientData verifies type, challenge and origin, in that order.
func (v Verifier) checkClientData(raw []byte, ceremony protocol.CeremonyType, challenge []byte) (ClientData, error) {
	cd, err := ParseClientData(raw)
	if err != nil {
		return ClientData{}, err
	}

	if cd.Type != ceremony {
		return ClientData{}, fmt.Errorf("%w: got %q, want %q", ErrCeremonyMismatch, cd.Type, ceremony)
	}

	if len(challenge) == 0 || subtle.ConstantTimeCompare(cd.Challenge, challenge) != 1 {
		return ClientData{}, ErrChallengeMismatch
	}

	if !slices.Contains(v.Origins, cd.Origin) {
		return ClientData{}, fmt.Errorf("%w: origin %q", ErrScopeMismatch, cd.Origin)
	}

	return cd, nil
}

func (v Verifier) checkAuthenticatorData(authData protocol.AuthenticatorData) error {
	rpIDHash := sha256.Sum256([]byte(v.RPID))
	if subtle.ConstantTimeCompare(authData.RPIDHash, rpIDHash[:]) != 1 {
		return fmt.Errorf("%w: rpIdHash", ErrScopeMismatch)
	}

	if !authData.Flags.UserPresent() {
		return ErrUserNotPresent
	}

	if v.RequireUserVerification && !authData.Flags.UserVerified() {
		return ErrUserNotVerified
	}

	return nil
}

// parseCredentialKey decodes a COSE key and returns it with its algorithm.
func parseCredentialKey(raw []byte) (any, int64, error) {
	key, err := webauthncose.ParsePublicKey(raw)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrUnsupportedKey, err)
	}

	var alg int64
	switch k := key.(type) {
	case webauthncose.EC2PublicKeyData:
		alg = k.Algorithm
	case webauthncose.OKPPublicKeyData:
		alg = k.Algorithm
	case webauthncose.RSAPublicKeyData:
		alg = k.Algorithm
	default:
		return nil, 0, ErrUnsupportedKey
	}

	if !slices.Contains(SupportedAlgorithms, webauthncose.COSEAlgorithmIdentifier(alg)) {
		return nil, 0, fmt.Errorf("%w: algorithm %d", ErrUnsupportedKey, alg)
	}
	return key, alg, nil
}
