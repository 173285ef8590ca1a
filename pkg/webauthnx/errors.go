package webauthnx

import "errors"

var (
	// ErrMalformedProof reports input that cannot be decoded.
	ErrMalformedProof = errors.New("webauthnx: malformed proof")

	// ErrChallengeMismatch reports client data for another challenge.
	ErrChallengeMismatch = errors.New("webauthnx: challenge mismatch")

	// ErrScopeMismatch reports a proof made for a different relying party,
	// either through its origin or its rpIdHash.
	ErrScopeMismatch = errors.New("webauthnx: scope mismatch")

	// ErrCeremonyMismatch reports client data of the wrong ceremony type.
	ErrCeremonyMismatch = errors.New("webauthnx: ceremony type mismatch")

	// ErrUserNotPresent and ErrUserNotVerified report missing authenticator
	// flags.
	ErrUserNotPresent  = errors.New("webauthnx: user not present")
	ErrUserNotVerified = errors.New("webauthnx: user not verified")

	// ErrAttestationRejected reports an attestation format the policy does
	// not accept.
	ErrAttestationRejected = errors.New("webauthnx: attestation rejected")

	// ErrUnsupportedKey reports a credential key outside ES256, EdDSA, RS256.
	ErrUnsupportedKey = errors.New("webauthnx: unsupported credential key")

	// ErrSignatureInvalid reports an attestation or assertion signature that
	// does not verify.
	ErrSignatureInvalid = errors.New("webauthnx: signature invalid")
)
