package webauthnx

import (
	"crypto/x509"
	"fmt"
	"slices"

	"github.com/go-webauthn/webauthn/protocol/webauthncbor"
	"github.com/go-webauthn/webauthn/protocol/webauthncose"
)

const (
	FormatNone   = "none"
	FormatPacked = "packed"
)

// SupportedAlgorithms are the COSE algorithms accepted for credential keys,
// in order of preference.
var SupportedAlgorithms = []webauthncose.COSEAlgorithmIdentifier{
	webauthncose.AlgES256,
	webauthncose.AlgEdDSA,
	webauthncose.AlgRS256,
}

type attestationObject struct {
	Format   string               `cbor:"fmt"`
	AttStmt  attestationStatement `cbor:"attStmt"`
	AuthData []byte               `cbor:"authData"`
}

type attestationStatement struct {
	Alg int64    `cbor:"alg,omitempty"`
	Sig []byte   `cbor:"sig,omitempty"`
	X5C [][]byte `cbor:"x5c,omitempty"`
}

func decodeAttestationObject(raw []byte) (attestationObject, error) {
	if len(raw) == 0 {
		return attestationObject{}, fmt.Errorf("%w: empty attestation object", ErrMalformedProof)
	}

	var att attestationObject
	if err := webauthncbor.Unmarshal(raw, &att); err != nil {
		return attestationObject{}, fmt.Errorf("%w: attestation object: %v", ErrMalformedProof, err)
	}
	if att.Format == "" || len(att.AuthData) == 0 {
		return attestationObject{}, fmt.Errorf("%w: incomplete attestation object", ErrMalformedProof)
	}
	return att, nil
}

// verifyAttestation applies the attestation policy. Only "none" and "packed"
// are understood; packed statements are checked either against the
// credential key (self attestation) or the leaf of x5c.
func (v Verifier) verifyAttestation(att attestationObject, credKey any, credAlg int64, clientDataHash []byte) error {
	switch att.Format {
	case FormatNone:
		if !v.AllowNoneAttestation {
			return fmt.Errorf("%w: format none", ErrAttestationRejected)
		}
		return nil

	case FormatPacked:
		stmt := att.AttStmt
		if len(stmt.Sig) == 0 {
			return fmt.Errorf("%w: packed statement without sig", ErrMalformedProof)
		}
		signed := append(slices.Clone(att.AuthData), clientDataHash...)

		if len(stmt.X5C) == 0 {
			if stmt.Alg != credAlg {
				return fmt.Errorf("%w: self attestation alg %d, credential alg %d", ErrAttestationRejected, stmt.Alg, credAlg)
			}
			ok, err := webauthncose.VerifySignature(credKey, signed, stmt.Sig)
			if err != nil || !ok {
				return ErrSignatureInvalid
			}
			return nil
		}

		leaf, err := x509.ParseCertificate(stmt.X5C[0])
		if err != nil {
			return fmt.Errorf("%w: attestation certificate: %v", ErrMalformedProof, err)
		}
		sigAlg := webauthncose.SigAlgFromCOSEAlg(webauthncose.COSEAlgorithmIdentifier(stmt.Alg))
		if sigAlg == x509.UnknownSignatureAlgorithm {
			return fmt.Errorf("%w: attestation alg %d", ErrAttestationRejected, stmt.Alg)
		}
		if err := leaf.CheckSignature(sigAlg, signed, stmt.Sig); err != nil {
			return ErrSignatureInvalid
		}
		return nil

	default:
		return fmt.Errorf("%w: format %q", ErrAttestationRejected, att.Format)
	}
}
