package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"

	"github.com/aussiebroadwan/hoa/pkg/cryptox"
	"github.com/golang-jwt/jwt/v5"
)

// Supported JWT signing algorithms
const (
	AlgorithmEdDSA = "EdDSA"
	AlgorithmES256 = "ES256"
	AlgorithmRS256 = "RS256"
	AlgorithmHS256 = "HS256"
)

// MinHMACSecretSize is the shortest HS256 secret accepted, in bytes.
const MinHMACSecretSize = 32

// SupportedAlgorithms lists every algorithm Parse will consider. Anything
// else, "none" included, is rejected before a key is looked up.
var SupportedAlgorithms = []string{AlgorithmEdDSA, AlgorithmES256, AlgorithmRS256, AlgorithmHS256}

// ErrUnsupportedAlgorithm reports an algorithm outside SupportedAlgorithms.
var ErrUnsupportedAlgorithm = errors.New("jwtx: unsupported algorithm")

// Signer is our interface for anything that can sign JWTs.
type Signer interface {
	Alg() string
	KID() string
	Sign(Claims) (string, error)
}

type signer struct {
	kid    string
	method jwt.SigningMethod
	key    any
}

// NewSigner builds a signer for alg. Asymmetric algorithms take a PKCS8 PEM
// private key; HS256 takes the raw shared secret.
func NewSigner(alg, kid string, material []byte) (Signer, error) {
	if kid == "" {
		return nil, errors.New("jwtx: signer requires a kid")
	}

	if alg == AlgorithmHS256 {
		if len(material) < MinHMACSecretSize {
			return nil, fmt.Errorf("jwtx: HS256 secret must be at least %d bytes", MinHMACSecretSize)
		}
		return &signer{kid: kid, method: jwt.SigningMethodHS256, key: material}, nil
	}

	key, err := cryptox.ParsePrivateKeyPEM(material)
	if err != nil {
		return nil, fmt.Errorf("jwtx: %s signer: %w", alg, err)
	}

	switch alg {
	case AlgorithmEdDSA:
		if _, ok := key.(ed25519.PrivateKey); !ok {
			return nil, errors.New("jwtx: not an Ed25519 private key")
		}
		return &signer{kid: kid, method: jwt.SigningMethodEdDSA, key: key}, nil
	case AlgorithmES256:
		ec, ok := key.(*ecdsa.PrivateKey)
		if !ok || ec.Curve.Params().BitSize != 256 {
			return nil, errors.New("jwtx: not a P-256 private key")
		}
		return &signer{kid: kid, method: jwt.SigningMethodES256, key: key}, nil
	case AlgorithmRS256:
		if _, ok := key.(*rsa.PrivateKey); !ok {
			return nil, errors.New("jwtx: not an RSA private key")
		}
		return &signer{kid: kid, method: jwt.SigningMethodRS256, key: key}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
}

func (s *signer) Alg() string { return s.method.Alg() }
func (s *signer) KID() string { return s.kid }

// Sign turns claims into a compact JWT carrying the kid header.
func (s *signer) Sign(claims Claims) (string, error) {
	t := jwt.NewWithClaims(s.method, claims)
	t.Header["kid"] = s.kid
	return t.SignedString(s.key)
}
