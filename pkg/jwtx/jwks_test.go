package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJWKRoundTrip_RSA(t *testing.T) {
	privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	jwk, err := NewJWK("test-key-id", AlgorithmRS256, &privateKey.PublicKey)
	require.NoError(t, err)
	require.Equal(t, "RSA", jwk.Kty)
	require.Equal(t, "sig", jwk.Use)

	parsed, err := ParseJWK(jwk)
	require.NoError(t, err)

	rsaPub, ok := parsed.(*rsa.PublicKey)
	require.True(t, ok)
	require.Equal(t, privateKey.PublicKey.N, rsaPub.N)
	require.Equal(t, privateKey.PublicKey.E, rsaPub.E)
}

func TestJWKRoundTrip_Ed25519(t *testing.T) {
	publicKey, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)

	jwk, err := NewJWK("test-key-id", AlgorithmEdDSA, publicKey)
	require.NoError(t, err)
	require.Equal(t, "OKP", jwk.Kty)
	require.Equal(t, "Ed25519", jwk.Crv)

	parsed, err := ParseJWK(jwk)
	require.NoError(t, err)
	require.Equal(t, publicKey, parsed)
}

func TestJWKRoundTrip_ES256(t *testing.T) {
	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	jwk, err := NewJWK("test-key-id", AlgorithmES256, &privateKey.PublicKey)
	require.NoError(t, err)
	require.Equal(t, "EC", jwk.Kty)
	require.Equal(t, "P-256", jwk.Crv)

	// Coordinates are always the full field width, 43 chars in base64url
	require.Len(t, jwk.X, 43)
	require.Len(t, jwk.Y, 43)

	parsed, err := ParseJWK(jwk)
	require.NoError(t, err)
	require.True(t, privateKey.PublicKey.Equal(parsed))
}

func TestNewJWK_RejectsSecrets(t *testing.T) {
	_, err := NewJWK("hmac", AlgorithmHS256, []byte("secret"))
	require.Error(t, err)
}

func TestParseJWK_Invalid(t *testing.T) {
	_, err := ParseJWK(JWK{Kty: "UNSUPPORTED", Kid: "test-key"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "unsupported kty")

	_, err = ParseJWK(JWK{Kty: "RSA", Kid: "test-key", N: "!!!invalid-base64!!!", E: "AQAB"})
	require.Error(t, err)

	_, err = ParseJWK(JWK{Kty: "OKP", Crv: "X25519", X: "AAAA"})
	require.Error(t, err)
}
