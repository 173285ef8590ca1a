package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/hoa/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func TestKeySet(t *testing.T) {
	now := time.Now().UTC()
	keys := jwtx.NewKeySet()

	_, edPublic := keyMaterial(t, jwtx.AlgorithmEdDSA)
	_, ecPublic := keyMaterial(t, jwtx.AlgorithmES256)
	secret, _ := keyMaterial(t, jwtx.AlgorithmHS256)

	add := func(kid, alg string, material []byte, expires time.Time) {
		vk, err := jwtx.NewVerificationKey(kid, alg, material, expires)
		require.NoError(t, err)
		keys.Put(vk)
	}
	add("old", jwtx.AlgorithmEdDSA, edPublic, now.Add(-time.Minute))
	add("current", jwtx.AlgorithmES256, ecPublic, now.Add(2*time.Hour))
	add("previous", jwtx.AlgorithmEdDSA, edPublic, now.Add(time.Hour))
	add("hmac", jwtx.AlgorithmHS256, secret, now.Add(time.Hour))

	_, err := keys.Get("missing")
	require.ErrorIs(t, err, jwtx.ErrNoKey)

	hmac, err := keys.Get("hmac")
	require.NoError(t, err)
	require.True(t, hmac.Symmetric())

	t.Run("JWKS omits secrets and expired keys", func(t *testing.T) {
		set, err := keys.JWKS(now)
		require.NoError(t, err)
		require.Len(t, set.Keys, 2)
		require.Equal(t, "current", set.Keys[0].Kid)
		require.Equal(t, "ES256", set.Keys[0].Alg)
		require.Equal(t, "previous", set.Keys[1].Kid)
		require.Equal(t, "OKP", set.Keys[1].Kty)
	})

	t.Run("prune removes expired keys", func(t *testing.T) {
		require.Equal(t, 1, keys.Prune(now))
		require.Equal(t, 3, keys.Len())

		_, err := keys.Get("old")
		require.ErrorIs(t, err, jwtx.ErrNoKey)
	})
}

func TestNewVerificationKey_Mismatch(t *testing.T) {
	_, edPublic := keyMaterial(t, jwtx.AlgorithmEdDSA)

	_, err := jwtx.NewVerificationKey("k", jwtx.AlgorithmES256, edPublic, time.Now())
	require.Error(t, err)

	_, err = jwtx.NewVerificationKey("k", jwtx.AlgorithmHS256, []byte("short"), time.Now())
	require.Error(t, err)

	_, err = jwtx.NewVerificationKey("k", "none", edPublic, time.Now())
	require.ErrorIs(t, err, jwtx.ErrUnsupportedAlgorithm)
}
