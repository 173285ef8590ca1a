package cryptox

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSecretHasher_Hash(t *testing.T) {
	h := NewSecretHasher("pepper")

	tests := []struct {
		name   string
		secret string
	}{
		{"simple secret", "password123"},
		{"complex secret", "P@ssw0rd!#$%^&*()"},
		{"long secret", strings.Repeat("a", 100)},
		{"empty secret", ""},
		{"unicode secret", "пароль🔒密码"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hash, err := h.Hash(tt.secret)
			require.NoError(t, err)

			parts := strings.Split(hash, "$")
			require.Len(t, parts, 6, "PHC hash should have 6 parts")
			require.Equal(t, "argon2id", parts[1])
			require.Equal(t, "v=19", parts[2])
			require.Equal(t, "m=19456,t=2,p=1", parts[3])

			require.NoError(t, h.Verify(tt.secret, hash))
		})
	}
}

func TestSecretHasher_UniqueSalts(t *testing.T) {
	h := NewSecretHasher("")

	hash1, err := h.Hash("same")
	require.NoError(t, err)
	hash2, err := h.Hash("same")
	require.NoError(t, err)

	require.NotEqual(t, hash1, hash2)
	require.NoError(t, h.Verify("same", hash1))
	require.NoError(t, h.Verify("same", hash2))
}

func TestSecretHasher_WrongSecret(t *testing.T) {
	h := NewSecretHasher("pepper")
	hash, err := h.Hash("correct-secret")
	require.NoError(t, err)

	for _, wrong := range []string{"wrong-secret", "Correct-Secret", "correct-secret ", "", strings.Repeat("x", 10000)} {
		require.ErrorIs(t, h.Verify(wrong, hash), ErrSecretMismatch)
	}
}

func TestSecretHasher_PepperMatters(t *testing.T) {
	hash, err := NewSecretHasher("pepper-a").Hash("secret")
	require.NoError(t, err)

	require.ErrorIs(t, NewSecretHasher("pepper-b").Verify("secret", hash), ErrSecretMismatch)
	require.ErrorIs(t, NewSecretHasher("").Verify("secret", hash), ErrSecretMismatch)
}

func TestSecretHasher_InvalidHashFormat(t *testing.T) {
	h := NewSecretHasher("")

	tests := []struct {
		name string
		hash string
	}{
		{"empty hash", ""},
		{"wrong algorithm", "$bcrypt$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
		{"missing parts", "$argon2id$v=19$m=19456"},
		{"malformed parameters", "$argon2id$v=19$invalid$c2FsdA$aGFzaA"},
		{"invalid base64 salt", "$argon2id$v=19$m=19456,t=2,p=1$!!!invalid!!!$aGFzaA"},
		{"invalid base64 hash", "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$!!!invalid!!!"},
		{"wrong version", "$argon2id$v=18$m=19456,t=2,p=1$c2FsdA$aGFzaA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.ErrorIs(t, h.Verify("secret", tt.hash), ErrInvalidHash)
		})
	}
}

func TestLoadOrCreatePepper(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "pepper")

	first, err := LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.NotEmpty(t, first)

	// A second start reads the persisted value back
	second, err := LoadOrCreatePepper(path)
	require.NoError(t, err)
	require.Equal(t, first, second)

	none, err := LoadOrCreatePepper("")
	require.NoError(t, err)
	require.Empty(t, none)
}
