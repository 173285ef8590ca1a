package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// MasterKeyEnv is consulted by LoadSealer when no key file is configured.
const MasterKeyEnv = "HOA_MASTER_KEY"

// ErrCiphertextTooShort reports sealed input shorter than its nonce.
var ErrCiphertextTooShort = errors.New("cryptox: ciphertext too short")

// Sealer encrypts signing key material at rest with AES-256-GCM. The
// sealed format is [12-byte nonce][ciphertext][16-byte tag].
type Sealer struct {
	aead      cipher.AEAD
	ephemeral bool
}

// NewSealer derives a 256-bit key from arbitrary key material.
func NewSealer(material []byte) (*Sealer, error) {
	if len(material) == 0 {
		return nil, errors.New("cryptox: empty master key material")
	}

	key := sha256.Sum256(material)
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptox: create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("cryptox: create GCM: %w", err)
	}
	return &Sealer{aead: aead}, nil
}

// LoadSealer reads the master key from path, then from MasterKeyEnv. When
// neither is set a random key is generated; keys sealed with it do not
// survive a restart, which Ephemeral reports.
func LoadSealer(path string) (*Sealer, error) {
	var material []byte

	switch {
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("cryptox: read master key file: %w", err)
		}
		material = []byte(strings.TrimSpace(string(data)))
	case os.Getenv(MasterKeyEnv) != "":
		material = []byte(os.Getenv(MasterKeyEnv))
	default:
		material = make([]byte, 32)
		if _, err := rand.Read(material); err != nil {
			return nil, fmt.Errorf("cryptox: generate ephemeral master key: %w", err)
		}
		s, err := NewSealer(material)
		if err != nil {
			return nil, err
		}
		s.ephemeral = true
		return s, nil
	}

	return NewSealer(material)
}

// Ephemeral reports whether the master key was generated at startup.
func (s *Sealer) Ephemeral() bool { return s.ephemeral }

// Seal encrypts plaintext under a fresh random nonce.
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("cryptox: generate nonce: %w", err)
	}
	return s.aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open authenticates and decrypts data produced by Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	n := s.aead.NonceSize()
	if len(sealed) < n {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err := s.aead.Open(nil, sealed[:n], sealed[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("cryptox: decryption failed: %w", err)
	}
	return plaintext, nil
}
