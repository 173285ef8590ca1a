package jwtx

import (
	"crypto/ecdsa"
	"crypto/ed25519"
	"crypto/rsa"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/hoa/pkg/cryptox"
)

var ErrNoKey = errors.New("jwtx: key not found")

// VerificationKey is the material needed to check a signature made by one
// signing key. Key holds a public key, or the shared secret for HS256.
type VerificationKey struct {
	Kid       string
	Alg       string
	Key       any
	ExpiresAt time.Time
}

// NewVerificationKey parses verification material for alg. Asymmetric
// algorithms take a PKIX PEM public key; HS256 takes the raw secret.
func NewVerificationKey(kid, alg string, material []byte, expiresAt time.Time) (VerificationKey, error) {
	vk := VerificationKey{Kid: kid, Alg: alg, ExpiresAt: expiresAt}

	if alg == AlgorithmHS256 {
		if len(material) < MinHMACSecretSize {
			return VerificationKey{}, errors.New("jwtx: HS256 secret too short")
		}
		vk.Key = slices.Clone(material)
		return vk, nil
	}

	pub, err := cryptox.ParsePublicKeyPEM(material)
	if err != nil {
		return VerificationKey{}, err
	}

	var ok bool
	switch alg {
	case AlgorithmEdDSA:
		_, ok = pub.(ed25519.PublicKey)
	case AlgorithmES256:
		_, ok = pub.(*ecdsa.PublicKey)
	case AlgorithmRS256:
		_, ok = pub.(*rsa.PublicKey)
	default:
		return VerificationKey{}, fmt.Errorf("%w: %q", ErrUnsupportedAlgorithm, alg)
	}
	if !ok {
		return VerificationKey{}, fmt.Errorf("jwtx: %T cannot verify %s", pub, alg)
	}

	vk.Key = pub
	return vk, nil
}

// Symmetric reports whether the key is a shared secret that must never be
// published.
func (k VerificationKey) Symmetric() bool { return k.Alg == AlgorithmHS256 }

// KeySet caches verification keys by kid. It's safe for concurrent use by
// the validator and the JWKS handler.
type KeySet struct {
	mu   sync.RWMutex
	keys map[string]VerificationKey
}

// NewKeySet returns an empty KeySet.
func NewKeySet() *KeySet {
	return &KeySet{keys: make(map[string]VerificationKey)}
}

// Put adds or replaces a key.
func (k *KeySet) Put(vk VerificationKey) {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.keys[vk.Kid] = vk
}

// Get returns the key for kid.
func (k *KeySet) Get(kid string) (VerificationKey, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if vk, ok := k.keys[kid]; ok {
		return vk, nil
	}
	return VerificationKey{}, ErrNoKey
}

// Prune drops keys whose verification window has closed and returns how
// many were removed.
func (k *KeySet) Prune(now time.Time) int {
	k.mu.Lock()
	defer k.mu.Unlock()

	n := 0
	for kid, vk := range k.keys {
		if !now.Before(vk.ExpiresAt) {
			delete(k.keys, kid)
			n++
		}
	}
	return n
}

// Len returns the number of cached keys.
func (k *KeySet) Len() int {
	k.mu.RLock()
	defer k.mu.RUnlock()
	return len(k.keys)
}

// JWKS returns the asymmetric keys still valid at now, latest expiry first.
// Symmetric keys are never included.
func (k *KeySet) JWKS(now time.Time) (JWKS, error) {
	k.mu.RLock()
	keys := make([]VerificationKey, 0, len(k.keys))
	for _, vk := range k.keys {
		if vk.Symmetric() || !now.Before(vk.ExpiresAt) {
			continue
		}
		keys = append(keys, vk)
	}
	k.mu.RUnlock()

	slices.SortFunc(keys, func(a, b VerificationKey) int {
		if c := b.ExpiresAt.Compare(a.ExpiresAt); c != 0 {
			return c
		}
		return strings.Compare(a.Kid, b.Kid)
	})

	set := JWKS{Keys: make([]JWK, 0, len(keys))}
	for _, vk := range keys {
		j, err := NewJWK(vk.Kid, vk.Alg, vk.Key)
		if err != nil {
			return JWKS{}, err
		}
		set.Keys = append(set.Keys, j)
	}
	return set, nil
}
