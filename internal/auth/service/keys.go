package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/pkg/cryptox"
	"github.com/aussiebroadwan/hoa/pkg/idx"
	"github.com/aussiebroadwan/hoa/pkg/jwtx"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
)

const (
	DefaultRotateAfter = 30 * 24 * time.Hour
	DefaultVerifyGrace = 30 * 24 * time.Hour
)

// KeyManager owns token signing keys: generation, rotation, lookup by kid
// and publication of the public halves. It is the only place private key
// material is decrypted.
//
// The active key of each family is a versioned pointer in the store. Only
// issuance reads the pointer; validation always resolves keys by kid.
type KeyManager struct {
	Store  store.Store
	Sealer *cryptox.Sealer

	// Algorithm is used for the asymmetric family: EdDSA, ES256 or RS256.
	Algorithm string
	RSABits   int

	// RotateAfter is how long a key signs before ActiveKey replaces it.
	// VerifyGrace is how long it keeps verifying after that.
	RotateAfter time.Duration
	VerifyGrace time.Duration

	Recorder Recorder
	Now      func() time.Time

	once    sync.Once
	keys    *jwtx.KeySet
	mu      sync.Mutex
	signers map[string]cachedSigner
}

type cachedSigner struct {
	signer    jwtx.Signer
	expiresAt time.Time
}

func (m *KeyManager) init() {
	m.once.Do(func() {
		m.keys = jwtx.NewKeySet()
		m.signers = make(map[string]cachedSigner)
	})
}

func (m *KeyManager) rotateAfter() time.Duration {
	if m.RotateAfter > 0 {
		return m.RotateAfter
	}
	return DefaultRotateAfter
}

func (m *KeyManager) verifyGrace() time.Duration {
	if m.VerifyGrace > 0 {
		return m.VerifyGrace
	}
	return DefaultVerifyGrace
}

// algorithm returns the signing algorithm used for new keys of family.
func (m *KeyManager) algorithm(family domain.KeyFamily) string {
	if family == domain.FamilySymmetric {
		return jwtx.AlgorithmHS256
	}
	if m.Algorithm == "" {
		return jwtx.AlgorithmEdDSA
	}
	return m.Algorithm
}

// ActiveKey returns the key new tokens of family are signed with. The first
// key is generated on demand, and a key past its rotate-after point is
// replaced before it is returned.
func (m *KeyManager) ActiveKey(ctx context.Context, family domain.KeyFamily) (domain.SigningKey, error) {
	if !family.Valid() {
		return domain.SigningKey{}, fmt.Errorf("%w: unknown key family %q", ErrInvalidRequest, family)
	}

	key, version, err := m.Store.SigningKeys().GetActiveSigningKey(ctx, family)
	switch {
	case errors.Is(err, store.ErrNotFound):
		key, err = m.rotate(ctx, family, ptr(int64(0)))
	case err != nil:
		return domain.SigningKey{}, fmt.Errorf("load active key: %w", err)
	case !nowFunc(m.Now)().Before(key.CreatedAt.Add(m.rotateAfter())):
		key, err = m.rotate(ctx, family, &version)
	default:
		return key, nil
	}

	if errors.Is(err, store.ErrConflict) {
		// Someone else generated or rotated first; use theirs.
		key, _, err = m.Store.SigningKeys().GetActiveSigningKey(ctx, family)
	}
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("activate key: %w", err)
	}
	return key, nil
}

// Rotate generates a new key for family and makes it active. The previous
// key is deactivated but keeps verifying until its own expiry.
func (m *KeyManager) Rotate(ctx context.Context, family domain.KeyFamily) (domain.SigningKey, error) {
	if !family.Valid() {
		return domain.SigningKey{}, fmt.Errorf("%w: unknown key family %q", ErrInvalidRequest, family)
	}
	return m.rotate(ctx, family, nil)
}

// rotate inserts a key and swings the pointer to it in one transaction. When
// expected is set the pointer must still be at that version.
func (m *KeyManager) rotate(ctx context.Context, family domain.KeyFamily, expected *int64) (domain.SigningKey, error) {
	m.init()

	alg := m.algorithm(family)
	private, public, err := m.generate(alg)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("generate %s key: %w", alg, err)
	}

	sealed, err := m.Sealer.Seal(private)
	if err != nil {
		return domain.SigningKey{}, fmt.Errorf("seal key: %w", err)
	}

	kid, err := newKeyID()
	if err != nil {
		return domain.SigningKey{}, err
	}

	now := nowFunc(m.Now)()
	key := domain.SigningKey{
		ID:                  idx.New().String(),
		Kid:                 kid,
		Family:              family,
		Algorithm:           alg,
		PublicKey:           public,
		PrivateKeyEncrypted: sealed,
		Active:              true,
		CreatedAt:           now,
		ExpiresAt:           now.Add(m.rotateAfter() + m.verifyGrace()),
	}

	var prior string
	err = m.Store.WithTx(ctx, func(tx store.Tx) error {
		var version int64
		current, v, err := tx.SigningKeys().GetActiveSigningKey(ctx, family)
		switch {
		case errors.Is(err, store.ErrNotFound):
		case err != nil:
			return err
		default:
			version = v
			prior = current.Kid
		}
		if expected != nil && *expected != version {
			return store.ErrConflict
		}

		if err := tx.SigningKeys().CreateSigningKey(ctx, key); err != nil {
			return fmt.Errorf("create signing key: %w", err)
		}
		if err := tx.SigningKeys().ActivateSigningKey(ctx, family, kid, version); err != nil {
			return err
		}
		if prior != "" {
			if err := tx.SigningKeys().DeactivateSigningKey(ctx, prior, now); err != nil {
				return fmt.Errorf("deactivate %s: %w", prior, err)
			}
		}
		return nil
	})
	if err != nil {
		return domain.SigningKey{}, err
	}

	if signer, err := jwtx.NewSigner(alg, kid, private); err == nil {
		m.mu.Lock()
		m.signers[kid] = cachedSigner{signer: signer, expiresAt: key.ExpiresAt}
		m.mu.Unlock()
	}
	if vk, err := m.verificationKey(key); err == nil {
		m.keys.Put(vk)
	}
	recorderOrNop(m.Recorder).KeyRotated(family)

	slogx.FromContext(ctx).Info("signing key activated",
		slog.String("family", string(family)),
		slog.String("kid", kid),
		slog.String("alg", alg),
		slog.String("previous_kid", prior),
		slog.Time("expires_at", key.ExpiresAt),
	)
	return key, nil
}

func (m *KeyManager) generate(alg string) (private, public []byte, err error) {
	switch alg {
	case jwtx.AlgorithmHS256:
		secret, err := cryptox.RandomBytes(jwtx.MinHMACSecretSize)
		return secret, nil, err
	case jwtx.AlgorithmEdDSA:
		private, err = cryptox.GenerateEd25519Key()
	case jwtx.AlgorithmES256:
		private, err = cryptox.GenerateES256Key()
	case jwtx.AlgorithmRS256:
		bits := m.RSABits
		if bits == 0 {
			bits = 3072
		}
		private, err = cryptox.GenerateRSAKey(bits)
	default:
		return nil, nil, fmt.Errorf("%w: %q", jwtx.ErrUnsupportedAlgorithm, alg)
	}
	if err != nil {
		return nil, nil, err
	}

	public, err = cryptox.PublicKeyPEM(private)
	if err != nil {
		return nil, nil, err
	}
	return private, public, nil
}

// Signer returns a signer for the active key of family.
func (m *KeyManager) Signer(ctx context.Context, family domain.KeyFamily) (jwtx.Signer, domain.SigningKey, error) {
	m.init()

	key, err := m.ActiveKey(ctx, family)
	if err != nil {
		return nil, domain.SigningKey{}, err
	}

	m.mu.Lock()
	cached, ok := m.signers[key.Kid]
	m.mu.Unlock()
	if ok {
		return cached.signer, key, nil
	}

	private, err := m.Sealer.Open(key.PrivateKeyEncrypted)
	if err != nil {
		return nil, domain.SigningKey{}, fmt.Errorf("open signing key %s: %w", key.Kid, err)
	}
	signer, err := jwtx.NewSigner(key.Algorithm, key.Kid, private)
	if err != nil {
		return nil, domain.SigningKey{}, fmt.Errorf("load signing key %s: %w", key.Kid, err)
	}

	m.mu.Lock()
	m.signers[key.Kid] = cachedSigner{signer: signer, expiresAt: key.ExpiresAt}
	m.mu.Unlock()
	return signer, key, nil
}

// KeyByID returns verification material for kid. Expired keys are reported
// as not found.
func (m *KeyManager) KeyByID(ctx context.Context, kid string) (jwtx.VerificationKey, error) {
	m.init()
	now := nowFunc(m.Now)()

	if vk, err := m.keys.Get(kid); err == nil {
		if !now.Before(vk.ExpiresAt) {
			return jwtx.VerificationKey{}, ErrKeyNotFound
		}
		return vk, nil
	}

	key, err := m.Store.SigningKeys().GetSigningKeyByKid(ctx, kid)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return jwtx.VerificationKey{}, ErrKeyNotFound
		}
		return jwtx.VerificationKey{}, fmt.Errorf("load key %s: %w", kid, err)
	}
	if !key.CanVerify(now) {
		return jwtx.VerificationKey{}, ErrKeyNotFound
	}

	vk, err := m.verificationKey(key)
	if err != nil {
		return jwtx.VerificationKey{}, err
	}
	m.keys.Put(vk)
	return vk, nil
}

func (m *KeyManager) verificationKey(key domain.SigningKey) (jwtx.VerificationKey, error) {
	material := key.PublicKey
	if key.Family == domain.FamilySymmetric {
		secret, err := m.Sealer.Open(key.PrivateKeyEncrypted)
		if err != nil {
			return jwtx.VerificationKey{}, fmt.Errorf("open key %s: %w", key.Kid, err)
		}
		material = secret
	}

	vk, err := jwtx.NewVerificationKey(key.Kid, key.Algorithm, material, key.ExpiresAt)
	if err != nil {
		return jwtx.VerificationKey{}, fmt.Errorf("load key %s: %w", key.Kid, err)
	}
	return vk, nil
}

// PublicKeySet returns the discovery document of every non-expired
// asymmetric key. Symmetric keys are never published.
func (m *KeyManager) PublicKeySet(ctx context.Context) (jwtx.JWKS, error) {
	m.init()
	now := nowFunc(m.Now)()

	keys, err := m.Store.SigningKeys().ListValidSigningKeys(ctx, now)
	if err != nil {
		return jwtx.JWKS{}, fmt.Errorf("list keys: %w", err)
	}

	set := jwtx.NewKeySet()
	for _, key := range keys {
		if key.Family != domain.FamilyAsymmetric {
			continue
		}
		vk, err := m.verificationKey(key)
		if err != nil {
			return jwtx.JWKS{}, err
		}
		set.Put(vk)
		m.keys.Put(vk)
	}
	return set.JWKS(now)
}

// List returns every stored key, newest first.
func (m *KeyManager) List(ctx context.Context) ([]domain.SigningKey, error) {
	return m.Store.SigningKeys().ListAllSigningKeys(ctx)
}

// PruneCache drops expired keys from the in-memory caches.
func (m *KeyManager) PruneCache(now time.Time) int {
	m.init()

	n := m.keys.Prune(now)

	m.mu.Lock()
	defer m.mu.Unlock()
	for kid, cached := range m.signers {
		if !now.Before(cached.expiresAt) {
			delete(m.signers, kid)
		}
	}
	return n
}

// newKeyID returns a random, URL-safe key identifier.
func newKeyID() (string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize128)
	if err != nil {
		return "", fmt.Errorf("generate key id: %w", err)
	}
	return "hoa-" + token, nil
}

func ptr[T any](v T) *T { return &v }
