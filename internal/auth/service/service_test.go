package service

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/hoa/pkg/cryptox"
	"github.com/aussiebroadwan/hoa/pkg/idx"
	"github.com/aussiebroadwan/hoa/pkg/jwtx"
	"github.com/aussiebroadwan/hoa/pkg/webauthnx"
	"github.com/aussiebroadwan/hoa/pkg/webauthnx/webauthnxtest"
)

const (
	testScope  = "svc.example.com"
	testOrigin = "https://svc.example.com"
	testIssuer = "https://auth.example.com"
)

// testClock is a settable clock shared by every service in an env.
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// countingRecorder records outcomes and events for assertions.
type countingRecorder struct {
	mu       sync.Mutex
	outcomes map[string]int
	events   map[string]int
	rotated  map[domain.KeyFamily]int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{
		outcomes: map[string]int{},
		events:   map[string]int{},
		rotated:  map[domain.KeyFamily]int{},
	}
}

func (r *countingRecorder) CeremonyOutcome(c domain.Ceremony, outcome string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes[string(c)+"/"+outcome]++
}

func (r *countingRecorder) SecurityEvent(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events[event]++
}

func (r *countingRecorder) KeyRotated(f domain.KeyFamily) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rotated[f]++
}

func (r *countingRecorder) event(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events[name]
}

type testEnv struct {
	store     *sqlite.Store
	clock     *testClock
	recorder  *countingRecorder
	challenge *ChallengeCache
	methods   *AuthMethodService
	ceremony  *CeremonyService
	keys      *KeyManager
	tokens    *TokenService
}

type envOption func(*testEnv)

func withApproval() envOption {
	return func(e *testEnv) { e.methods.RequireApproval = true }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "hoa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	sealer, err := cryptox.NewSealer([]byte("test master key"))
	require.NoError(t, err)

	clock := &testClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	rec := newCountingRecorder()

	e := &testEnv{store: st, clock: clock, recorder: rec}
	e.challenge = &ChallengeCache{Store: st, TTL: DefaultChallengeTTL, Now: clock.Now}
	e.methods = &AuthMethodService{
		Store:    st,
		Hasher:   cryptox.NewSecretHasher("pepper"),
		Recorder: rec,
		Now:      clock.Now,
	}
	e.ceremony = &CeremonyService{
		Store:          st,
		Challenges:     e.challenge,
		Methods:        e.methods,
		RelyingParties: NewRelyingParties(domain.RelyingParty{ID: testScope, Name: "Service", Origins: []string{testOrigin}}),
		Recorder:       rec,
		Now:            clock.Now,
	}
	e.keys = &KeyManager{
		Store:       st,
		Sealer:      sealer,
		Algorithm:   jwtx.AlgorithmEdDSA,
		RotateAfter: 24 * time.Hour,
		VerifyGrace: 48 * time.Hour,
		Recorder:    rec,
		Now:         clock.Now,
	}
	e.tokens = &TokenService{
		Keys:       e.keys,
		Store:      st,
		Issuer:     testIssuer,
		AccessTTL:  time.Hour,
		RefreshTTL: 24 * time.Hour,
		Recorder:   rec,
		Now:        clock.Now,
	}

	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *testEnv) authenticator(t *testing.T, opts ...webauthnxtest.Option) *webauthnxtest.Authenticator {
	t.Helper()
	a, err := webauthnxtest.New(testScope, testOrigin, opts...)
	require.NoError(t, err)
	return a
}

// register runs a full registration ceremony for username with a.
func (e *testEnv) register(t *testing.T, username string, a *webauthnxtest.Authenticator) RegistrationResult {
	t.Helper()
	ctx := context.Background()

	opts, err := e.ceremony.BeginRegistration(ctx, BeginRegistrationRequest{Username: username, Scope: testScope})
	require.NoError(t, err)

	proof, err := a.Register(challengeBytes(t, opts.Challenge))
	require.NoError(t, err)

	res, err := e.ceremony.FinishRegistration(ctx, proof)
	require.NoError(t, err)

	a.UserHandle = idx.ID(res.Identity.ID).Bytes()
	return res
}

// assertion begins an authentication for username and answers it with a.
func (e *testEnv) assertion(t *testing.T, username string, a *webauthnxtest.Authenticator) webauthnx.AssertionProof {
	t.Helper()

	opts, err := e.ceremony.BeginAuthentication(context.Background(), BeginAuthenticationRequest{Username: username, Scope: testScope})
	require.NoError(t, err)

	proof, err := a.Assert(challengeBytes(t, opts.Challenge))
	require.NoError(t, err)
	return proof
}

func (e *testEnv) createIdentity(t *testing.T, username string, admin bool) domain.Identity {
	t.Helper()

	now := e.clock.Now()
	ident := domain.Identity{
		ID:          idx.New().String(),
		Username:    username,
		DisplayName: username,
		Enabled:     true,
		IsAdmin:     admin,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, e.store.Identities().CreateIdentity(context.Background(), ident))
	return ident
}

func challengeBytes(t *testing.T, value string) []byte {
	t.Helper()
	raw, err := ChallengeBytes(domain.Challenge{Value: value})
	require.NoError(t, err)
	return raw
}
