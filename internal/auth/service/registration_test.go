package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/pkg/webauthnx"
	"github.com/aussiebroadwan/hoa/pkg/webauthnx/webauthnxtest"
)

func TestRegistrationScenario(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)
	a := e.authenticator(t)

	opts, err := e.ceremony.BeginRegistration(ctx, BeginRegistrationRequest{Username: "alice", Scope: testScope})
	require.NoError(t, err)
	require.True(t, opts.Provisional)
	require.Empty(t, opts.ExcludeCredentials)
	require.Equal(t, testScope, opts.PublicKey.RelyingParty.ID)

	// Nothing is persisted until the ceremony finishes.
	_, err = e.store.Identities().GetIdentityByUsername(ctx, "alice")
	require.Error(t, err)

	proof, err := a.Register(challengeBytes(t, opts.Challenge))
	require.NoError(t, err)

	res, err := e.ceremony.FinishRegistration(ctx, proof)
	require.NoError(t, err)
	require.True(t, res.Created)
	require.Equal(t, opts.IdentityID, res.Identity.ID)
	require.True(t, res.Method.Approved)

	methods, err := e.methods.ListForIdentity(ctx, res.Identity.ID)
	require.NoError(t, err)
	require.Len(t, methods, 1)
	require.Equal(t, domain.KindPublicKeyCredential, methods[0].Kind())

	auth, err := e.ceremony.BeginAuthentication(ctx, BeginAuthenticationRequest{Username: "alice", Scope: testScope})
	require.NoError(t, err)
	require.Len(t, auth.AllowCredentials, 1)
	require.Equal(t, a.CredentialID, []byte(auth.AllowCredentials[0]))

	require.Equal(t, 1, e.recorder.outcomes["registration/"+OutcomeSucceeded])
}

func TestRegistrationSecondCredentialExcludesFirst(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)
	first := e.authenticator(t)
	res := e.register(t, "alice", first)

	opts, err := e.ceremony.BeginRegistration(ctx, BeginRegistrationRequest{Username: "alice", Scope: testScope})
	require.NoError(t, err)
	require.False(t, opts.Provisional)
	require.Equal(t, res.Identity.ID, opts.IdentityID)
	require.Len(t, opts.ExcludeCredentials, 1)

	second := e.authenticator(t)
	proof, err := second.Register(challengeBytes(t, opts.Challenge))
	require.NoError(t, err)

	res2, err := e.ceremony.FinishRegistration(ctx, proof)
	require.NoError(t, err)
	require.False(t, res2.Created)
	require.Equal(t, res.Identity.ID, res2.Identity.ID)

	n, err := e.methods.CountUsable(ctx, res.Identity.ID)
	require.NoError(t, err)
	require.Equal(t, 2, n)
}

func TestRegistrationRequiresApproval(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t, withApproval())

	res := e.register(t, "bob", e.authenticator(t))
	require.False(t, res.Method.Approved)
	require.True(t, res.Method.RequiresApproval)

	pending, err := e.methods.ListPendingApprovals(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	require.Equal(t, res.Method.ID, pending[0].ID)
}

func TestRegistrationDuplicateCredentialAcrossIdentities(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)

	a := e.authenticator(t)
	e.register(t, "alice", a)

	// The same authenticator credential offered for another user.
	opts, err := e.ceremony.BeginRegistration(ctx, BeginRegistrationRequest{Username: "mallory", Scope: testScope})
	require.NoError(t, err)
	proof, err := a.Register(challengeBytes(t, opts.Challenge))
	require.NoError(t, err)

	_, err = e.ceremony.FinishRegistration(ctx, proof)
	require.ErrorIs(t, err, ErrDuplicateCredential)
	require.Equal(t, 1, e.recorder.event(EventDuplicateCred))

	// The provisional identity was rolled back with the method.
	_, err = e.store.Identities().GetIdentityByUsername(ctx, "mallory")
	require.Error(t, err)
}

func TestRegistrationFailures(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("unknown scope", func(t *testing.T) {
		e := newTestEnv(t)
		_, err := e.ceremony.BeginRegistration(ctx, BeginRegistrationRequest{Username: "alice", Scope: "other.example.com"})
		require.ErrorIs(t, err, ErrUnknownScope)
	})

	t.Run("missing username", func(t *testing.T) {
		e := newTestEnv(t)
		_, err := e.ceremony.BeginRegistration(ctx, BeginRegistrationRequest{Username: "  ", Scope: testScope})
		require.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("disabled identity", func(t *testing.T) {
		e := newTestEnv(t)
		ident := e.createIdentity(t, "carol", false)
		require.NoError(t, e.store.Identities().SetIdentityEnabled(ctx, ident.ID, false))

		_, err := e.ceremony.BeginRegistration(ctx, BeginRegistrationRequest{Username: "carol", Scope: testScope})
		require.ErrorIs(t, err, ErrIdentityDisabled)
	})

	t.Run("resolver must match existing identity", func(t *testing.T) {
		e := newTestEnv(t)
		e.createIdentity(t, "dave", false)
		e.ceremony.Resolver = IdentityResolverFunc(func(context.Context) (string, bool) { return "someone-else", true })

		_, err := e.ceremony.BeginRegistration(ctx, BeginRegistrationRequest{Username: "dave", Scope: testScope})
		require.ErrorIs(t, err, ErrNotAuthorized)
	})

	t.Run("challenge used twice", func(t *testing.T) {
		e := newTestEnv(t)
		a := e.authenticator(t)

		opts, err := e.ceremony.BeginRegistration(ctx, BeginRegistrationRequest{Username: "erin", Scope: testScope})
		require.NoError(t, err)
		proof, err := a.Register(challengeBytes(t, opts.Challenge))
		require.NoError(t, err)

		_, err = e.ceremony.FinishRegistration(ctx, proof)
		require.NoError(t, err)
		_, err = e.ceremony.FinishRegistration(ctx, proof)
		require.ErrorIs(t, err, ErrChallengeConsumed)
	})

	t.Run("bad signature", func(t *testing.T) {
		e := newTestEnv(t)
		a := e.authenticator(t)

		opts, err := e.ceremony.BeginRegistration(ctx, BeginRegistrationRequest{Username: "frank", Scope: testScope})
		require.NoError(t, err)
		proof, err := a.Register(challengeBytes(t, opts.Challenge))
		require.NoError(t, err)
		cd := proof.ClientDataJSON
		proof.ClientDataJSON = append(cd[:len(cd)-1:len(cd)-1], []byte(`,"crossOrigin":false}`)...)

		_, err = e.ceremony.FinishRegistration(ctx, proof)
		require.ErrorIs(t, err, ErrCredentialVerificationFailed)
		require.ErrorIs(t, err, webauthnx.ErrSignatureInvalid)
		require.Equal(t, 1, e.recorder.event(EventBadSignature))
		require.Equal(t, 1, e.recorder.outcomes["registration/"+OutcomeFailed])
	})

	t.Run("foreign origin", func(t *testing.T) {
		e := newTestEnv(t)
		a := e.authenticator(t)
		a.Origin = "https://evil.example.com"

		opts, err := e.ceremony.BeginRegistration(ctx, BeginRegistrationRequest{Username: "gina", Scope: testScope})
		require.NoError(t, err)
		proof, err := a.Register(challengeBytes(t, opts.Challenge))
		require.NoError(t, err)

		_, err = e.ceremony.FinishRegistration(ctx, proof)
		require.ErrorIs(t, err, webauthnx.ErrScopeMismatch)
	})

	t.Run("authentication challenge is not a registration challenge", func(t *testing.T) {
		e := newTestEnv(t)
		a := e.authenticator(t)

		opts, err := e.ceremony.BeginAuthentication(ctx, BeginAuthenticationRequest{Scope: testScope})
		require.NoError(t, err)
		proof, err := a.Register(challengeBytes(t, opts.Challenge))
		require.NoError(t, err)

		_, err = e.ceremony.FinishRegistration(ctx, proof)
		require.ErrorIs(t, err, webauthnx.ErrCeremonyMismatch)
	})

	t.Run("none attestation refused by policy", func(t *testing.T) {
		e := newTestEnv(t)
		a := e.authenticator(t, webauthnxtest.WithFormat(webauthnx.FormatNone))

		opts, err := e.ceremony.BeginRegistration(ctx, BeginRegistrationRequest{Username: "hank", Scope: testScope})
		require.NoError(t, err)
		proof, err := a.Register(challengeBytes(t, opts.Challenge))
		require.NoError(t, err)

		_, err = e.ceremony.FinishRegistration(ctx, proof)
		require.ErrorIs(t, err, webauthnx.ErrAttestationRejected)
	})
}
