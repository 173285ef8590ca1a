package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newIdentityService(e *testEnv, token string) *IdentityService {
	return &IdentityService{
		Store:          e.store,
		BootstrapToken: token,
		Recorder:       e.recorder,
		Now:            e.clock.Now,
	}
}

func TestBootstrapCreatesFirstAdmin(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)
	svc := newIdentityService(e, "let-me-in")

	_, err := svc.Bootstrap(ctx, "wrong", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	require.Equal(t, 1, e.recorder.event(EventBootstrapRefused))

	admin, err := svc.Bootstrap(ctx, "let-me-in", "")
	require.NoError(t, err)
	require.Equal(t, DefaultBootstrapUsername, admin.Username)
	require.True(t, admin.IsAdmin)
	require.True(t, admin.Enabled)

	// The bootstrapped admin can mint tokens and approve methods.
	_, err = e.tokens.IssueTokenPair(ctx, admin)
	require.NoError(t, err)

	_, err = svc.Bootstrap(ctx, "let-me-in", "someone-else")
	require.ErrorIs(t, err, ErrAlreadyBootstrapped)

	// Once the only admin is disabled the token works again.
	require.NoError(t, svc.SetEnabled(ctx, admin.ID, false))
	again, err := svc.Bootstrap(ctx, "let-me-in", "admin")
	require.NoError(t, err)
	require.Equal(t, admin.ID, again.ID)
	require.True(t, again.Enabled)
}

func TestBootstrapPromotesExistingIdentity(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t, withApproval())
	svc := newIdentityService(e, "let-me-in")

	user := e.createIdentity(t, "carol", false)
	pending, err := e.methods.AddSharedSecret(ctx, user.ID, "hunter2hunter2")
	require.NoError(t, err)

	admin, err := svc.Bootstrap(ctx, "let-me-in", " carol ")
	require.NoError(t, err)
	require.Equal(t, user.ID, admin.ID)

	require.NoError(t, e.methods.Approve(ctx, pending.ID, admin.ID))
}

func TestBootstrapDisabledWithoutToken(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	_, err := newIdentityService(e, "").Bootstrap(context.Background(), "", "")
	require.ErrorIs(t, err, ErrBootstrapDisabled)
}

func TestIdentityAdministration(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t, withApproval())
	svc := newIdentityService(e, "")

	user := e.createIdentity(t, "dave", false)
	other := e.createIdentity(t, "erin", false)
	pending, err := e.methods.AddSharedSecret(ctx, other.ID, "hunter2hunter2")
	require.NoError(t, err)

	// Promotion makes the identity an approver.
	require.ErrorIs(t, e.methods.Approve(ctx, pending.ID, user.ID), ErrNotAuthorized)
	require.NoError(t, svc.SetAdmin(ctx, user.ID, true))
	got, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	require.True(t, got.IsAdmin)

	// A disabled admin approves nothing and cannot be issued tokens.
	require.NoError(t, svc.SetEnabled(ctx, user.ID, false))
	require.ErrorIs(t, e.methods.Approve(ctx, pending.ID, user.ID), ErrNotAuthorized)
	got, err = svc.Get(ctx, user.ID)
	require.NoError(t, err)
	_, err = e.tokens.IssueTokenPair(ctx, got)
	require.ErrorIs(t, err, ErrIdentityDisabled)

	require.NoError(t, svc.SetEnabled(ctx, user.ID, true))
	require.NoError(t, e.methods.Approve(ctx, pending.ID, user.ID))

	require.NoError(t, svc.SetAdmin(ctx, user.ID, false))
	require.ErrorIs(t, svc.SetAdmin(ctx, "missing", true), ErrIdentityNotFound)
	require.ErrorIs(t, svc.SetEnabled(ctx, "missing", true), ErrIdentityNotFound)
	_, err = svc.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrIdentityNotFound)

	list, err := svc.List(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)

	list, err = svc.List(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, other.ID, list[0].ID)
}

func TestUpdateProfile(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)
	svc := newIdentityService(e, "")
	user := e.createIdentity(t, "frank", false)

	e.clock.Advance(time.Minute)
	got, err := svc.UpdateProfile(ctx, user.ID, "  Frank F.  ")
	require.NoError(t, err)
	require.Equal(t, "Frank F.", got.DisplayName)
	require.Equal(t, e.clock.Now(), got.UpdatedAt)

	stored, err := svc.Get(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, "Frank F.", stored.DisplayName)

	got, err = svc.UpdateProfile(ctx, user.ID, "")
	require.NoError(t, err)
	require.Equal(t, "frank", got.DisplayName)

	_, err = svc.UpdateProfile(ctx, user.ID, strings.Repeat("x", maxDisplayNameLength+1))
	require.ErrorIs(t, err, ErrInvalidRequest)
	_, err = svc.UpdateProfile(ctx, "missing", "x")
	require.ErrorIs(t, err, ErrIdentityNotFound)
}
