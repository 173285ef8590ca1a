package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
)

func TestHousekeepingCleanup(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)

	purged := purgeCounts{}
	hk := NewHousekeepingService(e.store, e.keys, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Minute)
	hk.Now = e.clock.Now
	hk.Recorder = purged

	_, err := e.challenge.Issue(ctx, IssueChallengeRequest{Ceremony: domain.CeremonyAuthentication, Scope: testScope})
	require.NoError(t, err)
	old, err := e.keys.ActiveKey(ctx, domain.FamilyAsymmetric)
	require.NoError(t, err)

	res := hk.Cleanup(ctx)
	require.Zero(t, res.Challenges)
	require.Zero(t, res.SigningKeys)

	// Past the challenge TTL and the first key's verification window. The
	// replacement key is rotated in before the old one expires.
	e.clock.Advance(25 * time.Hour)
	_, err = e.keys.ActiveKey(ctx, domain.FamilyAsymmetric)
	require.NoError(t, err)
	e.clock.Advance(48 * time.Hour)

	res = hk.Cleanup(ctx)
	require.Equal(t, int64(1), res.Challenges)
	require.Equal(t, int64(1), res.SigningKeys)
	require.Equal(t, 1, res.CachedKeys)
	require.Equal(t, 1, purged["challenges"])
	require.Equal(t, 1, purged["signing_keys"])

	_, err = e.store.SigningKeys().GetSigningKeyByKid(ctx, old.Kid)
	require.Error(t, err)
}

func TestHousekeepingKeepsActiveKey(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)

	hk := NewHousekeepingService(e.store, nil, slog.New(slog.NewTextHandler(io.Discard, nil)), 0)
	require.Equal(t, time.Hour, hk.Interval)
	hk.Now = e.clock.Now

	key, err := e.keys.ActiveKey(ctx, domain.FamilyAsymmetric)
	require.NoError(t, err)

	// Expired, but still the active pointer for its family.
	e.clock.Advance(100 * time.Hour)
	res := hk.Cleanup(ctx)
	require.Zero(t, res.SigningKeys)

	_, err = e.store.SigningKeys().GetSigningKeyByKid(ctx, key.Kid)
	require.NoError(t, err)
}

func TestHousekeepingStartStop(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)

	hk := NewHousekeepingService(e.store, e.keys, slog.New(slog.NewTextHandler(io.Discard, nil)), time.Hour)
	hk.Stop() // not started
	hk.Start()
	hk.Stop()
}

type purgeCounts map[string]int

func (p purgeCounts) Purged(kind string, n int) { p[kind] += n }
