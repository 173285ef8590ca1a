package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
)

func TestChallengeCache(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("consumable exactly once", func(t *testing.T) {
		e := newTestEnv(t)

		ch, err := e.challenge.Issue(ctx, IssueChallengeRequest{Ceremony: domain.CeremonyAuthentication, Scope: testScope})
		require.NoError(t, err)
		require.Len(t, challengeBytes(t, ch.Value), 32)
		require.Equal(t, ch.CreatedAt.Add(DefaultChallengeTTL), ch.ExpiresAt)

		got, err := e.challenge.Consume(ctx, ch.Value)
		require.NoError(t, err)
		require.Equal(t, testScope, got.Scope)
		require.NotNil(t, got.ConsumedAt)

		_, err = e.challenge.Consume(ctx, ch.Value)
		require.ErrorIs(t, err, ErrChallengeConsumed)
	})

	t.Run("expired challenge cannot be consumed", func(t *testing.T) {
		e := newTestEnv(t)

		ch, err := e.challenge.Issue(ctx, IssueChallengeRequest{Ceremony: domain.CeremonyAuthentication, Scope: testScope})
		require.NoError(t, err)

		e.clock.Advance(DefaultChallengeTTL + time.Second)
		_, err = e.challenge.Consume(ctx, ch.Value)
		require.ErrorIs(t, err, ErrChallengeExpired)
	})

	t.Run("unknown challenge", func(t *testing.T) {
		e := newTestEnv(t)

		_, err := e.challenge.Consume(ctx, "never-issued")
		require.ErrorIs(t, err, ErrChallengeNotFound)
	})

	t.Run("values are unique", func(t *testing.T) {
		e := newTestEnv(t)

		seen := map[string]bool{}
		for range 20 {
			ch, err := e.challenge.Issue(ctx, IssueChallengeRequest{Ceremony: domain.CeremonyRegistration, Scope: testScope})
			require.NoError(t, err)
			require.False(t, seen[ch.Value])
			seen[ch.Value] = true
		}
	})
}
