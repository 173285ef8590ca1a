package service

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/pkg/cryptox"
)

// DefaultChallengeTTL bounds how long a ceremony may stay open.
const DefaultChallengeTTL = 5 * time.Minute

// ChallengeCache issues and consumes single-use ceremony challenges.
type ChallengeCache struct {
	Store store.Store
	TTL   time.Duration
	Now   func() time.Time
}

// IssueChallengeRequest describes the ceremony a challenge will bind.
type IssueChallengeRequest struct {
	Ceremony           domain.Ceremony
	Scope              string
	IdentityID         string
	PendingUsername    string
	PendingDisplayName string
}

// Issue creates and stores a fresh 256-bit challenge.
func (c *ChallengeCache) Issue(ctx context.Context, req IssueChallengeRequest) (domain.Challenge, error) {
	value, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.Challenge{}, fmt.Errorf("generate challenge: %w", err)
	}

	ttl := c.TTL
	if ttl <= 0 {
		ttl = DefaultChallengeTTL
	}
	now := nowFunc(c.Now)()

	ch := domain.Challenge{
		Value:              value,
		Ceremony:           req.Ceremony,
		Scope:              req.Scope,
		IdentityID:         req.IdentityID,
		PendingUsername:    req.PendingUsername,
		PendingDisplayName: req.PendingDisplayName,
		CreatedAt:          now,
		ExpiresAt:          now.Add(ttl),
	}
	if err := c.Store.Challenges().CreateChallenge(ctx, ch); err != nil {
		return domain.Challenge{}, fmt.Errorf("store challenge: %w", err)
	}
	return ch, nil
}

// Consume marks the challenge used and returns it. Of any number of
// concurrent callers at most one succeeds.
func (c *ChallengeCache) Consume(ctx context.Context, value string) (domain.Challenge, error) {
	now := nowFunc(c.Now)()

	ch, err := c.Store.Challenges().ConsumeChallenge(ctx, value, now)
	switch {
	case err == nil:
		return ch, nil
	case errors.Is(err, store.ErrNotFound):
		return domain.Challenge{}, ErrChallengeNotFound
	case errors.Is(err, store.ErrConflict):
		if ch.ConsumedAt != nil {
			return domain.Challenge{}, ErrChallengeConsumed
		}
		return domain.Challenge{}, ErrChallengeExpired
	default:
		return domain.Challenge{}, fmt.Errorf("consume challenge: %w", err)
	}
}

// ChallengeBytes decodes a stored challenge value back to the raw bytes the
// client signs over.
func ChallengeBytes(ch domain.Challenge) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(ch.Value)
}

// ChallengeValue encodes raw challenge bytes the way they are stored.
func ChallengeValue(raw []byte) string {
	return base64.RawURLEncoding.EncodeToString(raw)
}
