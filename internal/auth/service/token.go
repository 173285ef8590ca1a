package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/pkg/jwtx"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
)

const (
	DefaultAccessTTL  = 60 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// TokenService issues and validates signed bearer tokens.
type TokenService struct {
	Keys       *KeyManager
	Store      store.Store
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// Family selects the key family tokens are signed with.
	Family domain.KeyFamily

	// Leeway tolerates clock skew between issuer and validator.
	Leeway time.Duration

	Recorder Recorder
	Now      func() time.Time
}

// IssuedToken is a signed token and when it stops being valid.
type IssuedToken struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Kid       string    `json:"kid"`
}

// TokenPair is issued after an identity is established.
type TokenPair struct {
	Access  IssuedToken `json:"access"`
	Refresh IssuedToken `json:"refresh"`
}

// SigningFamily is the key family new tokens are signed with.
func (s *TokenService) SigningFamily() domain.KeyFamily {
	if s.Family == "" {
		return domain.FamilyAsymmetric
	}
	return s.Family
}

// IssueAccessToken signs an access token for ident. A zero ttl uses AccessTTL.
func (s *TokenService) IssueAccessToken(ctx context.Context, ident domain.Identity, ttl time.Duration) (IssuedToken, error) {
	if ttl <= 0 {
		ttl = orDefault(s.AccessTTL, DefaultAccessTTL)
	}
	return s.issue(ctx, ident, jwtx.KindAccess, ttl)
}

// IssueRefreshToken signs a refresh token for ident. A zero ttl uses
// RefreshTTL.
func (s *TokenService) IssueRefreshToken(ctx context.Context, ident domain.Identity, ttl time.Duration) (IssuedToken, error) {
	if ttl <= 0 {
		ttl = orDefault(s.RefreshTTL, DefaultRefreshTTL)
	}
	return s.issue(ctx, ident, jwtx.KindRefresh, ttl)
}

// IssueTokenPair issues an access and a refresh token with the default TTLs.
func (s *TokenService) IssueTokenPair(ctx context.Context, ident domain.Identity) (TokenPair, error) {
	access, err := s.IssueAccessToken(ctx, ident, 0)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := s.IssueRefreshToken(ctx, ident, 0)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{Access: access, Refresh: refresh}, nil
}

// issue signs with the active key. The token never outlives its key.
func (s *TokenService) issue(ctx context.Context, ident domain.Identity, kind jwtx.Kind, ttl time.Duration) (IssuedToken, error) {
	if ident.ID == "" {
		return IssuedToken{}, ErrIdentityNotFound
	}
	if !ident.Enabled {
		return IssuedToken{}, ErrIdentityDisabled
	}

	signer, key, err := s.Keys.Signer(ctx, s.SigningFamily())
	if err != nil {
		return IssuedToken{}, err
	}

	now := nowFunc(s.Now)()
	expiresAt := now.Add(ttl)
	if expiresAt.After(key.ExpiresAt) {
		expiresAt = key.ExpiresAt
	}

	claims := jwtx.NewClaims(ident.ID, kind, s.Issuer, now, expiresAt)
	token, err := signer.Sign(claims)
	if err != nil {
		return IssuedToken{}, fmt.Errorf("sign %s token: %w", kind, err)
	}

	slogx.FromContext(ctx).Debug("token issued",
		slog.String("kind", string(kind)),
		slog.String("sub", ident.ID),
		slog.String("kid", signer.KID()),
	)
	return IssuedToken{Token: token, ExpiresAt: claims.Expiry(), Kid: signer.KID()}, nil
}

// Validate checks a token's signature, lifetime, issuer and kind. The key is
// resolved only by the kid header and its algorithm comes from the key
// record, so a token cannot choose how it is verified.
func (s *TokenService) Validate(ctx context.Context, token string, kind jwtx.Kind) (jwtx.Claims, error) {
	lookup := func(kid string) (jwtx.VerificationKey, error) {
		vk, err := s.Keys.KeyByID(ctx, kid)
		if errors.Is(err, ErrKeyNotFound) {
			return jwtx.VerificationKey{}, fmt.Errorf("%w: %w", jwtx.ErrNoKey, err)
		}
		return vk, err
	}

	claims, err := jwtx.Parse(token, lookup, jwtx.ParseOptions{
		Issuer: s.Issuer,
		Now:    s.Now,
		Leeway: s.Leeway,
	})
	if err != nil {
		return jwtx.Claims{}, s.classify(ctx, err)
	}

	if claims.Subject == "" {
		return jwtx.Claims{}, ErrTokenMalformed
	}
	if claims.Kind != kind {
		return jwtx.Claims{}, ErrTokenWrongKind
	}
	return claims, nil
}

func (s *TokenService) classify(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, jwtx.ErrMalformed), errors.Is(err, jwtx.ErrIssuer), errors.Is(err, jwtx.ErrInvalidClaim):
		return fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case errors.Is(err, jwtx.ErrUnknownKID):
		return ErrTokenUnknownKey
	case errors.Is(err, jwtx.ErrAlgMismatch):
		security(ctx, s.Recorder, EventAlgConfusion, err)
		return ErrTokenSignatureInvalid
	case errors.Is(err, jwtx.ErrInvalidSig):
		security(ctx, s.Recorder, EventBadSignature, err, slog.String("ceremony", "token"))
		return ErrTokenSignatureInvalid
	case errors.Is(err, jwtx.ErrExpired):
		return ErrTokenExpired
	default:
		return fmt.Errorf("validate token: %w", err)
	}
}

// Refresh exchanges a refresh token for an access token that expires no
// later than the refresh token does.
func (s *TokenService) Refresh(ctx context.Context, refreshToken string) (IssuedToken, error) {
	claims, err := s.Validate(ctx, refreshToken, jwtx.KindRefresh)
	if err != nil {
		return IssuedToken{}, err
	}

	ident, err := s.Store.Identities().GetIdentityByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return IssuedToken{}, ErrIdentityNotFound
		}
		return IssuedToken{}, err
	}

	ttl := min(orDefault(s.AccessTTL, DefaultAccessTTL), claims.Expiry().Sub(nowFunc(s.Now)()))
	if ttl <= 0 {
		return IssuedToken{}, ErrTokenExpired
	}
	return s.issue(ctx, ident, jwtx.KindAccess, ttl)
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
