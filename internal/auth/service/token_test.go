package service

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/pkg/jwtx"
)

func TestIssueAndValidate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)
	ident := e.createIdentity(t, "alice", false)

	pair, err := e.tokens.IssueTokenPair(ctx, ident)
	require.NoError(t, err)
	require.Equal(t, pair.Access.Kid, pair.Refresh.Kid)
	require.True(t, pair.Access.ExpiresAt.Equal(e.clock.Now().Add(time.Hour)))
	require.True(t, pair.Refresh.ExpiresAt.Equal(e.clock.Now().Add(24*time.Hour)))

	claims, err := e.tokens.Validate(ctx, pair.Access.Token, jwtx.KindAccess)
	require.NoError(t, err)
	require.Equal(t, ident.ID, claims.Subject)
	require.Equal(t, testIssuer, claims.Issuer)
	require.NotEmpty(t, claims.ID)

	// Kinds never substitute for each other.
	_, err = e.tokens.Validate(ctx, pair.Access.Token, jwtx.KindRefresh)
	require.ErrorIs(t, err, ErrTokenWrongKind)
	_, err = e.tokens.Validate(ctx, pair.Refresh.Token, jwtx.KindAccess)
	require.ErrorIs(t, err, ErrTokenWrongKind)
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)
	ident := e.createIdentity(t, "alice", false)

	tok, err := e.tokens.IssueAccessToken(ctx, ident, 0)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"garbage", "not-a-token", ErrTokenMalformed},
		{"flipped signature", flipLastByte(tok.Token), ErrTokenSignatureInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := e.tokens.Validate(ctx, tt.token, jwtx.KindAccess)
			require.ErrorIs(t, err, tt.want)
		})
	}

	other := *e.tokens
	other.Issuer = "https://elsewhere.example.com"
	_, err = other.Validate(ctx, tok.Token, jwtx.KindAccess)
	require.ErrorIs(t, err, ErrTokenMalformed)
}

func TestValidateExpiredToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)
	ident := e.createIdentity(t, "alice", false)

	tok, err := e.tokens.IssueAccessToken(ctx, ident, time.Minute)
	require.NoError(t, err)

	e.clock.Advance(59 * time.Second)
	_, err = e.tokens.Validate(ctx, tok.Token, jwtx.KindAccess)
	require.NoError(t, err)

	e.clock.Advance(2 * time.Second)
	_, err = e.tokens.Validate(ctx, tok.Token, jwtx.KindAccess)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestValidateWithLeeway(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)
	e.tokens.Leeway = 30 * time.Second
	ident := e.createIdentity(t, "alice", false)

	tok, err := e.tokens.IssueAccessToken(ctx, ident, time.Minute)
	require.NoError(t, err)

	e.clock.Advance(80 * time.Second)
	_, err = e.tokens.Validate(ctx, tok.Token, jwtx.KindAccess)
	require.NoError(t, err)

	e.clock.Advance(11 * time.Second)
	_, err = e.tokens.Validate(ctx, tok.Token, jwtx.KindAccess)
	require.ErrorIs(t, err, ErrTokenExpired)
}

func TestTokensSurviveRotationUntilKeyExpiry(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)
	ident := e.createIdentity(t, "alice", false)

	// Longer than the key lives, so the key expiry decides.
	e.tokens.RefreshTTL = 1000 * time.Hour
	old, err := e.tokens.IssueRefreshToken(ctx, ident, 0)
	require.NoError(t, err)

	key, err := e.keys.ActiveKey(ctx, domain.FamilyAsymmetric)
	require.NoError(t, err)
	require.Equal(t, key.Kid, old.Kid)
	require.True(t, old.ExpiresAt.Equal(key.ExpiresAt))

	_, err = e.keys.Rotate(ctx, domain.FamilyAsymmetric)
	require.NoError(t, err)

	fresh, err := e.tokens.IssueAccessToken(ctx, ident, 0)
	require.NoError(t, err)
	require.NotEqual(t, old.Kid, fresh.Kid)

	_, err = e.tokens.Validate(ctx, old.Token, jwtx.KindRefresh)
	require.NoError(t, err)

	e.clock.Advance(72 * time.Hour)
	_, err = e.tokens.Validate(ctx, old.Token, jwtx.KindRefresh)
	require.ErrorIs(t, err, ErrTokenUnknownKey)
}

func TestValidateAlgorithmConfusion(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)
	ident := e.createIdentity(t, "alice", false)

	key, err := e.keys.ActiveKey(ctx, domain.FamilyAsymmetric)
	require.NoError(t, err)

	// HMAC keyed with the published public key, under the EdDSA kid.
	now := e.clock.Now()
	claims := jwtx.NewClaims(ident.ID, jwtx.KindAccess, testIssuer, now, now.Add(time.Hour))
	forged := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	forged.Header["kid"] = key.Kid
	token, err := forged.SignedString(key.PublicKey)
	require.NoError(t, err)

	_, err = e.tokens.Validate(ctx, token, jwtx.KindAccess)
	require.ErrorIs(t, err, ErrTokenSignatureInvalid)
	require.Equal(t, 1, e.recorder.event(EventAlgConfusion))

	unsigned := jwt.NewWithClaims(jwt.SigningMethodNone, claims)
	unsigned.Header["kid"] = key.Kid
	token, err = unsigned.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = e.tokens.Validate(ctx, token, jwtx.KindAccess)
	require.ErrorIs(t, err, ErrTokenSignatureInvalid)
}

func TestSymmetricFamilyTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)
	ident := e.createIdentity(t, "alice", false)
	e.tokens.Family = domain.FamilySymmetric

	tok, err := e.tokens.IssueAccessToken(ctx, ident, 0)
	require.NoError(t, err)

	claims, err := e.tokens.Validate(ctx, tok.Token, jwtx.KindAccess)
	require.NoError(t, err)
	require.Equal(t, ident.ID, claims.Subject)
}

func TestRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	e := newTestEnv(t)
	ident := e.createIdentity(t, "alice", false)

	refresh, err := e.tokens.IssueRefreshToken(ctx, ident, 0)
	require.NoError(t, err)

	access, err := e.tokens.Refresh(ctx, refresh.Token)
	require.NoError(t, err)
	require.True(t, access.ExpiresAt.Equal(e.clock.Now().Add(time.Hour)))

	claims, err := e.tokens.Validate(ctx, access.Token, jwtx.KindAccess)
	require.NoError(t, err)
	require.Equal(t, ident.ID, claims.Subject)

	// Close to the end the access token is clamped to the refresh token.
	e.clock.Advance(23*time.Hour + 30*time.Minute)
	access, err = e.tokens.Refresh(ctx, refresh.Token)
	require.NoError(t, err)
	require.True(t, access.ExpiresAt.Equal(refresh.ExpiresAt))

	// Access tokens cannot refresh.
	_, err = e.tokens.Refresh(ctx, access.Token)
	require.ErrorIs(t, err, ErrTokenWrongKind)

	require.NoError(t, e.store.Identities().SetIdentityEnabled(ctx, ident.ID, false))
	_, err = e.tokens.Refresh(ctx, refresh.Token)
	require.ErrorIs(t, err, ErrIdentityDisabled)
}

func TestIssueRequiresEnabledIdentity(t *testing.T) {
	t.Parallel()
	e := newTestEnv(t)
	ident := e.createIdentity(t, "alice", false)
	ident.Enabled = false

	_, err := e.tokens.IssueAccessToken(context.Background(), ident, 0)
	require.ErrorIs(t, err, ErrIdentityDisabled)
}

func flipLastByte(token string) string {
	b := []byte(token)
	if b[len(b)-2] == 'A' {
		b[len(b)-2] = 'B'
	} else {
		b[len(b)-2] = 'A'
	}
	return string(b)
}
