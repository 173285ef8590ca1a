package hoa_test

import (
	"context"
	"testing"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hoa/pkg/authsdk"
	"github.com/aussiebroadwan/hoa/pkg/jwtx"
)

func TestJWKSVerifiesIssuedTokens(t *testing.T) {
	client := authsdk.NewClient(setupContainer(t))
	ctx := context.Background()

	_, reg := registerPasskey(t, client, "frank")

	jwks, err := client.GetJWKS(ctx)
	require.NoError(t, err)
	require.NotEmpty(t, jwks.Keys)

	jwk := jwks.Keys[0]
	require.Equal(t, "OKP", jwk.Kty)
	require.Equal(t, "EdDSA", jwk.Alg)
	require.Equal(t, reg.Tokens.Access.Kid, jwk.Kid)

	// Verify the access token offline from the published key.
	parsed, err := jwt.Parse(reg.Tokens.Access.Token, func(tok *jwt.Token) (any, error) {
		return jwtx.ParseJWK(jwk)
	}, jwt.WithValidMethods([]string{"EdDSA"}), jwt.WithIssuer("hoa-e2e"))
	require.NoError(t, err)

	sub, err := parsed.Claims.GetSubject()
	require.NoError(t, err)
	require.Equal(t, reg.IdentityID, sub)
}
