package hoa_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hoa/pkg/authsdk"
)

func TestProtectedRoutesRequireToken(t *testing.T) {
	client := authsdk.NewClient(setupContainer(t))
	ctx := context.Background()

	_, err := client.ListMethods(ctx, "")
	requireAPIError(t, err, authsdk.ErrorCodeInvalidToken)

	_, err = client.ListMethods(ctx, "not-a-jwt")
	requireAPIError(t, err, authsdk.ErrorCodeInvalidToken)
}

func TestTamperedTokenRejected(t *testing.T) {
	client := authsdk.NewClient(setupContainer(t))
	ctx := context.Background()

	_, reg := registerPasskey(t, client, "dave")
	token := reg.Tokens.Access.Token

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	if sig[0] == 'A' {
		sig[0] = 'B'
	} else {
		sig[0] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err := client.ListMethods(ctx, tampered)
	requireAPIError(t, err, authsdk.ErrorCodeInvalidToken)

	// Refresh tokens are not access tokens.
	_, err = client.ListMethods(ctx, reg.Tokens.Refresh.Token)
	requireAPIError(t, err, authsdk.ErrorCodeInvalidToken)
}

func TestReplayedAssertionRejected(t *testing.T) {
	client := authsdk.NewClient(setupContainer(t))
	ctx := context.Background()

	a, _ := registerPasskey(t, client, "erin")

	opts, err := client.BeginAuthentication(ctx, authsdk.BeginAuthenticationRequest{Username: "erin", Scope: rpID})
	require.NoError(t, err)
	proof, err := a.Assert(decodeChallenge(t, opts.Challenge))
	require.NoError(t, err)

	_, err = client.FinishAuthentication(ctx, proof)
	require.NoError(t, err)

	_, err = client.FinishAuthentication(ctx, proof)
	requireAPIError(t, err, authsdk.ErrorCodeChallengeConsumed)
}
