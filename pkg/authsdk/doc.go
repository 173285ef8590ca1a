/*
Package authsdk holds the wire types of the hoa HTTP API and a small client
for it.

The server encodes failures as an APIError and the client decodes them back,
so callers can branch on the error code:

	client := authsdk.NewClient("https://auth.example.com")

	opts, err := client.BeginAuthentication(ctx, authsdk.BeginAuthenticationRequest{
		Scope: "auth.example.com",
	})
	if err != nil {
		return err
	}

	// Hand opts.PublicKey to navigator.credentials.get and collect the
	// assertion, then:
	pair, err := client.FinishAuthentication(ctx, assertion)
	if errors.Is(err, &authsdk.APIError{Code: authsdk.ErrorCodeReplayDetected}) {
		// the authenticator may have been cloned
	}

Access tokens expire after an hour by default. Refresh exchanges the refresh
token for a new one:

	access, err := client.Refresh(ctx, pair.Refresh.Token)

Tokens are signed with keys published at /.well-known/jwks.json, which
GetJWKS returns as a jwtx.JWKS.
*/
package authsdk
