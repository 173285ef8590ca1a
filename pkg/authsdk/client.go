package authsdk

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client talks to the hoa HTTP API. Calls that need an identity take the
// caller's access token explicitly; the client itself holds no session state.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewClient returns a Client for baseURL with a ten second timeout.
func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// BeginRegistration starts a registration ceremony. accessToken may be empty
// for a first registration; otherwise the credential is added to the caller.
func (c *Client) BeginRegistration(ctx context.Context, accessToken string, req BeginRegistrationRequest) (*RegistrationOptions, error) {
	var out RegistrationOptions
	if err := c.postJSON(ctx, "/v1/register/begin", accessToken, req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// FinishRegistration submits the authenticator's attestation.
func (c *Client) FinishRegistration(ctx context.Context, req FinishRegistrationRequest) (*RegistrationResponse, error) {
	var out RegistrationResponse
	if err := c.postJSON(ctx, "/v1/register/finish", "", req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// BeginAuthentication starts an authentication ceremony.
func (c *Client) BeginAuthentication(ctx context.Context, req BeginAuthenticationRequest) (*AuthenticationOptions, error) {
	var out AuthenticationOptions
	if err := c.postJSON(ctx, "/v1/authenticate/begin", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// FinishAuthentication submits an assertion and returns the issued tokens.
func (c *Client) FinishAuthentication(ctx context.Context, req FinishAuthenticationRequest) (*TokenPair, error) {
	var out TokenPair
	if err := c.postJSON(ctx, "/v1/authenticate/finish", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Refresh exchanges a refresh token for a new access token.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Token, error) {
	var out Token
	req := RefreshRequest{RefreshToken: refreshToken}
	if err := c.postJSON(ctx, "/v1/token/refresh", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// SharedSecretLogin establishes an identity with a username and secret.
func (c *Client) SharedSecretLogin(ctx context.Context, username, secret string) (*TokenPair, error) {
	var out TokenPair
	req := SharedSecretRequest{Username: username, Secret: secret}
	if err := c.postJSON(ctx, "/v1/token/shared-secret", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// BearerTokenLogin exchanges a machine bearer token for a token pair.
func (c *Client) BearerTokenLogin(ctx context.Context, bearerToken string) (*TokenPair, error) {
	var out TokenPair
	if err := c.postJSON(ctx, "/v1/token/bearer", bearerToken, struct{}{}, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ExternalTokenLogin exchanges a provider subject for the linked identity's
// tokens. accessToken must belong to an admin.
func (c *Client) ExternalTokenLogin(ctx context.Context, accessToken, provider, subject string) (*TokenPair, error) {
	var out TokenPair
	req := ExternalTokenRequest{Provider: provider, Subject: subject}
	if err := c.postJSON(ctx, "/v1/token/external", accessToken, req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateToken reports whether an access token is valid. An invalid token
// is not an error; see TokenValidation.Valid.
func (c *Client) ValidateToken(ctx context.Context, token string) (*TokenValidation, error) {
	var out TokenValidation
	req := ValidateTokenRequest{Token: token}
	if err := c.postJSON(ctx, "/v1/token/validate", "", req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// Bootstrap creates or promotes the first admin with the operator's
// bootstrap token.
func (c *Client) Bootstrap(ctx context.Context, bootstrapToken, username string) (*BootstrapResponse, error) {
	var out BootstrapResponse
	req := BootstrapRequest{Username: username}
	if err := c.postJSON(ctx, "/v1/token/bootstrap", bootstrapToken, req, &out, http.StatusOK); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListMethods returns the caller's auth methods.
func (c *Client) ListMethods(ctx context.Context, accessToken string) (*MethodList, error) {
	var out MethodList
	if err := c.getJSON(ctx, "/v1/methods", accessToken, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateBearerToken mints a machine bearer token for the caller.
func (c *Client) CreateBearerToken(ctx context.Context, accessToken string, req CreateTokenRequest) (*CreateTokenResponse, error) {
	var out CreateTokenResponse
	if err := c.postJSON(ctx, "/v1/methods/tokens", accessToken, req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// AddSharedSecret attaches a shared secret to the caller.
func (c *Client) AddSharedSecret(ctx context.Context, accessToken, secret string) (*MethodInfo, error) {
	var out MethodInfo
	req := AddSharedSecretRequest{Secret: secret}
	if err := c.postJSON(ctx, "/v1/methods/secrets", accessToken, req, &out, http.StatusCreated); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetMethodEnabled enables or disables one of the caller's methods.
func (c *Client) SetMethodEnabled(ctx context.Context, accessToken, methodID string, enabled bool) error {
	action := "disable"
	if enabled {
		action = "enable"
	}
	return c.postNoContent(ctx, "/v1/methods/"+methodID+"/"+action, accessToken)
}

// RemoveMethod deletes one of the caller's methods.
func (c *Client) RemoveMethod(ctx context.Context, accessToken, methodID string) error {
	resp, err := c.doRequest(ctx, http.MethodDelete, "/v1/methods/"+methodID, accessToken, nil)
	if err != nil {
		return err
	}
	return checkStatusNoContent(resp)
}

// GetProfile returns the caller's identity.
func (c *Client) GetProfile(ctx context.Context, accessToken string) (*IdentityInfo, error) {
	var out IdentityInfo
	if err := c.getJSON(ctx, "/v1/identities/me", accessToken, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateProfile changes the caller's display name.
func (c *Client) UpdateProfile(ctx context.Context, accessToken string, req UpdateProfileRequest) (*IdentityInfo, error) {
	var out IdentityInfo
	if err := c.putJSON(ctx, "/v1/identities/me", accessToken, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListIdentities pages through every identity. Admin only.
func (c *Client) ListIdentities(ctx context.Context, accessToken string, limit, offset int) ([]IdentityInfo, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	path := "/v1/identities"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out []IdentityInfo
	if err := c.getJSON(ctx, path, accessToken, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// SetIdentityEnabled enables or disables an identity. Admin only.
func (c *Client) SetIdentityEnabled(ctx context.Context, accessToken, identityID string, enabled bool) error {
	action := "disable"
	if enabled {
		action = "enable"
	}
	return c.postNoContent(ctx, "/v1/identities/"+identityID+"/"+action, accessToken)
}

// SetIdentityAdmin promotes or demotes an identity. Admin only.
func (c *Client) SetIdentityAdmin(ctx context.Context, accessToken, identityID string, admin bool) error {
	action := "demote"
	if admin {
		action = "promote"
	}
	return c.postNoContent(ctx, "/v1/identities/"+identityID+"/"+action, accessToken)
}

// GetJWKS fetches the public key set.
func (c *Client) GetJWKS(ctx context.Context) (*JWKSResponse, error) {
	var out JWKSResponse
	if err := c.getJSON(ctx, "/.well-known/jwks.json", "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetLiveness checks whether the service is running.
func (c *Client) GetLiveness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.getJSON(ctx, "/livez", "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetReadiness checks whether the service can take traffic.
func (c *Client) GetReadiness(ctx context.Context) (*HealthResponse, error) {
	var out HealthResponse
	if err := c.getJSON(ctx, "/readyz", "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}
