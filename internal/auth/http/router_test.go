package http

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/obs"
	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/hoa/pkg/authsdk"
	"github.com/aussiebroadwan/hoa/pkg/cryptox"
	"github.com/aussiebroadwan/hoa/pkg/httpx"
	"github.com/aussiebroadwan/hoa/pkg/idx"
	"github.com/aussiebroadwan/hoa/pkg/jwtx"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
	"github.com/aussiebroadwan/hoa/pkg/webauthnx/webauthnxtest"
)

const (
	testScope  = "svc.example.com"
	testOrigin = "https://svc.example.com"

	testBootstrapToken = "let-me-in"
)

var unlimited = httpx.RateLimitConfig{RequestsPerWindow: 10000, Window: time.Minute, Burst: 10000}

type testServer struct {
	url    string
	client *authsdk.Client
	store  *sqlite.Store
	router *Router
}

func newTestServer(t *testing.T, requireApproval bool) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(filepath.Join(t.TempDir(), "hoa.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.ApplyMigrations())

	sealer, err := cryptox.NewSealer([]byte("test master key"))
	require.NoError(t, err)

	metrics := obs.New()
	methods := &service.AuthMethodService{
		Store:           st,
		Hasher:          cryptox.NewSecretHasher("pepper"),
		RequireApproval: requireApproval,
		Recorder:        metrics,
	}
	keys := &service.KeyManager{
		Store:     st,
		Sealer:    sealer,
		Algorithm: jwtx.AlgorithmEdDSA,
		Recorder:  metrics,
	}
	tokens := &service.TokenService{
		Keys:     keys,
		Store:    st,
		Issuer:   "https://auth.example.com",
		Recorder: metrics,
	}
	ceremonies := &service.CeremonyService{
		Store:          st,
		Challenges:     &service.ChallengeCache{Store: st},
		Methods:        methods,
		RelyingParties: service.NewRelyingParties(domain.RelyingParty{ID: testScope, Name: "Service", Origins: []string{testOrigin}}),
		Resolver:       service.IdentityResolverFunc(httpx.SubjectFromContext),
		Recorder:       metrics,
	}

	r := NewRouter(st, "test", slogx.Discard())
	r.Ceremonies = ceremonies
	r.Methods = methods
	r.Identities = &service.IdentityService{Store: st, BootstrapToken: testBootstrapToken, Recorder: metrics}
	r.Tokens = tokens
	r.Keys = keys
	r.Metrics = metrics
	r.Limits = Limits{Strict: unlimited, Moderate: unlimited, Lenient: unlimited, Public: unlimited}
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{url: srv.URL, client: authsdk.NewClient(srv.URL), store: st, router: r}
}

func challengeBytes(t *testing.T, value string) []byte {
	t.Helper()
	raw, err := service.ChallengeBytes(domain.Challenge{Value: value})
	require.NoError(t, err)
	return raw
}

// register runs a registration ceremony over HTTP. accessToken may be empty.
func (s *testServer) register(t *testing.T, username, accessToken string) (*webauthnxtest.Authenticator, *authsdk.RegistrationResponse) {
	t.Helper()
	ctx := context.Background()

	a, err := webauthnxtest.New(testScope, testOrigin)
	require.NoError(t, err)

	opts, err := s.client.BeginRegistration(ctx, accessToken, authsdk.BeginRegistrationRequest{Username: username, Scope: testScope})
	require.NoError(t, err)

	proof, err := a.Register(challengeBytes(t, opts.Challenge))
	require.NoError(t, err)

	res, err := s.client.FinishRegistration(ctx, proof)
	require.NoError(t, err)

	a.UserHandle = idx.ID(res.IdentityID).Bytes()
	return a, res
}

func (s *testServer) createIdentity(t *testing.T, username string, admin bool) (domain.Identity, string) {
	t.Helper()
	ctx := context.Background()

	now := time.Now()
	ident := domain.Identity{
		ID:          idx.New().String(),
		Username:    username,
		DisplayName: username,
		Enabled:     true,
		IsAdmin:     admin,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	require.NoError(t, s.store.Identities().CreateIdentity(ctx, ident))

	pair, err := s.router.Tokens.IssueTokenPair(ctx, ident)
	require.NoError(t, err)
	return ident, pair.Access.Token
}

func requireCode(t *testing.T, err error, code string) {
	t.Helper()
	require.ErrorIs(t, err, &authsdk.APIError{Code: code})
}

func TestRegisterAuthenticateRefresh(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestServer(t, false)

	a, reg := s.register(t, "alice", "")
	require.True(t, reg.IdentityCreated)
	require.Equal(t, "public_key_credential", reg.Method.Kind)
	require.Equal(t, testScope, reg.Method.Scope)
	require.NotNil(t, reg.Tokens)
	require.Equal(t, "Bearer", reg.Tokens.Access.TokenType)

	opts, err := s.client.BeginAuthentication(ctx, authsdk.BeginAuthenticationRequest{Username: "alice", Scope: testScope})
	require.NoError(t, err)
	require.Len(t, opts.AllowCredentials, 1)

	proof, err := a.Assert(challengeBytes(t, opts.Challenge))
	require.NoError(t, err)

	pair, err := s.client.FinishAuthentication(ctx, proof)
	require.NoError(t, err)
	require.Equal(t, reg.IdentityID, pair.IdentityID)
	require.Positive(t, pair.Access.ExpiresIn)

	// The challenge is single use.
	_, err = s.client.FinishAuthentication(ctx, proof)
	requireCode(t, err, authsdk.ErrorCodeChallengeConsumed)

	access, err := s.client.Refresh(ctx, pair.Refresh.Token)
	require.NoError(t, err)

	list, err := s.client.ListMethods(ctx, access.Token)
	require.NoError(t, err)
	require.Len(t, list.Methods, 1)
	require.Equal(t, 1, list.UsableCount)
	require.Equal(t, reg.Method.ID, list.Methods[0].ID)
	require.NotNil(t, list.Methods[0].LastUsedAt)

	// Access tokens cannot refresh.
	_, err = s.client.Refresh(ctx, access.Token)
	requireCode(t, err, authsdk.ErrorCodeInvalidToken)
}

func TestRegisterExistingUsernameNeedsToken(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestServer(t, false)

	_, reg := s.register(t, "alice", "")

	_, err := s.client.BeginRegistration(ctx, "", authsdk.BeginRegistrationRequest{Username: "alice", Scope: testScope})
	requireCode(t, err, authsdk.ErrorCodeNotAuthorized)

	// With her own token and no username, the second credential joins alice.
	a, err := webauthnxtest.New(testScope, testOrigin)
	require.NoError(t, err)
	opts, err := s.client.BeginRegistration(ctx, reg.Tokens.Access.Token, authsdk.BeginRegistrationRequest{Scope: testScope})
	require.NoError(t, err)
	require.False(t, opts.Provisional)
	require.Equal(t, reg.IdentityID, opts.IdentityID)
	require.Len(t, opts.ExcludeCredentials, 1)

	proof, err := a.Register(challengeBytes(t, opts.Challenge))
	require.NoError(t, err)
	second, err := s.client.FinishRegistration(ctx, proof)
	require.NoError(t, err)
	require.False(t, second.IdentityCreated)

	_, err = s.client.BeginRegistration(ctx, "", authsdk.BeginRegistrationRequest{Username: "bob", Scope: "elsewhere.example.com"})
	requireCode(t, err, authsdk.ErrorCodeUnknownScope)
}

func TestSharedSecretAndBearerTokens(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestServer(t, false)

	_, reg := s.register(t, "carol", "")
	access := reg.Tokens.Access.Token

	_, err := s.client.AddSharedSecret(ctx, access, "short")
	requireCode(t, err, authsdk.ErrorCodeInvalidRequest)

	secret, err := s.client.AddSharedSecret(ctx, access, "correct horse battery")
	require.NoError(t, err)
	require.Equal(t, "shared_secret", secret.Kind)

	pair, err := s.client.SharedSecretLogin(ctx, "carol", "correct horse battery")
	require.NoError(t, err)
	require.Equal(t, reg.IdentityID, pair.IdentityID)

	_, err = s.client.SharedSecretLogin(ctx, "carol", "wrong horse battery")
	requireCode(t, err, authsdk.ErrorCodeInvalidCredentials)

	created, err := s.client.CreateBearerToken(ctx, access, authsdk.CreateTokenRequest{Description: "ci"})
	require.NoError(t, err)
	require.NotEmpty(t, created.Token)
	require.Equal(t, "ci", created.Method.Description)

	pair, err = s.client.BearerTokenLogin(ctx, created.Token)
	require.NoError(t, err)
	require.Equal(t, reg.IdentityID, pair.IdentityID)

	_, err = s.client.BearerTokenLogin(ctx, created.Token+"x")
	requireCode(t, err, authsdk.ErrorCodeInvalidCredentials)

	list, err := s.client.ListMethods(ctx, access)
	require.NoError(t, err)
	require.Len(t, list.Methods, 3)
	require.Equal(t, 3, list.UsableCount)
}

func TestMethodManagement(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestServer(t, false)

	_, alice := s.register(t, "alice", "")
	_, bob := s.register(t, "bob", "")

	// Other identities' methods look absent.
	err := s.client.SetMethodEnabled(ctx, bob.Tokens.Access.Token, alice.Method.ID, false)
	requireCode(t, err, authsdk.ErrorCodeNotFound)

	err = s.client.SetMethodEnabled(ctx, alice.Tokens.Access.Token, alice.Method.ID, false)
	requireCode(t, err, authsdk.ErrorCodeLastEnabledMethod)
	err = s.client.RemoveMethod(ctx, alice.Tokens.Access.Token, alice.Method.ID)
	requireCode(t, err, authsdk.ErrorCodeLastEnabledMethod)

	_, err = s.client.AddSharedSecret(ctx, alice.Tokens.Access.Token, "open sesame")
	require.NoError(t, err)
	require.NoError(t, s.client.SetMethodEnabled(ctx, alice.Tokens.Access.Token, alice.Method.ID, false))
	require.NoError(t, s.client.SetMethodEnabled(ctx, alice.Tokens.Access.Token, alice.Method.ID, true))
	require.NoError(t, s.client.RemoveMethod(ctx, alice.Tokens.Access.Token, alice.Method.ID))

	err = s.client.RemoveMethod(ctx, alice.Tokens.Access.Token, alice.Method.ID)
	requireCode(t, err, authsdk.ErrorCodeNotFound)

	// Admins may manage anyone's methods.
	_, root := s.createIdentity(t, "root", true)
	_, err = s.client.AddSharedSecret(ctx, bob.Tokens.Access.Token, "bobs secret")
	require.NoError(t, err)
	require.NoError(t, s.client.SetMethodEnabled(ctx, root, bob.Method.ID, false))
}

func TestApprovalOverHTTP(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestServer(t, true)

	_, reg := s.register(t, "dave", "")
	require.False(t, reg.Method.Approved)
	require.Nil(t, reg.Tokens)

	_, user := s.createIdentity(t, "erin", false)
	_, root := s.createIdentity(t, "root", true)

	resp := s.do(t, http.MethodGet, "/v1/methods/pending", user, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/methods/pending?limit=10", root, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	require.Contains(t, body, reg.Method.ID)

	resp = s.do(t, http.MethodPost, "/v1/methods/"+reg.Method.ID+"/approve", user, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/v1/methods/"+reg.Method.ID+"/approve", root, "")
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/v1/methods/"+reg.Method.ID+"/reject", root, "")
	require.Equal(t, http.StatusConflict, resp.StatusCode)
	require.Contains(t, readBody(t, resp), authsdk.ErrorCodeAlreadyApproved)

	opts, err := s.client.BeginAuthentication(ctx, authsdk.BeginAuthenticationRequest{Username: "dave", Scope: testScope})
	require.NoError(t, err)
	require.Len(t, opts.AllowCredentials, 1)
}

func TestKeysAndDiscovery(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := newTestServer(t, false)

	set, err := s.client.GetJWKS(ctx)
	require.NoError(t, err)
	require.Empty(t, set.Keys)

	_, user := s.createIdentity(t, "frank", false)
	_, root := s.createIdentity(t, "root", true)

	resp := s.do(t, http.MethodPost, "/v1/keys/rotate", user, "")
	require.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/v1/keys/rotate", root, `{"family":"asymmetric"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/v1/keys/rotate", root, `{"family":"quantum"}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/keys", root, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.Contains(t, readBody(t, resp), `"active":false`)

	set, err = s.client.GetJWKS(ctx)
	require.NoError(t, err)
	require.Len(t, set.Keys, 2)

	live, err := s.client.GetLiveness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)

	ready, err := s.client.GetReadiness(ctx)
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Checks.Signer)
}

func TestAuthenticationRequired(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	resp := s.do(t, http.MethodGet, "/v1/methods", "", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("WWW-Authenticate"))

	resp = s.do(t, http.MethodGet, "/v1/methods", "not-a-token", "")
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = s.do(t, http.MethodPost, "/v1/register/finish", "", `{"unexpected":true}`)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = s.do(t, http.MethodGet, "/v1/nowhere", "", "")
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	t.Parallel()
	s := newTestServer(t, false)

	resp := s.do(t, http.MethodGet, "/livez", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get(slogx.RequestIDHeader))

	resp = s.do(t, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := readBody(t, resp)
	require.Contains(t, body, `hoa_http_requests_total{method="GET",route="GET /livez",status="200"} 1`)
}

func (s *testServer) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, s.url+path, r)
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(b)
}
