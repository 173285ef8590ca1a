package httpx_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/hoa/pkg/httpx"
	"github.com/aussiebroadwan/hoa/pkg/jwtx"
)

type fakeValidator map[string]string // token -> subject

func (f fakeValidator) Validate(_ context.Context, token string, kind jwtx.Kind) (jwtx.Claims, error) {
	sub, ok := f[token]
	if !ok || kind != jwtx.KindAccess {
		return jwtx.Claims{}, errors.New("bad token")
	}
	c := jwtx.Claims{Kind: kind}
	c.Subject = sub
	return c, nil
}

var echoSubject = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	sub, ok := httpx.SubjectFromContext(r.Context())
	if !ok {
		sub = "anonymous"
	}
	_, _ = w.Write([]byte(sub))
})

func serve(h http.Handler, auth string) *httptest.ResponseRecorder {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	if auth != "" {
		r.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	return rec
}

func TestChainOrder(t *testing.T) {
	t.Parallel()
	var order []string
	mw := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	serve(httpx.Chain(okHandler, mw("outer"), mw("inner")), "")
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestAuthnMiddleware(t *testing.T) {
	t.Parallel()
	v := fakeValidator{"good": "01JALICE"}

	required := httpx.AuthnMiddleware(v)(echoSubject)
	optional := httpx.OptionalAuthnMiddleware(v)(echoSubject)

	tests := []struct {
		name     string
		handler  http.Handler
		auth     string
		wantCode int
		wantBody string
	}{
		{"required ok", required, "Bearer good", http.StatusOK, "01JALICE"},
		{"scheme is case insensitive", required, "bearer good", http.StatusOK, "01JALICE"},
		{"required missing", required, "", http.StatusUnauthorized, ""},
		{"required wrong scheme", required, "Basic Zm9vOmJhcg==", http.StatusUnauthorized, ""},
		{"required bad token", required, "Bearer bad", http.StatusUnauthorized, ""},
		{"optional anonymous", optional, "", http.StatusOK, "anonymous"},
		{"optional ok", optional, "Bearer good", http.StatusOK, "01JALICE"},
		{"optional bad token", optional, "Bearer bad", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(tt.handler, tt.auth)
			require.Equal(t, tt.wantCode, rec.Code)
			if tt.wantCode == http.StatusOK {
				require.Equal(t, tt.wantBody, rec.Body.String())
			} else {
				require.Contains(t, rec.Header().Get("WWW-Authenticate"), "invalid_token")
			}
		})
	}
}

func TestRequireAuthorized(t *testing.T) {
	t.Parallel()
	v := fakeValidator{"admin": "01JADMIN", "user": "01JUSER"}
	onlyAdmin := httpx.AuthorizerFunc(func(_ context.Context, sub string) error {
		if sub != "01JADMIN" {
			return errors.New("not an admin")
		}
		return nil
	})

	h := httpx.Chain(echoSubject, httpx.AuthnMiddleware(v), httpx.RequireAuthorized(onlyAdmin))

	require.Equal(t, http.StatusOK, serve(h, "Bearer admin").Code)
	require.Equal(t, http.StatusForbidden, serve(h, "Bearer user").Code)
	require.Equal(t, http.StatusUnauthorized, serve(h, "").Code)

	// Without authn in front there is no subject to authorize.
	require.Equal(t, http.StatusUnauthorized, serve(httpx.RequireAuthorized(onlyAdmin)(echoSubject), "Bearer admin").Code)
}

func TestDecodeJSON(t *testing.T) {
	t.Parallel()

	type payload struct {
		Name string `json:"name"`
	}
	tests := []struct {
		name    string
		body    string
		wantErr bool
	}{
		{"ok", `{"name":"x"}`, false},
		{"empty", ``, true},
		{"unknown field", `{"name":"x","extra":1}`, true},
		{"trailing object", `{"name":"x"}{"name":"y"}`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := request("192.168.1.1:1", tt.body)
			var p payload
			err := httpx.DecodeJSON(httptest.NewRecorder(), r, &p)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, "x", p.Name)
		})
	}
}
