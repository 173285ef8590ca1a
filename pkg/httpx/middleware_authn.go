package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/hoa/pkg/jwtx"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
)

// TokenValidator checks a bearer token of the given kind.
type TokenValidator interface {
	Validate(ctx context.Context, token string, kind jwtx.Kind) (jwtx.Claims, error)
}

// AuthnMiddleware requires a valid access token and attaches its claims to
// the request context.
func AuthnMiddleware(v TokenValidator) Middleware {
	return authn(v, true)
}

// OptionalAuthnMiddleware attaches claims when a token is presented and lets
// anonymous requests through. A presented but invalid token is still
// rejected.
func OptionalAuthnMiddleware(v TokenValidator) Middleware {
	return authn(v, false)
}

func authn(v TokenValidator, required bool) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			raw, ok := BearerToken(r)
			if !ok {
				if required {
					writeBearerError(w, "missing bearer token")
					return
				}
				next.ServeHTTP(w, r)
				return
			}

			claims, err := v.Validate(ctx, raw, jwtx.KindAccess)
			if err != nil {
				slogx.FromContext(ctx).Warn("bearer token rejected", "error", err)
				writeBearerError(w, "token verification failed")
				return
			}

			ctx = WithClaims(ctx, claims)
			ctx = slogx.With(ctx, "sub", claims.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken returns the credential of a Bearer Authorization header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, token, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// RFC 6750 error response for bearer auth.
func writeBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteJSON(w, http.StatusUnauthorized, map[string]string{
		"error":             "invalid_token",
		"error_description": desc,
	})
}
