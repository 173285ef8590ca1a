package httpx

import (
	"context"
	"net/http"

	"github.com/aussiebroadwan/hoa/pkg/slogx"
)

// Authorizer decides whether an authenticated subject may proceed.
type Authorizer interface {
	Authorize(ctx context.Context, subject string) error
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, subject string) error

func (f AuthorizerFunc) Authorize(ctx context.Context, subject string) error { return f(ctx, subject) }

// RequireAuthorized rejects callers the Authorizer refuses with 403. It must
// run after AuthnMiddleware.
func RequireAuthorized(a Authorizer) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sub, ok := SubjectFromContext(r.Context())
			if !ok {
				writeBearerError(w, "missing bearer token")
				return
			}

			if err := a.Authorize(r.Context(), sub); err != nil {
				slogx.FromContext(r.Context()).Info("request not authorized", "error", err)
				w.Header().Set("WWW-Authenticate", `Bearer error="insufficient_scope"`)
				WriteJSON(w, http.StatusForbidden, map[string]string{
					"error":             "not_authorized",
					"error_description": "the caller may not perform this operation",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
