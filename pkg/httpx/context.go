package httpx

import (
	"context"

	"github.com/aussiebroadwan/hoa/pkg/jwtx"
)

type ctxKey string

const ctxKeyClaims ctxKey = "claims"

// WithClaims attaches validated token claims to ctx.
func WithClaims(ctx context.Context, c jwtx.Claims) context.Context {
	return context.WithValue(ctx, ctxKeyClaims, c)
}

// ClaimsFromContext returns the claims attached by AuthnMiddleware.
func ClaimsFromContext(ctx context.Context) (jwtx.Claims, bool) {
	c, ok := ctx.Value(ctxKeyClaims).(jwtx.Claims)
	return c, ok
}

// SubjectFromContext returns the identity id of the authenticated caller.
func SubjectFromContext(ctx context.Context) (string, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok || c.Subject == "" {
		return "", false
	}
	return c.Subject, true
}
