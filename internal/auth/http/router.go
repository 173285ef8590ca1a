package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/obs"
	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/pkg/httpx"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
)

// Limits are the rate limit profiles applied per route class.
type Limits struct {
	Strict   httpx.RateLimitConfig // ceremony finish and token exchange
	Moderate httpx.RateLimitConfig // ceremony begin and authenticated calls
	Lenient  httpx.RateLimitConfig // health checks
	Public   httpx.RateLimitConfig // key discovery
}

// DefaultLimits returns the package-level httpx profiles.
func DefaultLimits() Limits {
	return Limits{
		Strict:   httpx.StrictLimit,
		Moderate: httpx.ModerateLimit,
		Lenient:  httpx.LenientLimit,
		Public:   httpx.PublicLimit,
	}
}

// Router holds shared dependencies for HTTP handlers.
type Router struct {
	Mux         *http.ServeMux
	middlewares []httpx.Middleware
	handler     http.Handler

	buildVersion string
	startTime    time.Time
	logger       *slog.Logger
	store        store.Store

	Ceremonies *service.CeremonyService
	Methods    *service.AuthMethodService
	Identities *service.IdentityService
	Tokens     *service.TokenService
	Keys       *service.KeyManager

	// Metrics, when set, instruments every route and serves /metrics.
	Metrics *obs.Metrics
	Limits  Limits
	Now     func() time.Time
}

func NewRouter(st store.Store, buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          http.NewServeMux(),
		buildVersion: buildVersion,
		startTime:    time.Now(),
		store:        st,
		logger:       logger,
		Limits:       DefaultLimits(),
		Now:          time.Now,
	}

	r.middlewares = []httpx.Middleware{
		slogx.HTTPMiddleware(r.logger),
	}

	return r
}

// ApplyRoutes registers every route. The services must be set first.
func (r *Router) ApplyRoutes() {
	r.registerCeremonies()
	r.registerTokens()
	r.registerMethods()
	r.registerIdentities()
	r.registerKeys()
	r.registerSystem()

	// The mux fills in the matched pattern, so instrumentation wraps it
	// directly and sits inside the logging middleware.
	var inner http.Handler = r.Mux
	if r.Metrics != nil {
		inner = r.Metrics.Instrument(r.Mux)
	}
	r.handler = httpx.Chain(inner, r.middlewares...)
}

// ServeHTTP implements http.Handler and applies the global middleware chain.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if r.handler == nil {
		httpx.Chain(r.Mux, r.middlewares...).ServeHTTP(w, req)
		return
	}
	r.handler.ServeHTTP(w, req)
}

// authenticated is the chain for routes that need an access token.
func (r *Router) authenticated(h http.HandlerFunc, extra ...httpx.Middleware) http.Handler {
	mws := append([]httpx.Middleware{
		httpx.AuthnMiddleware(r.Tokens),
		httpx.RateLimitBySubject(r.Limits.Moderate),
	}, extra...)
	return httpx.Chain(h, mws...)
}

func (r *Router) admin() httpx.Middleware {
	return httpx.RequireAuthorized(AdminAuthorizer(r.store))
}

func (r *Router) registerCeremonies() {
	h := &CeremonyHandler{
		Ceremonies: r.Ceremonies,
		Tokens:     r.Tokens,
		Now:        r.Now,
	}

	// A bearer token on register/begin adds the credential to the caller.
	r.Mux.Handle("POST /v1/register/begin",
		httpx.Chain(http.HandlerFunc(h.HandleRegisterBegin),
			httpx.RateLimitByIP(r.Limits.Moderate),
			httpx.OptionalAuthnMiddleware(r.Tokens),
		),
	)
	r.Mux.Handle("POST /v1/register/finish",
		httpx.Chain(http.HandlerFunc(h.HandleRegisterFinish),
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)

	r.Mux.Handle("POST /v1/authenticate/begin",
		httpx.Chain(http.HandlerFunc(h.HandleAuthenticateBegin),
			httpx.RateLimitByIPAndJSONField(r.Limits.Moderate, "username"),
		),
	)
	r.Mux.Handle("POST /v1/authenticate/finish",
		httpx.Chain(http.HandlerFunc(h.HandleAuthenticateFinish),
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)
}

func (r *Router) registerTokens() {
	h := &TokenHandler{
		Tokens:     r.Tokens,
		Methods:    r.Methods,
		Identities: r.Identities,
		Now:        r.Now,
	}

	r.Mux.Handle("POST /v1/token/refresh",
		httpx.Chain(http.HandlerFunc(h.HandleRefresh),
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)
	// Limited by IP and username so one user cannot be brute forced from
	// many addresses sharing a quota.
	r.Mux.Handle("POST /v1/token/shared-secret",
		httpx.Chain(http.HandlerFunc(h.HandleSharedSecret),
			httpx.RateLimitByIPAndJSONField(r.Limits.Strict, "username"),
		),
	)
	r.Mux.Handle("POST /v1/token/bearer",
		httpx.Chain(http.HandlerFunc(h.HandleBearer),
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)
	r.Mux.Handle("POST /v1/token/bootstrap",
		httpx.Chain(http.HandlerFunc(h.HandleBootstrap),
			httpx.RateLimitByIP(r.Limits.Strict),
		),
	)
	r.Mux.Handle("POST /v1/token/validate",
		httpx.Chain(http.HandlerFunc(h.HandleValidate),
			httpx.RateLimitByIP(r.Limits.Moderate),
		),
	)

	// The calling service vouches for the provider subject.
	r.Mux.Handle("POST /v1/token/external", r.authenticated(h.HandleExternal, r.admin()))
}

func (r *Router) registerMethods() {
	h := &MethodsHandler{
		Methods: r.Methods,
		Store:   r.store,
	}

	r.Mux.Handle("GET /v1/methods", r.authenticated(h.HandleList))
	r.Mux.Handle("GET /v1/methods/pending", r.authenticated(h.HandlePending, r.admin()))
	r.Mux.Handle("POST /v1/methods/tokens", r.authenticated(h.HandleCreateToken))
	r.Mux.Handle("POST /v1/methods/secrets", r.authenticated(h.HandleAddSecret))
	r.Mux.Handle("POST /v1/methods/external", r.authenticated(h.HandleLinkExternal, r.admin()))

	// Approve and reject check the approver themselves.
	r.Mux.Handle("POST /v1/methods/{id}/approve", r.authenticated(h.HandleApprove))
	r.Mux.Handle("POST /v1/methods/{id}/reject", r.authenticated(h.HandleReject))
	r.Mux.Handle("POST /v1/methods/{id}/enable", r.authenticated(h.HandleEnable))
	r.Mux.Handle("POST /v1/methods/{id}/disable", r.authenticated(h.HandleDisable))
	r.Mux.Handle("DELETE /v1/methods/{id}", r.authenticated(h.HandleRemove))
}

func (r *Router) registerIdentities() {
	h := &IdentitiesHandler{
		Identities: r.Identities,
		Methods:    r.Methods,
	}

	r.Mux.Handle("GET /v1/identities/me", r.authenticated(h.HandleGetMe))
	r.Mux.Handle("PUT /v1/identities/me", r.authenticated(h.HandleUpdateMe))

	r.Mux.Handle("GET /v1/identities", r.authenticated(h.HandleList, r.admin()))
	r.Mux.Handle("GET /v1/identities/{id}", r.authenticated(h.HandleGet, r.admin()))
	r.Mux.Handle("GET /v1/identities/{id}/methods", r.authenticated(h.HandleListMethods, r.admin()))
	r.Mux.Handle("POST /v1/identities/{id}/enable", r.authenticated(h.HandleEnable, r.admin()))
	r.Mux.Handle("POST /v1/identities/{id}/disable", r.authenticated(h.HandleDisable, r.admin()))
	r.Mux.Handle("POST /v1/identities/{id}/promote", r.authenticated(h.HandlePromote, r.admin()))
	r.Mux.Handle("POST /v1/identities/{id}/demote", r.authenticated(h.HandleDemote, r.admin()))
}

func (r *Router) registerKeys() {
	h := &KeysHandler{Keys: r.Keys}

	r.Mux.Handle("POST /v1/keys/rotate", r.authenticated(h.HandleRotate, r.admin()))
	r.Mux.Handle("GET /v1/keys", r.authenticated(h.HandleList, r.admin()))

	r.Mux.Handle("GET /.well-known/jwks.json",
		httpx.Chain(JWKSHandler(r.Keys),
			httpx.RateLimitByIP(r.Limits.Public),
		),
	)
}

func (r *Router) registerSystem() {
	// Monitoring systems may poll frequently.
	r.Mux.Handle("GET /livez",
		httpx.Chain(LivezHandler(r.startTime, r.buildVersion),
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)
	r.Mux.Handle("GET /readyz",
		httpx.Chain(ReadyzHandler(r.startTime, r.buildVersion, r.store, r.Tokens),
			httpx.RateLimitByIP(r.Limits.Lenient),
		),
	)

	if r.Metrics != nil {
		r.Mux.Handle("GET /metrics", r.Metrics.Handler())
	}
}
