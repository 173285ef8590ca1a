package http

import (
	"context"
	"net/http"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/pkg/authsdk"
	"github.com/aussiebroadwan/hoa/pkg/httpx"
)

// LivezHandler godoc
//
//	@Summary		Liveness check
//	@Description	Answers 200 for as long as the process serves requests.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse
//	@Router			/livez [get]
func LivezHandler(startTime time.Time, version string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteJSON(w, http.StatusOK, authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
		})
	}
}

// ReadyzHandler godoc
//
//	@Summary		Readiness check
//	@Description	Answers 503 until the database responds and the configured token family has a signing key. The first call may generate that key.
//	@Tags			Health
//	@Produce		json
//	@Success		200	{object}	authsdk.HealthResponse
//	@Failure		503	{object}	authsdk.HealthResponse
//	@Router			/readyz [get]
func ReadyzHandler(startTime time.Time, version string, st store.Store, tokens *service.TokenService) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := readiness(r.Context(), st, tokens)

		res := authsdk.HealthResponse{
			Status:  "ok",
			Uptime:  time.Since(startTime).String(),
			Version: version,
			Checks:  checks,
		}
		code := http.StatusOK
		if checks.Database != "ok" || checks.Signer != "ok" {
			res.Status = "degraded"
			code = http.StatusServiceUnavailable
		}
		httpx.WriteJSON(w, code, res)
	}
}

func readiness(ctx context.Context, st store.Store, tokens *service.TokenService) *authsdk.HealthChecks {
	if err := st.Ping(ctx); err != nil {
		return &authsdk.HealthChecks{Database: "error: " + err.Error(), Signer: "skipped"}
	}
	if _, _, err := tokens.Keys.Signer(ctx, tokens.SigningFamily()); err != nil {
		return &authsdk.HealthChecks{Database: "ok", Signer: "error: " + err.Error()}
	}
	return &authsdk.HealthChecks{Database: "ok", Signer: "ok"}
}
