package http

import (
	"encoding/json"
	"net/http"

	"github.com/aussiebroadwan/hoa/internal/auth/service"
)

// JWKSHandler godoc
//
//	@Summary		JSON Web Key Set
//	@Description	Public keys for token verification. Symmetric keys are never published, so the set may be empty.
//	@Tags			Keys
//	@Produce		json
//	@Success		200	{object}	authsdk.JWKSResponse
//	@Router			/.well-known/jwks.json [get]
func JWKSHandler(keys *service.KeyManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		set, err := keys.PublicKeySet(r.Context())
		if err != nil {
			writeError(w, r, err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "public, max-age=300")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(set)
	}
}
