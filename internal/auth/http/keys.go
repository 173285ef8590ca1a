package http

import (
	"net/http"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/pkg/authsdk"
	"github.com/aussiebroadwan/hoa/pkg/httpx"
)

// KeysHandler exposes signing key administration. Both routes are admin only.
type KeysHandler struct {
	Keys *service.KeyManager
}

// HandleRotate godoc
//
//	@Summary		Rotate a signing key
//	@Description	Activates a new key for the family. The previous key stays available for verification until it expires.
//	@Tags			Keys
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.RotateKeyRequest	false	"Key family (default asymmetric)"
//	@Success		200		{object}	authsdk.SigningKeyInfo
//	@Failure		400		{object}	authsdk.APIError	"Unknown family"
//	@Failure		403		{object}	authsdk.APIError	"Caller is not an admin"
//	@Router			/v1/keys/rotate [post]
func (h *KeysHandler) HandleRotate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RotateKeyRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}

	family := domain.KeyFamily(req.Family)
	if family == "" {
		family = domain.FamilyAsymmetric
	}

	key, err := h.Keys.Rotate(r.Context(), family)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toSigningKeyInfo(key))
}

// HandleList godoc
//
//	@Summary	List signing keys
//	@Tags		Keys
//	@Produce	json
//	@Security	BearerAuth
//	@Success	200	{array}		authsdk.SigningKeyInfo
//	@Failure	403	{object}	authsdk.APIError	"Caller is not an admin"
//	@Router		/v1/keys [get]
func (h *KeysHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	keys, err := h.Keys.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]authsdk.SigningKeyInfo, len(keys))
	for i, k := range keys {
		out[i] = toSigningKeyInfo(k)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}
