package http

import (
	"net/http"
	"strconv"

	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/pkg/authsdk"
	"github.com/aussiebroadwan/hoa/pkg/httpx"
)

// IdentitiesHandler serves the caller's profile and identity administration.
type IdentitiesHandler struct {
	Identities *service.IdentityService
	Methods    *service.AuthMethodService
}

// HandleGetMe godoc
//
//	@Summary		Get the caller's profile
//	@Tags			Identities
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.IdentityInfo
//	@Failure		401	{object}	authsdk.APIError	"Missing or invalid access token"
//	@Failure		404	{object}	authsdk.APIError	"Identity no longer exists"
//	@Router			/v1/identities/me [get]
func (h *IdentitiesHandler) HandleGetMe(w http.ResponseWriter, r *http.Request) {
	sub, _ := httpx.SubjectFromContext(r.Context())

	ident, err := h.Identities.Get(r.Context(), sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toIdentityInfo(ident))
}

// HandleUpdateMe godoc
//
//	@Summary		Update the caller's profile
//	@Description	Replaces the display name. An empty name resets it to the username.
//	@Tags			Identities
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.UpdateProfileRequest	true	"New profile"
//	@Success		200		{object}	authsdk.IdentityInfo
//	@Failure		400		{object}	authsdk.APIError	"Malformed body or display name too long"
//	@Failure		401		{object}	authsdk.APIError	"Missing or invalid access token"
//	@Router			/v1/identities/me [put]
func (h *IdentitiesHandler) HandleUpdateMe(w http.ResponseWriter, r *http.Request) {
	var req authsdk.UpdateProfileRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	sub, _ := httpx.SubjectFromContext(r.Context())

	ident, err := h.Identities.UpdateProfile(r.Context(), sub, req.DisplayName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toIdentityInfo(ident))
}

// HandleList godoc
//
//	@Summary		List identities
//	@Description	Pages through every identity, oldest first. Admin only.
//	@Tags			Identities
//	@Produce		json
//	@Security		BearerAuth
//	@Param			limit	query		int	false	"Page size (default 100)"
//	@Param			offset	query		int	false	"Identities to skip"
//	@Success		200		{array}		authsdk.IdentityInfo
//	@Failure		400		{object}	authsdk.APIError	"Bad limit or offset"
//	@Failure		403		{object}	authsdk.APIError	"Caller is not an admin"
//	@Router			/v1/identities [get]
func (h *IdentitiesHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	offset, ok := queryInt(w, r, "offset")
	if !ok {
		return
	}

	idents, err := h.Identities.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}

	out := make([]authsdk.IdentityInfo, len(idents))
	for i, ident := range idents {
		out[i] = toIdentityInfo(ident)
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleGet godoc
//
//	@Summary		Get an identity
//	@Tags			Identities
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Identity ULID"
//	@Success		200	{object}	authsdk.IdentityInfo
//	@Failure		403	{object}	authsdk.APIError	"Caller is not an admin"
//	@Failure		404	{object}	authsdk.APIError	"Identity not found"
//	@Router			/v1/identities/{id} [get]
func (h *IdentitiesHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ident, err := h.Identities.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toIdentityInfo(ident))
}

// HandleListMethods godoc
//
//	@Summary		List an identity's auth methods
//	@Tags			Identities
//	@Produce		json
//	@Security		BearerAuth
//	@Param			id	path		string	true	"Identity ULID"
//	@Success		200	{object}	authsdk.MethodList
//	@Failure		403	{object}	authsdk.APIError	"Caller is not an admin"
//	@Failure		404	{object}	authsdk.APIError	"Identity not found"
//	@Router			/v1/identities/{id}/methods [get]
func (h *IdentitiesHandler) HandleListMethods(w http.ResponseWriter, r *http.Request) {
	ident, err := h.Identities.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	list, err := methodList(r, h.Methods, ident.ID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// HandleEnable godoc
//
//	@Summary	Enable an identity
//	@Tags		Identities
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Identity ULID"
//	@Success	204
//	@Failure	403	{object}	authsdk.APIError	"Caller is not an admin"
//	@Failure	404	{object}	authsdk.APIError	"Identity not found"
//	@Router		/v1/identities/{id}/enable [post]
func (h *IdentitiesHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, func(id string) error { return h.Identities.SetEnabled(r.Context(), id, true) }, false)
}

// HandleDisable godoc
//
//	@Summary		Disable an identity
//	@Description	A disabled identity keeps its methods but cannot sign in or be issued tokens. Admins cannot disable themselves.
//	@Tags			Identities
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Identity ULID"
//	@Success		204
//	@Failure		400	{object}	authsdk.APIError	"Caller targeted themselves"
//	@Failure		403	{object}	authsdk.APIError	"Caller is not an admin"
//	@Failure		404	{object}	authsdk.APIError	"Identity not found"
//	@Router			/v1/identities/{id}/disable [post]
func (h *IdentitiesHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, func(id string) error { return h.Identities.SetEnabled(r.Context(), id, false) }, true)
}

// HandlePromote godoc
//
//	@Summary	Grant admin
//	@Tags		Identities
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Identity ULID"
//	@Success	204
//	@Failure	403	{object}	authsdk.APIError	"Caller is not an admin"
//	@Failure	404	{object}	authsdk.APIError	"Identity not found"
//	@Router		/v1/identities/{id}/promote [post]
func (h *IdentitiesHandler) HandlePromote(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, func(id string) error { return h.Identities.SetAdmin(r.Context(), id, true) }, false)
}

// HandleDemote godoc
//
//	@Summary		Revoke admin
//	@Description	Admins cannot demote themselves.
//	@Tags			Identities
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Identity ULID"
//	@Success		204
//	@Failure		400	{object}	authsdk.APIError	"Caller targeted themselves"
//	@Failure		403	{object}	authsdk.APIError	"Caller is not an admin"
//	@Failure		404	{object}	authsdk.APIError	"Identity not found"
//	@Router			/v1/identities/{id}/demote [post]
func (h *IdentitiesHandler) HandleDemote(w http.ResponseWriter, r *http.Request) {
	h.change(w, r, func(id string) error { return h.Identities.SetAdmin(r.Context(), id, false) }, true)
}

// change applies fn to the identity in the path. notSelf refuses changes an
// admin could lock themselves out with.
func (h *IdentitiesHandler) change(w http.ResponseWriter, r *http.Request, fn func(id string) error, notSelf bool) {
	id := r.PathValue("id")
	if sub, _ := httpx.SubjectFromContext(r.Context()); notSelf && sub == id {
		writeBadRequest(w, "admins cannot disable or demote themselves")
		return
	}
	if err := fn(id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// queryInt reads an optional non-negative integer query parameter. It writes
// the error response itself and reports false when the value is bad.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		writeBadRequest(w, name+" must be a non-negative integer")
		return 0, false
	}
	return n, true
}
