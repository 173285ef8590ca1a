package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/pkg/authsdk"
	"github.com/aussiebroadwan/hoa/pkg/httpx"
)

// MethodsHandler manages auth methods. Callers act on their own methods;
// admins may act on anyone's.
type MethodsHandler struct {
	Methods *service.AuthMethodService
	Store   store.Store
}

// HandleList godoc
//
//	@Summary		List the caller's auth methods
//	@Description	Returns every method of the caller and how many of them can currently establish the identity.
//	@Tags			Methods
//	@Produce		json
//	@Security		BearerAuth
//	@Success		200	{object}	authsdk.MethodList
//	@Failure		401	{object}	authsdk.APIError	"Missing or invalid access token"
//	@Router			/v1/methods [get]
func (h *MethodsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sub, _ := httpx.SubjectFromContext(r.Context())

	list, err := methodList(r, h.Methods, sub)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, list)
}

// methodList loads the methods of identityID with the usable count.
func methodList(r *http.Request, methods *service.AuthMethodService, identityID string) (authsdk.MethodList, error) {
	all, err := methods.ListForIdentity(r.Context(), identityID)
	if err != nil {
		return authsdk.MethodList{}, err
	}
	n, err := methods.CountUsable(r.Context(), identityID)
	if err != nil {
		return authsdk.MethodList{}, err
	}
	return authsdk.MethodList{Methods: toMethodInfos(all), UsableCount: n}, nil
}

// HandlePending godoc
//
//	@Summary		List methods awaiting approval
//	@Description	Oldest first. Admin only.
//	@Tags			Methods
//	@Produce		json
//	@Security		BearerAuth
//	@Param			limit	query		int	false	"Page size (default 50)"
//	@Success		200		{array}		authsdk.MethodInfo
//	@Failure		400		{object}	authsdk.APIError	"Bad limit"
//	@Failure		403		{object}	authsdk.APIError	"Caller is not an admin"
//	@Router			/v1/methods/pending [get]
func (h *MethodsHandler) HandlePending(w http.ResponseWriter, r *http.Request) {
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}

	methods, err := h.Methods.ListPendingApprovals(r.Context(), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toMethodInfos(methods))
}

// HandleCreateToken godoc
//
//	@Summary		Mint a bearer token
//	@Description	Creates a machine token for the caller. The plaintext is returned once. Bearer tokens never wait for approval.
//	@Tags			Methods
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.CreateTokenRequest	true	"Description and optional lifetime"
//	@Success		201		{object}	authsdk.CreateTokenResponse
//	@Failure		400		{object}	authsdk.APIError	"Malformed body or negative lifetime"
//	@Failure		401		{object}	authsdk.APIError	"Missing or invalid access token"
//	@Router			/v1/methods/tokens [post]
func (h *MethodsHandler) HandleCreateToken(w http.ResponseWriter, r *http.Request) {
	var req authsdk.CreateTokenRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.TTLSeconds < 0 {
		writeBadRequest(w, "ttl_seconds must not be negative")
		return
	}
	sub, _ := httpx.SubjectFromContext(r.Context())

	m, token, err := h.Methods.AddBearerToken(r.Context(), sub, req.Description, time.Duration(req.TTLSeconds)*time.Second)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, authsdk.CreateTokenResponse{
		Method: toMethodInfo(m),
		Token:  token,
	})
}

// HandleAddSecret godoc
//
//	@Summary	Add a shared secret
//	@Tags		Methods
//	@Accept		json
//	@Produce	json
//	@Security	BearerAuth
//	@Param		request	body		authsdk.AddSharedSecretRequest	true	"The secret"
//	@Success	201		{object}	authsdk.MethodInfo
//	@Failure	400		{object}	authsdk.APIError	"Secret too short"
//	@Failure	401		{object}	authsdk.APIError	"Missing or invalid access token"
//	@Router		/v1/methods/secrets [post]
func (h *MethodsHandler) HandleAddSecret(w http.ResponseWriter, r *http.Request) {
	var req authsdk.AddSharedSecretRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	sub, _ := httpx.SubjectFromContext(r.Context())

	m, err := h.Methods.AddSharedSecret(r.Context(), sub, req.Secret)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toMethodInfo(m))
}

// HandleLinkExternal godoc
//
//	@Summary		Link an external identity
//	@Description	Binds a provider subject to an identity. Admin only, since the subject is asserted by the caller.
//	@Tags			Methods
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.LinkExternalIdentityRequest	true	"Identity and provider subject"
//	@Success		201		{object}	authsdk.MethodInfo
//	@Failure		400		{object}	authsdk.APIError	"Missing provider or subject"
//	@Failure		403		{object}	authsdk.APIError	"Caller is not an admin"
//	@Failure		409		{object}	authsdk.APIError	"Subject already linked"
//	@Router			/v1/methods/external [post]
func (h *MethodsHandler) HandleLinkExternal(w http.ResponseWriter, r *http.Request) {
	var req authsdk.LinkExternalIdentityRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	m, err := h.Methods.AddExternalIdentity(r.Context(), req.IdentityID, req.Provider, req.Subject, req.Email)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusCreated, toMethodInfo(m))
}

// HandleApprove godoc
//
//	@Summary	Approve a pending method
//	@Tags		Methods
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Method ULID"
//	@Success	204
//	@Failure	403	{object}	authsdk.APIError	"Caller is not an enabled admin"
//	@Failure	404	{object}	authsdk.APIError	"Method not found"
//	@Failure	409	{object}	authsdk.APIError	"Already approved"
//	@Router		/v1/methods/{id}/approve [post]
func (h *MethodsHandler) HandleApprove(w http.ResponseWriter, r *http.Request) {
	sub, _ := httpx.SubjectFromContext(r.Context())
	if err := h.Methods.Approve(r.Context(), r.PathValue("id"), sub); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleReject godoc
//
//	@Summary		Reject a pending method
//	@Description	Deletes a method that is still awaiting approval.
//	@Tags			Methods
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Method ULID"
//	@Success		204
//	@Failure		403	{object}	authsdk.APIError	"Caller is not an enabled admin"
//	@Failure		404	{object}	authsdk.APIError	"Method not found"
//	@Failure		409	{object}	authsdk.APIError	"Already approved"
//	@Router			/v1/methods/{id}/reject [post]
func (h *MethodsHandler) HandleReject(w http.ResponseWriter, r *http.Request) {
	sub, _ := httpx.SubjectFromContext(r.Context())
	if err := h.Methods.Reject(r.Context(), r.PathValue("id"), sub); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleEnable godoc
//
//	@Summary	Enable a method
//	@Tags		Methods
//	@Security	BearerAuth
//	@Param		id	path	string	true	"Method ULID"
//	@Success	204
//	@Failure	404	{object}	authsdk.APIError	"Method not found or not the caller's"
//	@Router		/v1/methods/{id}/enable [post]
func (h *MethodsHandler) HandleEnable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// HandleDisable godoc
//
//	@Summary		Disable a method
//	@Description	Refused when it is the last usable method of its identity.
//	@Tags			Methods
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Method ULID"
//	@Success		204
//	@Failure		404	{object}	authsdk.APIError	"Method not found or not the caller's"
//	@Failure		409	{object}	authsdk.APIError	"Last usable method"
//	@Router			/v1/methods/{id}/disable [post]
func (h *MethodsHandler) HandleDisable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *MethodsHandler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	m, err := h.owned(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Methods.SetEnabled(r.Context(), m.ID, enabled); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRemove godoc
//
//	@Summary		Remove a method
//	@Description	Refused when it is the last usable method of its identity.
//	@Tags			Methods
//	@Security		BearerAuth
//	@Param			id	path	string	true	"Method ULID"
//	@Success		204
//	@Failure		404	{object}	authsdk.APIError	"Method not found or not the caller's"
//	@Failure		409	{object}	authsdk.APIError	"Last usable method"
//	@Router			/v1/methods/{id} [delete]
func (h *MethodsHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	m, err := h.owned(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := h.Methods.Remove(r.Context(), m.ID); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// owned loads the method named in the path if the caller may manage it.
// Other identities' methods look absent to non-admins.
func (h *MethodsHandler) owned(r *http.Request) (domain.AuthMethod, error) {
	ctx := r.Context()
	sub, _ := httpx.SubjectFromContext(ctx)

	m, err := h.Methods.Get(ctx, r.PathValue("id"))
	if err != nil {
		return domain.AuthMethod{}, err
	}
	if m.IdentityID == sub {
		return m, nil
	}

	caller, err := callerIdentity(ctx, h.Store, sub)
	if err != nil {
		return domain.AuthMethod{}, err
	}
	if !caller.IsAdmin {
		return domain.AuthMethod{}, service.ErrMethodNotFound
	}
	return m, nil
}
