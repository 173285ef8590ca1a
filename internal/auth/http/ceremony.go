package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/pkg/authsdk"
	"github.com/aussiebroadwan/hoa/pkg/httpx"
)

// CeremonyHandler serves the registration and authentication ceremonies.
type CeremonyHandler struct {
	Ceremonies *service.CeremonyService
	Tokens     *service.TokenService
	Now        func() time.Time
}

// HandleRegisterBegin godoc
//
//	@Summary		Begin registration
//	@Description	Issues a registration challenge. An unknown username gets a provisional identity that is only stored if the ceremony finishes. With an access token the credential is added to the caller and the username may be omitted.
//	@Tags			Ceremonies
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.BeginRegistrationRequest	true	"Username, display name and scope"
//	@Success		200		{object}	authsdk.RegistrationOptions
//	@Failure		400		{object}	authsdk.APIError	"Unknown scope or missing username"
//	@Failure		403		{object}	authsdk.APIError	"Username belongs to another identity"
//	@Router			/v1/register/begin [post]
func (h *CeremonyHandler) HandleRegisterBegin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.BeginRegistrationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	// A signed-in caller adding a credential need not repeat their username.
	if sub, ok := httpx.SubjectFromContext(r.Context()); ok && req.Username == "" {
		ident, err := h.Ceremonies.Store.Identities().GetIdentityByID(r.Context(), sub)
		if err != nil {
			writeError(w, r, service.ErrNotAuthorized)
			return
		}
		req.Username = ident.Username
	}

	opts, err := h.Ceremonies.BeginRegistration(r.Context(), service.BeginRegistrationRequest{
		Username:    req.Username,
		DisplayName: req.DisplayName,
		Scope:       req.Scope,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.RegistrationOptions{
		Challenge:          opts.Challenge,
		Scope:              opts.Scope,
		IdentityID:         opts.IdentityID,
		Provisional:        opts.Provisional,
		ExcludeCredentials: opts.ExcludeCredentials,
		UserVerification:   string(opts.UserVerification),
		PublicKey:          opts.PublicKey,
	})
}

// HandleRegisterFinish godoc
//
//	@Summary		Finish registration
//	@Description	Verifies the attestation and stores the credential. Tokens are only included when the new method is usable without approval.
//	@Tags			Ceremonies
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.FinishRegistrationRequest	true	"Authenticator attestation"
//	@Success		201		{object}	authsdk.RegistrationResponse
//	@Failure		400		{object}	authsdk.APIError	"Challenge unknown or expired"
//	@Failure		401		{object}	authsdk.APIError	"Attestation did not verify"
//	@Failure		409		{object}	authsdk.APIError	"Challenge used, credential or username taken"
//	@Router			/v1/register/finish [post]
func (h *CeremonyHandler) HandleRegisterFinish(w http.ResponseWriter, r *http.Request) {
	var req authsdk.FinishRegistrationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := h.Ceremonies.FinishRegistration(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	resp := authsdk.RegistrationResponse{
		IdentityID:      res.Identity.ID,
		Method:          toMethodInfo(res.Method),
		IdentityCreated: res.Created,
	}
	if res.Method.Usable() {
		pair, err := h.Tokens.IssueTokenPair(r.Context(), res.Identity)
		if err != nil {
			writeError(w, r, err)
			return
		}
		tokens := toTokenPair(res.Identity.ID, pair, h.Now())
		resp.Tokens = &tokens
	}

	httpx.WriteJSON(w, http.StatusCreated, resp)
}

// HandleAuthenticateBegin godoc
//
//	@Summary		Begin authentication
//	@Description	Issues an authentication challenge. Without a username the ceremony is discoverable.
//	@Tags			Ceremonies
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.BeginAuthenticationRequest	true	"Optional username and scope"
//	@Success		200		{object}	authsdk.AuthenticationOptions
//	@Failure		400		{object}	authsdk.APIError	"Unknown scope"
//	@Failure		403		{object}	authsdk.APIError	"No usable credential for the scope"
//	@Failure		429		{object}	authsdk.APIError	"Rate limit exceeded"
//	@Router			/v1/authenticate/begin [post]
func (h *CeremonyHandler) HandleAuthenticateBegin(w http.ResponseWriter, r *http.Request) {
	var req authsdk.BeginAuthenticationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	opts, err := h.Ceremonies.BeginAuthentication(r.Context(), service.BeginAuthenticationRequest{
		Username: req.Username,
		Scope:    req.Scope,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}

	httpx.WriteJSON(w, http.StatusOK, authsdk.AuthenticationOptions{
		Challenge:        opts.Challenge,
		Scope:            opts.Scope,
		AllowCredentials: opts.AllowCredentials,
		UserVerification: string(opts.UserVerification),
		PublicKey:        opts.PublicKey,
	})
}

// HandleAuthenticateFinish godoc
//
//	@Summary	Finish authentication
//	@Tags		Ceremonies
//	@Accept		json
//	@Produce	json
//	@Param		request	body		authsdk.FinishAuthenticationRequest	true	"Authenticator assertion"
//	@Success	200		{object}	authsdk.TokenPair
//	@Failure	401		{object}	authsdk.APIError	"Assertion did not verify, unknown credential or replay"
//	@Failure	403		{object}	authsdk.APIError	"Method or identity blocked"
//	@Failure	409		{object}	authsdk.APIError	"Challenge already used"
//	@Router		/v1/authenticate/finish [post]
func (h *CeremonyHandler) HandleAuthenticateFinish(w http.ResponseWriter, r *http.Request) {
	var req authsdk.FinishAuthenticationRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := h.Ceremonies.FinishAuthentication(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	pair, err := h.Tokens.IssueTokenPair(r.Context(), res.Identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTokenPair(res.Identity.ID, pair, h.Now()))
}
