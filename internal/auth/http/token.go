package http

import (
	"net/http"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/pkg/authsdk"
	"github.com/aussiebroadwan/hoa/pkg/httpx"
	"github.com/aussiebroadwan/hoa/pkg/jwtx"
)

// TokenHandler exchanges refresh tokens and non-ceremony credentials for
// signed tokens.
type TokenHandler struct {
	Tokens     *service.TokenService
	Methods    *service.AuthMethodService
	Identities *service.IdentityService
	Now        func() time.Time
}

// HandleRefresh godoc
//
//	@Summary		Refresh an access token
//	@Description	Exchanges a refresh token for an access token that expires no later than the refresh token.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.RefreshRequest	true	"Refresh token"
//	@Success		200		{object}	authsdk.Token
//	@Failure		400		{object}	authsdk.APIError	"Missing refresh token"
//	@Failure		401		{object}	authsdk.APIError	"Invalid or expired token"
//	@Router			/v1/token/refresh [post]
func (h *TokenHandler) HandleRefresh(w http.ResponseWriter, r *http.Request) {
	var req authsdk.RefreshRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	access, err := h.Tokens.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toToken(access, h.Now()))
}

// HandleSharedSecret godoc
//
//	@Summary	Sign in with a shared secret
//	@Tags		Tokens
//	@Accept		json
//	@Produce	json
//	@Param		request	body		authsdk.SharedSecretRequest	true	"Username and secret"
//	@Success	200		{object}	authsdk.TokenPair
//	@Failure	401		{object}	authsdk.APIError	"Invalid credentials"
//	@Failure	403		{object}	authsdk.APIError	"Identity disabled"
//	@Failure	429		{object}	authsdk.APIError	"Rate limit exceeded"
//	@Router		/v1/token/shared-secret [post]
func (h *TokenHandler) HandleSharedSecret(w http.ResponseWriter, r *http.Request) {
	var req authsdk.SharedSecretRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	ident, err := h.Methods.VerifySharedSecret(r.Context(), req.Username, req.Secret)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.issue(w, r, ident)
}

// HandleBearer godoc
//
//	@Summary		Sign in with a bearer token
//	@Description	The machine token travels in the Authorization header, never in the body.
//	@Tags			Tokens
//	@Produce		json
//	@Param			Authorization	header		string	true	"Bearer <machine token>"
//	@Success		200				{object}	authsdk.TokenPair
//	@Failure		401				{object}	authsdk.APIError	"Invalid or expired token"
//	@Failure		403				{object}	authsdk.APIError	"Identity disabled"
//	@Router			/v1/token/bearer [post]
func (h *TokenHandler) HandleBearer(w http.ResponseWriter, r *http.Request) {
	token, ok := httpx.BearerToken(r)
	if !ok {
		writeError(w, r, service.ErrInvalidCredentials)
		return
	}

	ident, err := h.Methods.VerifyBearerToken(r.Context(), token)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.issue(w, r, ident)
}

// HandleExternal godoc
//
//	@Summary		Sign in with an external identity
//	@Description	Exchanges a provider subject for the linked identity's tokens. The calling service has already verified the subject with the provider, so this is admin only.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Security		BearerAuth
//	@Param			request	body		authsdk.ExternalTokenRequest	true	"Provider and subject"
//	@Success		200		{object}	authsdk.TokenPair
//	@Failure		401		{object}	authsdk.APIError	"Subject is not linked"
//	@Failure		403		{object}	authsdk.APIError	"Caller is not an admin, or the method or identity is blocked"
//	@Router			/v1/token/external [post]
func (h *TokenHandler) HandleExternal(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ExternalTokenRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Provider == "" || req.Subject == "" {
		writeBadRequest(w, "provider and subject are required")
		return
	}

	ident, err := h.Methods.ResolveExternalIdentity(r.Context(), req.Provider, req.Subject)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.issue(w, r, ident)
}

// HandleValidate godoc
//
//	@Summary		Validate an access token
//	@Description	Reports whether an access token is currently valid and who it belongs to. An invalid token is a 200 with valid set to false.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			request	body		authsdk.ValidateTokenRequest	true	"Token to check"
//	@Success		200		{object}	authsdk.TokenValidation
//	@Failure		400		{object}	authsdk.APIError	"Missing token"
//	@Router			/v1/token/validate [post]
func (h *TokenHandler) HandleValidate(w http.ResponseWriter, r *http.Request) {
	var req authsdk.ValidateTokenRequest
	if err := httpx.DecodeJSON(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Token == "" {
		writeBadRequest(w, "token is required")
		return
	}

	claims, err := h.Tokens.Validate(r.Context(), req.Token, jwtx.KindAccess)
	if err != nil {
		apiErr := toAPIError(err)
		if apiErr.Status >= http.StatusInternalServerError {
			writeError(w, r, err)
			return
		}
		httpx.WriteJSON(w, http.StatusOK, authsdk.TokenValidation{Error: apiErr.Code})
		return
	}

	out := authsdk.TokenValidation{
		Valid:   true,
		Subject: claims.Subject,
		Issuer:  claims.Issuer,
		Kind:    string(claims.Kind),
	}
	if claims.IssuedAt != nil {
		out.IssuedAt = &claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		out.ExpiresAt = &claims.ExpiresAt.Time
	}
	httpx.WriteJSON(w, http.StatusOK, out)
}

// HandleBootstrap godoc
//
//	@Summary		Bootstrap the first admin
//	@Description	Creates or promotes an admin and signs it in. Only available when a bootstrap token is configured and no enabled admin exists. The new admin adds credentials with the returned access token.
//	@Tags			Tokens
//	@Accept			json
//	@Produce		json
//	@Param			Authorization	header		string						true	"Bearer <bootstrap token>"
//	@Param			request			body		authsdk.BootstrapRequest	false	"Admin username (default admin)"
//	@Success		200				{object}	authsdk.BootstrapResponse
//	@Failure		401				{object}	authsdk.APIError	"Wrong bootstrap token"
//	@Failure		404				{object}	authsdk.APIError	"Bootstrap not enabled"
//	@Failure		409				{object}	authsdk.APIError	"An admin already exists"
//	@Router			/v1/token/bootstrap [post]
func (h *TokenHandler) HandleBootstrap(w http.ResponseWriter, r *http.Request) {
	var req authsdk.BootstrapRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(w, r, &req); err != nil {
			writeBadRequest(w, err.Error())
			return
		}
	}
	token, _ := httpx.BearerToken(r)

	ident, err := h.Identities.Bootstrap(r.Context(), token, req.Username)
	if err != nil {
		writeError(w, r, err)
		return
	}

	pair, err := h.Tokens.IssueTokenPair(r.Context(), ident)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, authsdk.BootstrapResponse{
		Identity: toIdentityInfo(ident),
		Tokens:   toTokenPair(ident.ID, pair, h.Now()),
	})
}

func (h *TokenHandler) issue(w http.ResponseWriter, r *http.Request, ident domain.Identity) {
	pair, err := h.Tokens.IssueTokenPair(r.Context(), ident)
	if err != nil {
		writeError(w, r, err)
		return
	}
	httpx.WriteJSON(w, http.StatusOK, toTokenPair(ident.ID, pair, h.Now()))
}
