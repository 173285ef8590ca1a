package http

import (
	"errors"
	"net/http"

	"github.com/aussiebroadwan/hoa/internal/auth/service"
	"github.com/aussiebroadwan/hoa/pkg/authsdk"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
)

type errorMapping struct {
	err         error
	status      int
	code        string
	description string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{service.ErrInvalidRequest, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, "the request is invalid"},
	{service.ErrUnknownScope, http.StatusBadRequest, authsdk.ErrorCodeUnknownScope, "the scope is not a configured relying party"},
	{service.ErrChallengeNotFound, http.StatusBadRequest, authsdk.ErrorCodeChallengeNotFound, "the challenge was not issued"},
	{service.ErrChallengeExpired, http.StatusBadRequest, authsdk.ErrorCodeChallengeExpired, "the challenge has expired"},
	{service.ErrChallengeConsumed, http.StatusConflict, authsdk.ErrorCodeChallengeConsumed, "the challenge was already used"},
	{service.ErrCredentialVerificationFailed, http.StatusUnauthorized, authsdk.ErrorCodeVerificationFailed, "the credential could not be verified"},
	{service.ErrReplayDetected, http.StatusUnauthorized, authsdk.ErrorCodeReplayDetected, "the signature counter did not advance"},
	{service.ErrUnknownCredential, http.StatusUnauthorized, authsdk.ErrorCodeUnknownCredential, "the credential is not registered"},
	{service.ErrInvalidCredentials, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials, "invalid credentials"},
	{service.ErrDuplicateCredential, http.StatusConflict, authsdk.ErrorCodeDuplicateCredential, "the credential is already registered"},
	{service.ErrIdentityDisabled, http.StatusForbidden, authsdk.ErrorCodeIdentityDisabled, "the identity is disabled"},
	{service.ErrMethodDisabled, http.StatusForbidden, authsdk.ErrorCodeMethodDisabled, "the auth method is disabled"},
	{service.ErrMethodNotApproved, http.StatusForbidden, authsdk.ErrorCodeMethodNotApproved, "the auth method is awaiting approval"},
	{service.ErrNoUsableCredential, http.StatusForbidden, authsdk.ErrorCodeNoUsableCredential, "the identity has no usable credential"},
	{service.ErrNotAuthorized, http.StatusForbidden, authsdk.ErrorCodeNotAuthorized, "the caller may not perform this operation"},
	{service.ErrLastEnabledMethod, http.StatusConflict, authsdk.ErrorCodeLastEnabledMethod, "the identity must keep one usable method"},
	{service.ErrAlreadyApproved, http.StatusConflict, authsdk.ErrorCodeAlreadyApproved, "the auth method is already approved"},
	{service.ErrUsernameTaken, http.StatusConflict, authsdk.ErrorCodeUsernameTaken, "the username is taken"},
	{service.ErrAlreadyBootstrapped, http.StatusConflict, authsdk.ErrorCodeAlreadyBootstrapped, "an admin already exists"},
	{service.ErrBootstrapDisabled, http.StatusNotFound, authsdk.ErrorCodeNotFound, "bootstrap is not enabled"},
	{service.ErrIdentityNotFound, http.StatusNotFound, authsdk.ErrorCodeNotFound, "identity not found"},
	{service.ErrMethodNotFound, http.StatusNotFound, authsdk.ErrorCodeNotFound, "auth method not found"},
	{service.ErrKeyNotFound, http.StatusNotFound, authsdk.ErrorCodeNotFound, "signing key not found"},
	{service.ErrTokenExpired, http.StatusUnauthorized, authsdk.ErrorCodeTokenExpired, "the token has expired"},
	{service.ErrTokenMalformed, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "the token is invalid"},
	{service.ErrTokenSignatureInvalid, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "the token is invalid"},
	{service.ErrTokenWrongKind, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "the token is invalid"},
	{service.ErrTokenUnknownKey, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken, "the token is invalid"},
}

// toAPIError maps a service error to its wire form. Unknown errors become a
// 500 without detail.
func toAPIError(err error) *authsdk.APIError {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return authsdk.NewAPIError(m.status, m.code, m.description)
		}
	}
	return authsdk.NewAPIError(http.StatusInternalServerError, authsdk.ErrorCodeServerError, "internal error")
}

// writeError logs err and writes the mapped APIError.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	apiErr := toAPIError(err)

	logger := slogx.FromContext(r.Context())
	if apiErr.Status >= http.StatusInternalServerError {
		logger.Error("request failed", "error", err)
	} else {
		logger.Info("request refused", "code", apiErr.Code, "error", err)
	}

	apiErr.WriteError(w)
}

func writeBadRequest(w http.ResponseWriter, description string) {
	authsdk.NewAPIError(http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest, description).WriteError(w)
}
