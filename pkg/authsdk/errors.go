package authsdk

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error codes carried in the "error" field of every failure response.
const (
	ErrorCodeInvalidRequest       = "invalid_request"
	ErrorCodeUnknownScope         = "unknown_scope"
	ErrorCodeChallengeNotFound    = "challenge_not_found"
	ErrorCodeChallengeExpired     = "challenge_expired"
	ErrorCodeChallengeConsumed    = "challenge_consumed"
	ErrorCodeVerificationFailed   = "credential_verification_failed"
	ErrorCodeDuplicateCredential  = "duplicate_credential"
	ErrorCodeUnknownCredential    = "unknown_credential"
	ErrorCodeReplayDetected       = "replay_detected"
	ErrorCodeInvalidCredentials   = "invalid_credentials"
	ErrorCodeIdentityDisabled     = "identity_disabled"
	ErrorCodeMethodDisabled       = "method_disabled"
	ErrorCodeMethodNotApproved    = "method_not_approved"
	ErrorCodeNoUsableCredential   = "no_usable_credential"
	ErrorCodeLastEnabledMethod    = "last_enabled_method"
	ErrorCodeAlreadyApproved      = "already_approved"
	ErrorCodeUsernameTaken        = "username_taken"
	ErrorCodeAlreadyBootstrapped  = "already_bootstrapped"
	ErrorCodeNotFound             = "not_found"
	ErrorCodeNotAuthorized        = "not_authorized"
	ErrorCodeInvalidToken         = "invalid_token"
	ErrorCodeTokenExpired         = "token_expired"
	ErrorCodeRateLimitExceeded    = "rate_limit_exceeded"
	ErrorCodeServerError          = "server_error"
	ErrorCodeUnexpectedStatusCode = "unexpected_status"
)

// APIError is the body of every failure response. The server writes it and
// the client returns it as an error.
type APIError struct {
	// Status is the HTTP status code. It is not part of the body.
	Status int `json:"-"`

	Code        string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

// NewAPIError returns an APIError with the given status, code and description.
func NewAPIError(status int, code, description string) *APIError {
	return &APIError{Status: status, Code: code, Description: description}
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// Is matches another APIError by code, so callers can write
// errors.Is(err, &authsdk.APIError{Code: authsdk.ErrorCodeReplayDetected}).
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	return ok && t.Code == e.Code
}

// WriteError writes e as a JSON response.
func (e *APIError) WriteError(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.Status)
	_ = json.NewEncoder(w).Encode(e)
}

// parseErrorResponse turns a non-success response into an *APIError.
func parseErrorResponse(resp *http.Response, body []byte) error {
	var apiErr APIError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Code != "" {
		apiErr.Status = resp.StatusCode
		return &apiErr
	}

	return &APIError{
		Status:      resp.StatusCode,
		Code:        ErrorCodeUnexpectedStatusCode,
		Description: fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode)),
	}
}
