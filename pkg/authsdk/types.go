package authsdk

import (
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/aussiebroadwan/hoa/pkg/jwtx"
	"github.com/aussiebroadwan/hoa/pkg/webauthnx"
)

// ============================================================================
// Ceremonies
// ============================================================================

// BeginRegistrationRequest starts a registration ceremony. An existing
// username requires that identity's bearer token; with a token Username may
// be omitted.
type BeginRegistrationRequest struct {
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
	Scope       string `json:"scope"`
}

// RegistrationOptions is handed to navigator.credentials.create.
type RegistrationOptions struct {
	Challenge          string                                      `json:"challenge"`
	Scope              string                                      `json:"scope"`
	IdentityID         string                                      `json:"identity_id"`
	Provisional        bool                                        `json:"provisional"`
	ExcludeCredentials []protocol.URLEncodedBase64                 `json:"exclude_credentials"`
	UserVerification   string                                      `json:"user_verification"`
	PublicKey          protocol.PublicKeyCredentialCreationOptions `json:"public_key"`
}

// FinishRegistrationRequest is the authenticator's response.
type FinishRegistrationRequest = webauthnx.RegistrationProof

// RegistrationResponse reports the stored credential. Tokens are only
// issued when the new method is usable straight away.
type RegistrationResponse struct {
	IdentityID      string     `json:"identity_id"`
	Method          MethodInfo `json:"method"`
	IdentityCreated bool       `json:"identity_created"`
	Tokens          *TokenPair `json:"tokens,omitempty"`
}

// BeginAuthenticationRequest starts an authentication ceremony. Without a
// username the ceremony is discoverable.
type BeginAuthenticationRequest struct {
	Username string `json:"username,omitempty"`
	Scope    string `json:"scope"`
}

// AuthenticationOptions is handed to navigator.credentials.get.
type AuthenticationOptions struct {
	Challenge        string                                     `json:"challenge"`
	Scope            string                                     `json:"scope"`
	AllowCredentials []protocol.URLEncodedBase64                `json:"allow_credentials"`
	UserVerification string                                     `json:"user_verification"`
	PublicKey        protocol.PublicKeyCredentialRequestOptions `json:"public_key"`
}

// FinishAuthenticationRequest is the authenticator's assertion.
type FinishAuthenticationRequest = webauthnx.AssertionProof

// ============================================================================
// Tokens
// ============================================================================

// Token is one signed token.
type Token struct {
	Token     string    `json:"token"`
	TokenType string    `json:"token_type"`
	ExpiresAt time.Time `json:"expires_at"`
	ExpiresIn int64     `json:"expires_in"`
	Kid       string    `json:"kid"`
}

// TokenPair is returned whenever an identity is established.
type TokenPair struct {
	IdentityID string `json:"identity_id"`
	Access     Token  `json:"access"`
	Refresh    Token  `json:"refresh"`
}

// RefreshRequest exchanges a refresh token for an access token.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// SharedSecretRequest establishes an identity with a username and secret.
type SharedSecretRequest struct {
	Username string `json:"username"`
	Secret   string `json:"secret"`
}

// ExternalTokenRequest exchanges a provider subject, already verified by the
// calling service, for the linked identity's tokens.
type ExternalTokenRequest struct {
	Provider string `json:"provider"`
	Subject  string `json:"subject"`
}

// BootstrapRequest names the first admin. Empty means "admin".
type BootstrapRequest struct {
	Username string `json:"username,omitempty"`
}

// BootstrapResponse carries the admin and its tokens.
type BootstrapResponse struct {
	Identity IdentityInfo `json:"identity"`
	Tokens   TokenPair    `json:"tokens"`
}

// ValidateTokenRequest asks whether an access token is currently valid.
type ValidateTokenRequest struct {
	Token string `json:"token"`
}

// TokenValidation reports the outcome of a validation. Error holds an error
// code when Valid is false.
type TokenValidation struct {
	Valid     bool       `json:"valid"`
	Subject   string     `json:"subject,omitempty"`
	Issuer    string     `json:"issuer,omitempty"`
	Kind      string     `json:"kind,omitempty"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// ============================================================================
// Identities
// ============================================================================

// IdentityInfo describes an identity.
type IdentityInfo struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	DisplayName string    `json:"display_name"`
	Enabled     bool      `json:"enabled"`
	IsAdmin     bool      `json:"is_admin"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// UpdateProfileRequest changes the caller's profile. An empty display name
// resets it to the username.
type UpdateProfileRequest struct {
	DisplayName string `json:"display_name"`
}

// ============================================================================
// Auth methods
// ============================================================================

// MethodInfo describes an auth method without its secret material.
type MethodInfo struct {
	ID               string     `json:"id"`
	IdentityID       string     `json:"identity_id"`
	Kind             string     `json:"kind"`
	Enabled          bool       `json:"enabled"`
	RequiresApproval bool       `json:"requires_approval"`
	Approved         bool       `json:"approved"`
	ApprovedBy       string     `json:"approved_by,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	LastUsedAt       *time.Time `json:"last_used_at,omitempty"`

	// Variant details, set according to Kind.
	Scope       string     `json:"scope,omitempty"`
	Transports  []string   `json:"transports,omitempty"`
	Provider    string     `json:"provider,omitempty"`
	Subject     string     `json:"subject,omitempty"`
	Description string     `json:"description,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// MethodList is an identity's methods together with how many of them can
// currently establish it.
type MethodList struct {
	Methods     []MethodInfo `json:"methods"`
	UsableCount int          `json:"usable_count"`
}

// CreateTokenRequest mints a bearer token for the caller.
type CreateTokenRequest struct {
	Description string `json:"description"`
	TTLSeconds  int64  `json:"ttl_seconds,omitempty"` // 0 never expires
}

// CreateTokenResponse carries the plaintext token, which is never shown again.
type CreateTokenResponse struct {
	Method MethodInfo `json:"method"`
	Token  string     `json:"token"`
}

// AddSharedSecretRequest attaches a shared secret to the caller.
type AddSharedSecretRequest struct {
	Secret string `json:"secret"`
}

// LinkExternalIdentityRequest links a provider subject to an identity.
type LinkExternalIdentityRequest struct {
	IdentityID string `json:"identity_id"`
	Provider   string `json:"provider"`
	Subject    string `json:"subject"`
	Email      string `json:"email,omitempty"`
}

// ============================================================================
// Keys
// ============================================================================

// RotateKeyRequest selects the key family to rotate. Empty means asymmetric.
type RotateKeyRequest struct {
	Family string `json:"family,omitempty"`
}

// SigningKeyInfo describes a signing key without its private half.
type SigningKeyInfo struct {
	ID        string     `json:"id"`
	Kid       string     `json:"kid"`
	Family    string     `json:"family"`
	Algorithm string     `json:"algorithm"`
	Active    bool       `json:"active"`
	CreatedAt time.Time  `json:"created_at"`
	RotatedAt *time.Time `json:"rotated_at,omitempty"`
	ExpiresAt time.Time  `json:"expires_at"`
}

// JWKSResponse is the JSON Web Key Set served for token verification.
type JWKSResponse = jwtx.JWKS

// ============================================================================
// Health
// ============================================================================

// HealthResponse is returned by /livez and /readyz.
type HealthResponse struct {
	Status  string        `json:"status"`
	Uptime  string        `json:"uptime"`
	Version string        `json:"version"`
	Checks  *HealthChecks `json:"checks,omitempty"`
}

// HealthChecks reports the dependencies /readyz looks at.
type HealthChecks struct {
	Database string `json:"database"`
	Signer   string `json:"signer"`
}
