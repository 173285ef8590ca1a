package service

import "errors"

// Caller errors.
var (
	ErrInvalidRequest    = errors.New("invalid_request")
	ErrUnknownScope      = errors.New("unknown_scope")
	ErrChallengeNotFound = errors.New("challenge_not_found")
	ErrChallengeExpired  = errors.New("challenge_expired")
	ErrChallengeConsumed = errors.New("challenge_consumed")
	ErrUnknownCredential = errors.New("unknown_credential")
	ErrIdentityNotFound  = errors.New("identity_not_found")
	ErrMethodNotFound    = errors.New("method_not_found")
	ErrUsernameTaken     = errors.New("username_taken")
)

// Policy errors. These are kept apart from verification failures so callers
// can tell a blocked account from a bad proof.
var (
	ErrIdentityDisabled   = errors.New("identity_disabled")
	ErrMethodDisabled     = errors.New("method_disabled")
	ErrMethodNotApproved  = errors.New("method_not_approved")
	ErrNoUsableCredential = errors.New("no_usable_credential")
	ErrLastEnabledMethod  = errors.New("last_enabled_method")
	ErrAlreadyApproved    = errors.New("already_approved")
	ErrNotAuthorized      = errors.New("not_authorized")

	ErrBootstrapDisabled   = errors.New("bootstrap_disabled")
	ErrAlreadyBootstrapped = errors.New("already_bootstrapped")
)

// Security-relevant errors. Each is logged with an event attribute and
// counted when it occurs.
var (
	ErrCredentialVerificationFailed = errors.New("credential_verification_failed")
	ErrDuplicateCredential          = errors.New("duplicate_credential")
	ErrReplayDetected               = errors.New("replay_detected")
	ErrInvalidCredentials           = errors.New("invalid_credentials")
)

// Token and key errors.
var (
	ErrKeyNotFound           = errors.New("key_not_found")
	ErrTokenMalformed        = errors.New("token_malformed")
	ErrTokenSignatureInvalid = errors.New("token_signature_invalid")
	ErrTokenExpired          = errors.New("token_expired")
	ErrTokenWrongKind        = errors.New("token_wrong_kind")
	ErrTokenUnknownKey       = errors.New("token_unknown_key")
)
