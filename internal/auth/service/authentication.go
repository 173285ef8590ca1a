package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/pkg/idx"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
	"github.com/aussiebroadwan/hoa/pkg/webauthnx"
)

// BeginAuthenticationRequest starts an authentication in Scope. Username is
// an optional hint; without it the client picks a discoverable credential.
type BeginAuthenticationRequest struct {
	Username string
	Scope    string
}

// AuthenticationOptions is what the client needs to produce an assertion.
type AuthenticationOptions struct {
	Challenge        string                                     `json:"challenge"`
	Scope            string                                     `json:"scope"`
	AllowCredentials []protocol.URLEncodedBase64                `json:"allow_credentials"`
	UserVerification protocol.UserVerificationRequirement       `json:"user_verification"`
	PublicKey        protocol.PublicKeyCredentialRequestOptions `json:"public_key"`
}

// AuthenticationResult is the identity established by an assertion.
type AuthenticationResult struct {
	Identity domain.Identity
	Method   domain.AuthMethod
}

// BeginAuthentication issues an authentication challenge. An unknown hinted
// username gets a normal looking challenge with no allowed credentials so the
// response does not reveal which usernames exist.
func (s *CeremonyService) BeginAuthentication(ctx context.Context, req BeginAuthenticationRequest) (AuthenticationOptions, error) {
	rp, err := s.RelyingParties.Lookup(req.Scope)
	if err != nil {
		return AuthenticationOptions{}, err
	}

	issue := IssueChallengeRequest{
		Ceremony: domain.CeremonyAuthentication,
		Scope:    rp.ID,
	}

	var (
		allow      [][]byte
		transports [][]string
	)

	if username := strings.TrimSpace(req.Username); username != "" {
		ident, err := s.Store.Identities().GetIdentityByUsername(ctx, username)
		switch {
		case errors.Is(err, store.ErrNotFound):
			slogx.FromContext(ctx).Debug("authentication hint matched no identity", slog.String("scope", rp.ID))

		case err != nil:
			return AuthenticationOptions{}, err

		default:
			if !ident.Enabled {
				return AuthenticationOptions{}, ErrIdentityDisabled
			}

			methods, err := s.Store.AuthMethods().ListAuthMethodsByIdentity(ctx, ident.ID)
			if err != nil {
				return AuthenticationOptions{}, err
			}
			for _, m := range methods {
				cred, ok := m.Details.(domain.PublicKeyCredential)
				if !ok || !m.Usable() || cred.Scope != rp.ID {
					continue
				}
				allow = append(allow, cred.CredentialID)
				transports = append(transports, cred.Transports)
			}
			if len(allow) == 0 {
				return AuthenticationOptions{}, ErrNoUsableCredential
			}
			issue.IdentityID = ident.ID
		}
	}

	ch, err := s.Challenges.Issue(ctx, issue)
	if err != nil {
		return AuthenticationOptions{}, err
	}
	raw, err := ChallengeBytes(ch)
	if err != nil {
		return AuthenticationOptions{}, err
	}

	publicKey := webauthnx.RequestOptions(rp.ID, raw, allow, transports,
		ch.ExpiresAt.Sub(ch.CreatedAt), s.RequireUserVerification)

	recorderOrNop(s.Recorder).CeremonyOutcome(domain.CeremonyAuthentication, OutcomeBegun)

	return AuthenticationOptions{
		Challenge:        ch.Value,
		Scope:            rp.ID,
		AllowCredentials: publicKeyIDs(allow),
		UserVerification: publicKey.UserVerification,
		PublicKey:        publicKey,
	}, nil
}

// FinishAuthentication verifies an assertion and advances the credential's
// counter. Of several concurrent finishes on one challenge at most one
// succeeds.
func (s *CeremonyService) FinishAuthentication(ctx context.Context, proof webauthnx.AssertionProof) (AuthenticationResult, error) {
	run := startCeremony(ctx, domain.CeremonyAuthentication, s.Recorder)

	ch, raw, err := s.consumeFor(ctx, domain.CeremonyAuthentication, proof.ClientDataJSON)
	if err != nil {
		return AuthenticationResult{}, run.fail(err)
	}

	rp, err := s.RelyingParties.Lookup(ch.Scope)
	if err != nil {
		return AuthenticationResult{}, run.fail(err)
	}

	m, cred, err := s.resolveCredential(ctx, ch, proof)
	if err != nil {
		return AuthenticationResult{}, run.fail(err)
	}

	ident, err := s.Store.Identities().GetIdentityByID(ctx, m.IdentityID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return AuthenticationResult{}, run.fail(ErrUnknownCredential)
		}
		return AuthenticationResult{}, run.fail(err)
	}
	if err := checkPolicy(m, ident); err != nil {
		return AuthenticationResult{}, run.fail(err)
	}

	assertion, err := s.verifier(rp).VerifyAssertion(raw, cred.PublicKey, proof)
	if err != nil {
		if errors.Is(err, webauthnx.ErrSignatureInvalid) {
			security(ctx, s.Recorder, EventBadSignature, err,
				slog.String("ceremony", string(domain.CeremonyAuthentication)),
				slog.String("method_id", m.ID),
			)
		}
		return AuthenticationResult{}, run.fail(fmt.Errorf("%w: %w", ErrCredentialVerificationFailed, err))
	}

	if !counterAdvances(cred.SignCount, assertion.SignCount) {
		security(ctx, s.Recorder, EventReplay, ErrReplayDetected,
			slog.String("method_id", m.ID),
			slog.Uint64("stored", uint64(cred.SignCount)),
			slog.Uint64("submitted", uint64(assertion.SignCount)),
		)
		return AuthenticationResult{}, run.fail(ErrReplayDetected)
	}

	err = s.Store.AuthMethods().AdvanceSignCount(ctx, m.ID, assertion.SignCount, nowFunc(s.Now)())
	switch {
	case errors.Is(err, store.ErrConflict):
		// Another assertion advanced the counter between our read and write.
		security(ctx, s.Recorder, EventReplay, ErrReplayDetected, slog.String("method_id", m.ID))
		return AuthenticationResult{}, run.fail(ErrReplayDetected)
	case errors.Is(err, store.ErrNotFound):
		return AuthenticationResult{}, run.fail(ErrUnknownCredential)
	case err != nil:
		return AuthenticationResult{}, run.fail(err)
	}
	run.advance(stateVerified)

	cred.SignCount = assertion.SignCount
	m.Details = cred

	slogx.FromContext(ctx).Info("identity authenticated",
		slog.String("identity_id", ident.ID),
		slog.String("method_id", m.ID),
		slog.String("scope", rp.ID),
	)
	return AuthenticationResult{Identity: ident, Method: m}, nil
}

// resolveCredential finds the stored credential an assertion claims to use.
// Credentials outside the challenge's scope or bound identity are unknown.
func (s *CeremonyService) resolveCredential(ctx context.Context, ch domain.Challenge, proof webauthnx.AssertionProof) (domain.AuthMethod, domain.PublicKeyCredential, error) {
	if len(proof.ID) == 0 {
		return domain.AuthMethod{}, domain.PublicKeyCredential{}, fmt.Errorf("%w: %w", ErrCredentialVerificationFailed, webauthnx.ErrMalformedProof)
	}

	m, err := s.Store.AuthMethods().GetAuthMethodByCredentialID(ctx, proof.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthMethod{}, domain.PublicKeyCredential{}, ErrUnknownCredential
		}
		return domain.AuthMethod{}, domain.PublicKeyCredential{}, err
	}

	cred, ok := m.Details.(domain.PublicKeyCredential)
	if !ok || cred.Scope != ch.Scope {
		return domain.AuthMethod{}, domain.PublicKeyCredential{}, ErrUnknownCredential
	}
	if ch.IdentityID != "" && ch.IdentityID != m.IdentityID {
		return domain.AuthMethod{}, domain.PublicKeyCredential{}, ErrUnknownCredential
	}
	if len(proof.UserHandle) > 0 && !bytes.Equal(proof.UserHandle, idx.ID(m.IdentityID).Bytes()) {
		return domain.AuthMethod{}, domain.PublicKeyCredential{}, ErrUnknownCredential
	}
	return m, cred, nil
}

// counterAdvances applies the replay rule: the submitted counter must be
// strictly greater than the stored one, except that an authenticator which
// never counts reports zero every time.
func counterAdvances(stored, submitted uint32) bool {
	return submitted > stored || (stored == 0 && submitted == 0)
}
