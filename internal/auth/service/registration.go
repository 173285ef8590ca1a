package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/pkg/idx"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
	"github.com/aussiebroadwan/hoa/pkg/webauthnx"
)

// CeremonyService runs the registration and authentication ceremonies.
type CeremonyService struct {
	Store          store.Store
	Challenges     *ChallengeCache
	Methods        *AuthMethodService
	RelyingParties RelyingParties

	// Resolver, when set, must resolve to the existing identity a new
	// credential is registered for.
	Resolver IdentityResolver

	AllowNoneAttestation    bool
	RequireUserVerification bool
	Recorder                Recorder
	Now                     func() time.Time
}

// BeginRegistrationRequest starts a registration for Username in Scope.
type BeginRegistrationRequest struct {
	Username    string
	DisplayName string
	Scope       string
}

// RegistrationOptions is what the client needs to create a credential.
type RegistrationOptions struct {
	Challenge          string                                      `json:"challenge"`
	Scope              string                                      `json:"scope"`
	IdentityID         string                                      `json:"identity_id"`
	Provisional        bool                                        `json:"provisional"`
	ExcludeCredentials []protocol.URLEncodedBase64                 `json:"exclude_credentials"`
	UserVerification   protocol.UserVerificationRequirement        `json:"user_verification"`
	PublicKey          protocol.PublicKeyCredentialCreationOptions `json:"public_key"`
}

// RegistrationResult is the outcome of a committed registration.
type RegistrationResult struct {
	Identity domain.Identity
	Method   domain.AuthMethod
	Created  bool // the identity was created by this ceremony
}

// BeginRegistration issues a registration challenge. An unknown username gets
// a provisional identity that is only persisted if the ceremony finishes.
func (s *CeremonyService) BeginRegistration(ctx context.Context, req BeginRegistrationRequest) (RegistrationOptions, error) {
	rp, err := s.RelyingParties.Lookup(req.Scope)
	if err != nil {
		return RegistrationOptions{}, err
	}

	username := strings.TrimSpace(req.Username)
	if username == "" {
		return RegistrationOptions{}, fmt.Errorf("%w: username is required", ErrInvalidRequest)
	}
	displayName := strings.TrimSpace(req.DisplayName)
	if displayName == "" {
		displayName = username
	}

	issue := IssueChallengeRequest{
		Ceremony: domain.CeremonyRegistration,
		Scope:    rp.ID,
	}

	var (
		exclude     [][]byte
		provisional bool
	)

	ident, err := s.Store.Identities().GetIdentityByUsername(ctx, username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		provisional = true
		ident = domain.Identity{ID: idx.New().String(), Username: username, DisplayName: displayName}
		issue.PendingUsername = username
		issue.PendingDisplayName = displayName

	case err != nil:
		return RegistrationOptions{}, err

	default:
		if !ident.Enabled {
			return RegistrationOptions{}, ErrIdentityDisabled
		}
		if s.Resolver != nil {
			if caller, ok := s.Resolver.ResolveIdentity(ctx); !ok || caller != ident.ID {
				return RegistrationOptions{}, ErrNotAuthorized
			}
		}

		methods, err := s.Store.AuthMethods().ListAuthMethodsByIdentity(ctx, ident.ID)
		if err != nil {
			return RegistrationOptions{}, err
		}
		for _, m := range methods {
			if cred, ok := m.Details.(domain.PublicKeyCredential); ok && cred.Scope == rp.ID {
				exclude = append(exclude, cred.CredentialID)
			}
		}
	}
	issue.IdentityID = ident.ID

	ch, err := s.Challenges.Issue(ctx, issue)
	if err != nil {
		return RegistrationOptions{}, err
	}
	raw, err := ChallengeBytes(ch)
	if err != nil {
		return RegistrationOptions{}, err
	}

	user := webauthnx.User{
		Handle:      idx.ID(ident.ID).Bytes(),
		Name:        ident.Username,
		DisplayName: ident.DisplayName,
	}
	publicKey := webauthnx.CreationOptions(rp.ID, rp.Name, user, raw, exclude,
		ch.ExpiresAt.Sub(ch.CreatedAt), s.RequireUserVerification, !s.AllowNoneAttestation)

	slogx.FromContext(ctx).Debug("registration begun",
		slog.String("scope", rp.ID),
		slog.String("identity_id", ident.ID),
		slog.Bool("provisional", provisional),
	)
	recorderOrNop(s.Recorder).CeremonyOutcome(domain.CeremonyRegistration, OutcomeBegun)

	return RegistrationOptions{
		Challenge:          ch.Value,
		Scope:              rp.ID,
		IdentityID:         ident.ID,
		Provisional:        provisional,
		ExcludeCredentials: publicKeyIDs(exclude),
		UserVerification:   publicKey.AuthenticatorSelection.UserVerification,
		PublicKey:          publicKey,
	}, nil
}

// FinishRegistration consumes the challenge named in the proof, verifies the
// proof and commits the credential, creating the identity if it was
// provisional.
func (s *CeremonyService) FinishRegistration(ctx context.Context, proof webauthnx.RegistrationProof) (RegistrationResult, error) {
	run := startCeremony(ctx, domain.CeremonyRegistration, s.Recorder)

	ch, raw, err := s.consumeFor(ctx, domain.CeremonyRegistration, proof.ClientDataJSON)
	if err != nil {
		return RegistrationResult{}, run.fail(err)
	}

	rp, err := s.RelyingParties.Lookup(ch.Scope)
	if err != nil {
		return RegistrationResult{}, run.fail(err)
	}

	cred, err := s.verifier(rp).VerifyRegistration(raw, proof)
	if err != nil {
		if errors.Is(err, webauthnx.ErrSignatureInvalid) {
			security(ctx, s.Recorder, EventBadSignature, err, slog.String("ceremony", string(domain.CeremonyRegistration)))
		}
		return RegistrationResult{}, run.fail(fmt.Errorf("%w: %w", ErrCredentialVerificationFailed, err))
	}
	run.advance(stateVerified)

	var result RegistrationResult
	err = s.Store.WithTx(ctx, func(tx store.Tx) error {
		// Checked up front so the common case never trips the constraint.
		if _, err := tx.AuthMethods().GetAuthMethodByCredentialID(ctx, cred.ID); err == nil {
			security(ctx, s.Recorder, EventDuplicateCred, ErrDuplicateCredential, slog.String("scope", rp.ID))
			return ErrDuplicateCredential
		} else if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		ident, created, err := s.identityForChallenge(ctx, tx, ch)
		if err != nil {
			return err
		}

		m := s.Methods.newMethod(ident.ID, domain.PublicKeyCredential{
			CredentialID: cred.ID,
			PublicKey:    cred.PublicKey,
			SignCount:    cred.SignCount,
			Transports:   cred.Transports,
			Scope:        rp.ID,
			AAGUID:       cred.AAGUID,
		})
		if err := s.Methods.create(ctx, tx.AuthMethods(), m); err != nil {
			return err
		}

		result = RegistrationResult{Identity: ident, Method: m, Created: created}
		return nil
	})
	if err != nil {
		return RegistrationResult{}, run.fail(err)
	}
	run.advance(stateCommitted)

	slogx.FromContext(ctx).Info("credential registered",
		slog.String("identity_id", result.Identity.ID),
		slog.String("method_id", result.Method.ID),
		slog.String("scope", rp.ID),
		slog.Bool("identity_created", result.Created),
		slog.Bool("approved", result.Method.Approved),
	)
	return result, nil
}

// identityForChallenge loads the identity a registration challenge is bound
// to, creating it when the challenge carried a provisional one.
func (s *CeremonyService) identityForChallenge(ctx context.Context, tx store.Tx, ch domain.Challenge) (domain.Identity, bool, error) {
	if !ch.IsProvisional() {
		ident, err := tx.Identities().GetIdentityByID(ctx, ch.IdentityID)
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return domain.Identity{}, false, ErrIdentityNotFound
			}
			return domain.Identity{}, false, err
		}
		if !ident.Enabled {
			return domain.Identity{}, false, ErrIdentityDisabled
		}
		return ident, false, nil
	}

	now := nowFunc(s.Now)()
	ident := domain.Identity{
		ID:          ch.IdentityID,
		Username:    ch.PendingUsername,
		DisplayName: ch.PendingDisplayName,
		Enabled:     true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := tx.Identities().CreateIdentity(ctx, ident); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			// Another ceremony claimed the username first.
			return domain.Identity{}, false, ErrUsernameTaken
		}
		return domain.Identity{}, false, err
	}
	return ident, true, nil
}

// consumeFor reads the challenge out of client data and consumes it. A
// challenge issued for the other ceremony is still burned.
func (s *CeremonyService) consumeFor(ctx context.Context, ceremony domain.Ceremony, clientDataJSON []byte) (domain.Challenge, []byte, error) {
	cd, err := webauthnx.ParseClientData(clientDataJSON)
	if err != nil {
		return domain.Challenge{}, nil, fmt.Errorf("%w: %w", ErrCredentialVerificationFailed, err)
	}

	ch, err := s.Challenges.Consume(ctx, ChallengeValue(cd.Challenge))
	if err != nil {
		return domain.Challenge{}, nil, err
	}
	if ch.Ceremony != ceremony {
		return domain.Challenge{}, nil, fmt.Errorf("%w: %w", ErrCredentialVerificationFailed, webauthnx.ErrCeremonyMismatch)
	}

	raw, err := ChallengeBytes(ch)
	if err != nil {
		return domain.Challenge{}, nil, err
	}
	return ch, raw, nil
}

func (s *CeremonyService) verifier(rp domain.RelyingParty) webauthnx.Verifier {
	return webauthnx.Verifier{
		RPID:                    rp.ID,
		Origins:                 rp.Origins,
		AllowNoneAttestation:    s.AllowNoneAttestation,
		RequireUserVerification: s.RequireUserVerification,
	}
}

func publicKeyIDs(ids [][]byte) []protocol.URLEncodedBase64 {
	out := make([]protocol.URLEncodedBase64, 0, len(ids))
	for _, id := range ids {
		out = append(out, id)
	}
	return out
}
