package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
	"github.com/aussiebroadwan/hoa/pkg/cryptox"
	"github.com/aussiebroadwan/hoa/pkg/idx"
	"github.com/aussiebroadwan/hoa/pkg/slogx"
)

// DefaultPendingLimit caps ListPendingApprovals when no limit is given.
const DefaultPendingLimit = 50

// MinSharedSecretLength is the shortest shared secret accepted on add.
const MinSharedSecretLength = 8

// AuthMethodService manages the credential set of each identity, the
// approval workflow and the rule that an identity always keeps at least one
// usable method.
type AuthMethodService struct {
	Store           store.Store
	Hasher          *cryptox.SecretHasher
	RequireApproval bool
	Recorder        Recorder
	Now             func() time.Time

	dummyOnce sync.Once
	dummyHash string
}

// requiresApproval applies the approval policy to a new method. Bearer
// tokens are minted by an already established identity and never wait.
func (s *AuthMethodService) requiresApproval(kind domain.MethodKind) bool {
	return s.RequireApproval && kind != domain.KindBearerToken
}

// newMethod builds an unsaved method for identityID.
func (s *AuthMethodService) newMethod(identityID string, details domain.MethodDetails) domain.AuthMethod {
	requires := s.requiresApproval(details.Kind())
	return domain.AuthMethod{
		ID:               idx.New().String(),
		IdentityID:       identityID,
		Enabled:          true,
		RequiresApproval: requires,
		Approved:         !requires,
		CreatedAt:        nowFunc(s.Now)(),
		Details:          details,
	}
}

// create stores m through repo, which may belong to a transaction.
func (s *AuthMethodService) create(ctx context.Context, repo store.AuthMethods, m domain.AuthMethod) error {
	if err := repo.CreateAuthMethod(ctx, m); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			security(ctx, s.Recorder, EventDuplicateCred, err,
				slog.String("identity_id", m.IdentityID),
				slog.String("kind", string(m.Kind())),
			)
			return ErrDuplicateCredential
		}
		return fmt.Errorf("create auth method: %w", err)
	}
	return nil
}

func (s *AuthMethodService) add(ctx context.Context, identityID string, details domain.MethodDetails) (domain.AuthMethod, error) {
	if _, err := s.identity(ctx, identityID); err != nil {
		return domain.AuthMethod{}, err
	}

	m := s.newMethod(identityID, details)
	if err := s.create(ctx, s.Store.AuthMethods(), m); err != nil {
		return domain.AuthMethod{}, err
	}

	slogx.FromContext(ctx).Info("auth method added",
		slog.String("identity_id", identityID),
		slog.String("method_id", m.ID),
		slog.String("kind", string(m.Kind())),
		slog.Bool("approved", m.Approved),
	)
	return m, nil
}

// AddPublicKeyCredential attaches an already verified credential.
func (s *AuthMethodService) AddPublicKeyCredential(ctx context.Context, identityID string, cred domain.PublicKeyCredential) (domain.AuthMethod, error) {
	if len(cred.CredentialID) == 0 || len(cred.PublicKey) == 0 || cred.Scope == "" {
		return domain.AuthMethod{}, ErrInvalidRequest
	}
	return s.add(ctx, identityID, cred)
}

// AddSharedSecret hashes secret and attaches it.
func (s *AuthMethodService) AddSharedSecret(ctx context.Context, identityID, secret string) (domain.AuthMethod, error) {
	if len(secret) < MinSharedSecretLength {
		return domain.AuthMethod{}, fmt.Errorf("%w: secret shorter than %d", ErrInvalidRequest, MinSharedSecretLength)
	}

	hash, err := s.Hasher.Hash(secret)
	if err != nil {
		return domain.AuthMethod{}, fmt.Errorf("hash secret: %w", err)
	}
	return s.add(ctx, identityID, domain.SharedSecret{SecretHash: hash})
}

// AddExternalIdentity links a subject at an external provider.
func (s *AuthMethodService) AddExternalIdentity(ctx context.Context, identityID, provider, subject, email string) (domain.AuthMethod, error) {
	provider = strings.TrimSpace(provider)
	subject = strings.TrimSpace(subject)
	if provider == "" || subject == "" {
		return domain.AuthMethod{}, ErrInvalidRequest
	}
	return s.add(ctx, identityID, domain.ExternalIdentity{
		Provider: provider,
		Subject:  subject,
		Email:    strings.TrimSpace(email),
	})
}

// AddBearerToken mints a 256-bit token for identityID. The plaintext is
// returned once and only its fingerprint is stored. A zero ttl never expires.
func (s *AuthMethodService) AddBearerToken(ctx context.Context, identityID, description string, ttl time.Duration) (domain.AuthMethod, string, error) {
	token, err := cryptox.GenerateToken(cryptox.TokenSize256)
	if err != nil {
		return domain.AuthMethod{}, "", err
	}

	details := domain.BearerToken{
		TokenHash:   cryptox.FingerprintToken(token),
		Description: strings.TrimSpace(description),
	}
	if ttl > 0 {
		exp := nowFunc(s.Now)().Add(ttl)
		details.ExpiresAt = &exp
	}

	m, err := s.add(ctx, identityID, details)
	if err != nil {
		return domain.AuthMethod{}, "", err
	}
	return m, token, nil
}

// Get returns a method by id.
func (s *AuthMethodService) Get(ctx context.Context, methodID string) (domain.AuthMethod, error) {
	m, err := s.Store.AuthMethods().GetAuthMethodByID(ctx, methodID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.AuthMethod{}, ErrMethodNotFound
		}
		return domain.AuthMethod{}, err
	}
	return m, nil
}

// Approve marks a pending method approved. The approver must be an enabled
// admin.
func (s *AuthMethodService) Approve(ctx context.Context, methodID, approverID string) error {
	if err := s.checkApprover(ctx, approverID); err != nil {
		return err
	}

	err := s.Store.AuthMethods().ApproveAuthMethod(ctx, methodID, approverID, nowFunc(s.Now)())
	switch {
	case errors.Is(err, store.ErrConflict):
		return ErrAlreadyApproved
	case errors.Is(err, store.ErrNotFound):
		return ErrMethodNotFound
	case err != nil:
		return fmt.Errorf("approve auth method: %w", err)
	}

	slogx.FromContext(ctx).Info("auth method approved",
		slog.String("method_id", methodID),
		slog.String("approver_id", approverID),
	)
	return nil
}

// Reject deletes a method that is still awaiting approval.
func (s *AuthMethodService) Reject(ctx context.Context, methodID, approverID string) error {
	if err := s.checkApprover(ctx, approverID); err != nil {
		return err
	}

	err := s.Store.AuthMethods().DeletePendingAuthMethod(ctx, methodID)
	switch {
	case errors.Is(err, store.ErrConflict):
		return ErrAlreadyApproved
	case errors.Is(err, store.ErrNotFound):
		return ErrMethodNotFound
	case err != nil:
		return fmt.Errorf("reject auth method: %w", err)
	}

	slogx.FromContext(ctx).Info("auth method rejected",
		slog.String("method_id", methodID),
		slog.String("approver_id", approverID),
	)
	return nil
}

func (s *AuthMethodService) checkApprover(ctx context.Context, approverID string) error {
	approver, err := s.Store.Identities().GetIdentityByID(ctx, approverID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotAuthorized
		}
		return err
	}
	if !approver.Enabled || !approver.IsAdmin {
		return ErrNotAuthorized
	}
	return nil
}

// SetEnabled enables or disables a method. Disabling the last usable method
// of an identity fails with ErrLastEnabledMethod.
func (s *AuthMethodService) SetEnabled(ctx context.Context, methodID string, enabled bool) error {
	err := s.Store.AuthMethods().SetAuthMethodEnabledGuarded(ctx, methodID, enabled, nowFunc(s.Now)())
	if err := guardedError(err); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("auth method enablement changed",
		slog.String("method_id", methodID),
		slog.Bool("enabled", enabled),
	)
	return nil
}

// Remove deletes a method unless it is the last usable one.
func (s *AuthMethodService) Remove(ctx context.Context, methodID string) error {
	err := s.Store.AuthMethods().DeleteAuthMethodGuarded(ctx, methodID, nowFunc(s.Now)())
	if err := guardedError(err); err != nil {
		return err
	}

	slogx.FromContext(ctx).Info("auth method removed", slog.String("method_id", methodID))
	return nil
}

func guardedError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, store.ErrConflict):
		return ErrLastEnabledMethod
	case errors.Is(err, store.ErrNotFound):
		return ErrMethodNotFound
	default:
		return err
	}
}

// ListForIdentity returns every method of an identity, oldest first.
func (s *AuthMethodService) ListForIdentity(ctx context.Context, identityID string) ([]domain.AuthMethod, error) {
	return s.Store.AuthMethods().ListAuthMethodsByIdentity(ctx, identityID)
}

// ListPendingApprovals returns methods awaiting approval, oldest first.
func (s *AuthMethodService) ListPendingApprovals(ctx context.Context, limit int) ([]domain.AuthMethod, error) {
	if limit <= 0 {
		limit = DefaultPendingLimit
	}
	return s.Store.AuthMethods().ListPendingAuthMethods(ctx, limit)
}

// CountUsable counts the methods that can currently establish an identity.
// Expired bearer tokens do not count.
func (s *AuthMethodService) CountUsable(ctx context.Context, identityID string) (int, error) {
	return s.Store.AuthMethods().CountUsableAuthMethods(ctx, identityID, nowFunc(s.Now)())
}

// VerifySharedSecret establishes an identity from a username and secret.
// Every failure before the secret matches is ErrInvalidCredentials.
func (s *AuthMethodService) VerifySharedSecret(ctx context.Context, username, secret string) (domain.Identity, error) {
	ident, err := s.Store.Identities().GetIdentityByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, err
		}
		// Burn the same argon2 cost as a real check.
		_ = s.Hasher.Verify(secret, s.dummy())
		return domain.Identity{}, s.invalidCredentials(ctx, "shared_secret")
	}

	methods, err := s.Store.AuthMethods().ListAuthMethodsByIdentity(ctx, ident.ID)
	if err != nil {
		return domain.Identity{}, err
	}

	for _, m := range methods {
		details, ok := m.Details.(domain.SharedSecret)
		if !ok || !m.Usable() {
			continue
		}
		if s.Hasher.Verify(secret, details.SecretHash) != nil {
			continue
		}
		if !ident.Enabled {
			return domain.Identity{}, ErrIdentityDisabled
		}
		s.touch(ctx, m.ID)
		return ident, nil
	}

	return domain.Identity{}, s.invalidCredentials(ctx, "shared_secret")
}

// VerifyBearerToken establishes an identity from a machine token.
func (s *AuthMethodService) VerifyBearerToken(ctx context.Context, token string) (domain.Identity, error) {
	if token == "" {
		return domain.Identity{}, s.invalidCredentials(ctx, "bearer_token")
	}

	m, err := s.Store.AuthMethods().GetAuthMethodByTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, s.invalidCredentials(ctx, "bearer_token")
		}
		return domain.Identity{}, err
	}

	if _, ok := m.Details.(domain.BearerToken); !ok || !m.UsableAt(nowFunc(s.Now)()) {
		return domain.Identity{}, s.invalidCredentials(ctx, "bearer_token")
	}

	ident, err := s.identity(ctx, m.IdentityID)
	if err != nil {
		return domain.Identity{}, err
	}
	if !ident.Enabled {
		return domain.Identity{}, ErrIdentityDisabled
	}

	s.touch(ctx, m.ID)
	return ident, nil
}

// ResolveExternalIdentity maps a provider subject to its linked identity.
// The exchange with the provider itself happens elsewhere.
func (s *AuthMethodService) ResolveExternalIdentity(ctx context.Context, provider, subject string) (domain.Identity, error) {
	m, err := s.Store.AuthMethods().GetAuthMethodByExternalSubject(ctx, provider, subject)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, ErrUnknownCredential
		}
		return domain.Identity{}, err
	}

	ident, err := s.identity(ctx, m.IdentityID)
	if err != nil {
		return domain.Identity{}, err
	}
	if err := checkPolicy(m, ident); err != nil {
		return domain.Identity{}, err
	}

	s.touch(ctx, m.ID)
	return ident, nil
}

func (s *AuthMethodService) identity(ctx context.Context, id string) (domain.Identity, error) {
	ident, err := s.Store.Identities().GetIdentityByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return domain.Identity{}, ErrIdentityNotFound
		}
		return domain.Identity{}, err
	}
	return ident, nil
}

// touch records a successful use. Failing to do so never fails the caller.
func (s *AuthMethodService) touch(ctx context.Context, methodID string) {
	if err := s.Store.AuthMethods().TouchAuthMethod(ctx, methodID, nowFunc(s.Now)()); err != nil {
		slogx.FromContext(ctx).Warn("failed to record method use",
			slog.String("method_id", methodID),
			slog.Any("error", err),
		)
	}
}

func (s *AuthMethodService) invalidCredentials(ctx context.Context, kind string) error {
	security(ctx, s.Recorder, EventInvalidCredentials, ErrInvalidCredentials, slog.String("kind", kind))
	return ErrInvalidCredentials
}

func (s *AuthMethodService) dummy() string {
	s.dummyOnce.Do(func() {
		s.dummyHash, _ = s.Hasher.Hash("hoa-dummy-secret")
	})
	return s.dummyHash
}

// checkPolicy reports why a resolved method may not establish its identity.
func checkPolicy(m domain.AuthMethod, ident domain.Identity) error {
	switch {
	case !m.Enabled:
		return ErrMethodDisabled
	case !m.Approved:
		return ErrMethodNotApproved
	case !ident.Enabled:
		return ErrIdentityDisabled
	}
	return nil
}
