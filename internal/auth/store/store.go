package store

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
)

var (
	ErrNotFound      = errors.New("store: not found")
	ErrAlreadyExists = errors.New("store: already exists")

	// ErrConflict reports that a guarded or compare-and-swap update matched no
	// row because its precondition no longer held.
	ErrConflict = errors.New("store: conflict")
)

// Store is the root data access interface. Concrete drivers implement this.
// It exposes sub-repositories so transactional code gets the same surface
// through Tx, and nested transactions are impossible by construction.
type Store interface {
	Identities() Identities
	AuthMethods() AuthMethods
	Challenges() Challenges
	SigningKeys() SigningKeys

	ApplyMigrations() error

	// Tx starts a read/write transaction and returns a Tx-scoped Store.
	// The caller MUST call Commit() or Rollback() on the returned Tx.
	Tx(ctx context.Context) (Tx, error)

	// WithTx executes fn within a transaction. If fn returns an error the
	// transaction is rolled back, otherwise it is committed. Code inside fn
	// must only use the tx argument, never the outer Store.
	WithTx(ctx context.Context, fn func(tx Tx) error) error

	// Close releases any underlying resources.
	Close() error

	// Ping verifies the database connection is still alive.
	Ping(ctx context.Context) error
}

// Tx is a transactional store. It embeds the same repos but adds Commit/Rollback.
type Tx interface {
	Store
	Commit() error
	Rollback() error
}

type Identities interface {
	// GetIdentityByID returns an identity by id.
	GetIdentityByID(ctx context.Context, id string) (domain.Identity, error)

	// GetIdentityByUsername is used as the ceremony identity hint.
	GetIdentityByUsername(ctx context.Context, username string) (domain.Identity, error)

	// CreateIdentity inserts a new identity (id is provided by app via ULID).
	// Returns ErrAlreadyExists when the username is taken.
	CreateIdentity(ctx context.Context, ident domain.Identity) error

	// SetIdentityEnabled flips the enabled flag and bumps updated_at.
	SetIdentityEnabled(ctx context.Context, id string, enabled bool) error

	// SetIdentityAdmin flips the elevated-privilege flag and bumps updated_at.
	SetIdentityAdmin(ctx context.Context, id string, admin bool) error

	// UpdateIdentityProfile replaces the display name.
	UpdateIdentityProfile(ctx context.Context, id, displayName string, at time.Time) error

	// ListIdentities returns up to limit identities after skipping offset,
	// oldest first.
	ListIdentities(ctx context.Context, limit, offset int) ([]domain.Identity, error)

	// CountEnabledAdmins counts identities that are both enabled and admin.
	CountEnabledAdmins(ctx context.Context) (int, error)
}

type AuthMethods interface {
	// CreateAuthMethod inserts the common record and its variant record.
	// Returns ErrAlreadyExists if the variant identifier is already taken
	// anywhere in the store.
	CreateAuthMethod(ctx context.Context, m domain.AuthMethod) error

	GetAuthMethodByID(ctx context.Context, id string) (domain.AuthMethod, error)
	GetAuthMethodByCredentialID(ctx context.Context, credentialID []byte) (domain.AuthMethod, error)
	GetAuthMethodByExternalSubject(ctx context.Context, provider, subject string) (domain.AuthMethod, error)
	GetAuthMethodByTokenHash(ctx context.Context, tokenHash string) (domain.AuthMethod, error)

	// ListAuthMethodsByIdentity returns every method of an identity, oldest first.
	ListAuthMethodsByIdentity(ctx context.Context, identityID string) ([]domain.AuthMethod, error)

	// ListPendingAuthMethods returns methods awaiting approval, oldest first.
	ListPendingAuthMethods(ctx context.Context, limit int) ([]domain.AuthMethod, error)

	// CountUsableAuthMethods counts enabled and approved methods of an
	// identity, leaving out bearer tokens expired at now.
	CountUsableAuthMethods(ctx context.Context, identityID string, now time.Time) (int, error)

	// AdvanceSignCount atomically stores newCount if it is strictly greater
	// than the stored counter, or if both are zero. Returns ErrConflict when
	// the stored counter would regress.
	AdvanceSignCount(ctx context.Context, methodID string, newCount uint32, usedAt time.Time) error

	// ApproveAuthMethod atomically marks a pending method approved. Returns
	// ErrConflict when it is already approved and ErrNotFound when absent.
	ApproveAuthMethod(ctx context.Context, methodID, approverID string, at time.Time) error

	// SetAuthMethodEnabledGuarded changes the enabled flag. Disabling the last
	// usable method of an identity is refused with ErrConflict in the same
	// statement that performs the update. Usability is judged at now.
	SetAuthMethodEnabledGuarded(ctx context.Context, methodID string, enabled bool, now time.Time) error

	// DeleteAuthMethodGuarded deletes a method unless it is the last usable
	// method of its identity at now (ErrConflict).
	DeleteAuthMethodGuarded(ctx context.Context, methodID string, now time.Time) error

	// DeletePendingAuthMethod deletes a method only while it is unapproved.
	DeletePendingAuthMethod(ctx context.Context, methodID string) error

	// TouchAuthMethod records a successful use.
	TouchAuthMethod(ctx context.Context, methodID string, usedAt time.Time) error
}

type Challenges interface {
	// CreateChallenge stores a freshly issued challenge.
	CreateChallenge(ctx context.Context, c domain.Challenge) error

	// GetChallenge fetches a challenge by value regardless of its state.
	GetChallenge(ctx context.Context, value string) (domain.Challenge, error)

	// ConsumeChallenge atomically marks an unconsumed, unexpired challenge as
	// consumed and returns it. Exactly one concurrent caller can succeed.
	// Returns ErrConflict when the challenge exists but cannot be consumed.
	ConsumeChallenge(ctx context.Context, value string, now time.Time) (domain.Challenge, error)

	// DeleteExpiredChallenges removes challenges past their TTL.
	DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error)
}

type SigningKeys interface {
	// CreateSigningKey stores a new, inactive signing key.
	CreateSigningKey(ctx context.Context, key domain.SigningKey) error

	// GetSigningKeyByKid fetches a signing key by its key identifier.
	GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error)

	// GetActiveSigningKey resolves the active pointer of a family. The second
	// return value is the pointer version used for ActivateSigningKey.
	GetActiveSigningKey(ctx context.Context, family domain.KeyFamily) (domain.SigningKey, int64, error)

	// ActivateSigningKey moves the family pointer to kid. expectedVersion 0
	// creates the pointer; otherwise the update only applies if the stored
	// version matches (ErrConflict).
	ActivateSigningKey(ctx context.Context, family domain.KeyFamily, kid string, expectedVersion int64) error

	// DeactivateSigningKey clears the active flag and sets rotated_at.
	DeactivateSigningKey(ctx context.Context, kid string, at time.Time) error

	// ListValidSigningKeys returns keys not yet expired, newest first.
	ListValidSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error)

	// ListAllSigningKeys returns every key, newest first.
	ListAllSigningKeys(ctx context.Context) ([]domain.SigningKey, error)

	// DeleteExpiredSigningKeys prunes keys past expires_at that are not the
	// target of an active pointer.
	DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error)
}
