package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
)

type authMethodsRepo struct {
	db dbtx
}

const methodColumns = `id, identity_id, kind, enabled, requires_approval, approved,
	approved_by, approved_at, created_at, last_used_at`

// usable is the predicate for a usable method row named alias. A bearer
// token past its expiry is not usable. nowParam names the bind parameter
// holding the current unix time.
func usable(alias, nowParam string) string {
	return alias + `.enabled = 1 AND ` + alias + `.approved = 1
	  AND NOT EXISTS (SELECT 1 FROM bearer_tokens b
		WHERE b.method_id = ` + alias + `.id
		  AND b.expires_at IS NOT NULL AND b.expires_at <= ` + nowParam + `)`
}

// otherUsableCount is the number of other usable methods sharing the identity of
// the row being mutated. It is embedded into guarded statements so the check
// and the mutation are evaluated together.
func otherUsableCount(nowParam string) string {
	return `(SELECT COUNT(*) FROM auth_methods o
	WHERE o.identity_id = auth_methods.identity_id
	  AND o.id <> auth_methods.id
	  AND ` + usable("o", nowParam) + `)`
}

// atomically runs fn inside a transaction unless db already is one.
func atomically(ctx context.Context, db dbtx, fn func(dbtx) error) error {
	sdb, ok := db.(*sql.DB)
	if !ok {
		return fn(db)
	}
	tx, err := sdb.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *authMethodsRepo) CreateAuthMethod(ctx context.Context, m domain.AuthMethod) error {
	if m.Details == nil {
		return errors.New("sqlite: auth method without details")
	}

	return atomically(ctx, r.db, func(db dbtx) error {
		_, err := db.ExecContext(ctx,
			`INSERT INTO auth_methods (`+methodColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ID,
			m.IdentityID,
			string(m.Kind()),
			boolToInt(m.Enabled),
			boolToInt(m.RequiresApproval),
			boolToInt(m.Approved),
			mapStringNull(m.ApprovedBy),
			mapOptionalUnix(m.ApprovedAt),
			toUnix(m.CreatedAt),
			mapOptionalUnix(m.LastUsedAt),
		)
		if err != nil {
			return mapConstraint(err)
		}

		switch d := m.Details.(type) {
		case domain.PublicKeyCredential:
			_, err = db.ExecContext(ctx,
				`INSERT INTO public_key_credentials
					(method_id, credential_id, public_key, sign_count, transports, scope, aaguid)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				m.ID, d.CredentialID, d.PublicKey, int64(d.SignCount),
				strings.Join(d.Transports, " "), d.Scope, d.AAGUID,
			)
		case domain.SharedSecret:
			_, err = db.ExecContext(ctx,
				`INSERT INTO shared_secrets (method_id, secret_hash) VALUES (?, ?)`,
				m.ID, d.SecretHash,
			)
		case domain.ExternalIdentity:
			_, err = db.ExecContext(ctx,
				`INSERT INTO external_identities (method_id, provider, subject, email) VALUES (?, ?, ?, ?)`,
				m.ID, d.Provider, d.Subject, d.Email,
			)
		case domain.BearerToken:
			_, err = db.ExecContext(ctx,
				`INSERT INTO bearer_tokens (method_id, token_hash, description, expires_at) VALUES (?, ?, ?, ?)`,
				m.ID, d.TokenHash, d.Description, mapOptionalUnix(d.ExpiresAt),
			)
		default:
			return fmt.Errorf("sqlite: unknown auth method details %T", m.Details)
		}
		return mapConstraint(err)
	})
}

func (r *authMethodsRepo) GetAuthMethodByID(ctx context.Context, id string) (domain.AuthMethod, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+methodColumns+` FROM auth_methods WHERE id = ?`, id)
	m, err := scanAuthMethod(row)
	if err != nil {
		return domain.AuthMethod{}, mapNotFound(err)
	}
	return r.loadDetails(ctx, m)
}

func (r *authMethodsRepo) GetAuthMethodByCredentialID(ctx context.Context, credentialID []byte) (domain.AuthMethod, error) {
	return r.getByVariant(ctx,
		`SELECT method_id FROM public_key_credentials WHERE credential_id = ?`, credentialID)
}

func (r *authMethodsRepo) GetAuthMethodByExternalSubject(ctx context.Context, provider, subject string) (domain.AuthMethod, error) {
	return r.getByVariant(ctx,
		`SELECT method_id FROM external_identities WHERE provider = ? AND subject = ?`, provider, subject)
}

func (r *authMethodsRepo) GetAuthMethodByTokenHash(ctx context.Context, tokenHash string) (domain.AuthMethod, error) {
	return r.getByVariant(ctx,
		`SELECT method_id FROM bearer_tokens WHERE token_hash = ?`, tokenHash)
}

func (r *authMethodsRepo) getByVariant(ctx context.Context, query string, args ...any) (domain.AuthMethod, error) {
	var id string
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&id); err != nil {
		return domain.AuthMethod{}, mapNotFound(err)
	}
	return r.GetAuthMethodByID(ctx, id)
}

func (r *authMethodsRepo) ListAuthMethodsByIdentity(ctx context.Context, identityID string) ([]domain.AuthMethod, error) {
	return r.list(ctx,
		`SELECT `+methodColumns+` FROM auth_methods WHERE identity_id = ? ORDER BY created_at, id`, identityID)
}

func (r *authMethodsRepo) ListPendingAuthMethods(ctx context.Context, limit int) ([]domain.AuthMethod, error) {
	return r.list(ctx,
		`SELECT `+methodColumns+` FROM auth_methods WHERE approved = 0 ORDER BY created_at, id LIMIT ?`, limit)
}

func (r *authMethodsRepo) list(ctx context.Context, query string, args ...any) ([]domain.AuthMethod, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}

	var scanned []methodRow
	for rows.Next() {
		m, err := scanAuthMethod(rows)
		if err != nil {
			_ = rows.Close()
			return nil, err
		}
		scanned = append(scanned, m)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Details are loaded after the cursor is closed: the pool holds a single
	// connection and a second query would wait on the open rows.
	methods := make([]domain.AuthMethod, 0, len(scanned))
	for _, m := range scanned {
		full, err := r.loadDetails(ctx, m)
		if err != nil {
			return nil, err
		}
		methods = append(methods, full)
	}
	return methods, nil
}

func (r *authMethodsRepo) CountUsableAuthMethods(ctx context.Context, identityID string, now time.Time) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM auth_methods
		 WHERE identity_id = ?1 AND `+usable("auth_methods", "?2"),
		identityID, toUnix(now),
	).Scan(&n)
	return n, err
}

func (r *authMethodsRepo) AdvanceSignCount(ctx context.Context, methodID string, newCount uint32, usedAt time.Time) error {
	return atomically(ctx, r.db, func(db dbtx) error {
		res, err := db.ExecContext(ctx,
			`UPDATE public_key_credentials SET sign_count = ?1
			 WHERE method_id = ?2 AND (sign_count < ?1 OR (sign_count = 0 AND ?1 = 0))`,
			int64(newCount), methodID,
		)
		if err != nil {
			return err
		}
		if err := expectOne(res, store.ErrConflict); err != nil {
			if errors.Is(err, store.ErrConflict) {
				return r.conflictOrNotFound(ctx, db, `SELECT 1 FROM public_key_credentials WHERE method_id = ?`, methodID)
			}
			return err
		}
		_, err = db.ExecContext(ctx,
			`UPDATE auth_methods SET last_used_at = ? WHERE id = ?`, toUnix(usedAt), methodID)
		return err
	})
}

func (r *authMethodsRepo) ApproveAuthMethod(ctx context.Context, methodID, approverID string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auth_methods SET approved = 1, approved_by = ?, approved_at = ?
		 WHERE id = ? AND approved = 0`,
		approverID, toUnix(at), methodID,
	)
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, methodID)
}

func (r *authMethodsRepo) SetAuthMethodEnabledGuarded(ctx context.Context, methodID string, enabled bool, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auth_methods SET enabled = ?1
		 WHERE id = ?2
		   AND (?1 = 1 OR NOT (`+usable("auth_methods", "?3")+`) OR `+otherUsableCount("?3")+` > 0)`,
		boolToInt(enabled), methodID, toUnix(now),
	)
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, methodID)
}

func (r *authMethodsRepo) DeleteAuthMethodGuarded(ctx context.Context, methodID string, now time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM auth_methods
		 WHERE id = ?1
		   AND (NOT (`+usable("auth_methods", "?2")+`) OR `+otherUsableCount("?2")+` > 0)`,
		methodID, toUnix(now),
	)
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, methodID)
}

func (r *authMethodsRepo) DeletePendingAuthMethod(ctx context.Context, methodID string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_methods WHERE id = ? AND approved = 0`, methodID)
	if err != nil {
		return err
	}
	return r.guarded(ctx, res, methodID)
}

// guarded classifies the result of a guarded mutation on auth_methods. Only
// a zero-row outcome is looked at again; driver errors pass through.
func (r *authMethodsRepo) guarded(ctx context.Context, res sql.Result, methodID string) error {
	if err := expectOne(res, store.ErrConflict); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return r.conflictOrNotFound(ctx, r.db, `SELECT 1 FROM auth_methods WHERE id = ?`, methodID)
		}
		return err
	}
	return nil
}

func (r *authMethodsRepo) TouchAuthMethod(ctx context.Context, methodID string, usedAt time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE auth_methods SET last_used_at = ? WHERE id = ?`, toUnix(usedAt), methodID)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

// conflictOrNotFound classifies a zero-row guarded mutation.
func (r *authMethodsRepo) conflictOrNotFound(ctx context.Context, db dbtx, query string, id string) error {
	var one int
	if err := db.QueryRowContext(ctx, query, id).Scan(&one); err != nil {
		return mapNotFound(err)
	}
	return store.ErrConflict
}

type methodRow struct {
	domain.AuthMethod
	kind domain.MethodKind
}

func scanAuthMethod(row interface{ Scan(...any) error }) (methodRow, error) {
	var (
		m                                   methodRow
		kind                                string
		enabled, requiresApproval, approved bool
		approvedBy                          sql.NullString
		approvedAt, lastUsedAt              sql.NullInt64
		created                             int64
	)
	err := row.Scan(&m.ID, &m.IdentityID, &kind, &enabled, &requiresApproval, &approved,
		&approvedBy, &approvedAt, &created, &lastUsedAt)
	if err != nil {
		return methodRow{}, err
	}

	m.kind = domain.MethodKind(kind)
	m.Enabled = enabled
	m.RequiresApproval = requiresApproval
	m.Approved = approved
	m.ApprovedBy = mapNullString(approvedBy)
	m.ApprovedAt = mapNullUnixPtr(approvedAt)
	m.CreatedAt = fromUnix(created)
	m.LastUsedAt = mapNullUnixPtr(lastUsedAt)
	return m, nil
}

// loadDetails reads the variant row selected by the discriminator.
func (r *authMethodsRepo) loadDetails(ctx context.Context, m methodRow) (domain.AuthMethod, error) {
	var err error
	switch m.kind {
	case domain.KindPublicKeyCredential:
		var (
			d          domain.PublicKeyCredential
			count      int64
			transports string
		)
		err = r.db.QueryRowContext(ctx,
			`SELECT credential_id, public_key, sign_count, transports, scope, aaguid
			 FROM public_key_credentials WHERE method_id = ?`, m.ID,
		).Scan(&d.CredentialID, &d.PublicKey, &count, &transports, &d.Scope, &d.AAGUID)
		d.SignCount = uint32(count)
		d.Transports = splitAndFilter(transports)
		m.Details = d
	case domain.KindSharedSecret:
		var d domain.SharedSecret
		err = r.db.QueryRowContext(ctx,
			`SELECT secret_hash FROM shared_secrets WHERE method_id = ?`, m.ID,
		).Scan(&d.SecretHash)
		m.Details = d
	case domain.KindExternalIdentity:
		var d domain.ExternalIdentity
		err = r.db.QueryRowContext(ctx,
			`SELECT provider, subject, email FROM external_identities WHERE method_id = ?`, m.ID,
		).Scan(&d.Provider, &d.Subject, &d.Email)
		m.Details = d
	case domain.KindBearerToken:
		var (
			d       domain.BearerToken
			expires sql.NullInt64
		)
		err = r.db.QueryRowContext(ctx,
			`SELECT token_hash, description, expires_at FROM bearer_tokens WHERE method_id = ?`, m.ID,
		).Scan(&d.TokenHash, &d.Description, &expires)
		d.ExpiresAt = mapNullUnixPtr(expires)
		m.Details = d
	default:
		return domain.AuthMethod{}, fmt.Errorf("sqlite: auth method %s has unknown kind %q", m.ID, m.kind)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.AuthMethod{}, fmt.Errorf("sqlite: auth method %s missing %s row", m.ID, m.kind)
		}
		return domain.AuthMethod{}, err
	}
	return m.AuthMethod, nil
}
