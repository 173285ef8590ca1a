package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
)

type signingKeysRepo struct {
	db dbtx
}

const signingKeyColumns = `id, kid, family, algorithm, public_key, private_key_encrypted,
	active, created_at, rotated_at, expires_at`

func scanSigningKey(row interface{ Scan(...any) error }) (domain.SigningKey, error) {
	var (
		key              domain.SigningKey
		family           string
		active           bool
		created, expires int64
		rotated          sql.NullInt64
	)
	err := row.Scan(&key.ID, &key.Kid, &family, &key.Algorithm, &key.PublicKey,
		&key.PrivateKeyEncrypted, &active, &created, &rotated, &expires)
	if err != nil {
		return domain.SigningKey{}, err
	}
	key.Family = domain.KeyFamily(family)
	key.Active = active
	key.CreatedAt = fromUnix(created)
	key.RotatedAt = mapNullUnixPtr(rotated)
	key.ExpiresAt = fromUnix(expires)
	return key, nil
}

func (r *signingKeysRepo) CreateSigningKey(ctx context.Context, key domain.SigningKey) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO signing_keys (`+signingKeyColumns+`) VALUES (?, ?, ?, ?, ?, ?, 0, ?, NULL, ?)`,
		key.ID,
		key.Kid,
		string(key.Family),
		key.Algorithm,
		key.PublicKey,
		key.PrivateKeyEncrypted,
		toUnix(key.CreatedAt),
		toUnix(key.ExpiresAt),
	)
	return mapConstraint(err)
}

func (r *signingKeysRepo) GetSigningKeyByKid(ctx context.Context, kid string) (domain.SigningKey, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+signingKeyColumns+` FROM signing_keys WHERE kid = ?`, kid)
	key, err := scanSigningKey(row)
	if err != nil {
		return domain.SigningKey{}, mapNotFound(err)
	}
	return key, nil
}

func (r *signingKeysRepo) GetActiveSigningKey(ctx context.Context, family domain.KeyFamily) (domain.SigningKey, int64, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT k.id, k.kid, k.family, k.algorithm, k.public_key, k.private_key_encrypted,
		        k.active, k.created_at, k.rotated_at, k.expires_at, p.version
		 FROM active_signing_keys p
		 JOIN signing_keys k ON k.kid = p.kid
		 WHERE p.family = ?`,
		string(family),
	)

	var version int64
	key, err := scanSigningKey(scanTail{row: row, extra: &version})
	if err != nil {
		return domain.SigningKey{}, 0, mapNotFound(err)
	}
	return key, version, nil
}

// scanTail appends extra destinations after the signing key columns.
type scanTail struct {
	row   *sql.Row
	extra *int64
}

func (s scanTail) Scan(dest ...any) error {
	return s.row.Scan(append(dest, s.extra)...)
}

func (r *signingKeysRepo) ActivateSigningKey(ctx context.Context, family domain.KeyFamily, kid string, expectedVersion int64) error {
	return atomically(ctx, r.db, func(db dbtx) error {
		if expectedVersion == 0 {
			_, err := db.ExecContext(ctx,
				`INSERT INTO active_signing_keys (family, kid, version) VALUES (?, ?, 1)`,
				string(family), kid,
			)
			if err := mapConstraint(err); err != nil {
				if errors.Is(err, store.ErrAlreadyExists) {
					return store.ErrConflict
				}
				return err
			}
		} else {
			res, err := db.ExecContext(ctx,
				`UPDATE active_signing_keys SET kid = ?, version = version + 1
				 WHERE family = ? AND version = ?`,
				kid, string(family), expectedVersion,
			)
			if err != nil {
				return err
			}
			if err := expectOne(res, store.ErrConflict); err != nil {
				return err
			}
		}

		res, err := db.ExecContext(ctx,
			`UPDATE signing_keys SET active = 1, rotated_at = NULL WHERE kid = ?`, kid)
		if err != nil {
			return err
		}
		return expectOne(res, store.ErrNotFound)
	})
}

func (r *signingKeysRepo) DeactivateSigningKey(ctx context.Context, kid string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE signing_keys SET active = 0, rotated_at = ? WHERE kid = ?`, toUnix(at), kid)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (r *signingKeysRepo) ListValidSigningKeys(ctx context.Context, now time.Time) ([]domain.SigningKey, error) {
	return r.list(ctx,
		`SELECT `+signingKeyColumns+` FROM signing_keys WHERE expires_at > ? ORDER BY created_at DESC, id DESC`,
		toUnix(now))
}

func (r *signingKeysRepo) ListAllSigningKeys(ctx context.Context) ([]domain.SigningKey, error) {
	return r.list(ctx, `SELECT `+signingKeyColumns+` FROM signing_keys ORDER BY created_at DESC, id DESC`)
}

func (r *signingKeysRepo) list(ctx context.Context, query string, args ...any) ([]domain.SigningKey, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var keys []domain.SigningKey
	for rows.Next() {
		key, err := scanSigningKey(rows)
		if err != nil {
			return nil, err
		}
		keys = append(keys, key)
	}
	return keys, rows.Err()
}

func (r *signingKeysRepo) DeleteExpiredSigningKeys(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM signing_keys
		 WHERE expires_at <= ? AND kid NOT IN (SELECT kid FROM active_signing_keys)`,
		toUnix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
