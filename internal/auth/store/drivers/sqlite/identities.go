package sqlite

import (
	"context"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
)

type identitiesRepo struct {
	db dbtx
}

const identityColumns = `id, username, display_name, enabled, is_admin, created_at, updated_at`

func scanIdentity(row interface{ Scan(...any) error }) (domain.Identity, error) {
	var (
		ident            domain.Identity
		created, updated int64
		enabled, admin   bool
	)
	if err := row.Scan(&ident.ID, &ident.Username, &ident.DisplayName, &enabled, &admin, &created, &updated); err != nil {
		return domain.Identity{}, err
	}
	ident.Enabled = enabled
	ident.IsAdmin = admin
	ident.CreatedAt = fromUnix(created)
	ident.UpdatedAt = fromUnix(updated)
	return ident, nil
}

func (r *identitiesRepo) GetIdentityByID(ctx context.Context, id string) (domain.Identity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
	ident, err := scanIdentity(row)
	if err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	return ident, nil
}

func (r *identitiesRepo) GetIdentityByUsername(ctx context.Context, username string) (domain.Identity, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE username = ?`, username)
	ident, err := scanIdentity(row)
	if err != nil {
		return domain.Identity{}, mapNotFound(err)
	}
	return ident, nil
}

func (r *identitiesRepo) CreateIdentity(ctx context.Context, ident domain.Identity) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO identities (`+identityColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ident.ID,
		ident.Username,
		ident.DisplayName,
		boolToInt(ident.Enabled),
		boolToInt(ident.IsAdmin),
		toUnix(ident.CreatedAt),
		toUnix(ident.UpdatedAt),
	)
	return mapConstraint(err)
}

func (r *identitiesRepo) SetIdentityEnabled(ctx context.Context, id string, enabled bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE identities SET enabled = ?, updated_at = ? WHERE id = ?`,
		boolToInt(enabled), toUnix(time.Now()), id,
	)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (r *identitiesRepo) SetIdentityAdmin(ctx context.Context, id string, admin bool) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE identities SET is_admin = ?, updated_at = ? WHERE id = ?`,
		boolToInt(admin), toUnix(time.Now()), id,
	)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (r *identitiesRepo) UpdateIdentityProfile(ctx context.Context, id, displayName string, at time.Time) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE identities SET display_name = ?, updated_at = ? WHERE id = ?`,
		displayName, toUnix(at), id,
	)
	if err != nil {
		return err
	}
	return expectOne(res, store.ErrNotFound)
}

func (r *identitiesRepo) ListIdentities(ctx context.Context, limit, offset int) ([]domain.Identity, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+identityColumns+` FROM identities ORDER BY created_at, id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

func (r *identitiesRepo) CountEnabledAdmins(ctx context.Context) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM identities WHERE is_admin = 1 AND enabled = 1`,
	).Scan(&n)
	return n, err
}
