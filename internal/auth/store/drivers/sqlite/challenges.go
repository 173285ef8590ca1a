package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/hoa/internal/auth/domain"
	"github.com/aussiebroadwan/hoa/internal/auth/store"
)

type challengesRepo struct {
	db dbtx
}

const challengeColumns = `value, ceremony, scope, identity_id, pending_username,
	pending_display_name, created_at, expires_at, consumed_at`

func scanChallenge(row interface{ Scan(...any) error }) (domain.Challenge, error) {
	var (
		c                domain.Challenge
		ceremony         string
		created, expires int64
		consumed         sql.NullInt64
	)
	err := row.Scan(&c.Value, &ceremony, &c.Scope, &c.IdentityID, &c.PendingUsername,
		&c.PendingDisplayName, &created, &expires, &consumed)
	if err != nil {
		return domain.Challenge{}, err
	}
	c.Ceremony = domain.Ceremony(ceremony)
	c.CreatedAt = fromUnix(created)
	c.ExpiresAt = fromUnix(expires)
	c.ConsumedAt = mapNullUnixPtr(consumed)
	return c, nil
}

func (r *challengesRepo) CreateChallenge(ctx context.Context, c domain.Challenge) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO challenges (`+challengeColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, NULL)`,
		c.Value,
		string(c.Ceremony),
		c.Scope,
		c.IdentityID,
		c.PendingUsername,
		c.PendingDisplayName,
		toUnix(c.CreatedAt),
		toUnix(c.ExpiresAt),
	)
	return mapConstraint(err)
}

func (r *challengesRepo) GetChallenge(ctx context.Context, value string) (domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+challengeColumns+` FROM challenges WHERE value = ?`, value)
	c, err := scanChallenge(row)
	if err != nil {
		return domain.Challenge{}, mapNotFound(err)
	}
	return c, nil
}

// ConsumeChallenge marks the challenge consumed in a single statement; the
// WHERE clause is the compare half of the swap. On a miss the current row is
// returned alongside ErrConflict so callers can tell consumed from expired.
func (r *challengesRepo) ConsumeChallenge(ctx context.Context, value string, now time.Time) (domain.Challenge, error) {
	row := r.db.QueryRowContext(ctx,
		`UPDATE challenges SET consumed_at = ?2
		 WHERE value = ?1 AND consumed_at IS NULL AND expires_at > ?2
		 RETURNING `+challengeColumns,
		value, toUnix(now),
	)
	c, err := scanChallenge(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Challenge{}, err
	}

	current, err := r.GetChallenge(ctx, value)
	if err != nil {
		return domain.Challenge{}, err
	}
	return current, store.ErrConflict
}

func (r *challengesRepo) DeleteExpiredChallenges(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM challenges WHERE expires_at <= ?`, toUnix(now))
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
