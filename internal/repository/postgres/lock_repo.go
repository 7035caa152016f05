package postgres

import (
	"context"

	"github.com/openexposure/gaen-server/internal/utc"
)

// LockRepo implements repository.LockStore on the t_shedlock table. The
// conditional upsert lets exactly one replica win an expired or absent lease.
type LockRepo struct{ db *DB }

// NewLockRepo constructs a scheduler-lease repository.
func NewLockRepo(db *DB) *LockRepo { return &LockRepo{db: db} }

// Acquire takes the named lease until the given instant. The update path only
// fires when the previous lease has expired, so a held lease stays held.
func (r *LockRepo) Acquire(ctx context.Context, name, owner string, now, until utc.UTCInstant) (bool, error) {
	const q = `
INSERT INTO t_shedlock (name, lock_until, locked_at, locked_by)
VALUES ($1, $2, $3, $4)
ON CONFLICT (name) DO UPDATE
SET lock_until = $2, locked_at = $3, locked_by = $4
WHERE t_shedlock.lock_until <= $3`
	tag, err := r.db.Pool.Exec(ctx, q, name, until.Timestamp(), now.Timestamp(), owner)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// Release shortens the lease to the given instant; a lease owned by someone
// else is left untouched.
func (r *LockRepo) Release(ctx context.Context, name, owner string, until utc.UTCInstant) error {
	const q = `UPDATE t_shedlock SET lock_until = $3 WHERE name = $1 AND locked_by = $2`
	_, err := r.db.Pool.Exec(ctx, q, name, owner, until.Timestamp())
	return err
}
