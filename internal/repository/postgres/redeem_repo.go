package postgres

import (
	"context"

	"github.com/gofrs/uuid/v5"

	"github.com/openexposure/gaen-server/internal/utc"
)

// RedeemRepo implements repository.RedeemStore on the t_redeem table.
type RedeemRepo struct{ db *DB }

// NewRedeemRepo constructs a redeem-nonce repository.
func NewRedeemRepo(db *DB) *RedeemRepo { return &RedeemRepo{db: db} }

// Insert records the nonce with its expiry. Returns true iff the nonce was
// previously unseen.
func (r *RedeemRepo) Insert(ctx context.Context, nonce uuid.UUID, expiry utc.UTCInstant) (bool, error) {
	const q = `
INSERT INTO t_redeem (uuid, expiry) VALUES ($1, $2)
ON CONFLICT (uuid) DO NOTHING`
	tag, err := r.db.Pool.Exec(ctx, q, nonce, expiry.Timestamp())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// CleanDB removes nonces whose expiry has passed.
func (r *RedeemRepo) CleanDB(ctx context.Context, now utc.UTCInstant) (int64, error) {
	const q = `DELETE FROM t_redeem WHERE expiry < $1`
	tag, err := r.db.Pool.Exec(ctx, q, now.Timestamp())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
