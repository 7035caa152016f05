package postgres

import (
	"context"
	"time"

	"github.com/openexposure/gaen-server/internal/model"
	"github.com/openexposure/gaen-server/internal/repository"
	"github.com/openexposure/gaen-server/internal/utc"
)

// KeyRepo implements repository.KeyStore on the t_exposed table.
type KeyRepo struct {
	db     *DB
	bucket time.Duration
}

// NewKeyRepo constructs an exposed-key repository bound to the configured
// release bucket width.
func NewKeyRepo(db *DB, bucket time.Duration) *KeyRepo {
	return &KeyRepo{db: db, bucket: bucket}
}

// UpsertExposed inserts one batch with a single release bucket.
func (r *KeyRepo) UpsertExposed(
	ctx context.Context, keys []model.GaenKey, receivedAt utc.UTCInstant, country string, reportType int32,
) (int, error) {
	return r.UpsertExposedBatches(ctx,
		[]repository.ExposedBatch{{Keys: keys, ReceivedAt: receivedAt}}, country, reportType)
}

// UpsertExposedBatches inserts all batches in one transaction, so an upload
// spanning several release buckets commits or rolls back as a whole.
// Re-uploaded keys hit the (key_data, rolling_start_number) primary key and
// are skipped, which makes uploads idempotent.
func (r *KeyRepo) UpsertExposedBatches(
	ctx context.Context, batches []repository.ExposedBatch, country string, reportType int32,
) (inserted int, err error) {
	tx, err := r.db.Pool.BeginTx(ctx, pgxTxOptions())
	if err != nil {
		return 0, err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
			return
		}
		if e := tx.Commit(ctx); e != nil {
			err = e
		}
	}()

	const ins = `
INSERT INTO t_exposed
  (key_data, rolling_start_number, rolling_period, transmission_risk, received_at, country, origin, report_type, days_since_onset)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
ON CONFLICT (key_data, rolling_start_number) DO NOTHING`

	for _, b := range batches {
		for _, k := range b.Keys {
			origin := k.CountryOrigin
			rt := k.ReportType
			if rt == 0 {
				rt = reportType
			}
			tag, execErr := tx.Exec(ctx, ins,
				k.KeyData, int64(k.RollingStartNumber), int32(k.RollingPeriod),
				k.TransmissionRiskLevel, b.ReceivedAt.Timestamp(), country, origin, rt,
				k.DaysSinceOnsetOfSymptoms)
			if execErr != nil {
				err = execErr
				return 0, err
			}
			inserted += int(tag.RowsAffected())
		}
	}
	return inserted, nil
}

// GetSortedExposedSince returns keys with since <= received_at <
// bucketStart(now), ordered by key_data. The strict upper bound keeps a
// bucket invisible until it has fully closed.
func (r *KeyRepo) GetSortedExposedSince(
	ctx context.Context, since, now utc.UTCInstant, visitedCountries, originCountries []string,
) ([]model.GaenKey, error) {
	const q = `
SELECT key_data, rolling_start_number, rolling_period, transmission_risk, origin, report_type, days_since_onset
FROM t_exposed
WHERE received_at >= $1 AND received_at < $2
  AND (cardinality($3::text[]) = 0 OR country = ANY($3::text[]))
  AND (cardinality($4::text[]) = 0 OR origin = ANY($4::text[]))
ORDER BY key_data ASC`

	maxBucket := now.BucketStart(r.bucket)
	rows, err := r.db.Pool.Query(ctx, q,
		since.Timestamp(), maxBucket.Timestamp(),
		normalize(visitedCountries), normalize(originCountries))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.GaenKey
	for rows.Next() {
		var (
			k      model.GaenKey
			start  int64
			period int32
		)
		if err = rows.Scan(&k.KeyData, &start, &period, &k.TransmissionRiskLevel,
			&k.CountryOrigin, &k.ReportType, &k.DaysSinceOnsetOfSymptoms); err != nil {
			return nil, err
		}
		k.RollingStartNumber = uint32(start)
		k.RollingPeriod = uint32(period)
		out = append(out, k)
	}
	return out, rows.Err()
}

// CleanDB deletes keys whose rolling start lies beyond the retention horizon.
func (r *KeyRepo) CleanDB(ctx context.Context, retention time.Duration, now utc.UTCInstant) (int64, error) {
	const q = `DELETE FROM t_exposed WHERE rolling_start_number * 600000 < $1`
	tag, err := r.db.Pool.Exec(ctx, q, now.Minus(retention).Timestamp())
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// normalize maps nil to an empty slice so the SQL cardinality guard sees a
// real array.
func normalize(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
