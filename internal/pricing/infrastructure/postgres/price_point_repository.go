package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"settlementcore/internal/ids"
	pricing "settlementcore/internal/pricing/domain"
)

// PricePointRepository is a Postgres implementation of
// pricing.PricePointRepository.
type PricePointRepository struct {
	db *sql.DB
}

// NewPricePointRepository constructs a repository.
func NewPricePointRepository(db *sql.DB) *PricePointRepository {
	return &PricePointRepository{db: db}
}

// ListInRange returns the points for a price within [start, end), ascending.
func (r *PricePointRepository) ListInRange(ctx context.Context, chargeID string, ownerGLN ids.GLN, start, end time.Time) ([]pricing.PricePoint, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("price point repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT charge_id, owner_gln, timestamp, value_per_unit
FROM price_points
WHERE charge_id = $1 AND owner_gln = $2 AND timestamp >= $3 AND timestamp < $4
ORDER BY timestamp ASC`, chargeID, string(ownerGLN), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPricePoints(rows)
}

// RateAt returns the applicable rate at instant t: the point with the
// greatest timestamp <= t.
func (r *PricePointRepository) RateAt(ctx context.Context, chargeID string, ownerGLN ids.GLN, t time.Time) (float64, bool, error) {
	if r == nil || r.db == nil {
		return 0, false, errors.New("price point repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT value_per_unit
FROM price_points
WHERE charge_id = $1 AND owner_gln = $2 AND timestamp <= $3
ORDER BY timestamp DESC
LIMIT 1`, chargeID, string(ownerGLN), t)

	var rate float64
	if err := row.Scan(&rate); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, err
	}
	return rate, true, nil
}

// ReplaceRange atomically removes existing points in [start, end) and
// inserts the provided ones, per BRS-037/D08 semantics.
func (r *PricePointRepository) ReplaceRange(ctx context.Context, chargeID string, ownerGLN ids.GLN, start, end time.Time, points []pricing.PricePoint) error {
	if r == nil || r.db == nil {
		return errors.New("price point repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, `
DELETE FROM price_points
WHERE charge_id = $1 AND owner_gln = $2 AND timestamp >= $3 AND timestamp < $4`,
		chargeID, string(ownerGLN), start, end)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	for _, pt := range points {
		_, err := tx.ExecContext(ctx, `
INSERT INTO price_points (charge_id, owner_gln, timestamp, value_per_unit)
VALUES ($1,$2,$3,$4)`, chargeID, string(ownerGLN), pt.Timestamp, pt.ValuePerUnit)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func scanPricePoints(rows *sql.Rows) ([]pricing.PricePoint, error) {
	var out []pricing.PricePoint
	for rows.Next() {
		var pt pricing.PricePoint
		var glnStr string
		if err := rows.Scan(&pt.ChargeID, &glnStr, &pt.Timestamp, &pt.ValuePerUnit); err != nil {
			return nil, err
		}
		pt.OwnerGLN = ids.GLN(glnStr)
		pt.Timestamp = pt.Timestamp.UTC()
		out = append(out, pt)
	}
	return out, rows.Err()
}
