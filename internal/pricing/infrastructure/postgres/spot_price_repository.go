package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	pricing "settlementcore/internal/pricing/domain"
)

// SpotPriceRepository is a Postgres implementation of
// pricing.SpotPriceRepository.
type SpotPriceRepository struct {
	db *sql.DB
}

// NewSpotPriceRepository constructs a repository.
func NewSpotPriceRepository(db *sql.DB) *SpotPriceRepository {
	return &SpotPriceRepository{db: db}
}

// ListInRange returns spot prices for priceArea within [start, end).
func (r *SpotPriceRepository) ListInRange(ctx context.Context, priceArea string, start, end time.Time) ([]pricing.SpotPrice, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("spot price repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT price_area, timestamp, minor_units_per_mwh
FROM spot_prices
WHERE price_area = $1 AND timestamp >= $2 AND timestamp < $3
ORDER BY timestamp ASC`, priceArea, start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []pricing.SpotPrice
	for rows.Next() {
		var sp pricing.SpotPrice
		if err := rows.Scan(&sp.PriceArea, &sp.Timestamp, &sp.MinorUnitsPerMWh); err != nil {
			return nil, err
		}
		sp.Timestamp = sp.Timestamp.UTC()
		out = append(out, sp)
	}
	return out, rows.Err()
}

// RateAt returns the spot price at instant t for priceArea: the hour that
// contains t.
func (r *SpotPriceRepository) RateAt(ctx context.Context, priceArea string, t time.Time) (pricing.SpotPrice, bool, error) {
	if r == nil || r.db == nil {
		return pricing.SpotPrice{}, false, errors.New("spot price repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT price_area, timestamp, minor_units_per_mwh
FROM spot_prices
WHERE price_area = $1 AND timestamp <= $2
ORDER BY timestamp DESC
LIMIT 1`, priceArea, t)

	var sp pricing.SpotPrice
	if err := row.Scan(&sp.PriceArea, &sp.Timestamp, &sp.MinorUnitsPerMWh); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return pricing.SpotPrice{}, false, nil
		}
		return pricing.SpotPrice{}, false, err
	}
	sp.Timestamp = sp.Timestamp.UTC()
	return sp, true, nil
}

// Save upserts a batch of spot prices, one row per (price area, hour).
func (r *SpotPriceRepository) Save(ctx context.Context, prices []pricing.SpotPrice) error {
	if r == nil || r.db == nil {
		return errors.New("spot price repo: nil db")
	}
	if len(prices) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	for _, sp := range prices {
		_, err := tx.ExecContext(ctx, `
INSERT INTO spot_prices (price_area, timestamp, minor_units_per_mwh)
VALUES ($1,$2,$3)
ON CONFLICT (price_area, timestamp)
DO UPDATE SET minor_units_per_mwh = EXCLUDED.minor_units_per_mwh`,
			sp.PriceArea, sp.Timestamp, sp.MinorUnitsPerMWh)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
