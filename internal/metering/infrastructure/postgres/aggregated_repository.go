package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	metering "settlementcore/internal/metering/domain"
)

// AggregatedTimeSeriesRepository is a Postgres implementation of
// metering.AggregatedTimeSeriesRepository. Append-only.
type AggregatedTimeSeriesRepository struct {
	db *sql.DB
}

// NewAggregatedTimeSeriesRepository constructs a repository.
func NewAggregatedTimeSeriesRepository(db *sql.DB) *AggregatedTimeSeriesRepository {
	return &AggregatedTimeSeriesRepository{db: db}
}

// Append inserts a BRS-023 row.
func (r *AggregatedTimeSeriesRepository) Append(ctx context.Context, a *metering.AggregatedTimeSeries) error {
	if r == nil || r.db == nil {
		return errors.New("aggregated time series repo: nil db")
	}
	if a == nil {
		return errors.New("aggregated time series repo: nil row")
	}
	if a.ID == "" {
		a.ID = buildAppendOnlyID("agg", a.GridAreaCode, a.Timestamp, a.TransactionID)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO aggregated_time_series (
	id, grid_area_code, timestamp, quantity_kwh, transaction_id, received_at
) VALUES ($1,$2,$3,$4,$5,$6)
ON CONFLICT (id) DO NOTHING`,
		a.ID, a.GridAreaCode, a.Timestamp, a.Quantity.Float64(), a.TransactionID, a.ReceivedAt,
	)
	return err
}

func buildAppendOnlyID(prefix, key string, ts time.Time, transactionID string) string {
	base := key + "|" + ts.UTC().Format(time.RFC3339) + "|" + transactionID
	hash := sha256.Sum256([]byte(base))
	return prefix + "-" + hex.EncodeToString(hash[:8])
}
