package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"strconv"
	"time"

	"settlementcore/internal/ids"
	masterdata "settlementcore/internal/masterdata/domain"
	metering "settlementcore/internal/metering/domain"
	"settlementcore/internal/money"
	"settlementcore/internal/period"
)

// TimeSeriesRepository is a Postgres implementation of
// metering.TimeSeriesRepository.
type TimeSeriesRepository struct {
	db *sql.DB
}

// NewTimeSeriesRepository constructs a repository.
func NewTimeSeriesRepository(db *sql.DB) *TimeSeriesRepository {
	return &TimeSeriesRepository{db: db}
}

// FindLatest returns the is_latest=true row for (gsrn, period), if any.
func (r *TimeSeriesRepository) FindLatest(ctx context.Context, gsrn ids.GSRN, p period.Period) (*metering.TimeSeries, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("time series repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, gsrn, period_start, period_end, open_ended, resolution, version,
	is_latest, transaction_id, received_at
FROM time_series
WHERE gsrn = $1 AND period_start = $2 AND period_end = $3 AND is_latest
LIMIT 1`, string(gsrn), p.Start, periodEndValue(p))

	ts, err := scanTimeSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadObservations(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// Get returns a time series by id, with its observations loaded.
func (r *TimeSeriesRepository) Get(ctx context.Context, id string) (*metering.TimeSeries, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("time series repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, gsrn, period_start, period_end, open_ended, resolution, version,
	is_latest, transaction_id, received_at
FROM time_series
WHERE id = $1
LIMIT 1`, id)

	ts, err := scanTimeSeries(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadObservations(ctx, ts); err != nil {
		return nil, err
	}
	return ts, nil
}

// CreateVersion persists next as a new row, flipping previous's is_latest to
// false in the same transaction when previous is non-nil.
func (r *TimeSeriesRepository) CreateVersion(ctx context.Context, next *metering.TimeSeries, previous *metering.TimeSeries) error {
	if r == nil || r.db == nil {
		return errors.New("time series repo: nil db")
	}
	if next == nil {
		return errors.New("time series repo: nil next version")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if previous != nil {
		if _, err := tx.ExecContext(ctx, `UPDATE time_series SET is_latest = false WHERE id = $1`, previous.ID); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	if next.ID == "" {
		next.ID = buildTimeSeriesID(string(next.GSRN), next.Period.Start, next.Version)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO time_series (
	id, gsrn, period_start, period_end, open_ended, resolution, version,
	is_latest, transaction_id, received_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		next.ID, string(next.GSRN), next.Period.Start, periodEndValue(next.Period), next.Period.OpenEnded,
		string(next.Resolution), next.Version, next.IsLatest, next.TransactionID, next.ReceivedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	for _, obs := range next.Observations {
		_, err := tx.ExecContext(ctx, `
INSERT INTO observations (time_series_id, timestamp, quantity_kwh, quality)
VALUES ($1,$2,$3,$4)`, next.ID, obs.Timestamp, obs.Quantity.Float64(), string(obs.Quality))
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// FindSettleable returns up to limit latest-version time series with no
// settlement row yet for (time_series_id, version), ordered by reception
// time. The non-cancelable-status exclusion for the
// same (metering_point, period) is applied by the settlement worker, which
// also needs to run the correction branch for Invoiced/Migrated matches.
func (r *TimeSeriesRepository) FindSettleable(ctx context.Context, limit int) ([]metering.TimeSeries, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("time series repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT ts.id, ts.gsrn, ts.period_start, ts.period_end, ts.open_ended, ts.resolution,
	ts.version, ts.is_latest, ts.transaction_id, ts.received_at
FROM time_series ts
WHERE ts.is_latest
  AND NOT EXISTS (
	SELECT 1 FROM settlements s WHERE s.time_series_id = ts.id AND s.time_series_version = ts.version
  )
ORDER BY ts.received_at ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []metering.TimeSeries
	for rows.Next() {
		ts, err := scanTimeSeriesRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *ts)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadObservations(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *TimeSeriesRepository) loadObservations(ctx context.Context, ts *metering.TimeSeries) error {
	rows, err := r.db.QueryContext(ctx, `
SELECT timestamp, quantity_kwh, quality
FROM observations
WHERE time_series_id = $1
ORDER BY timestamp ASC`, ts.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var ts2 time.Time
		var qtyKWh float64
		var quality string
		if err := rows.Scan(&ts2, &qtyKWh, &quality); err != nil {
			return err
		}
		ts.Observations = append(ts.Observations, metering.Observation{
			Timestamp: ts2.UTC(),
			Quantity:  money.NewQuantityFromFloat(qtyKWh),
			Quality:   metering.Quality(quality),
		})
	}
	return rows.Err()
}

func periodEndValue(p period.Period) any {
	if p.OpenEnded {
		return nil
	}
	return p.End
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTimeSeries(row *sql.Row) (*metering.TimeSeries, error) {
	return scanTimeSeriesGeneric(row)
}

func scanTimeSeriesRow(rows *sql.Rows) (*metering.TimeSeries, error) {
	return scanTimeSeriesGeneric(rows)
}

func scanTimeSeriesGeneric(s rowScanner) (*metering.TimeSeries, error) {
	var ts metering.TimeSeries
	var gsrn, resolution string
	var periodEnd sql.NullTime
	var openEnded bool
	if err := s.Scan(&ts.ID, &gsrn, &ts.Period.Start, &periodEnd, &openEnded, &resolution,
		&ts.Version, &ts.IsLatest, &ts.TransactionID, &ts.ReceivedAt); err != nil {
		return nil, err
	}
	ts.GSRN = ids.GSRN(gsrn)
	ts.Resolution = masterdata.Resolution(resolution)
	ts.Period.Start = ts.Period.Start.UTC()
	ts.Period.OpenEnded = openEnded
	if !openEnded && periodEnd.Valid {
		ts.Period.End = periodEnd.Time.UTC()
	}
	ts.ReceivedAt = ts.ReceivedAt.UTC()
	return &ts, nil
}

func buildTimeSeriesID(gsrn string, periodStart time.Time, version int) string {
	base := gsrn + "|" + periodStart.UTC().Format(time.RFC3339) + "|" + strconv.Itoa(version)
	hash := sha256.Sum256([]byte(base))
	return "ts-" + hex.EncodeToString(hash[:8])
}
