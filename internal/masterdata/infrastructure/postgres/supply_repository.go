package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"settlementcore/internal/ids"
	masterdata "settlementcore/internal/masterdata/domain"
)

const defaultSuppliesTable = "supplies"

// SupplyRepository is a Postgres implementation of masterdata.SupplyRepository.
type SupplyRepository struct {
	db    *sql.DB
	table string
}

// NewSupplyRepository constructs a repository.
func NewSupplyRepository(db *sql.DB) *SupplyRepository {
	return &SupplyRepository{db: db, table: defaultSuppliesTable}
}

// ActiveAt returns the supply covering gsrn at instant t, or nil if none.
func (r *SupplyRepository) ActiveAt(ctx context.Context, gsrn ids.GSRN, t time.Time) (*masterdata.Supply, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("supply repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, gsrn, customer_id, period_start, period_end, open_ended, created_at, updated_at
FROM `+r.table+`
WHERE gsrn = $1 AND period_start <= $2 AND (open_ended OR period_end > $2)
LIMIT 1`, string(gsrn), t)
	return scanSupply(row)
}

// OpenEnded returns the current open-ended supply for gsrn, if any.
func (r *SupplyRepository) OpenEnded(ctx context.Context, gsrn ids.GSRN) (*masterdata.Supply, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("supply repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, gsrn, customer_id, period_start, period_end, open_ended, created_at, updated_at
FROM `+r.table+`
WHERE gsrn = $1 AND open_ended
LIMIT 1`, string(gsrn))
	return scanSupply(row)
}

// Save upserts a supply.
func (r *SupplyRepository) Save(ctx context.Context, s *masterdata.Supply) error {
	if r == nil || r.db == nil {
		return errors.New("supply repo: nil db")
	}
	if s == nil {
		return errors.New("supply repo: nil supply")
	}
	if err := s.Validate(); err != nil {
		return err
	}

	var periodEnd any
	if !s.Period.OpenEnded {
		periodEnd = s.Period.End
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO `+r.table+` (
	id, gsrn, customer_id, period_start, period_end, open_ended
) VALUES (
	$1,$2,$3,$4,$5,$6
)
ON CONFLICT (id)
DO UPDATE SET
	customer_id = EXCLUDED.customer_id,
	period_start = EXCLUDED.period_start,
	period_end = EXCLUDED.period_end,
	open_ended = EXCLUDED.open_ended,
	updated_at = NOW()`,
		s.ID, string(s.GSRN), s.CustomerID, s.Period.Start, periodEnd, s.Period.OpenEnded,
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	return nil
}

func scanSupply(row *sql.Row) (*masterdata.Supply, error) {
	var s masterdata.Supply
	var gsrnStr string
	var periodEnd sql.NullTime
	var openEnded bool
	if err := row.Scan(&s.ID, &gsrnStr, &s.CustomerID, &s.Period.Start, &periodEnd, &openEnded, &s.CreatedAt, &s.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	s.GSRN = ids.GSRN(gsrnStr)
	s.Period.Start = s.Period.Start.UTC()
	s.Period.OpenEnded = openEnded
	if !openEnded && periodEnd.Valid {
		s.Period.End = periodEnd.Time.UTC()
	}
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}
