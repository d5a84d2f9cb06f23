package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	masterdata "settlementcore/internal/masterdata/domain"
	"settlementcore/internal/ids"
)

const defaultMeteringPointsTable = "metering_points"

// MeteringPointRepository is a Postgres implementation of
// masterdata.MeteringPointRepository.
type MeteringPointRepository struct {
	db    *sql.DB
	table string
}

// MeteringPointOption configures the repository.
type MeteringPointOption func(*MeteringPointRepository)

// WithMeteringPointsTable overrides the default table name.
func WithMeteringPointsTable(table string) MeteringPointOption {
	return func(r *MeteringPointRepository) {
		if table != "" {
			r.table = table
		}
	}
}

// NewMeteringPointRepository constructs a repository.
func NewMeteringPointRepository(db *sql.DB, opts ...MeteringPointOption) *MeteringPointRepository {
	repo := &MeteringPointRepository{db: db, table: defaultMeteringPointsTable}
	for _, opt := range opts {
		opt(repo)
	}
	return repo
}

// Get loads a metering point by GSRN. Returns (nil, nil) when absent — the
// caller treats that as data-absence, not an error.
func (r *MeteringPointRepository) Get(ctx context.Context, gsrn ids.GSRN) (*masterdata.MeteringPoint, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("metering point repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT gsrn, type, category, settlement_method, resolution, connection_state,
	grid_area_code, grid_company_gln, has_active_supply, created_at, updated_at
FROM `+r.table+`
WHERE gsrn = $1
LIMIT 1`, string(gsrn))

	var mp masterdata.MeteringPoint
	var gsrnStr, glnStr string
	if err := row.Scan(
		&gsrnStr,
		&mp.Type,
		&mp.Category,
		&mp.SettlementMethod,
		&mp.Resolution,
		&mp.ConnectionState,
		&mp.GridAreaCode,
		&glnStr,
		&mp.HasActiveSupply,
		&mp.CreatedAt,
		&mp.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	mp.GSRN = ids.GSRN(gsrnStr)
	mp.GridCompanyGLN = ids.GLN(glnStr)
	mp.CreatedAt = mp.CreatedAt.UTC()
	mp.UpdatedAt = mp.UpdatedAt.UTC()
	return &mp, nil
}

// Save upserts a metering point.
func (r *MeteringPointRepository) Save(ctx context.Context, mp *masterdata.MeteringPoint) error {
	if r == nil || r.db == nil {
		return errors.New("metering point repo: nil db")
	}
	if mp == nil {
		return errors.New("metering point repo: nil metering point")
	}
	if err := mp.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO `+r.table+` (
	gsrn, type, category, settlement_method, resolution, connection_state,
	grid_area_code, grid_company_gln, has_active_supply
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9
)
ON CONFLICT (gsrn)
DO UPDATE SET
	type = EXCLUDED.type,
	category = EXCLUDED.category,
	settlement_method = EXCLUDED.settlement_method,
	resolution = EXCLUDED.resolution,
	connection_state = EXCLUDED.connection_state,
	grid_area_code = EXCLUDED.grid_area_code,
	grid_company_gln = EXCLUDED.grid_company_gln,
	has_active_supply = EXCLUDED.has_active_supply,
	updated_at = NOW()`,
		string(mp.GSRN), mp.Type, mp.Category, mp.SettlementMethod, mp.Resolution,
		mp.ConnectionState, mp.GridAreaCode, string(mp.GridCompanyGLN), mp.HasActiveSupply,
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if mp.CreatedAt.IsZero() {
		mp.CreatedAt = now
	}
	mp.UpdatedAt = now
	return nil
}
