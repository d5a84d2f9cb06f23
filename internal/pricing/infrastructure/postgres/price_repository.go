// Package postgres implements pricing.PriceRepository,
// pricing.PricePointRepository, pricing.PriceLinkRepository and
// pricing.SpotPriceRepository against PostgreSQL, following the same
// *sql.DB + ON CONFLICT idiom as the masterdata repositories (none of the
// pricing repositories takes functional options).
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"settlementcore/internal/ids"
	pricing "settlementcore/internal/pricing/domain"
)

// PriceRepository is a Postgres implementation of pricing.PriceRepository.
type PriceRepository struct {
	db *sql.DB
}

// NewPriceRepository constructs a repository.
func NewPriceRepository(db *sql.DB) *PriceRepository {
	return &PriceRepository{db: db}
}

// Get loads a price by its (chargeID, ownerGLN) compound key.
func (r *PriceRepository) Get(ctx context.Context, chargeID string, ownerGLN ids.GLN) (*pricing.Price, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("price repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT charge_id, owner_gln, type, category, description,
	validity_start, validity_end, open_ended, vat_exempt, is_tax, pass_through,
	resolution_seconds, created_at, updated_at
FROM prices
WHERE charge_id = $1 AND owner_gln = $2
LIMIT 1`, chargeID, string(ownerGLN))

	var p pricing.Price
	var glnStr string
	var validityEnd sql.NullTime
	var openEnded bool
	var resolutionSeconds sql.NullInt64
	if err := row.Scan(
		&p.ChargeID, &glnStr, &p.Type, &p.Category, &p.Description,
		&p.Validity.Start, &validityEnd, &openEnded, &p.VATExempt, &p.IsTax, &p.PassThrough,
		&resolutionSeconds, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	p.OwnerGLN = ids.GLN(glnStr)
	p.Validity.OpenEnded = openEnded
	if !openEnded && validityEnd.Valid {
		p.Validity.End = validityEnd.Time.UTC()
	}
	if resolutionSeconds.Valid {
		d := time.Duration(resolutionSeconds.Int64) * time.Second
		p.Resolution = &d
	}
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

// Save upserts a price.
func (r *PriceRepository) Save(ctx context.Context, p *pricing.Price) error {
	if r == nil || r.db == nil {
		return errors.New("price repo: nil db")
	}
	if p == nil {
		return errors.New("price repo: nil price")
	}
	if err := p.Validate(); err != nil {
		return err
	}

	var validityEnd any
	if !p.Validity.OpenEnded {
		validityEnd = p.Validity.End
	}
	var resolutionSeconds any
	if p.Resolution != nil {
		resolutionSeconds = int64(*p.Resolution / time.Second)
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO prices (
	charge_id, owner_gln, type, category, description,
	validity_start, validity_end, open_ended, vat_exempt, is_tax, pass_through, resolution_seconds
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)
ON CONFLICT (charge_id, owner_gln)
DO UPDATE SET
	type = EXCLUDED.type,
	category = EXCLUDED.category,
	description = EXCLUDED.description,
	validity_start = EXCLUDED.validity_start,
	validity_end = EXCLUDED.validity_end,
	open_ended = EXCLUDED.open_ended,
	vat_exempt = EXCLUDED.vat_exempt,
	is_tax = EXCLUDED.is_tax,
	pass_through = EXCLUDED.pass_through,
	resolution_seconds = EXCLUDED.resolution_seconds,
	updated_at = NOW()`,
		p.ChargeID, string(p.OwnerGLN), p.Type, p.Category, p.Description,
		p.Validity.Start, validityEnd, p.Validity.OpenEnded, p.VATExempt, p.IsTax, p.PassThrough, resolutionSeconds,
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	return nil
}
