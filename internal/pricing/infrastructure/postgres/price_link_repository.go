package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"settlementcore/internal/ids"
	pricing "settlementcore/internal/pricing/domain"
)

// PriceLinkRepository is a Postgres implementation of
// pricing.PriceLinkRepository.
type PriceLinkRepository struct {
	db *sql.DB
}

// NewPriceLinkRepository constructs a repository.
func NewPriceLinkRepository(db *sql.DB) *PriceLinkRepository {
	return &PriceLinkRepository{db: db}
}

// ActiveLinksFor returns links for gsrn overlapping [start, end).
func (r *PriceLinkRepository) ActiveLinksFor(ctx context.Context, gsrn ids.GSRN, start, end time.Time) ([]pricing.PriceLink, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("price link repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, charge_id, owner_gln, gsrn, period_start, period_end, open_ended, created_at, updated_at
FROM price_links
WHERE gsrn = $1 AND period_start < $3 AND (open_ended OR period_end > $2)`,
		string(gsrn), start, end)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanPriceLinks(rows)
}

// FindActive returns the existing link for (chargeID/ownerGLN, gsrn), if any.
func (r *PriceLinkRepository) FindActive(ctx context.Context, chargeID string, ownerGLN ids.GLN, gsrn ids.GSRN) (*pricing.PriceLink, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("price link repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, charge_id, owner_gln, gsrn, period_start, period_end, open_ended, created_at, updated_at
FROM price_links
WHERE charge_id = $1 AND owner_gln = $2 AND gsrn = $3
LIMIT 1`, chargeID, string(ownerGLN), string(gsrn))

	link, err := scanPriceLink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return link, nil
}

// Save upserts a price link.
func (r *PriceLinkRepository) Save(ctx context.Context, link *pricing.PriceLink) error {
	if r == nil || r.db == nil {
		return errors.New("price link repo: nil db")
	}
	if link == nil {
		return errors.New("price link repo: nil link")
	}
	if link.ID == "" {
		link.ID = buildPriceLinkID(link.ChargeID, string(link.OwnerGLN), string(link.GSRN))
	}

	var periodEnd any
	if !link.Period.OpenEnded {
		periodEnd = link.Period.End
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO price_links (
	id, charge_id, owner_gln, gsrn, period_start, period_end, open_ended
) VALUES (
	$1,$2,$3,$4,$5,$6,$7
)
ON CONFLICT (id)
DO UPDATE SET
	period_start = EXCLUDED.period_start,
	period_end = EXCLUDED.period_end,
	open_ended = EXCLUDED.open_ended,
	updated_at = NOW()`,
		link.ID, link.ChargeID, string(link.OwnerGLN), string(link.GSRN),
		link.Period.Start, periodEnd, link.Period.OpenEnded,
	)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	if link.CreatedAt.IsZero() {
		link.CreatedAt = now
	}
	link.UpdatedAt = now
	return nil
}

// buildPriceLinkID derives a stable identifier from the link's natural key,
// following the same hash-of-natural-key idiom the settlement statement
// repository uses for statement IDs.
func buildPriceLinkID(chargeID, ownerGLN, gsrn string) string {
	base := chargeID + "|" + ownerGLN + "|" + gsrn
	hash := sha256.Sum256([]byte(base))
	return "plink-" + hex.EncodeToString(hash[:8])
}

func scanPriceLink(row *sql.Row) (*pricing.PriceLink, error) {
	var l pricing.PriceLink
	var ownerGLN, gsrn string
	var periodEnd sql.NullTime
	var openEnded bool
	if err := row.Scan(&l.ID, &l.ChargeID, &ownerGLN, &gsrn, &l.Period.Start, &periodEnd, &openEnded, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return nil, err
	}
	l.OwnerGLN = ids.GLN(ownerGLN)
	l.GSRN = ids.GSRN(gsrn)
	l.Period.OpenEnded = openEnded
	if !openEnded && periodEnd.Valid {
		l.Period.End = periodEnd.Time.UTC()
	}
	l.Period.Start = l.Period.Start.UTC()
	l.CreatedAt = l.CreatedAt.UTC()
	l.UpdatedAt = l.UpdatedAt.UTC()
	return &l, nil
}

func scanPriceLinks(rows *sql.Rows) ([]pricing.PriceLink, error) {
	var out []pricing.PriceLink
	for rows.Next() {
		var l pricing.PriceLink
		var ownerGLN, gsrn string
		var periodEnd sql.NullTime
		var openEnded bool
		if err := rows.Scan(&l.ID, &l.ChargeID, &ownerGLN, &gsrn, &l.Period.Start, &periodEnd, &openEnded, &l.CreatedAt, &l.UpdatedAt); err != nil {
			return nil, err
		}
		l.OwnerGLN = ids.GLN(ownerGLN)
		l.GSRN = ids.GSRN(gsrn)
		l.Period.OpenEnded = openEnded
		if !openEnded && periodEnd.Valid {
			l.Period.End = periodEnd.Time.UTC()
		}
		l.Period.Start = l.Period.Start.UTC()
		l.CreatedAt = l.CreatedAt.UTC()
		l.UpdatedAt = l.UpdatedAt.UTC()
		out = append(out, l)
	}
	return out, rows.Err()
}
