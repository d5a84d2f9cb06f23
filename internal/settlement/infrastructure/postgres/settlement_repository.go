package postgres

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"settlementcore/internal/ids"
	"settlementcore/internal/money"
	"settlementcore/internal/period"
	settlement "settlementcore/internal/settlement/domain"
)

// SettlementRepository is a Postgres implementation of
// settlement.SettlementRepository.
type SettlementRepository struct {
	db *sql.DB
}

// NewSettlementRepository constructs a repository.
func NewSettlementRepository(db *sql.DB) *SettlementRepository {
	return &SettlementRepository{db: db}
}

// Get returns a settlement by id, with its lines loaded.
func (r *SettlementRepository) Get(ctx context.Context, id string) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, gsrn, supply_id, time_series_id, time_series_version, period_start, period_end,
	status, is_correction, previous_settlement_id, document_number,
	total_energy_kwh, total_amount, invoice_reference, invoiced_at, calculated_at, created_at, updated_at
FROM settlements
WHERE id = $1
LIMIT 1`, id)

	s, err := scanSettlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// ExistsForTimeSeriesVersion reports whether a settlement already exists
// for the exact (time_series_id, version) pair.
func (r *SettlementRepository) ExistsForTimeSeriesVersion(ctx context.Context, timeSeriesID string, version int) (bool, error) {
	if r == nil || r.db == nil {
		return false, errors.New("settlement repo: nil db")
	}
	var exists bool
	err := r.db.QueryRowContext(ctx, `
SELECT EXISTS(SELECT 1 FROM settlements WHERE time_series_id = $1 AND time_series_version = $2)`,
		timeSeriesID, version).Scan(&exists)
	return exists, err
}

// FindNonCancelableForPeriod returns a settlement in a non-cancelable state
// for (gsrn, period), if any.
func (r *SettlementRepository) FindNonCancelableForPeriod(ctx context.Context, gsrn ids.GSRN, p period.Period) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, gsrn, supply_id, time_series_id, time_series_version, period_start, period_end,
	status, is_correction, previous_settlement_id, document_number,
	total_energy_kwh, total_amount, invoice_reference, invoiced_at, calculated_at, created_at, updated_at
FROM settlements
WHERE gsrn = $1 AND period_start = $2 AND period_end = $3
	AND status IN ('calculated','invoiced','adjusted','migrated')
ORDER BY created_at DESC
LIMIT 1`, string(gsrn), p.Start, p.End)

	s, err := scanSettlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// FindInvoicedOrMigratedForPeriod returns an Invoiced or Migrated
// settlement with the exact same (gsrn, period), if any.
func (r *SettlementRepository) FindInvoicedOrMigratedForPeriod(ctx context.Context, gsrn ids.GSRN, p period.Period) (*settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, gsrn, supply_id, time_series_id, time_series_version, period_start, period_end,
	status, is_correction, previous_settlement_id, document_number,
	total_energy_kwh, total_amount, invoice_reference, invoiced_at, calculated_at, created_at, updated_at
FROM settlements
WHERE gsrn = $1 AND period_start = $2 AND period_end = $3
	AND status IN ('invoiced','migrated')
ORDER BY created_at DESC
LIMIT 1`, string(gsrn), p.Start, p.End)

	s, err := scanSettlement(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadLines(ctx, s); err != nil {
		return nil, err
	}
	return s, nil
}

// Save persists a settlement and its lines in one transaction, drawing a
// document number from the monotonic settlement_document_seq sequence when
// the settlement does not already carry one. The database sequence keeps
// the numbering monotonic under concurrent writers.
func (r *SettlementRepository) Save(ctx context.Context, s *settlement.Settlement) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	if s == nil {
		return errors.New("settlement repo: nil settlement")
	}
	if s.ID == "" {
		s.ID = buildSettlementID(string(s.GSRN), s.TimeSeriesID, s.TimeSeriesVersion, s.IsCorrection)
	}
	if s.Status == "" {
		s.Status = settlement.StatusCalculated
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	if s.DocumentNumber == "" {
		var seq int64
		if err := tx.QueryRowContext(ctx, `SELECT nextval('settlement_document_seq')`).Scan(&seq); err != nil {
			_ = tx.Rollback()
			return err
		}
		s.DocumentNumber = fmt.Sprintf("WO-%d-%05d", time.Now().UTC().Year(), seq)
	}

	now := time.Now().UTC()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.UpdatedAt = now
	if s.CalculatedAt.IsZero() {
		s.CalculatedAt = now
	}

	var previousID any
	if s.PreviousSettlementID != "" {
		previousID = s.PreviousSettlementID
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO settlements (
	id, gsrn, supply_id, time_series_id, time_series_version, period_start, period_end,
	status, is_correction, previous_settlement_id, document_number,
	total_energy_kwh, total_amount, invoice_reference, invoiced_at, calculated_at, created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)`,
		s.ID, string(s.GSRN), s.SupplyID, s.TimeSeriesID, s.TimeSeriesVersion, s.Period.Start, s.Period.End,
		string(s.Status), s.IsCorrection, previousID, s.DocumentNumber,
		s.TotalEnergy.Milli(), s.TotalAmount.MinorUnits(), nullableString(s.InvoiceReference), nullableTime(s.InvoicedAt),
		s.CalculatedAt, s.CreatedAt, s.UpdatedAt,
	)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	for _, line := range s.Lines {
		_, err := tx.ExecContext(ctx, `
INSERT INTO settlement_lines (
	settlement_id, source, charge_id, quantity, unit_price, amount
) VALUES ($1,$2,$3,$4,$5,$6)`,
			s.ID, string(line.Source), line.ChargeID, line.Quantity.Milli(), line.UnitPrice.Micro(), line.Amount.MinorUnits(),
		)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	return tx.Commit()
}

// MarkStatus updates a settlement's status.
func (r *SettlementRepository) MarkStatus(ctx context.Context, id string, status settlement.Status) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	_, err := r.db.ExecContext(ctx, `
UPDATE settlements SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), id)
	return err
}

// ListByStatus returns settlements in the given status, oldest first, for
// the outbound pull API's "new settlements" read.
func (r *SettlementRepository) ListByStatus(ctx context.Context, status settlement.Status, limit int) ([]settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, gsrn, supply_id, time_series_id, time_series_version, period_start, period_end,
	status, is_correction, previous_settlement_id, document_number,
	total_energy_kwh, total_amount, invoice_reference, invoiced_at, calculated_at, created_at, updated_at
FROM settlements
WHERE status = $1
ORDER BY created_at ASC
LIMIT $2`, string(status), limit)
	if err != nil {
		return nil, err
	}
	return r.scanList(ctx, rows)
}

// ListCorrections returns settlements with IsCorrection=true, oldest first,
// for the outbound pull API's corrections read.
func (r *SettlementRepository) ListCorrections(ctx context.Context, limit int) ([]settlement.Settlement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("settlement repo: nil db")
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, gsrn, supply_id, time_series_id, time_series_version, period_start, period_end,
	status, is_correction, previous_settlement_id, document_number,
	total_energy_kwh, total_amount, invoice_reference, invoiced_at, calculated_at, created_at, updated_at
FROM settlements
WHERE is_correction = true
ORDER BY created_at ASC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return r.scanList(ctx, rows)
}

func (r *SettlementRepository) scanList(ctx context.Context, rows *sql.Rows) ([]settlement.Settlement, error) {
	defer rows.Close()
	var out []settlement.Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		if err := r.loadLines(ctx, s); err != nil {
			return nil, err
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// MarkInvoiced persists the Calculated -> Invoiced transition along with the
// external invoice reference.
func (r *SettlementRepository) MarkInvoiced(ctx context.Context, id string, invoiceReference string, invoicedAt time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("settlement repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE settlements SET status = 'invoiced', invoice_reference = $1, invoiced_at = $2, updated_at = $3
WHERE id = $4 AND status = 'calculated'`,
		invoiceReference, invoicedAt, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return settlement.ErrNotCalculated
	}
	return nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func (r *SettlementRepository) loadLines(ctx context.Context, s *settlement.Settlement) error {
	if s == nil {
		return nil
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT source, charge_id, quantity, unit_price, amount
FROM settlement_lines
WHERE settlement_id = $1`, s.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var source, chargeID string
		var quantity, unitPrice, amount int64
		if err := rows.Scan(&source, &chargeID, &quantity, &unitPrice, &amount); err != nil {
			return err
		}
		s.Lines = append(s.Lines, settlement.SettlementLine{
			Source:    settlement.LineSource(source),
			ChargeID:  chargeID,
			Quantity:  money.NewQuantityFromMilli(quantity),
			UnitPrice: money.NewUnitPriceFromMicro(unitPrice),
			Amount:    money.NewMoneyFromMinorUnits(amount),
		})
	}
	return rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSettlement(row rowScanner) (*settlement.Settlement, error) {
	var s settlement.Settlement
	var gsrn, status string
	var previousID, invoiceReference sql.NullString
	var invoicedAt sql.NullTime
	var totalEnergy, totalAmount int64
	if err := row.Scan(
		&s.ID, &gsrn, &s.SupplyID, &s.TimeSeriesID, &s.TimeSeriesVersion, &s.Period.Start, &s.Period.End,
		&status, &s.IsCorrection, &previousID, &s.DocumentNumber,
		&totalEnergy, &totalAmount, &invoiceReference, &invoicedAt, &s.CalculatedAt, &s.CreatedAt, &s.UpdatedAt,
	); err != nil {
		return nil, err
	}
	s.GSRN = ids.GSRN(gsrn)
	s.Status = settlement.Status(status)
	if previousID.Valid {
		s.PreviousSettlementID = previousID.String
	}
	if invoiceReference.Valid {
		s.InvoiceReference = invoiceReference.String
	}
	if invoicedAt.Valid {
		s.InvoicedAt = invoicedAt.Time.UTC()
	}
	s.TotalEnergy = money.NewQuantityFromMilli(totalEnergy)
	s.TotalAmount = money.NewMoneyFromMinorUnits(totalAmount)
	s.Period.Start = s.Period.Start.UTC()
	s.Period.End = s.Period.End.UTC()
	s.CalculatedAt = s.CalculatedAt.UTC()
	s.CreatedAt = s.CreatedAt.UTC()
	s.UpdatedAt = s.UpdatedAt.UTC()
	return &s, nil
}

func buildSettlementID(gsrn, timeSeriesID string, version int, isCorrection bool) string {
	base := fmt.Sprintf("%s|%s|%d|%v", gsrn, timeSeriesID, version, isCorrection)
	hash := sha256.Sum256([]byte(base))
	return "stl-" + hex.EncodeToString(hash[:8])
}
