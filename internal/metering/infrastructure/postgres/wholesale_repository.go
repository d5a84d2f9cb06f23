package postgres

import (
	"context"
	"database/sql"
	"errors"

	metering "settlementcore/internal/metering/domain"
)

// WholesaleSettlementRepository is a Postgres implementation of
// metering.WholesaleSettlementRepository. Append-only.
type WholesaleSettlementRepository struct {
	db *sql.DB
}

// NewWholesaleSettlementRepository constructs a repository.
func NewWholesaleSettlementRepository(db *sql.DB) *WholesaleSettlementRepository {
	return &WholesaleSettlementRepository{db: db}
}

// Append inserts a BRS-027 row.
func (r *WholesaleSettlementRepository) Append(ctx context.Context, w *metering.WholesaleSettlement) error {
	if r == nil || r.db == nil {
		return errors.New("wholesale settlement repo: nil db")
	}
	if w == nil {
		return errors.New("wholesale settlement repo: nil row")
	}
	if w.ID == "" {
		w.ID = buildAppendOnlyID("wss", w.GridAreaCode+"|"+w.ChargeID, w.Period, w.TransactionID)
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO wholesale_settlements (
	id, grid_area_code, charge_id, owner_gln, period, amount, transaction_id, received_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (id) DO NOTHING`,
		w.ID, w.GridAreaCode, w.ChargeID, w.OwnerGLN, w.Period, w.Amount.Float64(), w.TransactionID, w.ReceivedAt,
	)
	return err
}
