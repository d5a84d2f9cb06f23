package metering

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/money"
)

// AggregatedTimeSeries is a grid-area-scoped aggregate of observations
// delivered by the market operator for reconciliation (BRS-023). Append-only:
// there is no version flip, only new rows.
type AggregatedTimeSeries struct {
	ID            string
	GridAreaCode  string
	Timestamp     time.Time
	Quantity      money.Quantity
	TransactionID string
	ReceivedAt    time.Time
}

// Validate checks aggregate invariants.
func (a AggregatedTimeSeries) Validate() error {
	if a.GridAreaCode == "" {
		return errors.New("metering: empty grid area code")
	}
	if a.Timestamp.IsZero() {
		return errors.New("metering: empty timestamp")
	}
	return nil
}

// AggregatedTimeSeriesRepository appends BRS-023 rows.
type AggregatedTimeSeriesRepository interface {
	Append(ctx context.Context, a *AggregatedTimeSeries) error
}

// WholesaleSettlement is a monetary settlement line delivered by the market
// operator for reconciliation (BRS-027). Append-only.
type WholesaleSettlement struct {
	ID            string
	GridAreaCode  string
	ChargeID      string
	OwnerGLN      string
	Period        time.Time
	Amount        money.Money
	TransactionID string
	ReceivedAt    time.Time
}

// Validate checks wholesale settlement invariants.
func (w WholesaleSettlement) Validate() error {
	if w.GridAreaCode == "" {
		return errors.New("metering: empty grid area code")
	}
	if w.ChargeID == "" {
		return errors.New("metering: empty charge id")
	}
	return nil
}

// WholesaleSettlementRepository appends BRS-027 rows.
type WholesaleSettlementRepository interface {
	Append(ctx context.Context, w *WholesaleSettlement) error
}
