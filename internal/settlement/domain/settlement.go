// Package settlement holds the calculated settlement aggregate: the
// priced, lined-out result of applying prices and spot rates to a metering
// point's consumption over a period, plus its issue-tracking sibling.
package settlement

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/ids"
	"settlementcore/internal/money"
	"settlementcore/internal/period"
)

// Status enumerates a settlement's lifecycle state.
type Status string

const (
	// StatusCalculated is the initial state: computed, not yet invoiced.
	StatusCalculated Status = "calculated"
	// StatusInvoiced means the settlement has been sent downstream for
	// billing.
	StatusInvoiced Status = "invoiced"
	// StatusAdjusted is terminal: a correction superseded this settlement.
	StatusAdjusted Status = "adjusted"
	// StatusMigrated is a settlement imported from a predecessor system. It
	// is not itself correctable in place, but the settlement worker treats it the
	// same as Invoiced for the purpose of originating a correction.
	StatusMigrated Status = "migrated"
)

// LineSource enumerates the pricing origin of a settlement line.
type LineSource string

const (
	LineSourceSpot         LineSource = "spot"
	LineSourceMargin       LineSource = "margin"
	LineSourceGridTariff   LineSource = "grid_tariff"
	LineSourceSystemTariff LineSource = "system_tariff"
	LineSourceTransmission LineSource = "transmission_tariff"
	LineSourceTax          LineSource = "tax"
	LineSourceSubscription LineSource = "subscription"
	LineSourceFee          LineSource = "fee"
)

// SettlementLine is one priced line within a Settlement: an aggregated
// quantity, its quantity-weighted unit price, and the resulting amount.
type SettlementLine struct {
	Source    LineSource
	ChargeID  string // empty for energy lines (spot/margin)
	Quantity  money.Quantity
	UnitPrice money.UnitPrice
	Amount    money.Money
}

// ErrEmptyGSRN is returned when a settlement carries no metering point
// reference.
var ErrEmptyGSRN = errors.New("settlement: empty gsrn")

// ErrEmptyTimeSeriesID is returned when a settlement is not tied to the
// exact time series version it was calculated from.
var ErrEmptyTimeSeriesID = errors.New("settlement: empty time series id")

// Settlement is the priced result of applying prices to a metering point's
// consumption over a period. It references the exact immutable TimeSeries
// version it consumed, so later corrections never mutate prior
// calculations.
type Settlement struct {
	ID                   string
	GSRN                 ids.GSRN
	SupplyID             string
	TimeSeriesID         string
	TimeSeriesVersion    int
	Period               period.Period
	Status               Status
	IsCorrection         bool
	PreviousSettlementID string
	DocumentNumber       string
	Lines                []SettlementLine
	TotalEnergy          money.Quantity
	TotalAmount          money.Money
	InvoiceReference     string
	InvoicedAt           time.Time
	CalculatedAt         time.Time
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ErrNotCalculated is returned when MarkInvoiced is attempted on a
// settlement that is not in the Calculated state — a state-machine
// violation, fatal for the transaction.
var ErrNotCalculated = errors.New("settlement: mark invoiced requires calculated status")

// MarkInvoiced transitions a Calculated settlement to Invoiced, recording
// the external invoice reference the downstream invoicing system supplied.
// Calling it on any other status is a programming error: it is reported,
// never silently absorbed.
func (s *Settlement) MarkInvoiced(invoiceReference string, invoicedAt time.Time) error {
	if s.Status != StatusCalculated {
		return ErrNotCalculated
	}
	if invoiceReference == "" {
		return errors.New("settlement: empty invoice reference")
	}
	s.Status = StatusInvoiced
	s.InvoiceReference = invoiceReference
	s.InvoicedAt = invoicedAt
	return nil
}

// Validate checks settlement invariants.
func (s Settlement) Validate() error {
	if s.GSRN == "" {
		return ErrEmptyGSRN
	}
	if s.TimeSeriesID == "" {
		return ErrEmptyTimeSeriesID
	}
	if s.TimeSeriesVersion < 1 {
		return errors.New("settlement: time series version must be >= 1")
	}
	if s.IsCorrection && s.PreviousSettlementID == "" {
		return errors.New("settlement: correction without previous settlement id")
	}
	return nil
}

// Totals computes TotalEnergy (sum of energy-line quantities) and
// TotalAmount (sum of all already-rounded line amounts; totals are never
// re-rounded).
func Totals(lines []SettlementLine) (totalEnergy money.Quantity, totalAmount money.Money) {
	for _, l := range lines {
		// Spot and margin lines price the same underlying consumption, so
		// energy is counted from the margin line alone: it is present under
		// both pricing models.
		if l.Source == LineSourceMargin {
			totalEnergy = totalEnergy.Add(l.Quantity)
		}
		totalAmount = totalAmount.Add(l.Amount)
	}
	return totalEnergy, totalAmount
}

// Recalculable reports whether a settlement may still be superseded by a
// correction: Invoiced or Migrated settlements can. Migrated rows are a
// valid correction source rather than purely terminal.
func (s Settlement) Recalculable() bool {
	return s.Status == StatusInvoiced || s.Status == StatusMigrated
}

// NonCancelable reports whether a settlement counts as "already settled"
// when the worker is deciding whether a (metering_point, period) still
// needs a fresh calculation.
func (s Settlement) NonCancelable() bool {
	switch s.Status {
	case StatusInvoiced, StatusMigrated, StatusCalculated, StatusAdjusted:
		return true
	default:
		return false
	}
}

// SettlementRepository manages settlement persistence.
type SettlementRepository interface {
	// Get returns a settlement by id.
	Get(ctx context.Context, id string) (*Settlement, error)
	// ExistsForTimeSeriesVersion reports whether a settlement already exists
	// for the exact (time_series_id, version) pair.
	ExistsForTimeSeriesVersion(ctx context.Context, timeSeriesID string, version int) (bool, error)
	// FindNonCancelableForPeriod returns a settlement in a non-cancelable
	// state for (gsrn, period), if any — used by the worker's candidate
	// filter.
	FindNonCancelableForPeriod(ctx context.Context, gsrn ids.GSRN, p period.Period) (*Settlement, error)
	// FindInvoicedOrMigratedForPeriod returns an Invoiced or Migrated
	// settlement with the exact same (gsrn, period), if any — the
	// correction-branch lookup.
	FindInvoicedOrMigratedForPeriod(ctx context.Context, gsrn ids.GSRN, p period.Period) (*Settlement, error)
	// Save persists a settlement and its lines, assigning a document number
	// from the monotonic sequence if it does not already have one.
	Save(ctx context.Context, s *Settlement) error
	// MarkStatus updates a settlement's status (e.g. Invoiced -> Adjusted).
	MarkStatus(ctx context.Context, id string, status Status) error
	// ListByStatus returns settlements in the given status, oldest first,
	// for the outbound pull API's "new settlements" read.
	ListByStatus(ctx context.Context, status Status, limit int) ([]Settlement, error)
	// ListCorrections returns settlements with IsCorrection=true, for the
	// outbound pull API's corrections read.
	ListCorrections(ctx context.Context, limit int) ([]Settlement, error)
	// MarkInvoiced persists the Calculated -> Invoiced transition along with
	// the external invoice reference.
	MarkInvoiced(ctx context.Context, id string, invoiceReference string, invoicedAt time.Time) error
}
