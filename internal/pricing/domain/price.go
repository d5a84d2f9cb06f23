// Package pricing holds DataHub-side charges (tariffs, subscriptions, fees)
// and wholesale spot prices, plus the links that bind a charge to a
// metering point for a period.
package pricing

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/ids"
	"settlementcore/internal/period"
)

// PriceType enumerates the commercial shape of a charge.
type PriceType string

const (
	PriceTypeTariff       PriceType = "tariff"
	PriceTypeSubscription PriceType = "subscription"
	PriceTypeFee          PriceType = "fee"
)

// PriceCategory enumerates which settlement bucket a charge belongs to.
type PriceCategory string

const (
	CategoryNetTariff    PriceCategory = "nettariff"
	CategorySystem       PriceCategory = "system"
	CategoryTransmission PriceCategory = "transmission"
	CategoryTax          PriceCategory = "tax"
	CategorySpot         PriceCategory = "spot"
	CategoryMargin       PriceCategory = "margin"
	CategoryOther        PriceCategory = "other"
)

// ErrTaxRequiresTariff is returned when a non-tariff price is marked as tax.
var ErrTaxRequiresTariff = errors.New("pricing: only tariffs may be tax")

// ErrFeeCannotPassThrough is returned when a fee is marked pass-through.
var ErrFeeCannotPassThrough = errors.New("pricing: fees are never pass-through")

// Price is a DataHub-side charge, keyed by the compound natural key
// (ChargeID, OwnerGLN).
type Price struct {
	ChargeID    string
	OwnerGLN    ids.GLN
	Type        PriceType
	Category    PriceCategory
	Description string
	Validity    period.Period
	VATExempt   bool
	IsTax       bool
	PassThrough bool
	Resolution  *time.Duration // nil when not time-varying (e.g. subscription)
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Validate checks price invariants, including the tax and pass-through
// rules.
func (p Price) Validate() error {
	if p.ChargeID == "" {
		return errors.New("price: empty charge id")
	}
	if p.OwnerGLN == "" {
		return errors.New("price: empty owner gln")
	}
	if p.IsTax && p.Type != PriceTypeTariff {
		return ErrTaxRequiresTariff
	}
	if p.Type == PriceTypeFee && p.PassThrough {
		return ErrFeeCannotPassThrough
	}
	return nil
}

// Key returns the compound natural key as a single comparable string.
func (p Price) Key() string { return p.ChargeID + "|" + string(p.OwnerGLN) }

// PriceRepository manages price persistence.
type PriceRepository interface {
	Get(ctx context.Context, chargeID string, ownerGLN ids.GLN) (*Price, error)
	Save(ctx context.Context, price *Price) error
}

// PricePoint is a timestamped rate for a price. For tariffs one point per
// (typically hourly) interval; for subscriptions a single point whose value
// is the periodic amount.
type PricePoint struct {
	ChargeID     string
	OwnerGLN     ids.GLN
	Timestamp    time.Time
	ValuePerUnit float64
}

// PricePointRepository manages price point persistence.
type PricePointRepository interface {
	// ListInRange returns the points for a price within [start, end),
	// ascending by timestamp.
	ListInRange(ctx context.Context, chargeID string, ownerGLN ids.GLN, start, end time.Time) ([]PricePoint, error)
	// RateAt returns the applicable rate at instant t: the point with the
	// greatest timestamp <= t. ok=false when no such point exists.
	RateAt(ctx context.Context, chargeID string, ownerGLN ids.GLN, t time.Time) (rate float64, ok bool, err error)
	// ReplaceRange atomically removes existing points in [start, end) and
	// inserts the provided ones (BRS-037/D08 semantics).
	ReplaceRange(ctx context.Context, chargeID string, ownerGLN ids.GLN, start, end time.Time, points []PricePoint) error
}

// PriceLink associates a price with a metering point for a half-open period.
type PriceLink struct {
	ID        string
	ChargeID  string
	OwnerGLN  ids.GLN
	GSRN      ids.GSRN
	Period    period.Period
	CreatedAt time.Time
	UpdatedAt time.Time
}

// PriceLinkRepository manages price link persistence.
type PriceLinkRepository interface {
	// ActiveLinksFor returns links active at any instant overlapping
	// [start, end) for a metering point.
	ActiveLinksFor(ctx context.Context, gsrn ids.GSRN, start, end time.Time) ([]PriceLink, error)
	// FindActive returns the existing link for (chargeID/ownerGLN, gsrn), if any.
	FindActive(ctx context.Context, chargeID string, ownerGLN ids.GLN, gsrn ids.GSRN) (*PriceLink, error)
	Save(ctx context.Context, link *PriceLink) error
}
