package masterdata

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/money"
	"settlementcore/internal/period"
)

// PricingModel enumerates how a supplier product prices energy.
type PricingModel string

const (
	// PricingModelSpotAddon prices energy as wholesale spot plus margin.
	PricingModelSpotAddon PricingModel = "spot_addon"
	// PricingModelFixed prices energy at the margin rate alone.
	PricingModelFixed PricingModel = "fixed"
)

// SupplierProduct is a commercial product offered to customers.
type SupplierProduct struct {
	ID           string
	Name         string
	PricingModel PricingModel
}

// Validate checks product invariants.
func (p SupplierProduct) Validate() error {
	if p.ID == "" {
		return errors.New("supplier product: empty id")
	}
	if p.PricingModel != PricingModelSpotAddon && p.PricingModel != PricingModelFixed {
		return errors.New("supplier product: invalid pricing model")
	}
	return nil
}

// SupplierProductRepository manages product persistence.
type SupplierProductRepository interface {
	Get(ctx context.Context, id string) (*SupplierProduct, error)
}

// SupplyProductPeriod records which product was active on a supply during a
// half-open period. For a given supply, periods form a non-overlapping
// sequence in time.
type SupplyProductPeriod struct {
	ID        string
	SupplyID  string
	ProductID string
	Period    period.Period
}

// SupplyProductPeriodRepository manages supply/product period persistence.
type SupplyProductPeriodRepository interface {
	// ActiveAt returns the product period active for supplyID at instant t,
	// or nil if none.
	ActiveAt(ctx context.Context, supplyID string, t time.Time) (*SupplyProductPeriod, error)
}

// SupplierMarginRow is one stepwise row of a product's margin function,
// keyed (product, valid_from). The row with the greatest valid_from <= t
// defines the rate at time t.
type SupplierMarginRow struct {
	ProductID  string
	ValidFrom  time.Time
	RatePerKWh money.UnitPrice
}

// SupplierMarginRepository manages margin rows.
type SupplierMarginRepository interface {
	// RateAt returns the margin rate in effect for productID at instant t.
	// Returns ok=false when no row's valid_from is <= t.
	RateAt(ctx context.Context, productID string, t time.Time) (rate money.UnitPrice, ok bool, err error)
}
