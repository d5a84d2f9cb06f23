package masterdata

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/ids"
	"settlementcore/internal/period"
)

// ErrOverlappingOpenSupply is returned when a second open-ended supply would
// be created for a metering point that already has one.
var ErrOverlappingOpenSupply = errors.New("masterdata: overlapping open-ended supply")

// Supply links a metering point to a customer for a period.
type Supply struct {
	ID         string
	GSRN       ids.GSRN
	CustomerID string
	Period     period.Period
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Validate checks supply invariants.
func (s Supply) Validate() error {
	if s.ID == "" {
		return errors.New("supply: empty id")
	}
	if s.GSRN == "" {
		return errors.New("supply: empty gsrn")
	}
	if s.CustomerID == "" {
		return errors.New("supply: empty customer id")
	}
	if !s.Period.OpenEnded && s.Period.End.Before(s.Period.Start) {
		return errors.New("supply: start after end")
	}
	return nil
}

// SupplyRepository manages supply persistence.
type SupplyRepository interface {
	// ActiveAt returns the supply covering gsrn at instant t, or nil if
	// none. "Active" includes closed supplies still covering t and the
	// single open-ended supply, if any.
	ActiveAt(ctx context.Context, gsrn ids.GSRN, t time.Time) (*Supply, error)
	// OpenEnded returns the current open-ended supply for gsrn, if any.
	OpenEnded(ctx context.Context, gsrn ids.GSRN) (*Supply, error)
	Save(ctx context.Context, s *Supply) error
}

// Customer is identified by exactly one of a personal or company number and
// is owned by a supplier identity.
type Customer struct {
	ID                 string
	Identity           ids.CustomerIdentity
	SupplierIdentityID string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Validate checks customer invariants.
func (c Customer) Validate() error {
	if c.ID == "" {
		return errors.New("customer: empty id")
	}
	if c.SupplierIdentityID == "" {
		return errors.New("customer: empty supplier identity id")
	}
	return nil
}

// CustomerRepository manages customer persistence.
type CustomerRepository interface {
	Get(ctx context.Context, id string) (*Customer, error)
	Save(ctx context.Context, customer *Customer) error
}

// SupplierIdentityState enumerates a supplier identity's wire-eligibility.
type SupplierIdentityState string

const (
	SupplierIdentityActive   SupplierIdentityState = "active"
	SupplierIdentityLegacy   SupplierIdentityState = "legacy"
	SupplierIdentityArchived SupplierIdentityState = "archived"
)

// SupplierIdentity is the supplier's own grid-participant identifier used on
// the wire.
type SupplierIdentity struct {
	ID    string
	GLN   ids.GLN
	State SupplierIdentityState
}

// AcceptsCorrectionsOnly reports whether this identity may only originate
// correction traffic (legacy) rather than new business.
func (s SupplierIdentity) AcceptsCorrectionsOnly() bool {
	return s.State == SupplierIdentityLegacy
}
