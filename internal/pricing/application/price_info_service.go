// Package application implements the BRS-031/037 price handlers (D18 price
// info, D08 price series, D17 price link) and the spot-price ingester.
package application

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/ids"
	pricing "settlementcore/internal/pricing/domain"
	"settlementcore/internal/period"
)

// Logger is the minimal logging contract handlers depend on.
type Logger interface {
	Printf(format string, args ...any)
}

// PriceInfo is the normalized D18 payload: create-or-update a price's
// mutable attributes. Price points are untouched by this operation.
type PriceInfo struct {
	ChargeID    string
	OwnerGLN    string
	Type        pricing.PriceType
	Category    pricing.PriceCategory
	Description string
	Validity    period.Period
	VATExempt   bool
	IsTax       bool
	PassThrough bool
	Resolution  *time.Duration // nil when the price is not time-varying
}

// PriceInfoService applies BRS-031/D18 price-info messages.
type PriceInfoService struct {
	repo pricing.PriceRepository
}

// NewPriceInfoService constructs the service.
func NewPriceInfoService(repo pricing.PriceRepository) (*PriceInfoService, error) {
	if repo == nil {
		return nil, errors.New("price info service: nil repository")
	}
	return &PriceInfoService{repo: repo}, nil
}

// HandlePriceInfo upserts a Price by (chargeId, ownerGln). If present, only
// mutable attributes are updated; price points are never touched here.
func (s *PriceInfoService) HandlePriceInfo(ctx context.Context, info PriceInfo) error {
	ownerGLN, err := ids.NewGLN(info.OwnerGLN)
	if err != nil {
		return err
	}

	existing, err := s.repo.Get(ctx, info.ChargeID, ownerGLN)
	if err != nil {
		return err
	}

	price := pricing.Price{
		ChargeID:    info.ChargeID,
		OwnerGLN:    ownerGLN,
		Type:        info.Type,
		Category:    info.Category,
		Description: info.Description,
		Validity:    info.Validity,
		VATExempt:   info.VATExempt,
		IsTax:       info.IsTax,
		PassThrough: info.PassThrough,
		Resolution:  info.Resolution,
	}
	if price.Type == pricing.PriceTypeFee {
		// Fees are never pass-through, regardless of wire payload.
		price.PassThrough = false
	}
	if price.Type == pricing.PriceTypeTariff && price.Resolution == nil {
		// Tariffs are time-varying; assume hourly points when the message
		// does not declare a resolution, so coverage validation always runs.
		d := time.Hour
		price.Resolution = &d
	}
	if existing != nil {
		price.CreatedAt = existing.CreatedAt
	}

	if err := price.Validate(); err != nil {
		return err
	}
	return s.repo.Save(ctx, &price)
}
