package application

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/ids"
	pricing "settlementcore/internal/pricing/domain"
	"settlementcore/internal/period"
)

// PriceLinkUpdate is the normalized D17 payload: create-or-update a price
// link for a metering point.
type PriceLinkUpdate struct {
	ChargeID  string
	OwnerGLN  string
	GSRN      string
	LinkStart time.Time
	LinkEnd   *time.Time
}

// PriceLinkService applies BRS-037/D17 price-link messages.
type PriceLinkService struct {
	prices pricing.PriceRepository
	links  pricing.PriceLinkRepository
	logger Logger
}

// NewPriceLinkService constructs the service.
func NewPriceLinkService(prices pricing.PriceRepository, links pricing.PriceLinkRepository, logger Logger) (*PriceLinkService, error) {
	if prices == nil {
		return nil, errors.New("price link service: nil price repository")
	}
	if links == nil {
		return nil, errors.New("price link service: nil price link repository")
	}
	return &PriceLinkService{prices: prices, links: links, logger: logger}, nil
}

// HandlePriceLink creates or updates a price link. A newer linkStart is
// permitted to overwrite the existing link; the link never
// overlaps with another active link for the same price on the same
// metering point because there is at most one link record per
// (price, metering point) pair.
func (s *PriceLinkService) HandlePriceLink(ctx context.Context, update PriceLinkUpdate) error {
	ownerGLN, err := ids.NewGLN(update.OwnerGLN)
	if err != nil {
		return err
	}
	gsrn, err := ids.NewGSRN(update.GSRN)
	if err != nil {
		return err
	}

	price, err := s.prices.Get(ctx, update.ChargeID, ownerGLN)
	if err != nil {
		return err
	}
	if price == nil {
		if s.logger != nil {
			s.logger.Printf("pricing: price %s/%s not found, skipping D17 price link", update.ChargeID, update.OwnerGLN)
		}
		return nil
	}

	var linkPeriod period.Period
	if update.LinkEnd != nil {
		linkPeriod, err = period.NewClosed(update.LinkStart, *update.LinkEnd)
		if err != nil {
			return err
		}
	} else {
		linkPeriod = period.NewOpenEnded(update.LinkStart)
	}

	existing, err := s.links.FindActive(ctx, update.ChargeID, ownerGLN, gsrn)
	if err != nil {
		return err
	}

	link := &pricing.PriceLink{
		ChargeID: update.ChargeID,
		OwnerGLN: ownerGLN,
		GSRN:     gsrn,
		Period:   linkPeriod,
	}
	if existing != nil {
		link.ID = existing.ID
		link.CreatedAt = existing.CreatedAt
	}
	return s.links.Save(ctx, link)
}
