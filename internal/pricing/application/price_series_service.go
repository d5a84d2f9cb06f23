package application

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/ids"
	pricing "settlementcore/internal/pricing/domain"
)

// PriceSeries is the normalized D08 payload: add/replace price points for a
// date range.
type PriceSeries struct {
	ChargeID string
	OwnerGLN string
	Start    time.Time
	End      time.Time
	Points   []pricing.PricePoint
}

// PriceSeriesService applies BRS-037/D08 price-series messages.
type PriceSeriesService struct {
	prices pricing.PriceRepository
	points pricing.PricePointRepository
	logger Logger
}

// NewPriceSeriesService constructs the service.
func NewPriceSeriesService(prices pricing.PriceRepository, points pricing.PricePointRepository, logger Logger) (*PriceSeriesService, error) {
	if prices == nil {
		return nil, errors.New("price series service: nil price repository")
	}
	if points == nil {
		return nil, errors.New("price series service: nil price point repository")
	}
	return &PriceSeriesService{prices: prices, points: points, logger: logger}, nil
}

// HandlePriceSeries atomically removes existing points in [start, end) and
// inserts the provided ones. A missing price is a data-absence condition:
// log and skip.
func (s *PriceSeriesService) HandlePriceSeries(ctx context.Context, series PriceSeries) error {
	ownerGLN, err := ids.NewGLN(series.OwnerGLN)
	if err != nil {
		return err
	}

	price, err := s.prices.Get(ctx, series.ChargeID, ownerGLN)
	if err != nil {
		return err
	}
	if price == nil {
		if s.logger != nil {
			s.logger.Printf("pricing: price %s/%s not found, skipping D08 price series", series.ChargeID, series.OwnerGLN)
		}
		return nil
	}

	// Subscription prices carry at most one point.
	if price.Type == pricing.PriceTypeSubscription && len(series.Points) > 1 {
		return errors.New("pricing: subscription price may carry at most one price point")
	}

	return s.points.ReplaceRange(ctx, series.ChargeID, ownerGLN, series.Start, series.End, series.Points)
}
