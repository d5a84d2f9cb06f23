package application

import (
	"context"
	"errors"

	metering "settlementcore/internal/metering/domain"
)

// AggregatedDataUpdate is the normalized BRS-023 payload.
type AggregatedDataUpdate struct {
	Row metering.AggregatedTimeSeries
}

// AggregatedDataService appends BRS-023 grid-area aggregates. Append-only:
// no lookup, no version handling, no idempotency check beyond the inbox's
// message-id dedup.
type AggregatedDataService struct {
	repo metering.AggregatedTimeSeriesRepository
}

// NewAggregatedDataService constructs the service.
func NewAggregatedDataService(repo metering.AggregatedTimeSeriesRepository) (*AggregatedDataService, error) {
	if repo == nil {
		return nil, errors.New("aggregated data service: nil repository")
	}
	return &AggregatedDataService{repo: repo}, nil
}

// HandleAggregatedData appends a BRS-023 row.
func (s *AggregatedDataService) HandleAggregatedData(ctx context.Context, update AggregatedDataUpdate) error {
	row := update.Row
	if err := row.Validate(); err != nil {
		return err
	}
	return s.repo.Append(ctx, &row)
}

// WholesaleUpdate is the normalized BRS-027 payload.
type WholesaleUpdate struct {
	Row metering.WholesaleSettlement
}

// WholesaleService appends BRS-027 wholesale settlement lines from the
// market operator. Append-only, same shape as AggregatedDataService.
type WholesaleService struct {
	repo metering.WholesaleSettlementRepository
}

// NewWholesaleService constructs the service.
func NewWholesaleService(repo metering.WholesaleSettlementRepository) (*WholesaleService, error) {
	if repo == nil {
		return nil, errors.New("wholesale service: nil repository")
	}
	return &WholesaleService{repo: repo}, nil
}

// HandleWholesale appends a BRS-027 row.
func (s *WholesaleService) HandleWholesale(ctx context.Context, update WholesaleUpdate) error {
	row := update.Row
	if err := row.Validate(); err != nil {
		return err
	}
	return s.repo.Append(ctx, &row)
}
