package application

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/ids"
	masterdata "settlementcore/internal/masterdata/domain"
	metering "settlementcore/internal/metering/domain"
	"settlementcore/internal/period"
)

// Logger is the minimal logging contract handlers depend on.
type Logger interface {
	Printf(format string, args ...any)
}

// MeteredDataUpdate is the normalized BRS-021 payload: a versioned
// delivery of consumption for a metering point over a period.
type MeteredDataUpdate struct {
	GSRN          string
	Period        period.Period
	Resolution    masterdata.Resolution
	TransactionID string
	ReceivedAt    time.Time
	Observations  []metering.Observation
}

// MeteredDataService applies BRS-021 versioned time-series deliveries.
type MeteredDataService struct {
	meteringPoints masterdata.MeteringPointRepository
	timeSeries     metering.TimeSeriesRepository
	logger         Logger
}

// NewMeteredDataService constructs the service.
func NewMeteredDataService(meteringPoints masterdata.MeteringPointRepository, timeSeries metering.TimeSeriesRepository, logger Logger) (*MeteredDataService, error) {
	if meteringPoints == nil {
		return nil, errors.New("metered data service: nil metering point repository")
	}
	if timeSeries == nil {
		return nil, errors.New("metered data service: nil time series repository")
	}
	return &MeteredDataService{meteringPoints: meteringPoints, timeSeries: timeSeries, logger: logger}, nil
}

// HandleMeteredData resolves the metering point (log-and-skip if absent),
// looks up the existing latest time series for the exact same period, and
// either creates version 1 or bumps the version and flips the old flag.
func (s *MeteredDataService) HandleMeteredData(ctx context.Context, update MeteredDataUpdate) error {
	gsrn, err := ids.NewGSRN(update.GSRN)
	if err != nil {
		return err
	}

	mp, err := s.meteringPoints.Get(ctx, gsrn)
	if err != nil {
		return err
	}
	if mp == nil {
		if s.logger != nil {
			s.logger.Printf("metering: metering point %s not found, skipping BRS-021 delivery", update.GSRN)
		}
		return nil
	}

	existing, err := s.timeSeries.FindLatest(ctx, gsrn, update.Period)
	if err != nil {
		return err
	}

	if existing == nil {
		ts := &metering.TimeSeries{
			GSRN:          gsrn,
			Period:        update.Period,
			Resolution:    update.Resolution,
			Version:       1,
			IsLatest:      true,
			TransactionID: update.TransactionID,
			ReceivedAt:    update.ReceivedAt,
			Observations:  update.Observations,
		}
		if err := ts.Validate(); err != nil {
			return err
		}
		return s.timeSeries.CreateVersion(ctx, ts, nil)
	}

	next := existing.NextVersion(update.TransactionID, update.ReceivedAt, update.Observations)
	if err := next.Validate(); err != nil {
		return err
	}
	return s.timeSeries.CreateVersion(ctx, &next, existing)
}
