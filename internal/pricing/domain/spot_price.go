package pricing

import (
	"context"
	"time"
)

// SpotPrice is the wholesale day-ahead price per (price area, timestamp), in
// currency-minor-units per MWh.
type SpotPrice struct {
	PriceArea        string
	Timestamp        time.Time
	MinorUnitsPerMWh float64
}

// PerKWh converts the stored per-MWh rate to a per-kWh rate.
func (s SpotPrice) PerKWh() float64 { return s.MinorUnitsPerMWh / 1000 }

// SpotPriceRepository manages spot price persistence.
type SpotPriceRepository interface {
	// ListInRange returns spot prices for priceArea within [start, end),
	// ascending by timestamp.
	ListInRange(ctx context.Context, priceArea string, start, end time.Time) ([]SpotPrice, error)
	// RateAt returns the spot price at instant t for priceArea.
	RateAt(ctx context.Context, priceArea string, t time.Time) (price SpotPrice, ok bool, err error)
	Save(ctx context.Context, prices []SpotPrice) error
}

// SpotPriceSource is the external day-ahead market the ingester polls. HTTP
// transport details to the real market operator are outside core scope;
// this interface is the contract the core relies on.
type SpotPriceSource interface {
	FetchDayAhead(ctx context.Context, priceArea string, day time.Time) ([]SpotPrice, error)
}
