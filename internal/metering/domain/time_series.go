// Package metering holds the versioned consumption time series and the
// append-only grid-area aggregates and wholesale settlement lines delivered
// by the market operator (BRS-021/023/027).
package metering

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/ids"
	"settlementcore/internal/masterdata/domain"
	"settlementcore/internal/money"
	"settlementcore/internal/period"
)

// Quality enumerates the measurement quality of an observation.
type Quality string

const (
	QualityMeasured   Quality = "measured"
	QualityEstimated  Quality = "estimated"
	QualityRevised    Quality = "revised"
	QualityIncomplete Quality = "incomplete"
)

// qualityCodes is the closed table of wire quality codes.
// A01 and A03 both map to Measured; there is no catch-all default.
var qualityCodes = map[string]Quality{
	"A01": QualityMeasured,
	"A02": QualityEstimated,
	"A03": QualityMeasured,
	"A05": QualityRevised,
	"QM":  QualityIncomplete,
}

// ErrUnknownQualityCode is returned when a wire quality code is not in the
// closed mapping table.
var ErrUnknownQualityCode = errors.New("metering: unknown quality code")

// ParseQualityCode maps a wire quality code to a Quality.
func ParseQualityCode(code string) (Quality, error) {
	q, ok := qualityCodes[code]
	if !ok {
		return "", ErrUnknownQualityCode
	}
	return q, nil
}

// Observation is a single interval of consumption within a TimeSeries.
type Observation struct {
	Timestamp time.Time
	Quantity  money.Quantity
	Quality   Quality
}

// TimeSeries is a versioned, immutable snapshot of consumption for a
// metering point over a period. Versions are never overwritten: a
// correction is a new row with version = existing.version + 1 and
// is_latest = true, flipping the previous row's flag to false.
type TimeSeries struct {
	ID            string
	GSRN          ids.GSRN
	Period        period.Period
	Resolution    masterdata.Resolution
	Version       int
	IsLatest      bool
	TransactionID string
	ReceivedAt    time.Time
	Observations  []Observation
}

// ErrEmptyGSRN is returned when a time series carries no metering point
// reference.
var ErrEmptyGSRN = errors.New("metering: empty gsrn")

// Validate checks time series invariants.
func (t TimeSeries) Validate() error {
	if t.GSRN == "" {
		return ErrEmptyGSRN
	}
	if t.Version < 1 {
		return errors.New("metering: version must be >= 1")
	}
	if t.Period.Start.IsZero() {
		return errors.New("metering: empty period start")
	}
	return nil
}

// NextVersion returns a successor TimeSeries carrying the given
// observations, with version bumped and is_latest set. The receiver is
// left unmodified; callers flip its IsLatest to
// false separately before persisting both rows.
func (t TimeSeries) NextVersion(transactionID string, receivedAt time.Time, observations []Observation) TimeSeries {
	return TimeSeries{
		GSRN:          t.GSRN,
		Period:        t.Period,
		Resolution:    t.Resolution,
		Version:       t.Version + 1,
		IsLatest:      true,
		TransactionID: transactionID,
		ReceivedAt:    receivedAt,
		Observations:  observations,
	}
}

// TimeSeriesRepository manages time series persistence.
type TimeSeriesRepository interface {
	// FindLatest returns the is_latest=true row for (gsrn, period), if any.
	FindLatest(ctx context.Context, gsrn ids.GSRN, p period.Period) (*TimeSeries, error)
	// Get returns a time series by id, with its observations loaded.
	Get(ctx context.Context, id string) (*TimeSeries, error)
	// CreateVersion persists next as a new row (with its observations) and,
	// if previous is non-nil, flips previous's is_latest to false in the
	// same transaction.
	CreateVersion(ctx context.Context, next *TimeSeries, previous *TimeSeries) error
	// FindSettleable returns up to limit latest-version time series that
	// have no settlement yet, ordered by reception time.
	FindSettleable(ctx context.Context, limit int) ([]TimeSeries, error)
}
