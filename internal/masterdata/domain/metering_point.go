// Package masterdata holds the supplier- and grid-side reference data the
// settlement pipeline mutates in response to BRS-001/006/009 messages:
// metering points, supplies, customers and the commercial product catalog.
package masterdata

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/ids"
)

// MeteringPointType enumerates the physical role of a metering point.
type MeteringPointType string

const (
	MeteringPointConsumption MeteringPointType = "consumption"
	MeteringPointProduction  MeteringPointType = "production"
	MeteringPointExchange    MeteringPointType = "exchange"
)

// MeteringPointCategory enumerates physical/virtual/child metering points.
type MeteringPointCategory string

const (
	CategoryPhysical MeteringPointCategory = "physical"
	CategoryVirtual  MeteringPointCategory = "virtual"
	CategoryChild    MeteringPointCategory = "child"
)

// SettlementMethod enumerates how a metering point's consumption is settled.
type SettlementMethod string

const (
	SettlementMethodHourly   SettlementMethod = "hourly"
	SettlementMethodFlex     SettlementMethod = "flex"
	SettlementMethodProfiled SettlementMethod = "profiled"
)

// Resolution enumerates the tick size of a metering point's time series.
type Resolution string

const (
	ResolutionHour        Resolution = "hour"
	ResolutionQuarterHour Resolution = "quarter_hour"
)

// Duration returns the wall-clock tick size for the resolution.
func (r Resolution) Duration() time.Duration {
	if r == ResolutionQuarterHour {
		return 15 * time.Minute
	}
	return time.Hour
}

// ConnectionState enumerates the connection lifecycle of a metering point.
type ConnectionState string

const (
	ConnectionStateNew          ConnectionState = "new"
	ConnectionStateConnected    ConnectionState = "connected"
	ConnectionStateDisconnected ConnectionState = "disconnected"
)

// Address is an optional physical address for a metering point.
type Address struct {
	StreetName string
	City       string
	PostCode   string
	Country    string
}

// MeteringPoint is uniquely identified by its GSRN.
type MeteringPoint struct {
	GSRN            ids.GSRN
	Type            MeteringPointType
	Category        MeteringPointCategory
	SettlementMethod SettlementMethod
	Resolution      Resolution
	ConnectionState ConnectionState
	GridAreaCode    string
	GridCompanyGLN  ids.GLN
	Address         *Address
	HasActiveSupply bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Validate checks metering point invariants.
func (m MeteringPoint) Validate() error {
	if m.GSRN == "" {
		return errors.New("metering point: empty gsrn")
	}
	if m.GridAreaCode == "" {
		return errors.New("metering point: empty grid area code")
	}
	if m.GridCompanyGLN == "" {
		return errors.New("metering point: empty grid company gln")
	}
	return nil
}

// ApplyPartialUpdate applies a BRS-006 idempotent partial update: only
// fields present (non-zero) in the patch are applied. Absent fields are
// left untouched on the receiver.
func (m *MeteringPoint) ApplyPartialUpdate(patch MeteringPointPatch) {
	if patch.Type != nil {
		m.Type = *patch.Type
	}
	if patch.Category != nil {
		m.Category = *patch.Category
	}
	if patch.SettlementMethod != nil {
		m.SettlementMethod = *patch.SettlementMethod
	}
	if patch.Resolution != nil {
		m.Resolution = *patch.Resolution
	}
	if patch.ConnectionState != nil {
		m.ConnectionState = *patch.ConnectionState
	}
	if patch.GridAreaCode != nil {
		m.GridAreaCode = *patch.GridAreaCode
	}
	if patch.GridCompanyGLN != nil {
		m.GridCompanyGLN = *patch.GridCompanyGLN
	}
	if patch.Address != nil {
		m.Address = patch.Address
	}
}

// MeteringPointPatch carries the optional fields a BRS-006 message may set.
type MeteringPointPatch struct {
	Type             *MeteringPointType
	Category         *MeteringPointCategory
	SettlementMethod *SettlementMethod
	Resolution       *Resolution
	ConnectionState  *ConnectionState
	GridAreaCode     *string
	GridCompanyGLN   *ids.GLN
	Address          *Address
}

// MeteringPointRepository manages metering point persistence.
type MeteringPointRepository interface {
	Get(ctx context.Context, gsrn ids.GSRN) (*MeteringPoint, error)
	Save(ctx context.Context, mp *MeteringPoint) error
}
