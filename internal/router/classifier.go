// Package router classifies inbound market messages, normalizes their wire
// payload into flat canonical fields, and dispatches each to the
// masterdata/pricing/metering handler it belongs to.
package router

import (
	"errors"
	"strings"
)

// BusinessProcess is the closed set of business processes the router
// dispatches to.
type BusinessProcess string

const (
	ProcessSupplyChange   BusinessProcess = "BRS-001"
	ProcessEndOfSupply    BusinessProcess = "BRS-002"
	ProcessSupplyReversal BusinessProcess = "BRS-003"
	ProcessSupplyResume   BusinessProcess = "BRS-004"
	ProcessMasterData     BusinessProcess = "BRS-006"
	ProcessMoveInOut      BusinessProcess = "BRS-009"
	ProcessMeteredData    BusinessProcess = "BRS-021"
	ProcessAggregatedData BusinessProcess = "BRS-023"
	ProcessWholesale      BusinessProcess = "BRS-027"
	ProcessPricing        BusinessProcess = "BRS-031/037"
)

// ErrUnclassifiable is returned when neither the document-name table nor the
// processType fallback recognizes the envelope.
var ErrUnclassifiable = errors.New("router: cannot classify message")

// documentNamePrefixes maps a MarketDocument root element's prefix to the
// business process it belongs to. Checked before the processType fallback.
var documentNamePrefixes = []struct {
	prefix  string
	process BusinessProcess
}{
	{"ConfirmRequestChangeOfSupplier", ProcessSupplyChange},
	{"RejectRequestChangeOfSupplier", ProcessSupplyChange},
	{"RequestChangeOfSupplier", ProcessSupplyChange},
	{"ConfirmRequestEndOfSupply", ProcessEndOfSupply},
	{"RejectRequestEndOfSupply", ProcessEndOfSupply},
	{"NotifyEndOfSupply", ProcessEndOfSupply},
	{"CharacteristicsOfAMeteringPoint", ProcessMasterData},
	{"NotifyMeteringPointCharacteristics", ProcessMasterData},
	{"ConfirmRequestMeteringPointCharacteristics", ProcessMasterData},
	{"NotifyMoveIn", ProcessMoveInOut},
	{"NotifyMoveOut", ProcessMoveInOut},
	{"NotifyValidatedMeasureData", ProcessMeteredData},
	{"NotifyAggregatedMeasureData", ProcessAggregatedData},
	{"NotifyWholesaleSettlement", ProcessWholesale},
	{"NotifyWholesaleServices", ProcessWholesale},
	{"NotifyPriceList", ProcessPricing},
	{"RequestUpdateChargeInformation", ProcessPricing},
	{"RequestUpdateChargePrices", ProcessPricing},
	{"RequestUpdateChargeLinks", ProcessPricing},
}

// processTypeFallback maps the inner process.processType wire code to a
// business process, used when the document name is not recognized by the
// prefix table. The code set is closed; an unknown code is unclassifiable.
var processTypeFallback = map[string]BusinessProcess{
	"E03": ProcessSupplyChange,
	"E20": ProcessEndOfSupply,
	"D34": ProcessSupplyReversal,
	"D35": ProcessSupplyReversal,
	"D07": ProcessSupplyReversal,
	"E04": ProcessSupplyResume,
	"E06": ProcessMasterData,
	"E65": ProcessMoveInOut,
	"E23": ProcessMeteredData,
	"D04": ProcessAggregatedData,
	"D05": ProcessWholesale,
	"D18": ProcessPricing,
	"D17": ProcessPricing,
}

// Classify maps an envelope's document name and inner processType to a
// BusinessProcess, preferring the document-name table and falling back to
// processType.
func Classify(documentName, processType string) (BusinessProcess, error) {
	for _, entry := range documentNamePrefixes {
		if strings.HasPrefix(documentName, entry.prefix) {
			return entry.process, nil
		}
	}
	if process, ok := processTypeFallback[processType]; ok {
		return process, nil
	}
	return "", ErrUnclassifiable
}

// BusinessReason disambiguates the pricing business process into its three
// concrete operations.
type BusinessReason string

const (
	ReasonPriceInfo   BusinessReason = "D18"
	ReasonPriceSeries BusinessReason = "D08"
	ReasonPriceLink   BusinessReason = "D17"
)

// ErrUnknownBusinessReason is returned when a BRS-031/037 message carries a
// businessReason outside the closed set {D18, D08, D17}.
var ErrUnknownBusinessReason = errors.New("router: unknown business reason")
