package router

import (
	"context"
	"fmt"
	"strings"

	masterdataApp "settlementcore/internal/masterdata/application"
	masterdata "settlementcore/internal/masterdata/domain"
	meteringApp "settlementcore/internal/metering/application"
	metering "settlementcore/internal/metering/domain"
	"settlementcore/internal/money"
	pricingApp "settlementcore/internal/pricing/application"
)

// Router classifies a decoded inbox message and dispatches it to the
// handler owning its business process.
type Router struct {
	masterData      *masterdataApp.MasterDataService
	supplyLifecycle *masterdataApp.SupplyLifecycleService
	meteredData     *meteringApp.MeteredDataService
	aggregatedData  *meteringApp.AggregatedDataService
	wholesale       *meteringApp.WholesaleService
	priceInfo       *pricingApp.PriceInfoService
	priceSeries     *pricingApp.PriceSeriesService
	priceLink       *pricingApp.PriceLinkService
}

// Config carries the handlers the router dispatches to. Every field is
// required: a router with no registered handler for a business process is a
// construction error, not a runtime one.
type Config struct {
	MasterData      *masterdataApp.MasterDataService
	SupplyLifecycle *masterdataApp.SupplyLifecycleService
	MeteredData     *meteringApp.MeteredDataService
	AggregatedData  *meteringApp.AggregatedDataService
	Wholesale       *meteringApp.WholesaleService
	PriceInfo       *pricingApp.PriceInfoService
	PriceSeries     *pricingApp.PriceSeriesService
	PriceLink       *pricingApp.PriceLinkService
}

// New constructs a Router from its handler set.
func New(cfg Config) (*Router, error) {
	switch {
	case cfg.MasterData == nil:
		return nil, fmt.Errorf("router: nil master data service")
	case cfg.SupplyLifecycle == nil:
		return nil, fmt.Errorf("router: nil supply lifecycle service")
	case cfg.MeteredData == nil:
		return nil, fmt.Errorf("router: nil metered data service")
	case cfg.AggregatedData == nil:
		return nil, fmt.Errorf("router: nil aggregated data service")
	case cfg.Wholesale == nil:
		return nil, fmt.Errorf("router: nil wholesale service")
	case cfg.PriceInfo == nil:
		return nil, fmt.Errorf("router: nil price info service")
	case cfg.PriceSeries == nil:
		return nil, fmt.Errorf("router: nil price series service")
	case cfg.PriceLink == nil:
		return nil, fmt.Errorf("router: nil price link service")
	}
	return &Router{
		masterData:      cfg.MasterData,
		supplyLifecycle: cfg.SupplyLifecycle,
		meteredData:     cfg.MeteredData,
		aggregatedData:  cfg.AggregatedData,
		wholesale:       cfg.Wholesale,
		priceInfo:       cfg.PriceInfo,
		priceSeries:     cfg.PriceSeries,
		priceLink:       cfg.PriceLink,
	}, nil
}

// Route classifies (documentName, processType) and dispatches body to the
// owning handler. Errors returned from a handler propagate verbatim; the
// inbox worker treats every error alike, recording the failure and retrying
// the message on later cycles until its attempts run out.
func (r *Router) Route(ctx context.Context, documentName, processType string, body Payload) error {
	process, err := Classify(documentName, processType)
	if err != nil {
		return err
	}

	switch process {
	case ProcessSupplyChange:
		return r.routeSupplyChange(ctx, body)
	case ProcessMasterData:
		return r.routeMasterData(ctx, body)
	case ProcessMoveInOut:
		return r.routeMoveInOut(ctx, documentName, body)
	case ProcessMeteredData:
		return r.routeMeteredData(ctx, body)
	case ProcessAggregatedData:
		return r.routeAggregatedData(ctx, body)
	case ProcessWholesale:
		return r.routeWholesale(ctx, body)
	case ProcessPricing:
		return r.routePricing(ctx, body)
	case ProcessEndOfSupply, ProcessSupplyReversal, ProcessSupplyResume:
		// Recognized but carrying no mutation for this engine; the supply
		// lifecycle is driven by BRS-001/009. Acknowledge without state change.
		return nil
	default:
		return fmt.Errorf("router: unhandled business process %q", process)
	}
}

func (r *Router) routeSupplyChange(ctx context.Context, body Payload) error {
	gsrn, err := body.RequireString("gsrn")
	if err != nil {
		return err
	}
	newSupplyID, err := body.RequireString("supplyId")
	if err != nil {
		return err
	}
	newCustomerID, err := body.RequireString("customerId")
	if err != nil {
		return err
	}
	effectiveDate, err := body.Time("effectiveDate")
	if err != nil {
		return err
	}
	return r.supplyLifecycle.HandleSupplyChangeConfirmation(ctx, masterdataApp.SupplyChangeConfirmation{
		GSRN:          gsrn,
		NewSupplyID:   newSupplyID,
		NewCustomerID: newCustomerID,
		EffectiveDate: effectiveDate,
	})
}

func (r *Router) routeMasterData(ctx context.Context, body Payload) error {
	gsrn, err := body.RequireString("gsrn")
	if err != nil {
		return err
	}
	patch := masterdata.MeteringPointPatch{}
	if v := body.String("connectionState"); v != "" {
		cs := masterdata.ConnectionState(v)
		patch.ConnectionState = &cs
	}
	if v := body.String("settlementMethod"); v != "" {
		sm := masterdata.SettlementMethod(v)
		patch.SettlementMethod = &sm
	}
	if v := body.String("resolution"); v != "" {
		res := masterdata.Resolution(v)
		patch.Resolution = &res
	}
	if v := body.String("meteringPointType"); v != "" {
		t := masterdata.MeteringPointType(v)
		patch.Type = &t
	}
	if v := body.String("meteringPointCategory"); v != "" {
		c := masterdata.MeteringPointCategory(v)
		patch.Category = &c
	}
	if v := body.String("gridAreaCode"); v != "" {
		patch.GridAreaCode = &v
	}
	return r.masterData.HandleMasterDataUpdate(ctx, masterdataApp.MasterDataUpdate{GSRN: gsrn, Patch: patch})
}

func (r *Router) routeMoveInOut(ctx context.Context, documentName string, body Payload) error {
	gsrn, err := body.RequireString("gsrn")
	if err != nil {
		return err
	}
	effectiveDate, err := body.Time("effectiveDate")
	if err != nil {
		return err
	}
	// Document-name prefix distinguishes move-in from move-out within the
	// shared BRS-009 business process.
	if strings.HasPrefix(documentName, "NotifyMoveOut") {
		return r.supplyLifecycle.HandleMoveOut(ctx, masterdataApp.MoveOut{GSRN: gsrn, EffectiveDate: effectiveDate})
	}
	supplyID, err := body.RequireString("supplyId")
	if err != nil {
		return err
	}
	customerID, err := body.RequireString("customerId")
	if err != nil {
		return err
	}
	return r.supplyLifecycle.HandleMoveIn(ctx, masterdataApp.MoveIn{
		GSRN:          gsrn,
		SupplyID:      supplyID,
		CustomerID:    customerID,
		EffectiveDate: effectiveDate,
	})
}

func (r *Router) routeMeteredData(ctx context.Context, body Payload) error {
	gsrn, err := body.RequireString("gsrn")
	if err != nil {
		return err
	}
	p, err := body.ExtractPeriod("period")
	if err != nil {
		return err
	}
	resolution := masterdata.Resolution(body.String("resolution"))
	if resolution == "" {
		resolution = masterdata.ResolutionHour
	}
	transactionID, err := body.RequireString("transactionId")
	if err != nil {
		return err
	}
	receivedAt, ok, err := body.OptionalTime("receivedAt")
	if err != nil {
		return err
	}
	if !ok {
		receivedAt = p.Start
	}
	observations, err := body.ExtractObservations("observations", p.Start, resolution)
	if err != nil {
		return err
	}
	return r.meteredData.HandleMeteredData(ctx, meteringApp.MeteredDataUpdate{
		GSRN:          gsrn,
		Period:        p,
		Resolution:    resolution,
		TransactionID: transactionID,
		ReceivedAt:    receivedAt,
		Observations:  observations,
	})
}

func (r *Router) routeAggregatedData(ctx context.Context, body Payload) error {
	gridAreaCode, err := body.RequireString("gridAreaCode")
	if err != nil {
		return err
	}
	timestamp, err := body.Time("timestamp")
	if err != nil {
		return err
	}
	transactionID, err := body.RequireString("transactionId")
	if err != nil {
		return err
	}
	quantityRaw, err := toFloat(unwrap(body["quantity"]))
	if err != nil {
		return fmt.Errorf("router: aggregated data quantity: %w", err)
	}
	return r.aggregatedData.HandleAggregatedData(ctx, meteringApp.AggregatedDataUpdate{
		Row: metering.AggregatedTimeSeries{
			GridAreaCode:  gridAreaCode,
			Timestamp:     timestamp,
			Quantity:      money.NewQuantityFromFloat(quantityRaw),
			TransactionID: transactionID,
			ReceivedAt:    timestamp,
		},
	})
}

func (r *Router) routeWholesale(ctx context.Context, body Payload) error {
	gridAreaCode, err := body.RequireString("gridAreaCode")
	if err != nil {
		return err
	}
	chargeID, err := body.RequireString("chargeId")
	if err != nil {
		return err
	}
	ownerGLN, err := body.RequireString("ownerGln")
	if err != nil {
		return err
	}
	periodTimestamp, err := body.Time("period")
	if err != nil {
		return err
	}
	transactionID, err := body.RequireString("transactionId")
	if err != nil {
		return err
	}
	amountRaw, err := toFloat(unwrap(body["amount"]))
	if err != nil {
		return fmt.Errorf("router: wholesale amount: %w", err)
	}
	return r.wholesale.HandleWholesale(ctx, meteringApp.WholesaleUpdate{
		Row: metering.WholesaleSettlement{
			GridAreaCode:  gridAreaCode,
			ChargeID:      chargeID,
			OwnerGLN:      ownerGLN,
			Period:        periodTimestamp,
			Amount:        money.NewMoneyFromFloat(amountRaw),
			TransactionID: transactionID,
			ReceivedAt:    periodTimestamp,
		},
	})
}

func (r *Router) routePricing(ctx context.Context, body Payload) error {
	reason, err := body.RequireString("businessReason")
	if err != nil {
		return err
	}
	switch BusinessReason(reason) {
	case ReasonPriceInfo:
		return r.routePriceInfo(ctx, body)
	case ReasonPriceSeries:
		return r.routePriceSeries(ctx, body)
	case ReasonPriceLink:
		return r.routePriceLink(ctx, body)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownBusinessReason, reason)
	}
}
