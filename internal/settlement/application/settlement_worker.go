package application

import (
	"context"
	"errors"
	"time"

	"settlementcore/internal/ids"
	masterdata "settlementcore/internal/masterdata/domain"
	metering "settlementcore/internal/metering/domain"
	"settlementcore/internal/observability/metrics"
	pricing "settlementcore/internal/pricing/domain"
	settlement "settlementcore/internal/settlement/domain"
)

// defaultWorkerInterval and defaultBatchSize set the scanner's cadence:
// 30s interval, up to 10 candidates per cycle.
const (
	defaultWorkerInterval = 30 * time.Second
	defaultBatchSize      = 10
)

// Logger is the minimal logging interface the worker depends on.
type Logger interface {
	Printf(format string, args ...any)
}

// SettlementWorker is a periodic scanner: it finds
// unsettled latest-version time series, prices them, and persists either a
// fresh Settlement or a correction.
type SettlementWorker struct {
	timeSeries      metering.TimeSeriesRepository
	supplies        masterdata.SupplyRepository
	productPeriods  masterdata.SupplyProductPeriodRepository
	products        masterdata.SupplierProductRepository
	margins         masterdata.SupplierMarginRepository
	priceLinks      pricing.PriceLinkRepository
	prices          pricing.PriceRepository
	pricePoints     pricing.PricePointRepository
	spotPrices      pricing.SpotPriceRepository
	settlements     settlement.SettlementRepository
	issues          settlement.SettlementIssueRepository
	gridAreaOf      func(gsrn ids.GSRN) string
	interval        time.Duration
	batchSize       int
	logger          Logger
}

// SettlementWorkerConfig carries the worker's collaborators.
type SettlementWorkerConfig struct {
	TimeSeries     metering.TimeSeriesRepository
	Supplies       masterdata.SupplyRepository
	ProductPeriods masterdata.SupplyProductPeriodRepository
	Products       masterdata.SupplierProductRepository
	Margins        masterdata.SupplierMarginRepository
	PriceLinks     pricing.PriceLinkRepository
	Prices         pricing.PriceRepository
	PricePoints    pricing.PricePointRepository
	SpotPrices     pricing.SpotPriceRepository
	Settlements    settlement.SettlementRepository
	Issues         settlement.SettlementIssueRepository
	// GridAreaOf resolves a metering point's grid area code for the spot
	// price lookup. The worker does not hold a MeteringPointRepository
	// directly; callers inject the lookup they already have wired.
	GridAreaOf func(gsrn ids.GSRN) string
	Interval   time.Duration
	BatchSize  int
	Logger     Logger
}

// NewSettlementWorker constructs the worker.
func NewSettlementWorker(cfg SettlementWorkerConfig) (*SettlementWorker, error) {
	switch {
	case cfg.TimeSeries == nil:
		return nil, errors.New("settlement worker: nil time series repository")
	case cfg.Supplies == nil:
		return nil, errors.New("settlement worker: nil supply repository")
	case cfg.ProductPeriods == nil:
		return nil, errors.New("settlement worker: nil supply product period repository")
	case cfg.Products == nil:
		return nil, errors.New("settlement worker: nil supplier product repository")
	case cfg.Margins == nil:
		return nil, errors.New("settlement worker: nil supplier margin repository")
	case cfg.PriceLinks == nil:
		return nil, errors.New("settlement worker: nil price link repository")
	case cfg.Prices == nil:
		return nil, errors.New("settlement worker: nil price repository")
	case cfg.PricePoints == nil:
		return nil, errors.New("settlement worker: nil price point repository")
	case cfg.SpotPrices == nil:
		return nil, errors.New("settlement worker: nil spot price repository")
	case cfg.Settlements == nil:
		return nil, errors.New("settlement worker: nil settlement repository")
	case cfg.Issues == nil:
		return nil, errors.New("settlement worker: nil settlement issue repository")
	case cfg.GridAreaOf == nil:
		return nil, errors.New("settlement worker: nil grid area resolver")
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = defaultWorkerInterval
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &SettlementWorker{
		timeSeries:     cfg.TimeSeries,
		supplies:       cfg.Supplies,
		productPeriods: cfg.ProductPeriods,
		products:       cfg.Products,
		margins:        cfg.Margins,
		priceLinks:     cfg.PriceLinks,
		prices:         cfg.Prices,
		pricePoints:    cfg.PricePoints,
		spotPrices:     cfg.SpotPrices,
		settlements:    cfg.Settlements,
		issues:         cfg.Issues,
		gridAreaOf:     cfg.GridAreaOf,
		interval:       interval,
		batchSize:      batchSize,
		logger:         cfg.Logger,
	}, nil
}

// Start runs the worker loop until ctx is cancelled.
func (w *SettlementWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.RunCycle(ctx)
		}
	}
}

// RunCycle runs one scan-and-settle cycle. Any error
// inside a candidate's block is logged and that candidate is skipped; the
// worker continues with the rest of the batch and the candidate is
// retried next cycle since it remains unsettled.
func (w *SettlementWorker) RunCycle(ctx context.Context) {
	start := time.Now()
	defer func() { metrics.ObserveSettlementWorkerCycle(time.Since(start)) }()

	candidates, err := w.timeSeries.FindSettleable(ctx, w.batchSize)
	if err != nil {
		w.logf("settlement worker: find candidates: %v", err)
		return
	}
	for _, ts := range candidates {
		if err := w.settleOne(ctx, ts); err != nil {
			w.logf("settlement worker: candidate %s: %v", ts.ID, err)
		}
	}
}

func (w *SettlementWorker) settleOne(ctx context.Context, ts metering.TimeSeries) error {
	if len(ts.Observations) == 0 {
		// Nothing delivered: skip without raising an issue.
		return nil
	}

	existing, err := w.settlements.FindNonCancelableForPeriod(ctx, ts.GSRN, ts.Period)
	if err != nil {
		return err
	}
	if existing != nil && !existing.Recalculable() {
		// Calculated or Adjusted: already settled and not eligible for
		// correction here; nothing to do this cycle.
		return nil
	}

	supply, err := w.supplies.ActiveAt(ctx, ts.GSRN, ts.Period.Start)
	if err != nil {
		return err
	}
	if supply == nil {
		return nil // no supply active: data-absence, skip silently
	}

	productPeriod, err := w.productPeriods.ActiveAt(ctx, supply.ID, ts.Period.Start)
	if err != nil {
		return err
	}
	if productPeriod == nil {
		return nil
	}
	product, err := w.products.Get(ctx, productPeriod.ProductID)
	if err != nil {
		return err
	}
	if product == nil {
		return nil
	}

	marginRate, marginOK, err := w.margins.RateAt(ctx, product.ID, ts.Period.Start)
	if err != nil {
		return err
	}

	links, err := w.priceLinks.ActiveLinksFor(ctx, ts.GSRN, ts.Period.Start, ts.Period.End)
	if err != nil {
		return err
	}
	activePrices := make([]ActivePrice, 0, len(links))
	for _, link := range links {
		price, err := w.prices.Get(ctx, link.ChargeID, link.OwnerGLN)
		if err != nil {
			return err
		}
		if price == nil {
			continue
		}
		points, err := w.pricePoints.ListInRange(ctx, link.ChargeID, link.OwnerGLN, ts.Period.Start, ts.Period.End)
		if err != nil {
			return err
		}
		activePrices = append(activePrices, ActivePrice{Price: *price, Points: points})
	}

	gridArea := w.gridAreaOf(ts.GSRN)
	spotPrices, err := w.spotPrices.ListInRange(ctx, gridArea, ts.Period.Start, ts.Period.End)
	if err != nil {
		return err
	}

	issues := Validate(ValidationInput{
		PricingModel:  product.PricingModel,
		Period:        ts.Period,
		Resolution:    ts.Resolution,
		ActivePrices:  activePrices,
		SpotPrices:    spotPrices,
		MarginDefined: marginOK,
	})
	if len(issues) > 0 {
		messages := make([]string, 0, len(issues))
		for _, issue := range issues {
			messages = append(messages, issue.Message)
		}
		kind := DominantKind(issues)
		record := &settlement.SettlementIssue{
			GSRN:         ts.GSRN,
			TimeSeriesID: ts.ID,
			Version:      ts.Version,
			Kind:         kind,
			Messages:     messages,
			Status:       settlement.IssueStatusOpen,
		}
		metrics.IncSettlementIssue(string(kind))
		return w.issues.Upsert(ctx, record)
	}
	if err := w.issues.ResolveOpen(ctx, ts.GSRN, ts.ID, time.Now().UTC()); err != nil {
		return err
	}

	calculated := Calculate(CalculatorInput{
		TimeSeries:   ts,
		SupplyID:     supply.ID,
		PricingModel: product.PricingModel,
		ActivePrices: activePrices,
		SpotPrices:   spotPrices,
		MarginRate:   marginRate,
	})

	original, err := w.settlements.FindInvoicedOrMigratedForPeriod(ctx, ts.GSRN, ts.Period)
	if err != nil {
		return err
	}
	if original != nil {
		if err := w.settlements.MarkStatus(ctx, original.ID, settlement.StatusAdjusted); err != nil {
			return err
		}
		correction := Correct(*original, calculated)
		if err := w.settlements.Save(ctx, correction); err != nil {
			return err
		}
		metrics.IncCorrectionEmitted()
		return nil
	}

	if err := w.settlements.Save(ctx, calculated); err != nil {
		return err
	}
	metrics.IncSettlementCalculated()
	return nil
}

func (w *SettlementWorker) logf(format string, args ...any) {
	if w.logger != nil {
		w.logger.Printf(format, args...)
	}
}
