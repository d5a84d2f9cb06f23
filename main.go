package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	settlementconfig "settlementcore/internal/config"

	"settlementcore/internal/ids"
	inboxapp "settlementcore/internal/inbox/application"
	inboxrepo "settlementcore/internal/inbox/infrastructure/postgres"
	masterdataapp "settlementcore/internal/masterdata/application"
	masterdatarepo "settlementcore/internal/masterdata/infrastructure/postgres"
	meteringapp "settlementcore/internal/metering/application"
	meteringrepo "settlementcore/internal/metering/infrastructure/postgres"
	"settlementcore/internal/observability/metrics"
	outboxapp "settlementcore/internal/outbox/application"
	outbox "settlementcore/internal/outbox/domain"
	outboxrepo "settlementcore/internal/outbox/infrastructure/postgres"
	pricingapp "settlementcore/internal/pricing/application"
	pricing "settlementcore/internal/pricing/domain"
	pricingrepo "settlementcore/internal/pricing/infrastructure/postgres"
	"settlementcore/internal/router"
	settlementapp "settlementcore/internal/settlement/application"
	settlementrepo "settlementcore/internal/settlement/infrastructure/postgres"
	settlementhttp "settlementcore/internal/settlement/interfaces/http"

	"settlementcore/internal/auth"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := settlementconfig.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL or PG_DSN is required")
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init(db, logger)

	// ---- masterdata ----
	meteringPointRepo := masterdatarepo.NewMeteringPointRepository(db)
	supplyRepo := masterdatarepo.NewSupplyRepository(db)
	productPeriodRepo := masterdatarepo.NewSupplyProductPeriodRepository(db)
	supplierProductRepo := masterdatarepo.NewSupplierProductRepository(db)
	supplierMarginRepo := masterdatarepo.NewSupplierMarginRepository(db)

	masterDataService, err := masterdataapp.NewMasterDataService(meteringPointRepo, logger)
	if err != nil {
		logger.Fatalf("master data service error: %v", err)
	}
	supplyLifecycleService, err := masterdataapp.NewSupplyLifecycleService(meteringPointRepo, supplyRepo, logger)
	if err != nil {
		logger.Fatalf("supply lifecycle service error: %v", err)
	}

	// ---- metering ----
	timeSeriesRepo := meteringrepo.NewTimeSeriesRepository(db)
	aggregatedRepo := meteringrepo.NewAggregatedTimeSeriesRepository(db)
	wholesaleRepo := meteringrepo.NewWholesaleSettlementRepository(db)

	meteredDataService, err := meteringapp.NewMeteredDataService(meteringPointRepo, timeSeriesRepo, logger)
	if err != nil {
		logger.Fatalf("metered data service error: %v", err)
	}
	aggregatedDataService, err := meteringapp.NewAggregatedDataService(aggregatedRepo)
	if err != nil {
		logger.Fatalf("aggregated data service error: %v", err)
	}
	wholesaleService, err := meteringapp.NewWholesaleService(wholesaleRepo)
	if err != nil {
		logger.Fatalf("wholesale service error: %v", err)
	}

	// ---- pricing ----
	priceRepo := pricingrepo.NewPriceRepository(db)
	pricePointRepo := pricingrepo.NewPricePointRepository(db)
	priceLinkRepo := pricingrepo.NewPriceLinkRepository(db)
	spotPriceRepo := pricingrepo.NewSpotPriceRepository(db)

	priceInfoService, err := pricingapp.NewPriceInfoService(priceRepo)
	if err != nil {
		logger.Fatalf("price info service error: %v", err)
	}
	priceSeriesService, err := pricingapp.NewPriceSeriesService(priceRepo, pricePointRepo, logger)
	if err != nil {
		logger.Fatalf("price series service error: %v", err)
	}
	priceLinkService, err := pricingapp.NewPriceLinkService(priceRepo, priceLinkRepo, logger)
	if err != nil {
		logger.Fatalf("price link service error: %v", err)
	}

	// ---- settlement ----
	settlementRepo := settlementrepo.NewSettlementRepository(db)
	issueRepo := settlementrepo.NewSettlementIssueRepository(db)

	gridAreaOf := func(gsrn ids.GSRN) string {
		mp, err := meteringPointRepo.Get(context.Background(), gsrn)
		if err != nil || mp == nil {
			return ""
		}
		return mp.GridAreaCode
	}

	settlementWorker, err := settlementapp.NewSettlementWorker(settlementapp.SettlementWorkerConfig{
		TimeSeries:     timeSeriesRepo,
		Supplies:       supplyRepo,
		ProductPeriods: productPeriodRepo,
		Products:       supplierProductRepo,
		Margins:        supplierMarginRepo,
		PriceLinks:     priceLinkRepo,
		Prices:         priceRepo,
		PricePoints:    pricePointRepo,
		SpotPrices:     spotPriceRepo,
		Settlements:    settlementRepo,
		Issues:         issueRepo,
		GridAreaOf:     gridAreaOf,
		Interval:       cfg.SettlementWorker.Interval,
		BatchSize:      cfg.SettlementWorker.BatchSize,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatalf("settlement worker error: %v", err)
	}

	// ---- router / inbox ----
	msgRouter, err := router.New(router.Config{
		MasterData:      masterDataService,
		SupplyLifecycle: supplyLifecycleService,
		MeteredData:     meteredDataService,
		AggregatedData:  aggregatedDataService,
		Wholesale:       wholesaleService,
		PriceInfo:       priceInfoService,
		PriceSeries:     priceSeriesService,
		PriceLink:       priceLinkService,
	})
	if err != nil {
		logger.Fatalf("router error: %v", err)
	}

	inboxRepository := inboxrepo.NewRepository(db)
	inboxWorker, err := inboxapp.NewWorker(inboxRepository, msgRouter, cfg.InboxWorker.Interval, cfg.InboxWorker.BatchSize, logger)
	if err != nil {
		logger.Fatalf("inbox worker error: %v", err)
	}

	// ---- outbox ----
	// No message-hub client credentials are configured for this deployment:
	// the dispatcher runs in simulation mode, accepting
	// every send rather than reaching an external endpoint.
	outboxRepository := outboxrepo.NewRepository(db)
	outboxWorker, err := outboxapp.NewWorker(
		outboxRepository,
		simulationTransport{},
		cfg.OutboxWorker.Interval,
		cfg.OutboxWorker.BatchSize,
		cfg.OutboxWorker.MaxRetries,
		cfg.OutboxWorker.BaseDelay,
		logger,
	)
	if err != nil {
		logger.Fatalf("outbox worker error: %v", err)
	}

	// ---- spot price ingester ----
	// No day-ahead market endpoint is configured either: the ingester's
	// source polls nothing until a real SpotPriceSource is wired in.
	spotIngester, err := pricingapp.NewSpotIngester(simulationSpotSource{}, spotPriceRepo, cfg.PriceAreas, cfg.SpotIngester.Interval, logger)
	if err != nil {
		logger.Fatalf("spot ingester error: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go settlementWorker.Start(ctx)
	go inboxWorker.Start(ctx)
	go outboxWorker.Start(ctx)
	go spotIngester.Start(ctx)

	// ---- outbound pull API ----
	settlementsHandler, err := settlementhttp.NewSettlementsHandler(settlementRepo)
	if err != nil {
		logger.Fatalf("settlements handler error: %v", err)
	}
	confirmInvoicedHandler, err := settlementhttp.NewConfirmInvoicedHandler(settlementRepo)
	if err != nil {
		logger.Fatalf("confirm invoiced handler error: %v", err)
	}

	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret))

	mux := http.NewServeMux()
	mux.Handle("/api/v1/settlements", authMiddleware.Wrap(settlementsHandler))
	mux.Handle("/api/v1/settlements/", authMiddleware.Wrap(confirmInvoicedHandler))
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(mux, logger)}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Printf("http shutdown error: %v", err)
		}
	}()

	logger.Printf("http listening on %s", cfg.HTTPAddr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("http server error: %v", err)
	}
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

// simulationTransport is the outbox worker's transport when no message-hub
// client credentials are configured: every send is accepted.
type simulationTransport struct{}

func (simulationTransport) Send(ctx context.Context, msg outbox.OutboxMessage) (outboxapp.Outcome, string, error) {
	return outboxapp.Accepted, "simulated", nil
}

// simulationSpotSource is the spot price ingester's source when no
// day-ahead market endpoint is configured: it fetches nothing.
type simulationSpotSource struct{}

func (simulationSpotSource) FetchDayAhead(ctx context.Context, priceArea string, day time.Time) ([]pricing.SpotPrice, error) {
	return nil, nil
}
