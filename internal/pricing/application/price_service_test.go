package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"settlementcore/internal/ids"
	"settlementcore/internal/period"
	application "settlementcore/internal/pricing/application"
	pricing "settlementcore/internal/pricing/domain"
)

type memPriceRepo struct {
	prices map[string]*pricing.Price // keyed by Price.Key()
}

func newMemPriceRepo() *memPriceRepo {
	return &memPriceRepo{prices: make(map[string]*pricing.Price)}
}

func (r *memPriceRepo) Get(_ context.Context, chargeID string, ownerGLN ids.GLN) (*pricing.Price, error) {
	p, ok := r.prices[chargeID+"|"+string(ownerGLN)]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *memPriceRepo) Save(_ context.Context, price *pricing.Price) error {
	cp := *price
	r.prices[price.Key()] = &cp
	return nil
}

type memPointRepo struct {
	replaced []pricing.PricePoint
	calls    int
}

func (r *memPointRepo) ListInRange(context.Context, string, ids.GLN, time.Time, time.Time) ([]pricing.PricePoint, error) {
	return nil, nil
}

func (r *memPointRepo) RateAt(context.Context, string, ids.GLN, time.Time) (float64, bool, error) {
	return 0, false, nil
}

func (r *memPointRepo) ReplaceRange(_ context.Context, _ string, _ ids.GLN, _, _ time.Time, points []pricing.PricePoint) error {
	r.calls++
	r.replaced = points
	return nil
}

type memLinkRepo struct {
	links map[string]*pricing.PriceLink // keyed by chargeID|gsrn
	saved int
}

func newMemLinkRepo() *memLinkRepo {
	return &memLinkRepo{links: make(map[string]*pricing.PriceLink)}
}

func (r *memLinkRepo) ActiveLinksFor(context.Context, ids.GSRN, time.Time, time.Time) ([]pricing.PriceLink, error) {
	return nil, nil
}

func (r *memLinkRepo) FindActive(_ context.Context, chargeID string, _ ids.GLN, gsrn ids.GSRN) (*pricing.PriceLink, error) {
	l, ok := r.links[chargeID+"|"+string(gsrn)]
	if !ok {
		return nil, nil
	}
	cp := *l
	return &cp, nil
}

func (r *memLinkRepo) Save(_ context.Context, link *pricing.PriceLink) error {
	r.saved++
	cp := *link
	if cp.ID == "" {
		cp.ID = "link-1"
	}
	r.links[link.ChargeID+"|"+string(link.GSRN)] = &cp
	return nil
}

func validity(t *testing.T) period.Period {
	t.Helper()
	return period.NewOpenEnded(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
}

func TestHandlePriceInfo_CreatesPrice(t *testing.T) {
	repo := newMemPriceRepo()
	svc, err := application.NewPriceInfoService(repo)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	err = svc.HandlePriceInfo(context.Background(), application.PriceInfo{
		ChargeID: "GT-1",
		OwnerGLN: "5790000000001",
		Type:     pricing.PriceTypeTariff,
		Category: pricing.CategoryNetTariff,
		Validity: validity(t),
		IsTax:    false,
	})
	if err != nil {
		t.Fatalf("handle price info: %v", err)
	}
	if len(repo.prices) != 1 {
		t.Fatalf("stored %d prices, want 1", len(repo.prices))
	}
	// A tariff with no declared resolution defaults to hourly, so coverage
	// validation always runs for it.
	stored := repo.prices["GT-1|5790000000001"]
	if stored.Resolution == nil || *stored.Resolution != time.Hour {
		t.Fatalf("tariff resolution = %v, want hourly default", stored.Resolution)
	}
}

func TestHandlePriceInfo_KeepsDeclaredResolution(t *testing.T) {
	repo := newMemPriceRepo()
	svc, _ := application.NewPriceInfoService(repo)
	quarter := 15 * time.Minute

	err := svc.HandlePriceInfo(context.Background(), application.PriceInfo{
		ChargeID:   "GT-2",
		OwnerGLN:   "5790000000001",
		Type:       pricing.PriceTypeTariff,
		Category:   pricing.CategoryNetTariff,
		Validity:   validity(t),
		Resolution: &quarter,
	})
	if err != nil {
		t.Fatalf("handle price info: %v", err)
	}
	stored := repo.prices["GT-2|5790000000001"]
	if stored.Resolution == nil || *stored.Resolution != quarter {
		t.Fatalf("tariff resolution = %v, want 15m", stored.Resolution)
	}
}

func TestHandlePriceInfo_SubscriptionHasNoResolution(t *testing.T) {
	repo := newMemPriceRepo()
	svc, _ := application.NewPriceInfoService(repo)

	err := svc.HandlePriceInfo(context.Background(), application.PriceInfo{
		ChargeID: "SUB-2",
		OwnerGLN: "5790000000001",
		Type:     pricing.PriceTypeSubscription,
		Category: pricing.CategoryOther,
		Validity: validity(t),
	})
	if err != nil {
		t.Fatalf("handle price info: %v", err)
	}
	stored := repo.prices["SUB-2|5790000000001"]
	if stored.Resolution != nil {
		t.Fatalf("subscription resolution = %v, want nil", stored.Resolution)
	}
}

func TestHandlePriceInfo_RejectsTaxOnNonTariff(t *testing.T) {
	svc, _ := application.NewPriceInfoService(newMemPriceRepo())

	err := svc.HandlePriceInfo(context.Background(), application.PriceInfo{
		ChargeID: "SUB-1",
		OwnerGLN: "5790000000001",
		Type:     pricing.PriceTypeSubscription,
		Category: pricing.CategoryOther,
		Validity: validity(t),
		IsTax:    true,
	})
	if !errors.Is(err, pricing.ErrTaxRequiresTariff) {
		t.Fatalf("err = %v, want ErrTaxRequiresTariff", err)
	}
}

func TestHandlePriceInfo_ForcesFeePassThroughOff(t *testing.T) {
	repo := newMemPriceRepo()
	svc, _ := application.NewPriceInfoService(repo)

	err := svc.HandlePriceInfo(context.Background(), application.PriceInfo{
		ChargeID:    "FEE-1",
		OwnerGLN:    "5790000000001",
		Type:        pricing.PriceTypeFee,
		Category:    pricing.CategoryOther,
		Validity:    validity(t),
		PassThrough: true, // wire says pass-through; fees never are
	})
	if err != nil {
		t.Fatalf("handle price info: %v", err)
	}
	stored := repo.prices["FEE-1|5790000000001"]
	if stored == nil {
		t.Fatal("fee not stored")
	}
	if stored.PassThrough {
		t.Fatal("fee stored as pass-through")
	}
}

func TestHandlePriceInfo_UpdatePreservesCreatedAt(t *testing.T) {
	repo := newMemPriceRepo()
	svc, _ := application.NewPriceInfoService(repo)
	createdAt := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	repo.prices["GT-1|5790000000001"] = &pricing.Price{
		ChargeID:  "GT-1",
		OwnerGLN:  "5790000000001",
		Type:      pricing.PriceTypeTariff,
		Category:  pricing.CategoryNetTariff,
		CreatedAt: createdAt,
	}

	err := svc.HandlePriceInfo(context.Background(), application.PriceInfo{
		ChargeID:    "GT-1",
		OwnerGLN:    "5790000000001",
		Type:        pricing.PriceTypeTariff,
		Category:    pricing.CategoryNetTariff,
		Description: "renamed",
		Validity:    validity(t),
	})
	if err != nil {
		t.Fatalf("handle price info: %v", err)
	}
	stored := repo.prices["GT-1|5790000000001"]
	if stored.Description != "renamed" {
		t.Fatalf("description = %q", stored.Description)
	}
	if !stored.CreatedAt.Equal(createdAt) {
		t.Fatalf("created at = %v, want original preserved", stored.CreatedAt)
	}
}

func TestHandlePriceSeries_ReplacesRange(t *testing.T) {
	prices := newMemPriceRepo()
	prices.prices["GT-1|5790000000001"] = &pricing.Price{
		ChargeID: "GT-1",
		OwnerGLN: "5790000000001",
		Type:     pricing.PriceTypeTariff,
		Category: pricing.CategoryNetTariff,
	}
	points := &memPointRepo{}
	svc, err := application.NewPriceSeriesService(prices, points, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	err = svc.HandlePriceSeries(context.Background(), application.PriceSeries{
		ChargeID: "GT-1",
		OwnerGLN: "5790000000001",
		Start:    start,
		End:      start.Add(24 * time.Hour),
		Points: []pricing.PricePoint{
			{ChargeID: "GT-1", Timestamp: start, ValuePerUnit: 0.50},
		},
	})
	if err != nil {
		t.Fatalf("handle price series: %v", err)
	}
	if points.calls != 1 || len(points.replaced) != 1 {
		t.Fatalf("replace calls = %d, points = %d", points.calls, len(points.replaced))
	}
}

func TestHandlePriceSeries_SkipsUnknownPrice(t *testing.T) {
	points := &memPointRepo{}
	svc, _ := application.NewPriceSeriesService(newMemPriceRepo(), points, nil)

	err := svc.HandlePriceSeries(context.Background(), application.PriceSeries{
		ChargeID: "NOPE-1",
		OwnerGLN: "5790000000001",
	})
	if err != nil {
		t.Fatalf("unknown price must be a silent skip, got %v", err)
	}
	if points.calls != 0 {
		t.Fatal("points replaced for unknown price")
	}
}

func TestHandlePriceLink_CreateThenOverwrite(t *testing.T) {
	prices := newMemPriceRepo()
	prices.prices["GT-1|5790000000001"] = &pricing.Price{
		ChargeID: "GT-1",
		OwnerGLN: "5790000000001",
		Type:     pricing.PriceTypeTariff,
		Category: pricing.CategoryNetTariff,
	}
	links := newMemLinkRepo()
	svc, err := application.NewPriceLinkService(prices, links, nil)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	firstStart := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	err = svc.HandlePriceLink(context.Background(), application.PriceLinkUpdate{
		ChargeID:  "GT-1",
		OwnerGLN:  "5790000000001",
		GSRN:      "571313100000000001",
		LinkStart: firstStart,
	})
	if err != nil {
		t.Fatalf("handle price link: %v", err)
	}

	// A newer linkStart overwrites the existing link rather than adding a
	// second overlapping one.
	err = svc.HandlePriceLink(context.Background(), application.PriceLinkUpdate{
		ChargeID:  "GT-1",
		OwnerGLN:  "5790000000001",
		GSRN:      "571313100000000001",
		LinkStart: firstStart.AddDate(0, 1, 0),
	})
	if err != nil {
		t.Fatalf("handle price link update: %v", err)
	}
	if links.saved != 2 {
		t.Fatalf("saves = %d, want 2", links.saved)
	}
	if len(links.links) != 1 {
		t.Fatalf("stored %d links, want 1", len(links.links))
	}
	link := links.links["GT-1|571313100000000001"]
	if !link.Period.Start.Equal(firstStart.AddDate(0, 1, 0)) {
		t.Fatalf("link start = %v, want overwritten", link.Period.Start)
	}
}

func TestHandlePriceLink_SkipsUnknownPrice(t *testing.T) {
	links := newMemLinkRepo()
	svc, _ := application.NewPriceLinkService(newMemPriceRepo(), links, nil)

	err := svc.HandlePriceLink(context.Background(), application.PriceLinkUpdate{
		ChargeID:  "NOPE-1",
		OwnerGLN:  "5790000000001",
		GSRN:      "571313100000000001",
		LinkStart: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("unknown price must be a silent skip, got %v", err)
	}
	if links.saved != 0 {
		t.Fatal("link saved for unknown price")
	}
}
