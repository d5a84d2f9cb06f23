package application_test

import (
	"strings"
	"testing"
	"time"

	masterdata "settlementcore/internal/masterdata/domain"
	pricing "settlementcore/internal/pricing/domain"
	application "settlementcore/internal/settlement/application"
	settlement "settlementcore/internal/settlement/domain"
)

func hasIssue(issues []application.ValidationIssue, kind settlement.IssueKind, substr string) bool {
	for _, issue := range issues {
		if issue.Kind == kind && strings.Contains(issue.Message, substr) {
			return true
		}
	}
	return false
}

func allRequiredTariffs(t *testing.T) []application.ActivePrice {
	t.Helper()
	return []application.ActivePrice{
		flatTariff(t, "GT-1", pricing.CategoryNetTariff, 0.50),
		flatTariff(t, "SYS-1", pricing.CategorySystem, 0.10),
		flatTariff(t, "TRX-1", pricing.CategoryTransmission, 0.10),
		flatTariff(t, "TAX-1", pricing.CategoryTax, 0.40),
	}
}

func fullDaySpots() []pricing.SpotPrice {
	spots := make([]pricing.SpotPrice, 0, 24)
	for i := 0; i < 24; i++ {
		spots = append(spots, pricing.SpotPrice{
			PriceArea:        "DK1",
			Timestamp:        dayStart.Add(time.Duration(i) * time.Hour),
			MinorUnitsPerMWh: 500,
		})
	}
	return spots
}

func TestValidate_FixedModelFullyPriced(t *testing.T) {
	issues := application.Validate(application.ValidationInput{
		PricingModel:  masterdata.PricingModelFixed,
		Period:        dayPeriod(t),
		Resolution:    masterdata.ResolutionHour,
		ActivePrices:  allRequiredTariffs(t),
		MarginDefined: true,
	})
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
}

func TestValidate_NamesEachMissingCategory(t *testing.T) {
	issues := application.Validate(application.ValidationInput{
		PricingModel: masterdata.PricingModelFixed,
		Period:       dayPeriod(t),
		Resolution:   masterdata.ResolutionHour,
		ActivePrices: []application.ActivePrice{
			flatTariff(t, "GT-1", pricing.CategoryNetTariff, 0.50),
		},
		MarginDefined: true,
	})
	for _, want := range []string{"system", "transmission", "tax"} {
		if !hasIssue(issues, settlement.IssueKindMissingPriceElements, want) {
			t.Fatalf("no missing-price-elements issue names category %q: %v", want, issues)
		}
	}
}

func TestValidate_MissingMarginBlocks(t *testing.T) {
	for _, model := range []masterdata.PricingModel{masterdata.PricingModelFixed, masterdata.PricingModelSpotAddon} {
		issues := application.Validate(application.ValidationInput{
			PricingModel:  model,
			Period:        dayPeriod(t),
			Resolution:    masterdata.ResolutionHour,
			ActivePrices:  allRequiredTariffs(t),
			SpotPrices:    fullDaySpots(),
			MarginDefined: false,
		})
		if !hasIssue(issues, settlement.IssueKindMissingPriceElements, "margin") {
			t.Fatalf("model %s: margin absence not flagged: %v", model, issues)
		}
	}
}

func TestValidate_SpotAddonRequiresFullSpotCoverage(t *testing.T) {
	spots := fullDaySpots()[:23] // last hour missing

	issues := application.Validate(application.ValidationInput{
		PricingModel:  masterdata.PricingModelSpotAddon,
		Period:        dayPeriod(t),
		Resolution:    masterdata.ResolutionHour,
		ActivePrices:  allRequiredTariffs(t),
		SpotPrices:    spots,
		MarginDefined: true,
	})
	if !hasIssue(issues, settlement.IssueKindPriceCoverageGap, "spot prices do not cover") {
		t.Fatalf("partial spot coverage not flagged as a coverage gap: %v", issues)
	}
	// The message names the first uncovered interval: the missing last hour.
	if !hasIssue(issues, settlement.IssueKindPriceCoverageGap, "2025-06-01T23:00:00Z") {
		t.Fatalf("uncovered interval not named: %v", issues)
	}
}

func TestValidate_NoSpotPricesAtAllIsMissingElements(t *testing.T) {
	issues := application.Validate(application.ValidationInput{
		PricingModel:  masterdata.PricingModelSpotAddon,
		Period:        dayPeriod(t),
		Resolution:    masterdata.ResolutionHour,
		ActivePrices:  allRequiredTariffs(t),
		MarginDefined: true,
	})
	if !hasIssue(issues, settlement.IssueKindMissingPriceElements, "spot") {
		t.Fatalf("entirely absent spot prices not flagged as missing elements: %v", issues)
	}
}

func TestValidate_FlagsCoverageGapWhenFirstPointAfterStart(t *testing.T) {
	prices := allRequiredTariffs(t)
	// Shift the grid tariff's only point past the period start: the first
	// hour has no applicable rate.
	prices[0].Points = []pricing.PricePoint{{
		ChargeID:     "GT-1",
		Timestamp:    dayStart.Add(time.Hour),
		ValuePerUnit: 0.50,
	}}

	issues := application.Validate(application.ValidationInput{
		PricingModel:  masterdata.PricingModelFixed,
		Period:        dayPeriod(t),
		Resolution:    masterdata.ResolutionHour,
		ActivePrices:  prices,
		MarginDefined: true,
	})
	if !hasIssue(issues, settlement.IssueKindPriceCoverageGap, "GT-1") {
		t.Fatalf("coverage gap not flagged: %v", issues)
	}
	// The first uncovered interval is the period start itself.
	if !hasIssue(issues, settlement.IssueKindPriceCoverageGap, "2025-06-01T00:00:00Z") {
		t.Fatalf("uncovered interval not named: %v", issues)
	}
	if got := application.DominantKind(issues); got != settlement.IssueKindPriceCoverageGap {
		t.Fatalf("dominant kind = %q, want price_coverage_gap", got)
	}
}

func TestValidate_PointBeforeStartCoversForward(t *testing.T) {
	prices := allRequiredTariffs(t)
	// A point strictly before the period start still covers every step: the
	// applicable rate at t is the greatest timestamp <= t.
	prices[0].Points = []pricing.PricePoint{{
		ChargeID:     "GT-1",
		Timestamp:    dayStart.Add(-48 * time.Hour),
		ValuePerUnit: 0.50,
	}}

	issues := application.Validate(application.ValidationInput{
		PricingModel:  masterdata.PricingModelFixed,
		Period:        dayPeriod(t),
		Resolution:    masterdata.ResolutionHour,
		ActivePrices:  prices,
		MarginDefined: true,
	})
	if len(issues) != 0 {
		t.Fatalf("unexpected issues: %v", issues)
	}
}
