package application

import (
	"fmt"
	"time"

	masterdata "settlementcore/internal/masterdata/domain"
	"settlementcore/internal/period"
	pricing "settlementcore/internal/pricing/domain"
	settlement "settlementcore/internal/settlement/domain"
)

// ActivePrice is a price active over the settlement period along with the
// price points covering it.
type ActivePrice struct {
	Price  pricing.Price
	Points []pricing.PricePoint
}

// ValidationInput gathers every external input the validator inspects.
// Validation is a pure function over already-loaded data: no I/O happens
// inside Validate.
type ValidationInput struct {
	PricingModel  masterdata.PricingModel
	Period        period.Period
	Resolution    masterdata.Resolution
	ActivePrices  []ActivePrice
	SpotPrices    []pricing.SpotPrice
	MarginDefined bool
}

// ValidationIssue is one reason a candidate is blocked, tagged with the
// SettlementIssue kind it maps to.
type ValidationIssue struct {
	Kind    settlement.IssueKind
	Message string
}

// requiredTariffCategories must appear at least once regardless of pricing
// model.
var requiredTariffCategories = []pricing.PriceCategory{
	pricing.CategoryNetTariff,
	pricing.CategorySystem,
	pricing.CategoryTransmission,
	pricing.CategoryTax,
}

// Validate returns the issues blocking settlement. An empty slice means the
// candidate is unblocked.
func Validate(input ValidationInput) []ValidationIssue {
	var issues []ValidationIssue

	present := make(map[pricing.PriceCategory]bool)
	for _, ap := range input.ActivePrices {
		present[ap.Price.Category] = true
	}

	for _, cat := range requiredTariffCategories {
		if !present[cat] {
			issues = append(issues, ValidationIssue{
				Kind:    settlement.IssueKindMissingPriceElements,
				Message: fmt.Sprintf("missing required price category %q", cat),
			})
		}
	}

	switch input.PricingModel {
	case masterdata.PricingModelSpotAddon:
		if len(input.SpotPrices) == 0 {
			issues = append(issues, ValidationIssue{
				Kind:    settlement.IssueKindMissingPriceElements,
				Message: "no spot prices exist for the settlement period",
			})
		} else if t, gap := firstUncoveredSpotStep(input.SpotPrices, input.Period, input.Resolution.Duration()); gap {
			issues = append(issues, ValidationIssue{
				Kind:    settlement.IssueKindPriceCoverageGap,
				Message: fmt.Sprintf("spot prices do not cover the settlement period from %s", t.Format(time.RFC3339)),
			})
		}
		if !input.MarginDefined {
			issues = append(issues, ValidationIssue{
				Kind:    settlement.IssueKindMissingPriceElements,
				Message: "supplier margin is not defined",
			})
		}
	case masterdata.PricingModelFixed:
		if !input.MarginDefined {
			issues = append(issues, ValidationIssue{
				Kind:    settlement.IssueKindMissingPriceElements,
				Message: "supplier margin is not defined",
			})
		}
	default:
		issues = append(issues, ValidationIssue{
			Kind:    settlement.IssueKindMissingPriceElements,
			Message: fmt.Sprintf("unknown pricing model %q", input.PricingModel),
		})
	}

	for _, ap := range input.ActivePrices {
		if ap.Price.Resolution == nil {
			continue // not time-varying (e.g. subscription, fee)
		}
		if t, gap := firstUncoveredStep(ap.Points, input.Period, *ap.Price.Resolution); gap {
			issues = append(issues, ValidationIssue{
				Kind:    settlement.IssueKindPriceCoverageGap,
				Message: fmt.Sprintf("price %s/%s does not cover the settlement period from %s", ap.Price.ChargeID, ap.Price.OwnerGLN, t.Format(time.RFC3339)),
			})
		}
	}

	return issues
}

// DominantKind reduces a blocked candidate's issues to the single kind the
// persisted SettlementIssue carries: a missing price element is the more
// fundamental blocker, so it wins over a coverage gap.
func DominantKind(issues []ValidationIssue) settlement.IssueKind {
	for _, issue := range issues {
		if issue.Kind == settlement.IssueKindMissingPriceElements {
			return settlement.IssueKindMissingPriceElements
		}
	}
	return settlement.IssueKindPriceCoverageGap
}

// firstUncoveredStep returns the first interval start t in [period.Start,
// period.End) stepping by resolution with no point timestamped <= t, and
// gap=false when every step is covered.
func firstUncoveredStep(points []pricing.PricePoint, p period.Period, resolution time.Duration) (time.Time, bool) {
	steps := stepsFor(p, resolution)
	sorted := append([]pricing.PricePoint(nil), points...)
	sortPointsByTimestamp(sorted)
	idx := 0
	for _, t := range steps {
		for idx < len(sorted) && !sorted[idx].Timestamp.After(t) {
			idx++
		}
		if idx == 0 {
			return t, true
		}
	}
	return time.Time{}, false
}

// firstUncoveredSpotStep returns the first interval start with no spot price
// row at exactly that timestamp, and gap=false when the period is fully
// covered.
func firstUncoveredSpotStep(prices []pricing.SpotPrice, p period.Period, resolution time.Duration) (time.Time, bool) {
	have := make(map[int64]bool, len(prices))
	for _, sp := range prices {
		have[sp.Timestamp.Unix()] = true
	}
	for _, t := range stepsFor(p, resolution) {
		if !have[t.Unix()] {
			return t, true
		}
	}
	return time.Time{}, false
}

// stepsFor returns each interval start in the settlement period. Settlement
// periods are always closed (a concrete billing window), never open-ended.
func stepsFor(p period.Period, resolution time.Duration) []time.Time {
	return p.Steps(resolution)
}

func sortPointsByTimestamp(points []pricing.PricePoint) {
	for i := 1; i < len(points); i++ {
		for j := i; j > 0 && points[j].Timestamp.Before(points[j-1].Timestamp); j-- {
			points[j], points[j-1] = points[j-1], points[j]
		}
	}
}
