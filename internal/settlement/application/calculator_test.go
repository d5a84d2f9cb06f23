package application_test

import (
	"testing"
	"time"

	"settlementcore/internal/ids"
	masterdata "settlementcore/internal/masterdata/domain"
	metering "settlementcore/internal/metering/domain"
	"settlementcore/internal/money"
	"settlementcore/internal/period"
	pricing "settlementcore/internal/pricing/domain"
	application "settlementcore/internal/settlement/application"
	settlement "settlementcore/internal/settlement/domain"
)

var dayStart = time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

func mustGSRN(t *testing.T, v string) ids.GSRN {
	t.Helper()
	g, err := ids.NewGSRN(v)
	if err != nil {
		t.Fatalf("gsrn: %v", err)
	}
	return g
}

func mustGLN(t *testing.T, v string) ids.GLN {
	t.Helper()
	g, err := ids.NewGLN(v)
	if err != nil {
		t.Fatalf("gln: %v", err)
	}
	return g
}

func dayPeriod(t *testing.T) period.Period {
	t.Helper()
	p, err := period.NewClosed(dayStart, dayStart.Add(24*time.Hour))
	if err != nil {
		t.Fatalf("period: %v", err)
	}
	return p
}

func hourlyObservations(t *testing.T, kwhPerHour float64) []metering.Observation {
	t.Helper()
	obs := make([]metering.Observation, 0, 24)
	for i := 0; i < 24; i++ {
		obs = append(obs, metering.Observation{
			Timestamp: dayStart.Add(time.Duration(i) * time.Hour),
			Quantity:  money.NewQuantityFromFloat(kwhPerHour),
			Quality:   metering.QualityMeasured,
		})
	}
	return obs
}

func flatTariff(t *testing.T, chargeID string, category pricing.PriceCategory, ratePerKWh float64) application.ActivePrice {
	t.Helper()
	res := time.Hour
	return application.ActivePrice{
		Price: pricing.Price{
			ChargeID:   chargeID,
			OwnerGLN:   mustGLN(t, "5790000000001"),
			Type:       pricing.PriceTypeTariff,
			Category:   category,
			Resolution: &res,
		},
		Points: []pricing.PricePoint{{
			ChargeID:     chargeID,
			Timestamp:    dayStart,
			ValuePerUnit: ratePerKWh,
		}},
	}
}

func dayTimeSeries(t *testing.T, version int, kwhPerHour float64) metering.TimeSeries {
	t.Helper()
	return metering.TimeSeries{
		ID:            "ts-1",
		GSRN:          mustGSRN(t, "571313100000000001"),
		Period:        dayPeriod(t),
		Resolution:    masterdata.ResolutionHour,
		Version:       version,
		IsLatest:      true,
		TransactionID: "tx-1",
		ReceivedAt:    dayStart,
		Observations:  hourlyObservations(t, kwhPerHour),
	}
}

func findLine(t *testing.T, lines []settlement.SettlementLine, source settlement.LineSource) settlement.SettlementLine {
	t.Helper()
	for _, l := range lines {
		if l.Source == source {
			return l
		}
	}
	t.Fatalf("no line with source %q", source)
	return settlement.SettlementLine{}
}

func TestCalculate_FixedModelOneDay(t *testing.T) {
	s := application.Calculate(application.CalculatorInput{
		TimeSeries:   dayTimeSeries(t, 1, 1.0),
		SupplyID:     "supply-1",
		PricingModel: masterdata.PricingModelFixed,
		ActivePrices: []application.ActivePrice{
			flatTariff(t, "GT-1", pricing.CategoryNetTariff, 0.50),
		},
		MarginRate: money.NewUnitPriceFromFloat(0.15),
	})

	if s.Status != settlement.StatusCalculated {
		t.Fatalf("status = %q, want calculated", s.Status)
	}
	if s.IsCorrection {
		t.Fatal("fresh settlement flagged as correction")
	}
	if got := s.TotalEnergy.Milli(); got != 24_000 {
		t.Fatalf("total energy = %d milli-kWh, want 24000", got)
	}
	if got := s.TotalAmount.MinorUnits(); got != 1560 {
		t.Fatalf("total amount = %d minor units, want 1560", got)
	}

	margin := findLine(t, s.Lines, settlement.LineSourceMargin)
	if margin.Amount.MinorUnits() != 360 {
		t.Fatalf("margin amount = %d, want 360", margin.Amount.MinorUnits())
	}
	if margin.Quantity.Milli() != 24_000 {
		t.Fatalf("margin quantity = %d, want 24000", margin.Quantity.Milli())
	}
	if margin.UnitPrice.Micro() != 150_000 {
		t.Fatalf("margin unit price = %d micro, want 150000", margin.UnitPrice.Micro())
	}

	tariff := findLine(t, s.Lines, settlement.LineSourceGridTariff)
	if tariff.Amount.MinorUnits() != 1200 {
		t.Fatalf("tariff amount = %d, want 1200", tariff.Amount.MinorUnits())
	}
	if tariff.UnitPrice.Micro() != 500_000 {
		t.Fatalf("tariff unit price = %d micro, want 500000", tariff.UnitPrice.Micro())
	}
}

func TestCalculate_SpotAddonPricesEnergyAtSpotPlusMargin(t *testing.T) {
	spots := make([]pricing.SpotPrice, 0, 24)
	for i := 0; i < 24; i++ {
		spots = append(spots, pricing.SpotPrice{
			PriceArea:        "DK1",
			Timestamp:        dayStart.Add(time.Duration(i) * time.Hour),
			MinorUnitsPerMWh: 500, // 0.50 per kWh
		})
	}

	s := application.Calculate(application.CalculatorInput{
		TimeSeries:   dayTimeSeries(t, 1, 1.0),
		SupplyID:     "supply-1",
		PricingModel: masterdata.PricingModelSpotAddon,
		SpotPrices:   spots,
		MarginRate:   money.NewUnitPriceFromFloat(0.15),
	})

	spot := findLine(t, s.Lines, settlement.LineSourceSpot)
	if spot.Amount.MinorUnits() != 1200 {
		t.Fatalf("spot amount = %d, want 1200", spot.Amount.MinorUnits())
	}
	margin := findLine(t, s.Lines, settlement.LineSourceMargin)
	if margin.Amount.MinorUnits() != 360 {
		t.Fatalf("margin amount = %d, want 360", margin.Amount.MinorUnits())
	}
	// Spot and margin price the same consumption: energy counted once.
	if got := s.TotalEnergy.Milli(); got != 24_000 {
		t.Fatalf("total energy = %d, want 24000", got)
	}
	if got := s.TotalAmount.MinorUnits(); got != 1560 {
		t.Fatalf("total amount = %d, want 1560", got)
	}
}

func TestCalculate_DiscardsOutOfPeriodObservations(t *testing.T) {
	ts := dayTimeSeries(t, 1, 1.0)
	ts.Observations = append(ts.Observations,
		metering.Observation{
			Timestamp: dayStart.Add(24 * time.Hour), // == period end, excluded
			Quantity:  money.NewQuantityFromFloat(5),
			Quality:   metering.QualityMeasured,
		},
		metering.Observation{
			Timestamp: dayStart.Add(-time.Hour),
			Quantity:  money.NewQuantityFromFloat(5),
			Quality:   metering.QualityMeasured,
		},
	)

	s := application.Calculate(application.CalculatorInput{
		TimeSeries:   ts,
		SupplyID:     "supply-1",
		PricingModel: masterdata.PricingModelFixed,
		MarginRate:   money.NewUnitPriceFromFloat(0.15),
	})

	if got := s.TotalEnergy.Milli(); got != 24_000 {
		t.Fatalf("total energy = %d, want 24000 (out-of-period observations must not count)", got)
	}
}

func TestCalculate_SubscriptionProratedByDays(t *testing.T) {
	sub := application.ActivePrice{
		Price: pricing.Price{
			ChargeID: "SUB-1",
			OwnerGLN: mustGLN(t, "5790000000001"),
			Type:     pricing.PriceTypeSubscription,
			Category: pricing.CategoryOther,
		},
		Points: []pricing.PricePoint{{ChargeID: "SUB-1", Timestamp: dayStart, ValuePerUnit: 30.00}},
	}

	s := application.Calculate(application.CalculatorInput{
		TimeSeries:   dayTimeSeries(t, 1, 1.0),
		SupplyID:     "supply-1",
		PricingModel: masterdata.PricingModelFixed,
		ActivePrices: []application.ActivePrice{sub},
		MarginRate:   money.NewUnitPriceFromFloat(0.15),
	})

	line := findLine(t, s.Lines, settlement.LineSourceSubscription)
	// 30.00 per 30-day reference period, one day settled: 1.00.
	if line.Amount.MinorUnits() != 100 {
		t.Fatalf("subscription amount = %d, want 100", line.Amount.MinorUnits())
	}
}

func TestCorrect_EmitsDeltaAgainstOriginal(t *testing.T) {
	input := application.CalculatorInput{
		TimeSeries:   dayTimeSeries(t, 1, 1.0),
		SupplyID:     "supply-1",
		PricingModel: masterdata.PricingModelFixed,
		ActivePrices: []application.ActivePrice{
			flatTariff(t, "GT-1", pricing.CategoryNetTariff, 0.50),
		},
		MarginRate: money.NewUnitPriceFromFloat(0.15),
	}
	original := application.Calculate(input)
	original.ID = "stl-original"
	original.Status = settlement.StatusInvoiced

	input.TimeSeries = dayTimeSeries(t, 2, 1.5)
	recalculated := application.Calculate(input)

	correction := application.Correct(*original, recalculated)

	if !correction.IsCorrection {
		t.Fatal("correction not flagged")
	}
	if correction.PreviousSettlementID != "stl-original" {
		t.Fatalf("previous settlement id = %q", correction.PreviousSettlementID)
	}
	if correction.Status != settlement.StatusCalculated {
		t.Fatalf("correction status = %q, want calculated", correction.Status)
	}
	if !correction.Period.Start.Equal(original.Period.Start) || !correction.Period.End.Equal(original.Period.End) {
		t.Fatal("correction period differs from original")
	}
	if got := correction.TotalEnergy.Milli(); got != 12_000 {
		t.Fatalf("delta energy = %d, want 12000", got)
	}
	// Margin delta 12 kWh x 0.15 = 1.80; tariff delta 12 kWh x 0.50 = 6.00.
	margin := findLine(t, correction.Lines, settlement.LineSourceMargin)
	if margin.Amount.MinorUnits() != 180 {
		t.Fatalf("margin delta = %d, want 180", margin.Amount.MinorUnits())
	}
	tariff := findLine(t, correction.Lines, settlement.LineSourceGridTariff)
	if tariff.Amount.MinorUnits() != 600 {
		t.Fatalf("tariff delta = %d, want 600", tariff.Amount.MinorUnits())
	}
	if got := correction.TotalAmount.MinorUnits(); got != 780 {
		t.Fatalf("delta amount = %d, want 780", got)
	}
}

func TestCorrect_OmitsUnchangedSubscriptionLines(t *testing.T) {
	sub := application.ActivePrice{
		Price: pricing.Price{
			ChargeID: "SUB-1",
			OwnerGLN: mustGLN(t, "5790000000001"),
			Type:     pricing.PriceTypeSubscription,
			Category: pricing.CategoryOther,
		},
		Points: []pricing.PricePoint{{ChargeID: "SUB-1", Timestamp: dayStart, ValuePerUnit: 30.00}},
	}
	input := application.CalculatorInput{
		TimeSeries:   dayTimeSeries(t, 1, 1.0),
		SupplyID:     "supply-1",
		PricingModel: masterdata.PricingModelFixed,
		ActivePrices: []application.ActivePrice{sub},
		MarginRate:   money.NewUnitPriceFromFloat(0.15),
	}
	original := application.Calculate(input)
	original.ID = "stl-original"
	original.Status = settlement.StatusInvoiced

	input.TimeSeries = dayTimeSeries(t, 2, 1.5)
	recalculated := application.Calculate(input)

	correction := application.Correct(*original, recalculated)
	for _, l := range correction.Lines {
		if l.Source == settlement.LineSourceSubscription {
			t.Fatal("zero-delta subscription line present in correction")
		}
	}
}
