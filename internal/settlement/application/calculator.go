package application

import (
	"time"

	masterdata "settlementcore/internal/masterdata/domain"
	"settlementcore/internal/money"
	metering "settlementcore/internal/metering/domain"
	"settlementcore/internal/period"
	pricing "settlementcore/internal/pricing/domain"
	settlement "settlementcore/internal/settlement/domain"
)

// referenceSubscriptionPeriodDays is the assumed length, in days, of the
// period a subscription's periodic amount covers. Subscription price
// points carry one periodic amount; proration scales it by the ratio of
// the settlement period's length to this reference.
const referenceSubscriptionPeriodDays = 30.0

// CalculatorInput gathers every external input the calculator needs. Like
// the validator, this is a pure function over already-loaded data.
type CalculatorInput struct {
	TimeSeries   metering.TimeSeries
	SupplyID     string
	PricingModel masterdata.PricingModel
	ActivePrices []ActivePrice
	SpotPrices   []pricing.SpotPrice
	MarginRate   money.UnitPrice
}

// spotRateAt finds the spot price at or before t (RateAt semantics), 0 if
// none — absence is a validator concern, not a calculator concern.
func spotRateAt(prices []pricing.SpotPrice, t time.Time) (money.UnitPrice, bool) {
	var best *pricing.SpotPrice
	for i := range prices {
		sp := &prices[i]
		if sp.Timestamp.After(t) {
			continue
		}
		if best == nil || sp.Timestamp.After(best.Timestamp) {
			best = sp
		}
	}
	if best == nil {
		return money.ZeroUnitPrice, false
	}
	return money.NewUnitPriceFromFloat(best.PerKWh()), true
}

func pointRateAt(points []pricing.PricePoint, t time.Time) (money.UnitPrice, bool) {
	var best *pricing.PricePoint
	for i := range points {
		p := &points[i]
		if p.Timestamp.After(t) {
			continue
		}
		if best == nil || p.Timestamp.After(best.Timestamp) {
			best = p
		}
	}
	if best == nil {
		return money.ZeroUnitPrice, false
	}
	return money.NewUnitPriceFromFloat(best.ValuePerUnit), true
}

// accumulator sums quantity*rate across observations for one line, so the
// reported unit price is the quantity-weighted average. The sum is kept
// unrounded (milli-kWh x micro-price) and rounded to the amount scale once,
// when the line is built.
type accumulator struct {
	quantity money.Quantity
	raw      int64
}

func (a *accumulator) add(q money.Quantity, rate money.UnitPrice) {
	a.quantity = a.quantity.Add(q)
	a.raw += q.Milli() * rate.Micro()
}

func (a accumulator) line(source settlement.LineSource, chargeID string) (settlement.SettlementLine, bool) {
	// raw is at quantity scale x unit-price scale; multiplying it by one
	// micro-unit applies MulUnitPrice's single rounding to the whole sum.
	amount := money.NewQuantityFromMilli(a.raw).MulUnitPrice(money.NewUnitPriceFromMicro(1))
	if a.quantity.IsZero() && amount.IsZero() {
		return settlement.SettlementLine{}, false
	}
	unitPrice, err := money.WeightedUnitPrice(amount, a.quantity)
	if err != nil {
		unitPrice = money.ZeroUnitPrice
	}
	return settlement.SettlementLine{
		Source:    source,
		ChargeID:  chargeID,
		Quantity:  a.quantity,
		UnitPrice: unitPrice,
		Amount:    amount,
	}, true
}

// Calculate is the pure settlement calculator. It assumes
// the candidate has already passed Validate.
func Calculate(input CalculatorInput) *settlement.Settlement {
	var spotAcc, marginAcc accumulator
	tariffAcc := make(map[string]*accumulator) // keyed by chargeID
	tariffMeta := make(map[string]ActivePrice)

	for _, ap := range input.ActivePrices {
		switch ap.Price.Category {
		case pricing.CategoryNetTariff, pricing.CategorySystem, pricing.CategoryTransmission, pricing.CategoryTax:
			tariffAcc[ap.Price.ChargeID] = &accumulator{}
			tariffMeta[ap.Price.ChargeID] = ap
		}
	}

	for _, obs := range input.TimeSeries.Observations {
		if !input.TimeSeries.Period.Contains(obs.Timestamp) {
			// Out-of-period observations never contribute to totals.
			continue
		}
		switch input.PricingModel {
		case masterdata.PricingModelSpotAddon:
			if rate, ok := spotRateAt(input.SpotPrices, obs.Timestamp); ok {
				spotAcc.add(obs.Quantity, rate)
			}
			marginAcc.add(obs.Quantity, input.MarginRate)
		case masterdata.PricingModelFixed:
			marginAcc.add(obs.Quantity, input.MarginRate)
		}

		for chargeID, acc := range tariffAcc {
			ap := tariffMeta[chargeID]
			if rate, ok := pointRateAt(ap.Points, obs.Timestamp); ok {
				acc.add(obs.Quantity, rate)
			}
		}
	}

	var lines []settlement.SettlementLine
	if l, ok := spotAcc.line(settlement.LineSourceSpot, ""); ok {
		lines = append(lines, l)
	}
	if l, ok := marginAcc.line(settlement.LineSourceMargin, ""); ok {
		lines = append(lines, l)
	}
	for chargeID, acc := range tariffAcc {
		source := categoryToLineSource(tariffMeta[chargeID].Price.Category)
		if l, ok := acc.line(source, chargeID); ok {
			lines = append(lines, l)
		}
	}

	for _, ap := range input.ActivePrices {
		switch ap.Price.Type {
		case pricing.PriceTypeSubscription:
			if l, ok := subscriptionLine(ap, input.TimeSeries.Period); ok {
				lines = append(lines, l)
			}
		case pricing.PriceTypeFee:
			if l, ok := feeLine(ap); ok {
				lines = append(lines, l)
			}
		}
	}

	totalEnergy, totalAmount := settlement.Totals(lines)

	return &settlement.Settlement{
		GSRN:              input.TimeSeries.GSRN,
		SupplyID:          input.SupplyID,
		TimeSeriesID:      input.TimeSeries.ID,
		TimeSeriesVersion: input.TimeSeries.Version,
		Period:            input.TimeSeries.Period,
		Status:            settlement.StatusCalculated,
		IsCorrection:      false,
		Lines:             lines,
		TotalEnergy:       totalEnergy,
		TotalAmount:       totalAmount,
	}
}

func categoryToLineSource(cat pricing.PriceCategory) settlement.LineSource {
	switch cat {
	case pricing.CategorySystem:
		return settlement.LineSourceSystemTariff
	case pricing.CategoryTransmission:
		return settlement.LineSourceTransmission
	case pricing.CategoryTax:
		return settlement.LineSourceTax
	default:
		return settlement.LineSourceGridTariff
	}
}

func subscriptionLine(ap ActivePrice, p period.Period) (settlement.SettlementLine, bool) {
	if len(ap.Points) == 0 {
		return settlement.SettlementLine{}, false
	}
	periodic := ap.Points[0].ValuePerUnit
	ratio := p.Days() / referenceSubscriptionPeriodDays
	amount := money.NewMoneyFromFloat(periodic * ratio)
	if amount.IsZero() {
		return settlement.SettlementLine{}, false
	}
	return settlement.SettlementLine{
		Source:    settlement.LineSourceSubscription,
		ChargeID:  ap.Price.ChargeID,
		Quantity:  money.NewQuantityFromFloat(1),
		UnitPrice: money.NewUnitPriceFromFloat(periodic),
		Amount:    amount,
	}, true
}

func feeLine(ap ActivePrice) (settlement.SettlementLine, bool) {
	if len(ap.Points) == 0 {
		return settlement.SettlementLine{}, false
	}
	amount := money.NewMoneyFromFloat(ap.Points[0].ValuePerUnit)
	if amount.IsZero() {
		return settlement.SettlementLine{}, false
	}
	return settlement.SettlementLine{
		Source:    settlement.LineSourceFee,
		ChargeID:  ap.Price.ChargeID,
		Quantity:  money.NewQuantityFromFloat(1),
		UnitPrice: money.NewUnitPriceFromFloat(ap.Points[0].ValuePerUnit),
		Amount:    amount,
	}, true
}

// lineKey identifies a line for correction-delta matching: same source and,
// for tariff/subscription/fee lines, the same charge.
func lineKey(l settlement.SettlementLine) string {
	return string(l.Source) + "|" + l.ChargeID
}

// Correct computes a correction settlement: new minus original per
// corresponding line, with subscription lines whose delta is zero omitted
// (they do not depend on consumption).
func Correct(original settlement.Settlement, recalculated *settlement.Settlement) *settlement.Settlement {
	originalByKey := make(map[string]settlement.SettlementLine, len(original.Lines))
	for _, l := range original.Lines {
		originalByKey[lineKey(l)] = l
	}
	newByKey := make(map[string]settlement.SettlementLine, len(recalculated.Lines))
	seen := make(map[string]bool)
	for _, l := range recalculated.Lines {
		newByKey[lineKey(l)] = l
		seen[lineKey(l)] = true
	}
	for k := range originalByKey {
		seen[k] = true
	}

	var deltas []settlement.SettlementLine
	for k := range seen {
		newLine, hasNew := newByKey[k]
		oldLine := originalByKey[k]
		var source settlement.LineSource
		var chargeID string
		if hasNew {
			source, chargeID = newLine.Source, newLine.ChargeID
		} else {
			source, chargeID = oldLine.Source, oldLine.ChargeID
		}

		deltaQty := newLine.Quantity.Sub(oldLine.Quantity)
		deltaAmount := newLine.Amount.Sub(oldLine.Amount)

		if source == settlement.LineSourceSubscription && deltaAmount.IsZero() {
			continue
		}
		if deltaQty.IsZero() && deltaAmount.IsZero() {
			continue
		}

		unitPrice, err := money.WeightedUnitPrice(deltaAmount, deltaQty)
		if err != nil {
			if hasNew {
				unitPrice = newLine.UnitPrice
			} else {
				unitPrice = oldLine.UnitPrice
			}
		}

		deltas = append(deltas, settlement.SettlementLine{
			Source:    source,
			ChargeID:  chargeID,
			Quantity:  deltaQty,
			UnitPrice: unitPrice,
			Amount:    deltaAmount,
		})
	}

	totalEnergy, totalAmount := settlement.Totals(deltas)

	return &settlement.Settlement{
		GSRN:                 recalculated.GSRN,
		SupplyID:             recalculated.SupplyID,
		TimeSeriesID:         recalculated.TimeSeriesID,
		TimeSeriesVersion:    recalculated.TimeSeriesVersion,
		Period:               recalculated.Period,
		Status:               settlement.StatusCalculated,
		IsCorrection:         true,
		PreviousSettlementID: original.ID,
		Lines:                deltas,
		TotalEnergy:          totalEnergy,
		TotalAmount:          totalAmount,
	}
}
