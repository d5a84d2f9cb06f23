package router

import (
	"context"
	"fmt"
	"time"

	masterdata "settlementcore/internal/masterdata/domain"
	pricingApp "settlementcore/internal/pricing/application"
	pricing "settlementcore/internal/pricing/domain"
)

func (r *Router) routePriceInfo(ctx context.Context, body Payload) error {
	chargeID, err := body.RequireString("chargeId")
	if err != nil {
		return err
	}
	ownerGLN, err := body.RequireString("ownerGln")
	if err != nil {
		return err
	}
	validity, err := body.ExtractPeriod("validity")
	if err != nil {
		return err
	}

	info := pricingApp.PriceInfo{
		ChargeID:    chargeID,
		OwnerGLN:    ownerGLN,
		Type:        pricing.PriceType(body.String("type")),
		Category:    pricing.PriceCategory(body.String("category")),
		Description: body.String("description"),
		Validity:    validity,
		VATExempt:   body.Bool("vatExempt"),
		IsTax:       body.Bool("isTax"),
		PassThrough: body.Bool("passThrough"),
	}
	if v := body.String("resolution"); v != "" {
		d := masterdata.Resolution(v).Duration()
		info.Resolution = &d
	}
	return r.priceInfo.HandlePriceInfo(ctx, info)
}

func (r *Router) routePriceSeries(ctx context.Context, body Payload) error {
	chargeID, err := body.RequireString("chargeId")
	if err != nil {
		return err
	}
	ownerGLN, err := body.RequireString("ownerGln")
	if err != nil {
		return err
	}
	rangePeriod, err := body.ExtractPeriod("range")
	if err != nil {
		return err
	}

	raw := body.Slice("points")
	points := make([]pricing.PricePoint, 0, len(raw))
	for _, item := range raw {
		m, ok := item.(map[string]any)
		if !ok {
			return fmt.Errorf("router: price point has unrecognized shape")
		}
		pp := Payload(m)
		ts, err := pp.Time("timestamp")
		if err != nil {
			return err
		}
		value, err := toFloat(unwrap(m["value"]))
		if err != nil {
			return fmt.Errorf("router: price point value: %w", err)
		}
		points = append(points, pricing.PricePoint{
			Timestamp:    ts,
			ValuePerUnit: value,
		})
	}

	return r.priceSeries.HandlePriceSeries(ctx, pricingApp.PriceSeries{
		ChargeID: chargeID,
		OwnerGLN: ownerGLN,
		Start:    rangePeriod.Start,
		End:      rangePeriod.End,
		Points:   points,
	})
}

func (r *Router) routePriceLink(ctx context.Context, body Payload) error {
	chargeID, err := body.RequireString("chargeId")
	if err != nil {
		return err
	}
	ownerGLN, err := body.RequireString("ownerGln")
	if err != nil {
		return err
	}
	gsrn, err := body.RequireString("gsrn")
	if err != nil {
		return err
	}
	linkStart, err := body.Time("linkStart")
	if err != nil {
		return err
	}
	var linkEnd *time.Time
	t, ok, err := body.OptionalTime("linkEnd")
	if err != nil {
		return err
	}
	if ok {
		linkEnd = &t
	}

	return r.priceLink.HandlePriceLink(ctx, pricingApp.PriceLinkUpdate{
		ChargeID:  chargeID,
		OwnerGLN:  ownerGLN,
		GSRN:      gsrn,
		LinkStart: linkStart,
		LinkEnd:   linkEnd,
	})
}
