package settlement_test

import (
	"errors"
	"testing"
	"time"

	"settlementcore/internal/money"
	settlement "settlementcore/internal/settlement/domain"
)

func calculatedSettlement() *settlement.Settlement {
	return &settlement.Settlement{
		ID:                "stl-1",
		GSRN:              "571313100000000001",
		TimeSeriesID:      "ts-1",
		TimeSeriesVersion: 1,
		Status:            settlement.StatusCalculated,
	}
}

func TestMarkInvoiced(t *testing.T) {
	s := calculatedSettlement()
	at := time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

	if err := s.MarkInvoiced("INV-1001", at); err != nil {
		t.Fatalf("mark invoiced: %v", err)
	}
	if s.Status != settlement.StatusInvoiced {
		t.Fatalf("status = %q", s.Status)
	}
	if s.InvoiceReference != "INV-1001" || !s.InvoicedAt.Equal(at) {
		t.Fatalf("invoice reference/timestamp not recorded: %q %v", s.InvoiceReference, s.InvoicedAt)
	}
}

func TestMarkInvoiced_RejectsNonCalculated(t *testing.T) {
	for _, status := range []settlement.Status{
		settlement.StatusInvoiced,
		settlement.StatusAdjusted,
		settlement.StatusMigrated,
	} {
		s := calculatedSettlement()
		s.Status = status
		err := s.MarkInvoiced("INV-1001", time.Now())
		if !errors.Is(err, settlement.ErrNotCalculated) {
			t.Fatalf("status %s: err = %v, want ErrNotCalculated", status, err)
		}
	}
}

func TestMarkInvoiced_RequiresReference(t *testing.T) {
	s := calculatedSettlement()
	if err := s.MarkInvoiced("", time.Now()); err == nil {
		t.Fatal("empty invoice reference accepted")
	}
}

func TestValidate_CorrectionRequiresPreviousSettlement(t *testing.T) {
	s := calculatedSettlement()
	s.IsCorrection = true
	if err := s.Validate(); err == nil {
		t.Fatal("correction without previous settlement id accepted")
	}
	s.PreviousSettlementID = "stl-0"
	if err := s.Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestTotals(t *testing.T) {
	lines := []settlement.SettlementLine{
		{Source: settlement.LineSourceSpot, Quantity: money.NewQuantityFromFloat(24), Amount: money.NewMoneyFromFloat(12.00)},
		{Source: settlement.LineSourceMargin, Quantity: money.NewQuantityFromFloat(24), Amount: money.NewMoneyFromFloat(3.60)},
		{Source: settlement.LineSourceGridTariff, Quantity: money.NewQuantityFromFloat(24), Amount: money.NewMoneyFromFloat(12.00)},
	}
	energy, amount := settlement.Totals(lines)
	if energy.Milli() != 24_000 {
		t.Fatalf("total energy = %d, want 24000", energy.Milli())
	}
	if amount.MinorUnits() != 2760 {
		t.Fatalf("total amount = %d, want 2760", amount.MinorUnits())
	}
}

func TestRecalculableAndNonCancelable(t *testing.T) {
	cases := []struct {
		status        settlement.Status
		recalculable  bool
		nonCancelable bool
	}{
		{settlement.StatusCalculated, false, true},
		{settlement.StatusInvoiced, true, true},
		{settlement.StatusAdjusted, false, true},
		{settlement.StatusMigrated, true, true},
	}
	for _, tc := range cases {
		s := settlement.Settlement{Status: tc.status}
		if got := s.Recalculable(); got != tc.recalculable {
			t.Errorf("%s: Recalculable() = %v, want %v", tc.status, got, tc.recalculable)
		}
		if got := s.NonCancelable(); got != tc.nonCancelable {
			t.Errorf("%s: NonCancelable() = %v, want %v", tc.status, got, tc.nonCancelable)
		}
	}
}
