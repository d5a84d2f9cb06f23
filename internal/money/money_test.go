package money

import "testing"

func TestQuantityMulUnitPrice(t *testing.T) {
	q := NewQuantityFromFloat(24.0)
	p := NewUnitPriceFromFloat(0.5)
	got := q.MulUnitPrice(p)
	want := NewMoneyFromFloat(12.0)
	if got != want {
		t.Fatalf("24.0 * 0.5 = %s, want %s", got, want)
	}
}

func TestWeightedUnitPrice(t *testing.T) {
	amount := NewMoneyFromFloat(15.60)
	qty := NewQuantityFromFloat(24.0)
	got, err := WeightedUnitPrice(amount, qty)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := NewUnitPriceFromFloat(0.65)
	if got != want {
		t.Fatalf("15.60/24.0 = %s, want %s", got, want)
	}
}

func TestWeightedUnitPriceDivideByZero(t *testing.T) {
	_, err := WeightedUnitPrice(NewMoneyFromFloat(10), ZeroQuantity)
	if err != ErrDivideByZero {
		t.Fatalf("expected ErrDivideByZero, got %v", err)
	}
}

func TestMoneyAddSub(t *testing.T) {
	a := NewMoneyFromFloat(1.23)
	b := NewMoneyFromFloat(4.56)
	if got, want := a.Add(b), NewMoneyFromFloat(5.79); got != want {
		t.Fatalf("add: got %s want %s", got, want)
	}
	if got, want := b.Sub(a), NewMoneyFromFloat(3.33); got != want {
		t.Fatalf("sub: got %s want %s", got, want)
	}
}

func TestRoundHalfAwayFromZero(t *testing.T) {
	cases := []struct {
		in   float64
		want int64
	}{
		{2.5, 3},
		{-2.5, -3},
		{2.4, 2},
		{-2.4, -2},
	}
	for _, c := range cases {
		if got := roundHalfAwayFromZero(c.in); got != c.want {
			t.Fatalf("round(%v) = %d, want %d", c.in, got, c.want)
		}
	}
}
