// Package money implements fixed-point decimal arithmetic for settlement
// math. Amounts, unit prices and energy quantities each carry a fixed number
// of fractional digits and are stored as scaled int64 values — never
// float64 — so that repeated addition and rounding stay exact.
package money

import (
	"errors"
	"fmt"
	"math"
	"math/big"
)

// ErrDivideByZero is returned when a weighted-average divisor is zero.
var ErrDivideByZero = errors.New("money: divide by zero")

// AmountScale is the number of fractional digits carried by a Money amount.
const AmountScale = 2

// UnitPriceScale is the number of fractional digits carried by a UnitPrice.
const UnitPriceScale = 6

// QuantityScale is the number of fractional digits carried by a Quantity
// (kWh or other dimensionless counts).
const QuantityScale = 3

var (
	amountFactor    = pow10(AmountScale)
	unitPriceFactor = pow10(UnitPriceScale)
	quantityFactor  = pow10(QuantityScale)
)

func pow10(n int) int64 {
	v := int64(1)
	for i := 0; i < n; i++ {
		v *= 10
	}
	return v
}

// Money is a monetary amount scaled to AmountScale fractional digits.
type Money struct {
	scaled int64
}

// Zero is the additive identity.
var Zero = Money{}

// NewMoneyFromFloat builds a Money from a float64, rounding half-away-from-zero
// to AmountScale digits. Intended for constructing literals in tests and
// config, not for settlement math itself.
func NewMoneyFromFloat(v float64) Money {
	return Money{scaled: roundHalfAwayFromZero(v * float64(amountFactor))}
}

// NewMoneyFromMinorUnits builds a Money directly from its scaled integer
// representation (e.g. currency-minor-units already at AmountScale).
func NewMoneyFromMinorUnits(scaled int64) Money {
	return Money{scaled: scaled}
}

// MinorUnits returns the exact scaled integer representation, for
// persistence. Unlike Float64, this round-trips without precision loss.
func (a Money) MinorUnits() int64 { return a.scaled }

// Add returns a+b.
func (a Money) Add(b Money) Money { return Money{scaled: a.scaled + b.scaled} }

// Sub returns a-b.
func (a Money) Sub(b Money) Money { return Money{scaled: a.scaled - b.scaled} }

// Neg returns -a.
func (a Money) Neg() Money { return Money{scaled: -a.scaled} }

// IsZero reports whether the amount is exactly zero.
func (a Money) IsZero() bool { return a.scaled == 0 }

// Float64 returns the amount as a float64, for presentation only.
func (a Money) Float64() float64 { return float64(a.scaled) / float64(amountFactor) }

// String formats the amount with AmountScale fractional digits.
func (a Money) String() string {
	return fmt.Sprintf("%.2f", a.Float64())
}

// Quantity is an energy (or other dimensionless) quantity scaled to
// QuantityScale fractional digits.
type Quantity struct {
	scaled int64
}

// ZeroQuantity is the additive identity.
var ZeroQuantity = Quantity{}

// NewQuantityFromFloat builds a Quantity from a float64 (e.g. kWh read off a
// wire payload), rounding half-away-from-zero to QuantityScale digits.
func NewQuantityFromFloat(v float64) Quantity {
	return Quantity{scaled: roundHalfAwayFromZero(v * float64(quantityFactor))}
}

// NewQuantityFromMilli builds a Quantity directly from its scaled integer
// representation (QuantityScale fractional digits).
func NewQuantityFromMilli(scaled int64) Quantity {
	return Quantity{scaled: scaled}
}

// Milli returns the exact scaled integer representation, for persistence.
func (a Quantity) Milli() int64 { return a.scaled }

// Add returns a+b.
func (a Quantity) Add(b Quantity) Quantity { return Quantity{scaled: a.scaled + b.scaled} }

// Sub returns a-b.
func (a Quantity) Sub(b Quantity) Quantity { return Quantity{scaled: a.scaled - b.scaled} }

// IsZero reports whether the quantity is exactly zero.
func (a Quantity) IsZero() bool { return a.scaled == 0 }

// Float64 returns the quantity as a float64, for presentation only.
func (a Quantity) Float64() float64 { return float64(a.scaled) / float64(quantityFactor) }

// String formats the quantity with QuantityScale fractional digits.
func (a Quantity) String() string {
	return fmt.Sprintf("%.3f", a.Float64())
}

// MulUnitPrice multiplies a quantity by a unit price, producing a Money
// amount rounded half-away-from-zero to AmountScale digits. This is the one
// place scale conversion happens: Quantity(3) * UnitPrice(6) -> Money(2).
// Uses exact big.Int arithmetic, never floating point.
func (q Quantity) MulUnitPrice(p UnitPrice) Money {
	// q.scaled is kWh*1e3, p.scaled is price*1e6; raw product is amount*1e9.
	// Scale down to amount*1e2 by dividing by 1e7, rounding half-away-from-zero.
	product := new(big.Int).Mul(big.NewInt(q.scaled), big.NewInt(p.scaled))
	divisor := quantityFactor * unitPriceFactor / amountFactor
	return Money{scaled: divRoundHalfAwayFromZero(product, big.NewInt(divisor))}
}

// UnitPrice is a per-unit rate scaled to UnitPriceScale fractional digits.
type UnitPrice struct {
	scaled int64
}

// ZeroUnitPrice is the additive identity.
var ZeroUnitPrice = UnitPrice{}

// NewUnitPriceFromFloat builds a UnitPrice from a float64, rounding
// half-away-from-zero to UnitPriceScale digits.
func NewUnitPriceFromFloat(v float64) UnitPrice {
	return UnitPrice{scaled: roundHalfAwayFromZero(v * float64(unitPriceFactor))}
}

// NewUnitPriceFromMicro builds a UnitPrice directly from its scaled integer
// representation (UnitPriceScale fractional digits).
func NewUnitPriceFromMicro(scaled int64) UnitPrice {
	return UnitPrice{scaled: scaled}
}

// Micro returns the exact scaled integer representation, for persistence.
func (a UnitPrice) Micro() int64 { return a.scaled }

// Add returns a+b.
func (a UnitPrice) Add(b UnitPrice) UnitPrice { return UnitPrice{scaled: a.scaled + b.scaled} }

// Float64 returns the unit price as a float64, for presentation only.
func (a UnitPrice) Float64() float64 { return float64(a.scaled) / float64(unitPriceFactor) }

// String formats the unit price with UnitPriceScale fractional digits.
func (a UnitPrice) String() string {
	return fmt.Sprintf("%.6f", a.Float64())
}

// WeightedUnitPrice derives a unit price as amount/quantity, rounded
// half-away-from-zero to UnitPriceScale digits. Used when a settlement line
// aggregates many observations and must report one representative rate.
func WeightedUnitPrice(amount Money, quantity Quantity) (UnitPrice, error) {
	if quantity.scaled == 0 {
		return ZeroUnitPrice, ErrDivideByZero
	}
	// amount.scaled is amount*1e2, quantity.scaled is qty*1e3; result should
	// be rate*1e6, i.e. (amount/qty)*1e6 = amount.scaled*1e6*1e3/(1e2*qty.scaled)
	num := new(big.Int).Mul(big.NewInt(amount.scaled), big.NewInt(unitPriceFactor*quantityFactor))
	den := new(big.Int).Mul(big.NewInt(amountFactor), big.NewInt(quantity.scaled))
	return UnitPrice{scaled: divRoundHalfAwayFromZero(num, den)}, nil
}

func roundHalfAwayFromZero(v float64) int64 {
	if v >= 0 {
		return int64(math.Floor(v + 0.5))
	}
	return -int64(math.Floor(-v + 0.5))
}

// divRoundHalfAwayFromZero computes num/den rounded half-away-from-zero,
// using exact big.Int arithmetic throughout.
func divRoundHalfAwayFromZero(num, den *big.Int) int64 {
	neg := (num.Sign() < 0) != (den.Sign() < 0)
	n := new(big.Int).Abs(num)
	d := new(big.Int).Abs(den)

	quo, rem := new(big.Int).QuoRem(n, d, new(big.Int))
	// round half up: if 2*rem >= d, bump quotient by one
	twiceRem := new(big.Int).Lsh(rem, 1)
	if twiceRem.Cmp(d) >= 0 {
		quo.Add(quo, big.NewInt(1))
	}
	result := quo.Int64()
	if neg {
		result = -result
	}
	return result
}
