package server

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Ticks converts between wire prices and integer book ticks.
type Ticks struct {
	size   decimal.Decimal
	places int32
}

func NewTicks(size decimal.Decimal) (Ticks, error) {
	if !size.IsPositive() {
		return Ticks{}, fmt.Errorf("tick size must be positive, got %s", size)
	}
	places := int32(0)
	if exp := size.Exponent(); exp < 0 {
		places = -exp
	}
	return Ticks{size: size, places: places}, nil
}

// FromPrice rounds price to the nearest tick.
func (t Ticks) FromPrice(price float64) int64 {
	return decimal.NewFromFloat(price).Div(t.size).Round(0).IntPart()
}

// FromDecimal rounds price to the nearest tick.
func (t Ticks) FromDecimal(price decimal.Decimal) int64 {
	return price.Div(t.size).Round(0).IntPart()
}

func (t Ticks) Price(ticks int64) float64 {
	return decimal.NewFromInt(ticks).Mul(t.size).InexactFloat64()
}

// Key renders a tick count as the fixed-point price string used for book
// levels on the wire.
func (t Ticks) Key(ticks int64) string {
	return decimal.NewFromInt(ticks).Mul(t.size).StringFixed(t.places)
}
