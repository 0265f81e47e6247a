// Package strategy holds the decision policies run by the engine.
package strategy

import (
	"sampletrader/engine"
	"sampletrader/wire"
)

const (
	// EnterThreshold is the signal magnitude that triggers a momentum order.
	EnterThreshold = 0.05
	// MomentumQuantity is the fixed size of every momentum order.
	MomentumQuantity = 100

	chaseMultiplier = 1.5
	dumpMultiplier  = 0.5
)

// Momentum chases price moves: a rising signal buys well above the last
// price, a falling one sells well below it.
type Momentum struct{}

func NewMomentum() Momentum { return Momentum{} }

func (Momentum) Name() string { return "momentum" }

func (Momentum) Decide(snap engine.Snapshot, _ engine.OptionReader) []wire.Order {
	var orders []wire.Order
	for _, ticker := range snap.Tickers() {
		q := snap.Quotes[ticker]
		switch {
		case q.Signal > EnterThreshold:
			orders = append(orders, wire.Order{
				Ticker:   ticker,
				Buy:      true,
				Quantity: MomentumQuantity,
				Price:    q.LastPrice * chaseMultiplier,
			})
		case q.Signal < -EnterThreshold:
			orders = append(orders, wire.Order{
				Ticker:   ticker,
				Buy:      false,
				Quantity: MomentumQuantity,
				Price:    q.LastPrice * dumpMultiplier,
			})
		}
	}
	return orders
}
