// Package bots provides liquidity for simulated sessions. Bots trade through
// the venue directly, under their own trader id, alongside the websocket
// traders.
package bots

import (
	"context"

	"sampletrader/exchange"
)

// Bot represents a trading agent that can be run under a supervisor.
type Bot interface {
	Start(ctx context.Context, client EngineClient)
}

// EngineClient abstracts the minimal surface bots need from one book.
type EngineClient interface {
	SubmitOrder(ctx context.Context, order exchange.Order) error
	CancelOrder(ctx context.Context, orderID string) error
	Snapshot(ctx context.Context) (exchange.BookView, error)
	Ticker() string
	Trader() string
	NextID(prefix string) string
}
