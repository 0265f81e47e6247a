package bots

import (
	"context"
	"math/rand"
	"time"

	"sampletrader/exchange"
)

// NoiseBot places short-lived limit orders on a random side around the mid
// price and now and then crosses the spread with a market order, which is
// what moves the last price.
type NoiseBot struct {
	Interval    time.Duration
	Lifetime    time.Duration
	MaxQuantity int64
	RangeTicks  int64
	// MarketRatio makes one in MarketRatio orders a market order; zero never.
	MarketRatio int
	rand        *rand.Rand
}

func NewNoiseBot(seed int64) *NoiseBot {
	return &NoiseBot{
		Interval:    200 * time.Millisecond,
		Lifetime:    2 * time.Second,
		MaxQuantity: 20,
		RangeTicks:  5,
		MarketRatio: 4,
		rand:        rand.New(rand.NewSource(seed)),
	}
}

func (b *NoiseBot) Start(ctx context.Context, client EngineClient) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if id, resting := b.step(ctx, client); resting {
				go b.cancelAfter(ctx, client, id)
			}
		}
	}
}

// step submits one order and reports whether it may be resting.
func (b *NoiseBot) step(ctx context.Context, client EngineClient) (string, bool) {
	view, err := client.Snapshot(ctx)
	if err != nil {
		return "", false
	}
	mid := midPrice(view)
	if mid <= 0 {
		return "", false
	}

	side := exchange.Side(b.rand.Intn(2))
	qty := b.rand.Int63n(b.MaxQuantity) + 1

	if b.MarketRatio > 0 && b.rand.Intn(b.MarketRatio) == 0 {
		id := client.NextID("mkt")
		order := exchange.Order{ID: id, Side: side, Type: exchange.Market, Quantity: qty}
		_ = client.SubmitOrder(ctx, order)
		return id, false
	}

	delta := b.rand.Int63n(b.RangeTicks + 1)
	price := mid - delta
	prefix := "bid"
	if side == exchange.Sell {
		price = mid + delta
		prefix = "ask"
	}
	price = max(price, 1)

	id := client.NextID(prefix)
	order := exchange.Order{ID: id, Side: side, Type: exchange.Limit, Price: price, Quantity: qty}
	if err := client.SubmitOrder(ctx, order); err != nil {
		return "", false
	}
	return id, true
}

func (b *NoiseBot) cancelAfter(ctx context.Context, client EngineClient, orderID string) {
	timer := time.NewTimer(b.Lifetime)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return
	case <-timer.C:
		// already filled or trimmed is fine
		_ = client.CancelOrder(context.Background(), orderID)
	}
}
