package bots

import (
	"context"
	"time"

	"sampletrader/exchange"
)

// SpreadCaptureBot keeps a bid/ask pair one tick inside the mid and re-prices
// when the mid drifts or the pair goes stale.
type SpreadCaptureBot struct {
	Interval       time.Duration
	Lifetime       time.Duration
	ThresholdTicks int64
	Quantity       int64
	now            func() time.Time
}

type pairedOrders struct {
	buyID     string
	sellID    string
	anchorMid int64
	placedAt  time.Time
}

func NewSpreadCaptureBot() *SpreadCaptureBot {
	return &SpreadCaptureBot{
		Interval:       300 * time.Millisecond,
		Lifetime:       3 * time.Second,
		ThresholdTicks: 3,
		Quantity:       10,
		now:            time.Now,
	}
}

func (b *SpreadCaptureBot) Start(ctx context.Context, client EngineClient) {
	ticker := time.NewTicker(b.Interval)
	defer ticker.Stop()

	var pair *pairedOrders
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			view, err := client.Snapshot(ctx)
			if err != nil {
				continue
			}
			pair = b.refreshPair(ctx, client, view, pair)
		}
	}
}

func (b *SpreadCaptureBot) refreshPair(ctx context.Context, client EngineClient, view exchange.BookView, pair *pairedOrders) *pairedOrders {
	mid := midPrice(view)
	if mid <= 1 {
		return b.cancelPair(ctx, client, pair)
	}

	if pair != nil {
		stale := b.now().Sub(pair.placedAt) > b.Lifetime
		if stale || absInt64(mid-pair.anchorMid) >= b.ThresholdTicks {
			pair = b.cancelPair(ctx, client, pair)
		}
	}
	if pair != nil {
		return pair
	}

	buyPrice := mid - 1
	sellPrice := mid + 1
	if bid, ok := view.BestBid(); ok && bid.Price > buyPrice {
		buyPrice = bid.Price
	}
	if ask, ok := view.BestAsk(); ok && ask.Price < sellPrice {
		sellPrice = ask.Price
	}
	if sellPrice <= buyPrice {
		sellPrice = buyPrice + 1
	}

	buyID := client.NextID("spread-bid")
	sellID := client.NextID("spread-ask")

	buyOrder := exchange.Order{ID: buyID, Side: exchange.Buy, Type: exchange.Limit, Price: buyPrice, Quantity: b.Quantity}
	sellOrder := exchange.Order{ID: sellID, Side: exchange.Sell, Type: exchange.Limit, Price: sellPrice, Quantity: b.Quantity}

	if err := client.SubmitOrder(ctx, buyOrder); err != nil {
		return nil
	}
	if err := client.SubmitOrder(ctx, sellOrder); err != nil {
		_ = client.CancelOrder(ctx, buyID)
		return nil
	}

	return &pairedOrders{buyID: buyID, sellID: sellID, anchorMid: mid, placedAt: b.now()}
}

func (b *SpreadCaptureBot) cancelPair(ctx context.Context, client EngineClient, pair *pairedOrders) *pairedOrders {
	if pair == nil {
		return nil
	}
	_ = client.CancelOrder(ctx, pair.buyID)
	_ = client.CancelOrder(ctx, pair.sellID)
	return nil
}
