package strategy

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"sampletrader/engine"
	"sampletrader/options"
	"sampletrader/wire"
)

// TickSize is the price improvement used for passive quotes.
var TickSize = decimal.New(1, -2)

// MarketMaker quotes one tick inside the spread and unwinds any position that
// grows past the configured limit.
type MarketMaker struct{}

func NewMarketMaker() MarketMaker { return MarketMaker{} }

func (MarketMaker) Name() string { return "market_making" }

func (MarketMaker) Decide(snap engine.Snapshot, opts engine.OptionReader) []wire.Order {
	limit, _ := opts.Get(options.PositionLimit)
	size, _ := opts.Get(options.OrderQuantity)
	quantity := int64(size)

	var orders []wire.Order
	// flat tickers are quoted as well as held ones; a market maker starts flat
	for _, ticker := range tickers(snap) {
		q, quoted := snap.Quotes[ticker]
		position := snap.Positions[ticker]

		if float64(abs(position)) > limit {
			excess := abs(position) - int64(math.Floor(limit))
			if !quoted || q.LastPrice <= 0 || excess <= 0 {
				continue
			}
			mult := dumpMultiplier
			if position < 0 {
				mult = chaseMultiplier
			}
			orders = append(orders, wire.Order{
				Ticker:   ticker,
				Buy:      position < 0,
				Quantity: excess,
				Price:    q.LastPrice * mult,
			})
			continue
		}

		if !quoted || quantity <= 0 {
			continue
		}
		if q.HasBid {
			orders = append(orders, wire.Order{
				Ticker:   ticker,
				Buy:      true,
				Quantity: quantity,
				Price:    decimal.NewFromFloat(q.TopBid).Add(TickSize).InexactFloat64(),
			})
		}
		if q.HasAsk {
			orders = append(orders, wire.Order{
				Ticker:   ticker,
				Buy:      false,
				Quantity: quantity,
				Price:    decimal.NewFromFloat(q.TopAsk).Sub(TickSize).InexactFloat64(),
			})
		}
	}
	return orders
}

// tickers is the sorted union of quoted and held tickers.
func tickers(snap engine.Snapshot) []string {
	seen := make(map[string]struct{}, len(snap.Quotes)+len(snap.Positions))
	for t := range snap.Quotes {
		seen[t] = struct{}{}
	}
	for t := range snap.Positions {
		seen[t] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
