package bots

import "sampletrader/exchange"

// midPrice falls back to the last trade (or seed) price when a side is empty
// so an empty book can still be quoted.
func midPrice(view exchange.BookView) int64 {
	bid, hasBid := view.BestBid()
	ask, hasAsk := view.BestAsk()

	switch {
	case hasBid && hasAsk:
		return (bid.Price + ask.Price) / 2
	case hasBid:
		return bid.Price
	case hasAsk:
		return ask.Price
	default:
		return view.LastPrice
	}
}

func absInt64(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
