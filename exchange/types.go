package exchange

import "time"

// Side represents the direction of an order.
type Side int

const (
	// Buy indicates a bid order.
	Buy Side = iota
	// Sell indicates an ask order.
	Sell
)

// OrderType represents the execution style for an order.
type OrderType int

const (
	// Limit orders rest on the book until filled or canceled.
	Limit OrderType = iota
	// Market orders consume available liquidity immediately.
	Market
)

// Order describes a request to trade a ticker on behalf of a trader.
type Order struct {
	ID        string
	Trader    string
	Ticker    string
	Side      Side
	Type      OrderType
	Price     int64 // expressed in ticks
	Quantity  int64
	Remaining int64
	Timestamp time.Time
	Sequence  int64
}

// Level is the aggregated resting quantity at one price.
type Level struct {
	Price    int64
	Quantity int64
}

// BookView summarizes the depth of one ticker. Bids are sorted best first
// (descending), asks best first (ascending).
type BookView struct {
	Ticker    string
	Bids      []Level
	Asks      []Level
	LastPrice int64 // zero until the first trade unless seeded
}

// BestBid returns the highest bid level.
func (v BookView) BestBid() (Level, bool) {
	if len(v.Bids) == 0 {
		return Level{}, false
	}
	return v.Bids[0], true
}

// BestAsk returns the lowest ask level.
func (v BookView) BestAsk() (Level, bool) {
	if len(v.Asks) == 0 {
		return Level{}, false
	}
	return v.Asks[0], true
}

// Fill captures a completed trade between two traders.
type Fill struct {
	Ticker      string
	BuyOrderID  string
	SellOrderID string
	Buyer       string
	Seller      string
	Price       int64
	Quantity    int64
	Timestamp   time.Time
}

// BookConfig controls book parameters.
type BookConfig struct {
	Ticker string
	// InitialPrice seeds LastPrice before the first trade, in ticks.
	InitialPrice int64
	// MaxDepth caps resting orders per side; zero means unlimited.
	MaxDepth int
}
