package engine

import (
	"sort"
	"time"

	"sampletrader/options"
	"sampletrader/wire"
)

const (
	// DefaultDelay is the minimum spacing between strategy invocations.
	DefaultDelay = time.Second
	// EWMAFactor weights the newest price change in the momentum signal.
	EWMAFactor = 0.2
)

// Quote summarizes what is known about one ticker.
type Quote struct {
	TopBid    float64
	HasBid    bool
	TopAsk    float64
	HasAsk    bool
	LastPrice float64
	// Signal is an exponential moving average of last-price changes.
	Signal float64
}

// Snapshot is the read-only view handed to a strategy.
type Snapshot struct {
	Quotes    map[string]Quote
	Positions map[string]int64
}

// Tickers returns the quoted tickers in sorted order.
func (s Snapshot) Tickers() []string {
	out := make([]string, 0, len(s.Quotes))
	for ticker := range s.Quotes {
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

// OptionReader is the slice of the option store a strategy may read.
type OptionReader interface {
	Get(name options.Name) (float64, bool)
}

// Strategy turns market state into orders.
type Strategy interface {
	Name() string
	Decide(snap Snapshot, opts OptionReader) []wire.Order
}

// Config controls the decision cadence.
type Config struct {
	Delay time.Duration
}
