// Package engine keeps the trader's view of the market and decides when to
// run the strategy.
//
// An Engine is not safe for concurrent use: all calls to Process must come
// from one goroutine.
package engine

import (
	"time"

	"go.uber.org/zap"

	"sampletrader/wire"
)

// Engine tracks quotes, positions and session state.
type Engine struct {
	strategy Strategy
	opts     OptionReader
	delay    time.Duration
	log      *zap.Logger

	quotes    map[string]*Quote
	positions map[string]int64

	started    bool
	lastAction time.Time
	now        func() time.Time
}

// New builds an engine. The rate limiter starts counting from construction.
func New(strategy Strategy, opts OptionReader, cfg Config, logger *zap.Logger) *Engine {
	if cfg.Delay <= 0 {
		cfg.Delay = DefaultDelay
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		strategy:  strategy,
		opts:      opts,
		delay:     cfg.Delay,
		log:       logger,
		quotes:    make(map[string]*Quote),
		positions: make(map[string]int64),
		now:       time.Now,
	}
	e.lastAction = e.now()
	return e
}

// Process applies one inbound frame (nil for a quiet tick) and returns the
// orders to send, or nil.
func (e *Engine) Process(msg *wire.Inbound) wire.Outbound {
	if msg != nil {
		e.apply(msg)
	}

	now := e.now()
	if !e.started || now.Sub(e.lastAction) <= e.delay {
		return nil
	}
	e.lastAction = now

	orders := e.strategy.Decide(e.snapshot(), e.opts)
	if len(orders) == 0 {
		return nil
	}
	e.log.Debug("strategy produced orders", zap.String("strategy", e.strategy.Name()), zap.Int("orders", len(orders)))
	return &wire.ModifyOrders{Orders: orders}
}

func (e *Engine) apply(msg *wire.Inbound) {
	if msg.TraderState != nil {
		positions := make(map[string]int64, len(msg.TraderState.Positions))
		for ticker, qty := range msg.TraderState.Positions {
			positions[ticker] = qty
		}
		e.positions = positions
	}

	for ticker, state := range msg.MarketStates {
		q := e.quote(ticker)
		updateTop(q, state)
		q.LastPrice = state.LastPrice
		q.Signal = 0
	}

	if state := msg.MarketState; state != nil {
		q, seen := e.quotes[state.Ticker]
		if !seen {
			q = e.quote(state.Ticker)
			q.LastPrice = state.LastPrice
		}
		updateTop(q, *state)
		delta := state.LastPrice - q.LastPrice
		q.Signal = q.Signal*(1-EWMAFactor) + EWMAFactor*delta
		q.LastPrice = state.LastPrice
	}

	if msg.IsStart() {
		e.markStarted("start message")
	} else if msg.EndTime != nil && !msg.EndTime.NotStarted() {
		e.markStarted("end time announced")
	}
}

func (e *Engine) markStarted(reason string) {
	if e.started {
		return
	}
	e.started = true
	e.log.Info("trading session started", zap.String("reason", reason))
}

func (e *Engine) quote(ticker string) *Quote {
	q, ok := e.quotes[ticker]
	if !ok {
		q = &Quote{}
		e.quotes[ticker] = q
	}
	return q
}

// updateTop only overwrites a side when the update carries levels for it.
func updateTop(q *Quote, state wire.MarketState) {
	if bid, ok := state.Bids.Best(true); ok {
		q.TopBid = bid
		q.HasBid = true
	}
	if ask, ok := state.Asks.Best(false); ok {
		q.TopAsk = ask
		q.HasAsk = true
	}
}

func (e *Engine) snapshot() Snapshot {
	snap := Snapshot{
		Quotes:    make(map[string]Quote, len(e.quotes)),
		Positions: make(map[string]int64, len(e.positions)),
	}
	for ticker, q := range e.quotes {
		snap.Quotes[ticker] = *q
	}
	for ticker, qty := range e.positions {
		snap.Positions[ticker] = qty
	}
	return snap
}

// Quote returns the current view of ticker.
func (e *Engine) Quote(ticker string) (Quote, bool) {
	q, ok := e.quotes[ticker]
	if !ok {
		return Quote{}, false
	}
	return *q, true
}

// Position returns the mirrored position for ticker.
func (e *Engine) Position(ticker string) int64 {
	return e.positions[ticker]
}

// Started reports whether trading is permitted.
func (e *Engine) Started() bool {
	return e.started
}
