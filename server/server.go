// Package server hosts simulated trading sessions over websocket. Each trader
// connects to /<trader_id>, registers, and trades against the venue's books
// once the session starts.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"sampletrader/exchange"
	"sampletrader/wire"
)

const (
	DefaultStartDelay = 5 * time.Second
	DefaultDuration   = 5 * time.Minute
	defaultSendBuffer = 256
)

// Config controls session timing.
type Config struct {
	// StartDelay is the wait between the first registration and START.
	StartDelay time.Duration
	// Duration is the session length after START; zero runs until Shutdown.
	Duration   time.Duration
	SendBuffer int
}

// Server runs a single trading session.
type Server struct {
	cfg      Config
	venue    *exchange.Venue
	ticks    Ticks
	upgrader websocket.Upgrader
	log      *zap.Logger
	now      func() time.Time

	writers sync.WaitGroup

	mu          sync.Mutex
	traders     map[string]*traderConn
	startTimer  *time.Timer
	finishTimer *time.Timer
	started     bool
	finished    bool
	endTime     time.Time
	done        chan struct{}
}

// New builds a server on top of venue and starts forwarding its streams.
func New(venue *exchange.Venue, ticks Ticks, cfg Config, logger *zap.Logger) *Server {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		cfg:      cfg,
		venue:    venue,
		ticks:    ticks,
		upgrader: websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }},
		log:      logger,
		now:      time.Now,
		traders:  make(map[string]*traderConn),
		done:     make(chan struct{}),
	}

	go s.consumeBookUpdates(venue.Views().Subscribe(1024))
	go s.consumeFills(venue.Fills().Subscribe(1024))
	return s
}

// Done is closed when the session has ended.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Started reports whether START has been sent.
func (s *Server) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// ServeHTTP upgrades /<trader_id> and serves the trader until it disconnects.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	trader := strings.Trim(r.URL.Path, "/")
	if trader == "" || strings.Contains(trader, "/") {
		http.NotFound(w, r)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("upgrade failed", zap.String("trader", trader), zap.Error(err))
		return
	}
	tc := newTraderConn(trader, conn, s.cfg.SendBuffer)
	s.writers.Add(1)
	go func() {
		defer s.writers.Done()
		tc.writeLoop(s.log)
	}()
	defer s.disconnect(tc)

	log := s.log.With(zap.String("trader", trader))
	log.Info("trader connected", zap.String("remote", r.RemoteAddr))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Debug("read ended", zap.Error(err))
			}
			return
		}
		s.handleFrame(tc, data, log)
	}
}

func (s *Server) handleFrame(tc *traderConn, data []byte, log *zap.Logger) {
	msg, err := wire.DecodeOutbound(data)
	if err != nil {
		log.Warn("bad frame", zap.Error(err))
		return
	}
	switch m := msg.(type) {
	case wire.Register:
		s.register(tc, log)
	case wire.ModifyOrders:
		s.modifyOrders(tc.trader, m.Orders, log)
	}
}

func (s *Server) register(tc *traderConn, log *zap.Logger) {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		tc.close(websocket.CloseNormalClosure, "session over")
		return
	}
	if prev, ok := s.traders[tc.trader]; ok && prev != tc {
		prev.close(websocket.CloseGoingAway, "replaced by a new connection")
	}
	s.traders[tc.trader] = tc
	if !s.started && s.startTimer == nil {
		s.startTimer = time.AfterFunc(s.cfg.StartDelay, s.start)
		log.Info("session scheduled", zap.Duration("start_in", s.cfg.StartDelay))
	}
	endTime := s.endTime
	s.mu.Unlock()

	snapshots, err := s.venue.Snapshots()
	if err != nil {
		log.Error("snapshot failed", zap.Error(err))
		return
	}
	states := make(map[string]wire.MarketState, len(snapshots))
	for ticker, view := range snapshots {
		states[ticker] = s.marketState(view)
	}
	s.sendTo(tc, &wire.Inbound{
		MessageType:  wire.TypeAckRegister,
		MarketStates: states,
		TraderState:  s.traderState(tc.trader),
		EndTime:      wire.NewEndTime(endTime),
	})
	log.Info("trader registered")
}

func (s *Server) start() {
	s.mu.Lock()
	if s.started || s.finished {
		s.mu.Unlock()
		return
	}
	s.started = true
	var endTime time.Time
	if s.cfg.Duration > 0 {
		endTime = s.now().Add(s.cfg.Duration).UTC()
		s.finishTimer = time.AfterFunc(s.cfg.Duration, s.finish)
	}
	s.endTime = endTime
	conns := s.connsLocked()
	s.mu.Unlock()

	s.log.Info("session started", zap.Time("end_time", endTime), zap.Int("traders", len(conns)))
	s.broadcast(conns, &wire.Inbound{MessageType: wire.TypeStart, EndTime: wire.NewEndTime(endTime)})
}

func (s *Server) finish() {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return
	}
	s.finished = true
	if s.startTimer != nil {
		s.startTimer.Stop()
	}
	if s.finishTimer != nil {
		s.finishTimer.Stop()
	}
	conns := s.connsLocked()
	s.traders = make(map[string]*traderConn)
	s.mu.Unlock()

	s.log.Info("session over", zap.Int("traders", len(conns)))
	for _, tc := range conns {
		tc.close(websocket.CloseNormalClosure, "session over")
	}
	close(s.done)
}

// Shutdown ends the session early.
func (s *Server) Shutdown() {
	s.finish()
}

// Drain waits for every connection writer to flush and hang up.
func (s *Server) Drain(ctx context.Context) error {
	flushed := make(chan struct{})
	go func() {
		s.writers.Wait()
		close(flushed)
	}()
	select {
	case <-flushed:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Server) disconnect(tc *traderConn) {
	tc.close(websocket.CloseNormalClosure, "")

	s.mu.Lock()
	current := s.traders[tc.trader] == tc
	if current {
		delete(s.traders, tc.trader)
	}
	s.mu.Unlock()
	if !current {
		return
	}

	n, err := s.venue.CancelTrader(tc.trader)
	if err != nil && !errors.Is(err, exchange.ErrBookStopped) {
		s.log.Warn("cancel on disconnect failed", zap.String("trader", tc.trader), zap.Error(err))
	}
	s.log.Info("trader disconnected", zap.String("trader", tc.trader), zap.Int("cancelled", n))
}

// modifyOrders replaces the trader's resting orders in every ticker named by
// the batch. Invalid orders are skipped individually.
func (s *Server) modifyOrders(trader string, orders []wire.Order, log *zap.Logger) {
	s.mu.Lock()
	_, registered := s.traders[trader]
	live := s.started && !s.finished
	s.mu.Unlock()
	if !registered || !live {
		log.Debug("orders ignored", zap.Bool("registered", registered), zap.Bool("started", live))
		return
	}

	batches := make(map[string][]exchange.Order)
	var tickers []string
	for _, o := range orders {
		if err := wire.ValidateOrder(o); err != nil {
			log.Warn("order rejected", zap.String("ticker", o.Ticker), zap.Error(err))
			continue
		}
		if _, ok := s.venue.Book(o.Ticker); !ok {
			log.Warn("order rejected", zap.String("ticker", o.Ticker), zap.String("reason", "unknown ticker"))
			continue
		}
		price := s.ticks.FromPrice(o.Price)
		if price <= 0 {
			log.Warn("order rejected", zap.String("ticker", o.Ticker), zap.Float64("price", o.Price), zap.String("reason", "below one tick"))
			continue
		}
		side := exchange.Sell
		if o.Buy {
			side = exchange.Buy
		}
		if _, seen := batches[o.Ticker]; !seen {
			tickers = append(tickers, o.Ticker)
		}
		batches[o.Ticker] = append(batches[o.Ticker], exchange.Order{
			ID:       uuid.NewString(),
			Trader:   trader,
			Ticker:   o.Ticker,
			Side:     side,
			Type:     exchange.Limit,
			Price:    price,
			Quantity: o.Quantity,
		})
	}

	for _, ticker := range tickers {
		book, _ := s.venue.Book(ticker)
		if err := book.ReplaceOrders(trader, batches[ticker]); err != nil {
			log.Warn("replace failed", zap.String("ticker", ticker), zap.Error(err))
			continue
		}
		log.Debug("orders replaced", zap.String("ticker", ticker), zap.Int("orders", len(batches[ticker])))
	}
}

func (s *Server) consumeBookUpdates(sub *exchange.Subscription[exchange.BookView]) {
	for view := range sub.C {
		state := s.marketState(view)
		s.broadcast(s.conns(), &wire.Inbound{MessageType: wire.TypeMarketUpdate, MarketState: &state})
	}
}

func (s *Server) consumeFills(sub *exchange.Subscription[exchange.Fill]) {
	for fill := range sub.C {
		s.pushTraderState(fill.Buyer)
		if fill.Seller != fill.Buyer {
			s.pushTraderState(fill.Seller)
		}
	}
}

func (s *Server) pushTraderState(trader string) {
	s.mu.Lock()
	tc, ok := s.traders[trader]
	s.mu.Unlock()
	if !ok {
		return
	}
	s.sendTo(tc, &wire.Inbound{MessageType: wire.TypeTraderUpdate, TraderState: s.traderState(trader)})
}

func (s *Server) marketState(view exchange.BookView) wire.MarketState {
	return wire.MarketState{
		Ticker:    view.Ticker,
		Bids:      s.levels(view.Bids),
		Asks:      s.levels(view.Asks),
		LastPrice: s.ticks.Price(view.LastPrice),
	}
}

func (s *Server) levels(levels []exchange.Level) wire.Levels {
	out := make(wire.Levels, len(levels))
	for _, l := range levels {
		out[s.ticks.Key(l.Price)] = float64(l.Quantity)
	}
	return out
}

func (s *Server) traderState(trader string) *wire.TraderState {
	acct := s.venue.Account(trader)
	return &wire.TraderState{Positions: acct.Positions, Cash: s.ticks.Price(acct.Cash)}
}

func (s *Server) sendTo(tc *traderConn, msg *wire.Inbound) {
	data, err := wire.EncodeInbound(msg)
	if err != nil {
		s.log.Error("encode failed", zap.String("type", msg.MessageType), zap.Error(err))
		return
	}
	tc.enqueue(data)
}

func (s *Server) broadcast(conns []*traderConn, msg *wire.Inbound) {
	if len(conns) == 0 {
		return
	}
	data, err := wire.EncodeInbound(msg)
	if err != nil {
		s.log.Error("encode failed", zap.String("type", msg.MessageType), zap.Error(err))
		return
	}
	for _, tc := range conns {
		tc.enqueue(data)
	}
}

func (s *Server) conns() []*traderConn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connsLocked()
}

func (s *Server) connsLocked() []*traderConn {
	out := make([]*traderConn, 0, len(s.traders))
	for _, tc := range s.traders {
		out = append(out, tc)
	}
	return out
}
