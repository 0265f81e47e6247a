package bots

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"sampletrader/exchange"
)

// SupervisorConfig sizes the bot swarm. Every ticker gets the same mix.
type SupervisorConfig struct {
	Trader        string
	OrderInterval time.Duration
	NoiseBots     int
	SpreadBots    int
	Seed          int64
	PnLInterval   time.Duration
}

func DefaultSupervisorConfig() SupervisorConfig {
	return SupervisorConfig{
		Trader:        "bots",
		OrderInterval: 20 * time.Millisecond,
		NoiseBots:     4,
		SpreadBots:    1,
		Seed:          time.Now().UnixNano(),
		PnLInterval:   5 * time.Second,
	}
}

type assignment struct {
	bot    Bot
	client EngineClient
}

// Supervisor orchestrates bots across every book of a venue and logs the
// swarm's PnL from the venue ledger.
type Supervisor struct {
	cfg      SupervisorConfig
	venue    *exchange.Venue
	runs     []assignment
	throttle *time.Ticker
	log      *zap.Logger
}

func NewSupervisor(venue *exchange.Venue, cfg SupervisorConfig, logger *zap.Logger) *Supervisor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.OrderInterval <= 0 {
		cfg.OrderInterval = DefaultSupervisorConfig().OrderInterval
	}
	if cfg.PnLInterval <= 0 {
		cfg.PnLInterval = DefaultSupervisorConfig().PnLInterval
	}
	throttle := time.NewTicker(cfg.OrderInterval)

	s := &Supervisor{cfg: cfg, venue: venue, throttle: throttle, log: logger.Named("bots")}
	seed := cfg.Seed
	for _, ticker := range venue.Tickers() {
		book, _ := venue.Book(ticker)
		client := NewThrottledClient(book, cfg.Trader, throttle.C)
		for i := 0; i < cfg.NoiseBots; i++ {
			seed++
			s.runs = append(s.runs, assignment{bot: NewNoiseBot(seed), client: client})
		}
		for i := 0; i < cfg.SpreadBots; i++ {
			s.runs = append(s.runs, assignment{bot: NewSpreadCaptureBot(), client: client})
		}
	}
	return s
}

// Start runs all bots until ctx is cancelled, then pulls their orders.
func (s *Supervisor) Start(ctx context.Context) {
	defer s.throttle.Stop()
	logTicker := time.NewTicker(s.cfg.PnLInterval)
	defer logTicker.Stop()

	var wg sync.WaitGroup
	for _, run := range s.runs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			run.bot.Start(ctx, run.client)
		}()
	}
	s.log.Info("bots running", zap.Int("bots", len(s.runs)), zap.Strings("tickers", s.venue.Tickers()))

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			if _, err := s.venue.CancelTrader(s.cfg.Trader); err != nil {
				s.log.Debug("final cancel failed", zap.Error(err))
			}
			s.logPnL("bots stopped")
			return
		case <-logTicker.C:
			s.logPnL("bot pnl")
		}
	}
}

func (s *Supervisor) logPnL(msg string) {
	acct := s.venue.Account(s.cfg.Trader)
	s.log.Info(msg, zap.Any("positions", acct.Positions), zap.Int64("cash_ticks", acct.Cash))
}
