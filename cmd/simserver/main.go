package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/cast"
	"go.uber.org/zap"

	"sampletrader/bots"
	"sampletrader/exchange"
	"sampletrader/logging"
	"sampletrader/server"
)

const (
	defaultListenAddr = ":10914"
	defaultTickers    = "ABC:10.00,XYZ:25.00"
	defaultTickSize   = "0.01"
)

func main() {
	_ = godotenv.Load()

	logger, err := logging.New(logging.Config{Level: getEnv("LOG_LEVEL", "info"), Console: true}, "simserver")
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}

	err = run(logger)
	if err != nil {
		logger.Error("simserver failed", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(logger *zap.Logger) error {
	listenAddr := getEnv("LISTEN_ADDR", defaultListenAddr)
	tickSize, err := decimal.NewFromString(getEnv("TICK_SIZE", defaultTickSize))
	if err != nil {
		return fmt.Errorf("TICK_SIZE: %w", err)
	}
	ticks, err := server.NewTicks(tickSize)
	if err != nil {
		return err
	}
	books, err := parseTickers(getEnv("TICKERS", defaultTickers), ticks, envInt(logger, "MAX_DEPTH", 100))
	if err != nil {
		return err
	}

	venue, err := exchange.NewVenue(books)
	if err != nil {
		return err
	}
	defer venue.Stop()

	srv := server.New(venue, ticks, server.Config{
		StartDelay: envDuration(logger, "START_DELAY", server.DefaultStartDelay),
		Duration:   envDuration(logger, "DURATION", server.DefaultDuration),
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	botCtx, stopBots := context.WithCancel(ctx)
	botsDone := make(chan struct{})
	botCfg := bots.DefaultSupervisorConfig()
	botCfg.NoiseBots = envInt(logger, "BOTS", botCfg.NoiseBots)
	go func() {
		defer close(botsDone)
		if botCfg.NoiseBots > 0 {
			bots.NewSupervisor(venue, botCfg, logger).Start(botCtx)
		}
	}()

	httpSrv := &http.Server{Addr: listenAddr, Handler: srv, ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", zap.String("addr", listenAddr), zap.Strings("tickers", venue.Tickers()))
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		stopBots()
		<-botsDone
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		srv.Shutdown()
	case <-srv.Done():
	}

	stopBots()
	<-botsDone
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := srv.Drain(shutdownCtx); err != nil {
		logger.Warn("connections still open at exit", zap.Error(err))
	}
	return nil
}

// parseTickers reads "SYM:price,SYM:price".
func parseTickers(list string, ticks server.Ticks, maxDepth int) ([]exchange.BookConfig, error) {
	var out []exchange.BookConfig
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		symbol, price, ok := strings.Cut(item, ":")
		if !ok || symbol == "" {
			return nil, fmt.Errorf("ticker %q: want SYMBOL:PRICE", item)
		}
		p, err := decimal.NewFromString(price)
		if err != nil || !p.IsPositive() {
			return nil, fmt.Errorf("ticker %q: bad price", item)
		}
		out = append(out, exchange.BookConfig{Ticker: symbol, InitialPrice: ticks.FromDecimal(p), MaxDepth: maxDepth})
	}
	if len(out) == 0 {
		return nil, errors.New("no tickers configured")
	}
	return out, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envInt(logger *zap.Logger, key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := cast.ToIntE(value)
	if err != nil {
		logger.Warn("invalid env value, using default", zap.String("key", key), zap.String("value", value), zap.Int("default", defaultValue))
		return defaultValue
	}
	return parsed
}

func envDuration(logger *zap.Logger, key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := cast.ToDurationE(value)
	if err != nil {
		logger.Warn("invalid env value, using default", zap.String("key", key), zap.String("value", value), zap.Duration("default", defaultValue))
		return defaultValue
	}
	return parsed
}
