package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"sampletrader/admin"
	"sampletrader/client"
	"sampletrader/config"
	"sampletrader/engine"
	"sampletrader/logging"
	"sampletrader/options"
	"sampletrader/strategy"
)

func main() {
	configPath := flag.String("config", "", "path to YAML config (defaults when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}
	logger, err := logging.New(cfg.Log, "trader")
	if err != nil {
		log.Fatalf("logger init failed: %v", err)
	}

	err = run(cfg, logger)
	if err != nil {
		logger.Error("trader stopped", zap.Error(err))
	}
	_ = logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}

func run(cfg config.Config, logger *zap.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store := options.NewStore(cfg.OptionDefaults())
	logger.Info("options are", zap.Any("options", store.Snapshot()))

	policy, err := pickStrategy(cfg.Decision.Strategy)
	if err != nil {
		return err
	}

	if cfg.Admin.Listen != "" {
		go func() {
			if err := admin.Serve(ctx, cfg.Admin.Listen, admin.NewRouter(store, logger), logger); err != nil {
				logger.Warn("admin server stopped", zap.Error(err))
			}
		}()
	}

	// not joined: blocks on stdin and exits with the process
	go func() {
		if err := options.NewConsole(store, logger).Run(ctx, os.Stdin); err != nil {
			logger.Warn("operator input stopped", zap.Error(err))
		}
	}()

	endpoint := cfg.Endpoint()
	conn, err := client.Dial(ctx, endpoint, cfg.Server.HandshakeTimeout)
	if err != nil {
		return err
	}
	sessionLog := logger.With(zap.String("trader", cfg.TraderID))
	sessionLog.Info("connected", zap.String("endpoint", endpoint), zap.String("strategy", policy.Name()))

	decisions := engine.New(policy, store, engine.Config{Delay: cfg.Decision.Delay}, sessionLog)
	session := client.NewSession(conn, decisions, cfg.Server.ReadTimeout, sessionLog)
	return session.Run(ctx)
}

func pickStrategy(name string) (engine.Strategy, error) {
	switch name {
	case config.StrategyMomentum, "":
		return strategy.NewMomentum(), nil
	case config.StrategyMarketMaking:
		return strategy.NewMarketMaker(), nil
	default:
		return nil, fmt.Errorf("unknown strategy %q", name)
	}
}
