// Package config loads the trader's startup settings.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"sampletrader/logging"
	"sampletrader/options"
)

const (
	StrategyMomentum     = "momentum"
	StrategyMarketMaking = "market_making"
)

type ServerConfig struct {
	URL              string        `yaml:"url" validate:"required,url"`
	ReadTimeout      time.Duration `yaml:"read_timeout" validate:"gt=0"`
	HandshakeTimeout time.Duration `yaml:"handshake_timeout" validate:"gt=0"`
}

type DecisionConfig struct {
	Delay    time.Duration `yaml:"delay" validate:"gt=0"`
	Strategy string        `yaml:"strategy" validate:"oneof=momentum market_making"`
}

type AdminConfig struct {
	Listen string `yaml:"listen" validate:"omitempty,hostname_port"`
}

// Config is the full trader configuration.
type Config struct {
	TraderID string             `yaml:"trader_id" validate:"required,excludesall=/?#"`
	Server   ServerConfig       `yaml:"server"`
	Decision DecisionConfig     `yaml:"decision"`
	Options  map[string]float64 `yaml:"options"`
	Admin    AdminConfig        `yaml:"admin"`
	Log      logging.Config     `yaml:"log"`
}

// Default mirrors the simulator's local defaults.
func Default() Config {
	return Config{
		TraderID: "trader0",
		Server: ServerConfig{
			URL:              "ws://localhost:10914",
			ReadTimeout:      500 * time.Millisecond,
			HandshakeTimeout: 10 * time.Second,
		},
		Decision: DecisionConfig{
			Delay:    time.Second,
			Strategy: StrategyMomentum,
		},
		Log: logging.Config{Level: "info", Console: true},
	}
}

// Load reads the YAML file at path on top of the defaults, then applies
// environment overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("unmarshal config yaml: %w", err)
		}
	}

	// .env is optional
	_ = godotenv.Load()
	overrideWithEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func overrideWithEnv(cfg *Config) {
	if v := os.Getenv("TRADER_ID"); v != "" {
		cfg.TraderID = v
	}
	if v := os.Getenv("TRADER_SERVER_URL"); v != "" {
		cfg.Server.URL = v
	}
	if v := os.Getenv("TRADER_ADMIN_LISTEN"); v != "" {
		cfg.Admin.Listen = v
	}
	if v := os.Getenv("TRADER_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
}

var validate = validator.New()

// Validate checks field constraints and that every option override names a
// declared tunable.
func (c Config) Validate() error {
	var errs error
	if err := validate.Struct(c); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok {
			for _, fe := range verrs {
				errs = multierr.Append(errs, fmt.Errorf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = multierr.Append(errs, err)
		}
	}
	declared := options.Defaults()
	for name := range c.Options {
		if _, ok := declared[options.Name(name)]; !ok {
			errs = multierr.Append(errs, fmt.Errorf("options.%s: %w", name, options.ErrInvalidOption))
		}
	}
	return errs
}

// OptionDefaults merges the configured overrides into the declared defaults.
func (c Config) OptionDefaults() map[options.Name]float64 {
	values := options.Defaults()
	for name, v := range c.Options {
		if _, ok := values[options.Name(name)]; ok {
			values[options.Name(name)] = v
		}
	}
	return values
}

// Endpoint is the websocket URL for this trader.
func (c Config) Endpoint() string {
	return fmt.Sprintf("%s/%s", strings.TrimRight(c.Server.URL, "/"), c.TraderID)
}
