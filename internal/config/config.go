// Package config reads run settings from the environment and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"exit-strategy-lab/internal/domain"
	"exit-strategy-lab/internal/ingestion"
	"exit-strategy-lab/internal/lookup"
)

// ErrInvalidConfig is returned for malformed or out-of-range settings.
var ErrInvalidConfig = errors.New("invalid config")

// DefaultEnvFile is loaded when present and no file is named.
const DefaultEnvFile = ".env"

// Config holds every TB_* setting.
type Config struct {
	Exec        domain.ExecConfig
	StrictExact bool
	InputTZ     domain.TimezoneTag
	Lookback    time.Duration
	HorizonBars int
	Workers     int
	TopN        int

	CacheDir string
	CacheTTL time.Duration

	GeckoURL string
	Networks []string

	PostgresDSN   string
	ClickHouseDSN string

	LogLevel    string
	MetricsAddr string
}

// Default returns the settings used when no variable is set.
func Default() *Config {
	return &Config{
		Exec:        domain.DefaultExecConfig,
		InputTZ:     domain.TimezoneUTC,
		Lookback:    ingestion.Lookback48h,
		HorizonBars: 2000,
		Workers:     runtime.NumCPU(),
		TopN:        3,
		CacheDir:    "cache/ohlcv_1m",
		CacheTTL:    10 * time.Minute,
		GeckoURL:    "https://api.geckoterminal.com/api/v2",
		Networks:    []string{"solana", "bsc", "eth", "base"},
		LogLevel:    "info",
	}
}

// Load reads envFile (DefaultEnvFile when empty) into the process
// environment without overriding variables already set, then parses it.
// A missing default file is fine; a missing named file is an error.
func Load(envFile string) (*Config, error) {
	if envFile == "" {
		if _, err := os.Stat(DefaultEnvFile); err == nil {
			if err := godotenv.Load(DefaultEnvFile); err != nil {
				return nil, fmt.Errorf("load %s: %w", DefaultEnvFile, err)
			}
		}
	} else if err := godotenv.Load(envFile); err != nil {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}
	return FromEnv(os.Getenv)
}

// FromEnv parses settings through getenv.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := Default()
	p := parser{getenv: getenv}

	p.fraction("TB_SLIP", &cfg.Exec.Slippage)
	p.fraction("TB_BUY_FEE", &cfg.Exec.BuyFee)
	p.fraction("TB_SELL_FEE", &cfg.Exec.SellFee)
	p.with("TB_SLIP_MODE", func(s string) (err error) {
		cfg.Exec.SlippageMode, err = domain.ParseSlippageMode(s)
		return err
	})
	p.with("TB_SLIP_SIDE", func(s string) (err error) {
		cfg.Exec.SlippageSide, err = domain.ParseSlippageSide(s)
		return err
	})
	p.with("TB_STRICT_EXACT", func(s string) error {
		switch s {
		case "0":
			cfg.StrictExact = false
		case "1":
			cfg.StrictExact = true
		default:
			return fmt.Errorf("want 0 or 1, got %q", s)
		}
		return nil
	})
	p.with("TB_INPUT_TZ", func(s string) (err error) {
		cfg.InputTZ, err = domain.ParseTimezone(s)
		return err
	})
	p.with("TB_LOOKBACK", func(s string) (err error) {
		cfg.Lookback, err = ingestion.ParseLookback(s)
		return err
	})
	p.positive("TB_HORIZON_BARS", &cfg.HorizonBars)
	p.positive("TB_WORKERS", &cfg.Workers)
	p.positive("TB_TOP_N", &cfg.TopN)
	p.str("TB_CACHE_DIR", &cfg.CacheDir)
	p.with("TB_CACHE_TTL", func(s string) (err error) {
		cfg.CacheTTL, err = time.ParseDuration(s)
		if err == nil && cfg.CacheTTL < 0 {
			err = fmt.Errorf("negative duration %s", s)
		}
		return err
	})
	p.str("TB_GECKO_URL", &cfg.GeckoURL)
	p.with("TB_NETWORKS", func(s string) error {
		var nets []string
		for _, n := range strings.Split(s, ",") {
			if n = strings.ToLower(strings.TrimSpace(n)); n != "" {
				nets = append(nets, n)
			}
		}
		if len(nets) == 0 {
			return errors.New("no networks")
		}
		cfg.Networks = nets
		return nil
	})
	p.str("TB_POSTGRES_DSN", &cfg.PostgresDSN)
	p.str("TB_CLICKHOUSE_DSN", &cfg.ClickHouseDSN)
	p.with("TB_LOG_LEVEL", func(s string) error {
		switch strings.ToLower(s) {
		case "debug", "info", "warn", "error":
			cfg.LogLevel = strings.ToLower(s)
			return nil
		}
		return fmt.Errorf("unknown level %q", s)
	})
	p.str("TB_METRICS_ADDR", &cfg.MetricsAddr)

	if p.err != nil {
		return nil, p.err
	}
	if err := cfg.Exec.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// Policy returns the entry resolution policy selected by TB_STRICT_EXACT.
func (c *Config) Policy() lookup.Policy {
	if c.StrictExact {
		return lookup.StrictPolicy()
	}
	return lookup.DefaultPolicy()
}

// parser stops at the first bad variable.
type parser struct {
	getenv func(string) string
	err    error
}

func (p *parser) with(name string, set func(string) error) {
	if p.err != nil {
		return
	}
	v := strings.TrimSpace(p.getenv(name))
	if v == "" {
		return
	}
	if err := set(v); err != nil {
		p.err = fmt.Errorf("%w: %s: %w", ErrInvalidConfig, name, err)
	}
}

func (p *parser) str(name string, dst *string) {
	p.with(name, func(s string) error {
		*dst = s
		return nil
	})
}

func (p *parser) fraction(name string, dst *float64) {
	p.with(name, func(s string) error {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return err
		}
		if !(v >= 0 && v < 1) {
			return fmt.Errorf("%v outside [0, 1)", v)
		}
		*dst = v
		return nil
	})
}

func (p *parser) positive(name string, dst *int) {
	p.with(name, func(s string) error {
		v, err := strconv.Atoi(s)
		if err != nil {
			return err
		}
		if v <= 0 {
			return fmt.Errorf("%d must be positive", v)
		}
		*dst = v
		return nil
	})
}
