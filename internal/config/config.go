// Package config loads marketpulse configuration from YAML with environment
// variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for marketpulse.
type Config struct {
	Server   Server         `yaml:"server"`
	Logging  Logging        `yaml:"logging"`
	Universe UniverseConfig `yaml:"universe"`
	Quotes   QuotesConfig   `yaml:"quotes"`
	Yahoo    Yahoo          `yaml:"yahoo"`
	Alpaca   Alpaca         `yaml:"alpaca"`
	Refresh  RefreshConfig  `yaml:"refresh"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	GRPCPort int    `yaml:"grpc_port"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// UniverseConfig controls how the instrument universe is built.
type UniverseConfig struct {
	ReferenceURL string        `yaml:"reference_url"`
	Columns      []string      `yaml:"columns"`
	Suffix       string        `yaml:"suffix"`
	Fallback     []string      `yaml:"fallback"`
	CacheTTL     time.Duration `yaml:"cache_ttl"`
	Redis        Redis         `yaml:"redis"`
}

// Redis configures the optional shared universe cache. An empty Addr
// disables it.
type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Key      string `yaml:"key"`
}

// QuotesConfig controls the quote provider chain and the breadth engine.
type QuotesConfig struct {
	Provider          string        `yaml:"provider"`
	FallbackProviders []string      `yaml:"fallback_providers"`
	LookbackSessions  int           `yaml:"lookback_sessions"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	Workers           int           `yaml:"workers"`
	RateLimitPerMin   int           `yaml:"rate_limit_per_min"`
	Retries           int           `yaml:"retries"`
	Breaker           Breaker       `yaml:"breaker"`
}

// Breaker configures the per-provider circuit breaker.
type Breaker struct {
	MaxFailures uint32        `yaml:"max_failures"`
	OpenTimeout time.Duration `yaml:"open_timeout"`
}

// Yahoo holds the Yahoo Finance chart endpoint.
type Yahoo struct {
	BaseURL string `yaml:"base_url"`
}

// Alpaca holds credentials and endpoints for the Alpaca market-data API.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	DataURL   string `yaml:"data_url"`
	Feed      string `yaml:"feed"`
}

// RefreshConfig controls the scheduled refresh loop. Zero disables the
// schedule; cycles then run only on demand.
type RefreshConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ---------------------------------------------------------------------------
// Defaults
// ---------------------------------------------------------------------------

// DefaultFallback is the hardcoded universe used when the reference list
// cannot be fetched.
var DefaultFallback = []string{"RELIANCE.NS", "TCS.NS", "HDFCBANK.NS", "INFY.NS", "ICICIBANK.NS"}

// Default returns a Config populated with working defaults for the NIFTY 50
// universe on Yahoo Finance.
func Default() *Config {
	return &Config{
		Server: Server{
			Host:     "0.0.0.0",
			Port:     8080,
			GRPCPort: 9090,
		},
		Logging: Logging{
			Level:  "info",
			Format: "json",
		},
		Universe: UniverseConfig{
			ReferenceURL: "https://en.wikipedia.org/wiki/NIFTY_50",
			Columns:      []string{"Symbol", "Ticker"},
			Suffix:       ".NS",
			Fallback:     append([]string(nil), DefaultFallback...),
			CacheTTL:     time.Hour,
			Redis:        Redis{Key: "marketpulse:universe"},
		},
		Quotes: QuotesConfig{
			Provider:         "yahoo",
			LookbackSessions: 5,
			CallTimeout:      10 * time.Second,
			Workers:          1,
			Retries:          2,
			Breaker: Breaker{
				MaxFailures: 5,
				OpenTimeout: 30 * time.Second,
			},
		},
		Yahoo: Yahoo{
			BaseURL: "https://query1.finance.yahoo.com/v8/finance/chart/",
		},
		Alpaca: Alpaca{
			Feed: "iex",
		},
		Refresh: RefreshConfig{
			Interval: time.Minute,
		},
	}
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// Load reads the YAML configuration file at the given path on top of
// Default(), applies environment variable overrides, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}
	return cfg, nil
}

// LoadOrDefault loads path when it exists and falls back to Default() plus
// environment overrides otherwise.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		cfg := Default()
		applyEnvOverrides(cfg)
		return cfg, cfg.Validate()
	}
	return Load(path)
}

// Validate checks the invariants the rest of the service relies on.
func (c *Config) Validate() error {
	var errs []error
	if len(c.Universe.Fallback) == 0 {
		errs = append(errs, errors.New("universe.fallback must not be empty"))
	}
	if len(c.Universe.Columns) == 0 {
		errs = append(errs, errors.New("universe.columns must not be empty"))
	}
	if c.Universe.CacheTTL < 0 {
		errs = append(errs, errors.New("universe.cache_ttl must not be negative"))
	}
	if c.Quotes.LookbackSessions < 2 {
		errs = append(errs, fmt.Errorf("quotes.lookback_sessions = %d, need at least 2", c.Quotes.LookbackSessions))
	}
	if c.Quotes.Workers < 1 {
		errs = append(errs, fmt.Errorf("quotes.workers = %d, need at least 1", c.Quotes.Workers))
	}
	switch strings.ToLower(c.Quotes.Provider) {
	case "yahoo", "alpaca":
	default:
		errs = append(errs, fmt.Errorf("quotes.provider %q is not one of yahoo, alpaca", c.Quotes.Provider))
	}
	for _, p := range c.Quotes.FallbackProviders {
		switch strings.ToLower(p) {
		case "yahoo", "alpaca":
		default:
			errs = append(errs, fmt.Errorf("quotes.fallback_providers: unknown provider %q", p))
		}
	}
	return errors.Join(errs...)
}

// Addr returns the HTTP listen address.
func (s Server) Addr() string { return fmt.Sprintf("%s:%d", s.Host, s.Port) }

// GRPCAddr returns the gRPC listen address.
func (s Server) GRPCAddr() string { return fmt.Sprintf("%s:%d", s.Host, s.GRPCPort) }

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PULSE_REFERENCE_URL"); v != "" {
		cfg.Universe.ReferenceURL = v
	}

	if v := os.Getenv("PULSE_QUOTE_PROVIDER"); v != "" {
		cfg.Quotes.Provider = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Universe.Redis.Addr = v
	}

	if v := os.Getenv("ALPACA_API_KEY"); v != "" {
		cfg.Alpaca.APIKey = v
	}

	if v := os.Getenv("ALPACA_API_SECRET"); v != "" {
		cfg.Alpaca.APISecret = v
	}

	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}

	// Standard Alpaca env vars (highest priority, canonical names used by SDK).
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
