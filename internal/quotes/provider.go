// Package quotes implements the trailing-history providers the breadth engine
// consumes: Yahoo Finance chart data, Alpaca daily bars, and composable
// wrappers for fallback, circuit breaking and rate limiting.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"marketpulse/internal/config"
	"marketpulse/internal/domain"
	"marketpulse/internal/util"
)

// ErrUnavailable is returned when a provider has no usable history for a
// symbol (unknown symbol, empty series, open breaker).
var ErrUnavailable = errors.New("quote history unavailable")

// Provider returns up to sessions trailing session records for symbol,
// ordered oldest to newest.
type Provider interface {
	Name() string
	History(ctx context.Context, symbol string, sessions int) ([]domain.Session, error)
}

// Func adapts a function to the Provider interface.
type Func func(ctx context.Context, symbol string, sessions int) ([]domain.Session, error)

// History calls f.
func (f Func) History(ctx context.Context, symbol string, sessions int) ([]domain.Session, error) {
	return f(ctx, symbol, sessions)
}

// Name implements Provider.
func (Func) Name() string { return "func" }

// Limited waits on a rate limiter before every call to the wrapped provider.
type Limited struct {
	Provider
	limiter *util.RateLimiter
}

// WithRateLimit wraps p so calls are spaced by rl. A nil rl returns p as is.
func WithRateLimit(p Provider, rl *util.RateLimiter) Provider {
	if rl == nil {
		return p
	}
	return &Limited{Provider: p, limiter: rl}
}

// History implements Provider.
func (l *Limited) History(ctx context.Context, symbol string, sessions int) ([]domain.Session, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}
	return l.Provider.History(ctx, symbol, sessions)
}

// lastN trims a chronological series to its final n records.
func lastN(s []domain.Session, n int) []domain.Session {
	if n > 0 && len(s) > n {
		return s[len(s)-n:]
	}
	return s
}

// New builds the configured provider chain: the primary provider followed by
// any fallbacks, each behind its own circuit breaker, all behind one rate
// limiter.
func New(cfg *config.Config, client *http.Client) (Provider, error) {
	names := append([]string{cfg.Quotes.Provider}, cfg.Quotes.FallbackProviders...)
	log := slog.Default().With("component", "quotes")

	var chain []Provider
	seen := make(map[string]bool)
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		var p Provider
		switch name {
		case "yahoo":
			p = NewYahooProvider(cfg.Yahoo.BaseURL, client, cfg.Quotes.Retries)
		case "alpaca":
			if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
				log.Warn("alpaca credentials missing, provider disabled")
				continue
			}
			p = NewAlpacaProvider(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret, cfg.Alpaca.DataURL, cfg.Alpaca.Feed)
		default:
			return nil, fmt.Errorf("unknown quote provider %q", name)
		}
		chain = append(chain, NewBreakerProvider(p, cfg.Quotes.Breaker.MaxFailures, cfg.Quotes.Breaker.OpenTimeout))
	}
	if len(chain) == 0 {
		return nil, errors.New("no usable quote provider configured")
	}

	var p Provider = chain[0]
	if len(chain) > 1 {
		p = NewMultiProvider(chain...)
	}
	log.Info("quote providers ready", "chain", p.Name(), "rate_per_min", cfg.Quotes.RateLimitPerMin)
	return WithRateLimit(p, util.NewRateLimiter(cfg.Quotes.RateLimitPerMin)), nil
}

// defaultClient is used when a provider is built without an http.Client.
var defaultClient = &http.Client{Timeout: 15 * time.Second}
