package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"marketpulse/internal/domain"
)

// BreakerProvider stops calling a provider after a run of consecutive
// failures, and probes it again once the open timeout has passed.
// ErrUnavailable and context errors do not count as failures: they describe
// the symbol or the caller, not the provider's health.
type BreakerProvider struct {
	inner Provider
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerProvider wraps p. maxFailures == 0 defaults to 5.
func NewBreakerProvider(p Provider, maxFailures uint32, openTimeout time.Duration) *BreakerProvider {
	if maxFailures == 0 {
		maxFailures = 5
	}
	log := slog.Default().With("component", "breaker", "provider", p.Name())
	st := gobreaker.Settings{
		Name:    p.Name(),
		Timeout: openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, ErrUnavailable) ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, context.DeadlineExceeded)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state change", "from", from.String(), "to", to.String())
		},
	}
	return &BreakerProvider{inner: p, cb: gobreaker.NewCircuitBreaker(st)}
}

// Name implements Provider.
func (b *BreakerProvider) Name() string { return b.inner.Name() }

// State reports the breaker state ("closed", "half-open", "open").
func (b *BreakerProvider) State() string { return b.cb.State().String() }

// History implements Provider.
func (b *BreakerProvider) History(ctx context.Context, symbol string, sessions int) ([]domain.Session, error) {
	v, err := b.cb.Execute(func() (interface{}, error) {
		return b.inner.History(ctx, symbol, sessions)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%s: %w: %v", b.Name(), ErrUnavailable, err)
	}
	if err != nil {
		return nil, err
	}
	return v.([]domain.Session), nil
}
