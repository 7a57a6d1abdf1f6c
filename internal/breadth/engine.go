// Package breadth computes market breadth for a universe: per-instrument
// change against a reference price, classification, and the aggregate
// advance/decline counts.
package breadth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"marketpulse/internal/domain"
	"marketpulse/internal/metrics"
	"marketpulse/internal/quotes"
)

// MinLookback is the smallest useful history: the current session and the
// one before it.
const MinLookback = 2

// DefaultLookback is used when Options.Lookback is unset.
const DefaultLookback = 5

// Options configures an Engine.
type Options struct {
	// Lookback is the number of trailing sessions requested per instrument.
	Lookback int
	// CallTimeout bounds each provider call. Zero means no per-call bound.
	CallTimeout time.Duration
	// Workers selects the strategy: <= 1 fetches sequentially, otherwise at
	// most Workers calls run at once.
	Workers int
	Metrics *metrics.Collector
	Logger  *slog.Logger
}

// Engine computes breadth reports. It holds no state between calls.
type Engine struct {
	provider quotes.Provider
	opts     Options
	log      *slog.Logger
}

// NewEngine creates an Engine over provider.
func NewEngine(provider quotes.Provider, opts Options) *Engine {
	switch {
	case opts.Lookback <= 0:
		opts.Lookback = DefaultLookback
	case opts.Lookback < MinLookback:
		opts.Lookback = MinLookback
	}
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	return &Engine{
		provider: provider,
		opts:     opts,
		log:      log.With("component", "breadth"),
	}
}

// Compute fetches history for every instrument and aggregates the result.
// It never fails: unavailable instruments are listed in Report.Skipped.
func (e *Engine) Compute(ctx context.Context, instruments []domain.Instrument) domain.Report {
	start := time.Now()
	r := Collect(e.Evaluate(ctx, instruments))
	e.log.Info("breadth computed",
		"instruments", len(instruments),
		"advances", r.Advances,
		"declines", r.Declines,
		"neutral", r.Neutral,
		"skipped", len(r.Skipped),
		"ratio", r.Ratio,
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return r
}

// Evaluate returns one Outcome per instrument, in input order.
func (e *Engine) Evaluate(ctx context.Context, instruments []domain.Instrument) []Outcome {
	if e.opts.Workers <= 1 {
		return e.sequential(ctx, instruments)
	}
	return e.parallel(ctx, instruments)
}

func (e *Engine) sequential(ctx context.Context, instruments []domain.Instrument) []Outcome {
	out := make([]Outcome, len(instruments))
	for i, inst := range instruments {
		if err := ctx.Err(); err != nil {
			out[i] = Outcome{Instrument: inst, Err: err}
			continue
		}
		out[i] = e.evaluate(ctx, inst)
	}
	return out
}

// parallel fans out with a semaphore; results are index-addressed so the
// output keeps input order.
func (e *Engine) parallel(ctx context.Context, instruments []domain.Instrument) []Outcome {
	out := make([]Outcome, len(instruments))
	sem := make(chan struct{}, e.opts.Workers)

	var g errgroup.Group
	for i, inst := range instruments {
		g.Go(func() error {
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				out[i] = Outcome{Instrument: inst, Err: ctx.Err()}
				return nil
			}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				out[i] = Outcome{Instrument: inst, Err: err}
				return nil
			}
			out[i] = e.evaluate(ctx, inst)
			return nil
		})
	}
	_ = g.Wait()
	return out
}

func (e *Engine) evaluate(ctx context.Context, inst domain.Instrument) Outcome {
	start := time.Now()
	hist, err := e.fetch(ctx, inst.Symbol)
	if err == nil {
		var q domain.Quote
		q, err = QuoteFromHistory(hist)
		if err == nil {
			e.opts.Metrics.ObserveCall(time.Since(start), metrics.ResultOK)
			return Outcome{Instrument: inst, Quote: q}
		}
	}

	e.opts.Metrics.ObserveCall(time.Since(start), callResult(err))
	e.log.Debug("instrument skipped", "symbol", inst.Symbol, "error", err)
	return Outcome{Instrument: inst, Err: err}
}

// fetch calls the provider under the per-call timeout. A provider that
// ignores its context is abandoned when the deadline passes.
func (e *Engine) fetch(ctx context.Context, symbol string) ([]domain.Session, error) {
	if e.opts.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.opts.CallTimeout)
		defer cancel()
	}

	type result struct {
		hist []domain.Session
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- result{err: fmt.Errorf("provider panic: %v", r)}
			}
		}()
		hist, err := e.provider.History(ctx, symbol, e.opts.Lookback)
		ch <- result{hist, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%s: %w", symbol, ctx.Err())
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, quotes.ErrUnavailable) {
				return nil, fmt.Errorf("%w: %v", ErrNoHistory, r.err)
			}
			return nil, r.err
		}
		if len(r.hist) == 0 {
			return nil, ErrNoHistory
		}
		return r.hist, nil
	}
}

func callResult(err error) string {
	switch {
	case errors.Is(err, ErrNoHistory), errors.Is(err, ErrBadReference):
		return metrics.ResultUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return metrics.ResultTimeout
	default:
		return metrics.ResultError
	}
}
