// Package universe builds the ordered instrument universe for a refresh
// cycle. A Source scrapes a reference list and falls back to a fixed list on
// any failure; a Cache keeps the result for a bounded time.
package universe

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"marketpulse/internal/domain"
	"marketpulse/internal/tables"
)

// Source labels recorded on a domain.Universe.
const (
	SourceReference = "reference"
	SourceFallback  = "fallback"
)

var (
	// ErrNoSymbolColumn is reported when no table exposes a symbol column.
	ErrNoSymbolColumn = errors.New("no table with a symbol column")
	// ErrNoSymbols is reported when the matching column holds no values.
	ErrNoSymbols = errors.New("symbol column is empty")
)

// Fetcher produces a universe. Implementations never fail: degradation is
// reported on the returned value.
type Fetcher interface {
	FetchUniverse(ctx context.Context) domain.Universe
}

// Options configures a Source.
type Options struct {
	URL      string   // reference document
	Columns  []string // accepted symbol column names, in priority order per table
	Suffix   string   // exchange suffix appended to raw symbols, e.g. ".NS"
	Fallback []string // exchange-qualified symbols used on failure
}

// Source fetches the reference list through a tables.Provider.
type Source struct {
	provider tables.Provider
	opts     Options
	now      func() time.Time
	log      *slog.Logger
}

// NewSource creates a Source. The fallback list must be non-empty; it is
// normalised (trimmed, deduplicated) once here.
func NewSource(provider tables.Provider, opts Options) (*Source, error) {
	opts.Fallback = dedupe(opts.Fallback, "")
	if len(opts.Fallback) == 0 {
		return nil, errors.New("universe: fallback list must not be empty")
	}
	if len(opts.Columns) == 0 {
		opts.Columns = []string{"Symbol", "Ticker"}
	}
	return &Source{
		provider: provider,
		opts:     opts,
		now:      time.Now,
		log:      slog.Default().With("component", "universe"),
	}, nil
}

// WithClock overrides the time source used to stamp FetchedAt.
func (s *Source) WithClock(now func() time.Time) *Source {
	s.now = now
	return s
}

// WithLogger overrides the logger.
func (s *Source) WithLogger(log *slog.Logger) *Source {
	s.log = log
	return s
}

// FetchUniverse returns the scraped universe, or the fallback universe with
// Degraded set when the reference list cannot be used for any reason.
func (s *Source) FetchUniverse(ctx context.Context) domain.Universe {
	symbols, err := s.scrape(ctx)
	if err != nil {
		s.log.Warn("reference list unavailable, using fallback universe",
			"url", s.opts.URL, "fallback", len(s.opts.Fallback), "error", err)
		return domain.Universe{
			Instruments: instruments(s.opts.Fallback),
			Source:      SourceFallback,
			Degraded:    true,
			Reason:      err.Error(),
			FetchedAt:   s.now(),
		}
	}

	s.log.Info("loaded reference universe", "url", s.opts.URL, "symbols", len(symbols))
	return domain.Universe{
		Instruments: instruments(symbols),
		Source:      SourceReference,
		FetchedAt:   s.now(),
	}
}

// Fallback returns the fallback universe without touching the network.
func (s *Source) Fallback() domain.Universe {
	return domain.Universe{
		Instruments: instruments(s.opts.Fallback),
		Source:      SourceFallback,
		Degraded:    true,
		Reason:      "fallback requested",
		FetchedAt:   s.now(),
	}
}

func (s *Source) scrape(ctx context.Context) (syms []string, err error) {
	if s.provider == nil || s.opts.URL == "" {
		return nil, errors.New("no reference list configured")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	defer func() {
		// A misbehaving reader must not take the caller down.
		if r := recover(); r != nil {
			syms, err = nil, fmt.Errorf("reading reference list: panic: %v", r)
		}
	}()

	tbls, err := s.provider.Tables(ctx, s.opts.URL)
	if err != nil {
		return nil, fmt.Errorf("reading reference list: %w", err)
	}

	raw, err := SymbolColumn(tbls, s.opts.Columns)
	if err != nil {
		return nil, err
	}
	syms = dedupe(raw, s.opts.Suffix)
	if len(syms) == 0 {
		return nil, ErrNoSymbols
	}
	return syms, nil
}

// SymbolColumn returns the raw values of the first table (in document order)
// that has one of the given columns.
func SymbolColumn(tbls []tables.Table, columns []string) ([]string, error) {
	for _, t := range tbls {
		for _, name := range columns {
			if idx := t.Column(name); idx >= 0 {
				return t.Values(idx), nil
			}
		}
	}
	return nil, fmt.Errorf("%w (looked for %s in %d tables)", ErrNoSymbolColumn, strings.Join(columns, "/"), len(tbls))
}

// Qualify appends suffix to a raw symbol unless it is already present.
func Qualify(raw, suffix string) string {
	sym := strings.TrimSpace(raw)
	if sym == "" || suffix == "" {
		return sym
	}
	if strings.HasSuffix(strings.ToUpper(sym), strings.ToUpper(suffix)) {
		return sym
	}
	return sym + suffix
}

// dedupe qualifies each symbol and drops blanks and repeats, keeping the
// first occurrence.
func dedupe(raw []string, suffix string) []string {
	seen := make(map[string]struct{}, len(raw))
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		sym := Qualify(r, suffix)
		if sym == "" {
			continue
		}
		if _, ok := seen[sym]; ok {
			continue
		}
		seen[sym] = struct{}{}
		out = append(out, sym)
	}
	return out
}

func instruments(symbols []string) []domain.Instrument {
	out := make([]domain.Instrument, len(symbols))
	for i, s := range symbols {
		out[i] = domain.Instrument{Symbol: s}
	}
	return out
}
