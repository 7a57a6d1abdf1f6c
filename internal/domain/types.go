// Package domain defines the core types shared across marketpulse: instruments,
// provider sessions, quotes, breadth reports, and refresh snapshots.
package domain

import (
	"math"
	"time"
)

// Instrument is a tradable identifier in the tracked universe. Symbols are
// exchange-qualified (e.g. "RELIANCE.NS").
type Instrument struct {
	Symbol string `json:"symbol"`
}

// Session is a single trading-session record returned by a quote provider.
type Session struct {
	Date  time.Time `json:"date"`
	Open  float64   `json:"open"`
	Close float64   `json:"close"`
}

// Quote is a per-instrument price snapshot for one refresh cycle.
type Quote struct {
	Price     float64 `json:"price"`     // most recent close
	Reference float64 `json:"reference"` // previous close, or current open
}

// Classification buckets an instrument by the sign of its change.
type Classification string

const (
	Advance Classification = "advance"
	Decline Classification = "decline"
	Neutral Classification = "neutral"
)

// Classify maps a signed percentage change to its bucket. NaN is treated as
// Neutral so the function stays total; callers never pass non-finite values.
func Classify(change float64) Classification {
	switch {
	case change > 0:
		return Advance
	case change < 0:
		return Decline
	default:
		return Neutral
	}
}

// Row is one instrument's line in a breadth report.
type Row struct {
	Instrument Instrument     `json:"instrument"`
	Quote      Quote          `json:"quote"`
	Change     float64        `json:"change_pct"`
	Class      Classification `json:"class"`
}

// Skip records an instrument excluded from a report because its quote was
// unavailable.
type Skip struct {
	Symbol string `json:"symbol"`
	Reason string `json:"reason"`
}

// Report is the aggregate breadth for one refresh cycle. Rows preserve the
// order of the universe. Advances+Declines+Neutral always equals len(Rows).
type Report struct {
	Rows     []Row   `json:"rows"`
	Advances int     `json:"advances"`
	Declines int     `json:"declines"`
	Neutral  int     `json:"neutral"`
	Ratio    float64 `json:"ad_ratio"`
	Skipped  []Skip  `json:"skipped,omitempty"`
}

// Total returns the number of instruments with a usable quote.
func (r Report) Total() int { return len(r.Rows) }

// Empty reports whether no instrument produced a row.
func (r Report) Empty() bool { return len(r.Rows) == 0 }

// Universe is the ordered instrument set for a refresh cycle together with
// where it came from.
type Universe struct {
	Instruments []Instrument `json:"instruments"`
	Source      string       `json:"source"`
	Degraded    bool         `json:"degraded"`
	Reason      string       `json:"reason,omitempty"`
	FetchedAt   time.Time    `json:"fetched_at"`
}

// Symbols returns the instrument identifiers in order.
func (u Universe) Symbols() []string {
	out := make([]string, len(u.Instruments))
	for i, in := range u.Instruments {
		out[i] = in.Symbol
	}
	return out
}

// Snapshot is the result of one full refresh cycle as handed to the
// presentation layer.
type Snapshot struct {
	Universe    Universe  `json:"universe"`
	Report      Report    `json:"report"`
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	Warnings    []string  `json:"warnings,omitempty"`
}

// Degraded reports whether the snapshot should be presented with a warning:
// fallback universe, empty report, or any recorded warning.
func (s Snapshot) Degraded() bool {
	return s.Universe.Degraded || s.Report.Empty() || len(s.Warnings) > 0
}

// Finite reports whether v is neither NaN nor an infinity.
func Finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
