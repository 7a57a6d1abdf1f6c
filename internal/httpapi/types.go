// Package httpapi provides the HTTP REST API for the breadth dashboard,
// serving the same data as the terminal client in JSON format.
package httpapi

import (
	"marketpulse/internal/domain"
	"marketpulse/pkg/marketpulse"
)

// ToSnapshotJSON converts a domain snapshot to its wire form.
func ToSnapshotJSON(s domain.Snapshot) marketpulse.Snapshot {
	out := marketpulse.Snapshot{
		Advances:       s.Report.Advances,
		Declines:       s.Report.Declines,
		Neutral:        s.Report.Neutral,
		Total:          s.Report.Total(),
		ADRatio:        s.Report.Ratio,
		Rows:           make([]marketpulse.Row, len(s.Report.Rows)),
		UniverseSource: s.Universe.Source,
		UniverseSize:   len(s.Universe.Instruments),
		Degraded:       s.Degraded(),
		Warnings:       s.Warnings,
		StartedAt:      s.StartedAt,
		CompletedAt:    s.CompletedAt,
	}
	for i, r := range s.Report.Rows {
		out.Rows[i] = marketpulse.Row{
			Symbol:    r.Instrument.Symbol,
			Price:     r.Quote.Price,
			Reference: r.Quote.Reference,
			ChangePct: r.Change,
			Class:     string(r.Class),
		}
	}
	for _, sk := range s.Report.Skipped {
		out.Skipped = append(out.Skipped, marketpulse.Skip{Symbol: sk.Symbol, Reason: sk.Reason})
	}
	return out
}

// ToUniverseJSON converts a domain universe to its wire form.
func ToUniverseJSON(u domain.Universe) marketpulse.Universe {
	return marketpulse.Universe{
		Symbols:   u.Symbols(),
		Count:     len(u.Instruments),
		Source:    u.Source,
		Degraded:  u.Degraded,
		Reason:    u.Reason,
		FetchedAt: u.FetchedAt,
	}
}
