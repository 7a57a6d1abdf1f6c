package dashboard

import (
	"sort"
	"strings"

	"marketpulse/internal/domain"
)

// SortMode defines the row order for the dashboard.
const (
	SortUniverse   = 0 // universe order (default)
	SortChangeDesc = 1 // biggest gainers first
	SortChangeAsc  = 2 // biggest losers first
	SortSymbol     = 3 // alphabetical
	SortModeCount  = 4
)

// SortModeLabel returns a short label for the given sort mode.
func SortModeLabel(mode int) string {
	switch mode {
	case SortUniverse:
		return "INDEX"
	case SortChangeDesc:
		return "GAIN"
	case SortChangeAsc:
		return "LOSS"
	case SortSymbol:
		return "SYM"
	default:
		return "?"
	}
}

// ParseSortMode maps a query value ("index", "gain", "loss", "symbol") to a
// sort mode, falling back to SortUniverse.
func ParseSortMode(s string) int {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "gain", "change":
		return SortChangeDesc
	case "loss":
		return SortChangeAsc
	case "symbol", "sym":
		return SortSymbol
	default:
		return SortUniverse
	}
}

// SortRows returns a sorted copy of rows. Ties keep universe order.
func SortRows(rows []domain.Row, mode int) []domain.Row {
	out := append([]domain.Row(nil), rows...)
	switch mode {
	case SortChangeDesc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Change > out[j].Change })
	case SortChangeAsc:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Change < out[j].Change })
	case SortSymbol:
		sort.SliceStable(out, func(i, j int) bool { return out[i].Instrument.Symbol < out[j].Instrument.Symbol })
	}
	return out
}

// FilterClass keeps rows of the given classification. An empty class keeps
// everything.
func FilterClass(rows []domain.Row, class domain.Classification) []domain.Row {
	if class == "" {
		return rows
	}
	out := make([]domain.Row, 0, len(rows))
	for _, r := range rows {
		if r.Class == class {
			out = append(out, r)
		}
	}
	return out
}
