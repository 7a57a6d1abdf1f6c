package breadth

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"marketpulse/internal/domain"
)

var (
	// ErrNoHistory marks an instrument whose provider returned no sessions.
	ErrNoHistory = errors.New("no price history")
	// ErrBadReference marks a reference price that cannot be divided by.
	ErrBadReference = errors.New("invalid reference price")
)

// Outcome is the per-instrument result of a quote lookup: either a Quote or
// the reason it is unavailable.
type Outcome struct {
	Instrument domain.Instrument
	Quote      domain.Quote
	Err        error
}

// OK reports whether the outcome carries a usable quote.
func (o Outcome) OK() bool { return o.Err == nil }

// QuoteFromHistory derives the current and reference prices from a
// chronological session history. The reference is the previous session's
// close, or the last session's open when only one session is available.
// Both prices must be finite and positive.
func QuoteFromHistory(hist []domain.Session) (domain.Quote, error) {
	if len(hist) == 0 {
		return domain.Quote{}, ErrNoHistory
	}
	last := hist[len(hist)-1]
	q := domain.Quote{Price: last.Close, Reference: last.Open}
	if len(hist) >= 2 {
		q.Reference = hist[len(hist)-2].Close
	}
	if !domain.Finite(q.Price) || q.Price <= 0 {
		return domain.Quote{}, fmt.Errorf("%w: price %v", ErrBadReference, q.Price)
	}
	if !domain.Finite(q.Reference) || q.Reference <= 0 {
		return domain.Quote{}, fmt.Errorf("%w: %v", ErrBadReference, q.Reference)
	}
	return q, nil
}

// PercentChange returns (price-reference)/reference*100, rounded to two
// decimals.
func PercentChange(q domain.Quote) (float64, error) {
	if !domain.Finite(q.Reference) || q.Reference <= 0 || !domain.Finite(q.Price) {
		return 0, ErrBadReference
	}
	change := (q.Price - q.Reference) / q.Reference * 100
	if !domain.Finite(change) {
		return 0, ErrBadReference
	}
	return round2(change), nil
}

// Collect filters outcomes into a report. Failed outcomes become skips;
// successful ones become rows in input order, classified on the rounded
// change.
func Collect(outcomes []Outcome) domain.Report {
	r := domain.Report{Rows: make([]domain.Row, 0, len(outcomes))}
	for _, o := range outcomes {
		if o.Err != nil {
			r.Skipped = append(r.Skipped, domain.Skip{Symbol: o.Instrument.Symbol, Reason: o.Err.Error()})
			continue
		}
		change, err := PercentChange(o.Quote)
		if err != nil {
			r.Skipped = append(r.Skipped, domain.Skip{Symbol: o.Instrument.Symbol, Reason: err.Error()})
			continue
		}

		row := domain.Row{
			Instrument: o.Instrument,
			Quote: domain.Quote{
				Price:     round2(o.Quote.Price),
				Reference: round2(o.Quote.Reference),
			},
			Change: change,
			Class:  domain.Classify(change),
		}
		switch row.Class {
		case domain.Advance:
			r.Advances++
		case domain.Decline:
			r.Declines++
		default:
			r.Neutral++
		}
		r.Rows = append(r.Rows, row)
	}
	r.Ratio = Ratio(r.Advances, r.Declines)
	return r
}

// Ratio is advances/declines rounded to two decimals. With no declines it
// saturates to the advance count.
func Ratio(advances, declines int) float64 {
	if declines == 0 {
		return float64(advances)
	}
	return round2(float64(advances) / float64(declines))
}

// round2 rounds half away from zero at two decimals. v must be finite.
func round2(v float64) float64 {
	return decimal.NewFromFloat(v).Round(2).InexactFloat64()
}
