package breadth

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
	"marketpulse/internal/metrics"
	"marketpulse/internal/quotes"
)

// fakeProvider serves canned histories keyed by symbol.
type fakeProvider struct {
	hist  map[string][]domain.Session
	errs  map[string]error
	delay time.Duration
	calls atomic.Int32
	peak  atomic.Int32
	inFly atomic.Int32
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) History(ctx context.Context, symbol string, sessions int) ([]domain.Session, error) {
	f.calls.Add(1)
	n := f.inFly.Add(1)
	defer f.inFly.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := f.errs[symbol]; err != nil {
		return nil, err
	}
	return f.hist[symbol], nil
}

func closes(vals ...float64) []domain.Session {
	out := make([]domain.Session, len(vals))
	for i, v := range vals {
		out[i] = domain.Session{Open: v, Close: v}
	}
	return out
}

func universe(symbols ...string) []domain.Instrument {
	out := make([]domain.Instrument, len(symbols))
	for i, s := range symbols {
		out[i] = domain.Instrument{Symbol: s}
	}
	return out
}

func symbolsOf(rows []domain.Row) []string {
	out := make([]string, len(rows))
	for i, r := range rows {
		out[i] = r.Instrument.Symbol
	}
	return out
}

func checkCounts(t *testing.T, r domain.Report) {
	t.Helper()
	assert.Equal(t, len(r.Rows), r.Advances+r.Declines+r.Neutral, "counts must sum to rows")
}

func TestScenarioAdvanceAndNeutral(t *testing.T) {
	p := &fakeProvider{hist: map[string][]domain.Session{
		"AAA": closes(100, 110),
		"BBB": closes(50, 50),
	}}
	r := NewEngine(p, Options{}).Compute(context.Background(), universe("AAA", "BBB"))

	require.Len(t, r.Rows, 2)
	assert.Equal(t, 10.0, r.Rows[0].Change)
	assert.Equal(t, domain.Advance, r.Rows[0].Class)
	assert.Equal(t, 0.0, r.Rows[1].Change)
	assert.Equal(t, domain.Neutral, r.Rows[1].Class)
	assert.Equal(t, 1, r.Advances)
	assert.Equal(t, 0, r.Declines)
	assert.Equal(t, 1, r.Neutral)
	assert.Equal(t, 1.0, r.Ratio)
	checkCounts(t, r)
}

func TestScenarioEmptyHistory(t *testing.T) {
	p := &fakeProvider{hist: map[string][]domain.Session{"CCC": nil}}
	r := NewEngine(p, Options{}).Compute(context.Background(), universe("CCC"))

	assert.Empty(t, r.Rows)
	assert.Equal(t, 0, r.Advances)
	assert.Equal(t, 0, r.Declines)
	assert.Equal(t, 0.0, r.Ratio)
	require.Len(t, r.Skipped, 1)
	assert.Equal(t, "CCC", r.Skipped[0].Symbol)
	assert.True(t, r.Empty())
}

func TestComputeMixed(t *testing.T) {
	p := &fakeProvider{
		hist: map[string][]domain.Session{
			"UP":     closes(200, 205.5),
			"DOWN":   closes(100, 97),
			"DOWN2":  closes(80, 79),
			"SINGLE": {{Open: 50, Close: 51}},
			"ZERO":   closes(0, 10),
		},
		errs: map[string]error{"ERR": errors.New("connection reset")},
	}
	r := NewEngine(p, Options{}).Compute(context.Background(),
		universe("UP", "DOWN", "ERR", "SINGLE", "ZERO", "DOWN2", "MISSING"))

	assert.Equal(t, []string{"UP", "DOWN", "SINGLE", "DOWN2"}, symbolsOf(r.Rows))
	assert.Equal(t, 2.75, r.Rows[0].Change)
	assert.Equal(t, -3.0, r.Rows[1].Change)
	assert.Equal(t, 2.0, r.Rows[2].Change, "single session uses open as reference")
	assert.Equal(t, -1.25, r.Rows[3].Change)
	assert.Equal(t, 2, r.Advances)
	assert.Equal(t, 2, r.Declines)
	assert.Equal(t, 1.0, r.Ratio)
	checkCounts(t, r)

	skipped := map[string]string{}
	for _, s := range r.Skipped {
		skipped[s.Symbol] = s.Reason
	}
	assert.Len(t, skipped, 3)
	assert.Contains(t, skipped["ERR"], "connection reset")
	assert.Contains(t, skipped["ZERO"], ErrBadReference.Error())
	assert.Contains(t, skipped["MISSING"], ErrNoHistory.Error())
}

func TestComputeUnavailableProviderError(t *testing.T) {
	p := &fakeProvider{errs: map[string]error{"X": fmt.Errorf("yahoo: %w", quotes.ErrUnavailable)}}
	outcomes := NewEngine(p, Options{}).Evaluate(context.Background(), universe("X"))
	require.Len(t, outcomes, 1)
	assert.ErrorIs(t, outcomes[0].Err, ErrNoHistory)
}

func TestComputeIdempotent(t *testing.T) {
	p := &fakeProvider{hist: map[string][]domain.Session{
		"A": closes(10, 11), "B": closes(10, 9), "C": closes(10, 10),
	}}
	e := NewEngine(p, Options{Workers: 3})
	u := universe("A", "B", "C", "D")

	first := e.Compute(context.Background(), u)
	second := e.Compute(context.Background(), u)
	assert.Equal(t, first, second)
}

func TestComputeParallelKeepsOrder(t *testing.T) {
	hist := map[string][]domain.Session{}
	var syms []string
	for i := 0; i < 40; i++ {
		s := fmt.Sprintf("S%02d", i)
		syms = append(syms, s)
		hist[s] = closes(100, 100+float64(i%3)-1)
	}
	p := &fakeProvider{hist: hist, delay: 2 * time.Millisecond}

	r := NewEngine(p, Options{Workers: 8}).Compute(context.Background(), universe(syms...))

	assert.Equal(t, syms, symbolsOf(r.Rows))
	assert.LessOrEqual(t, p.peak.Load(), int32(8))
	assert.Greater(t, p.peak.Load(), int32(1))
	checkCounts(t, r)

	seq := NewEngine(p, Options{Workers: 1}).Compute(context.Background(), universe(syms...))
	assert.Equal(t, seq, r)
}

func TestComputeCallTimeout(t *testing.T) {
	p := &fakeProvider{
		hist:  map[string][]domain.Session{"SLOW": closes(1, 2)},
		delay: time.Second,
	}
	start := time.Now()
	r := NewEngine(p, Options{CallTimeout: 20 * time.Millisecond}).Compute(context.Background(), universe("SLOW"))

	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, r.Rows)
	require.Len(t, r.Skipped, 1)
	assert.Contains(t, r.Skipped[0].Reason, "deadline exceeded")
}

// stuckProvider ignores its context entirely.
type stuckProvider struct{ release chan struct{} }

func (stuckProvider) Name() string { return "stuck" }

func (s stuckProvider) History(context.Context, string, int) ([]domain.Session, error) {
	<-s.release
	return nil, nil
}

func TestComputeAbandonsStuckProvider(t *testing.T) {
	p := stuckProvider{release: make(chan struct{})}
	defer close(p.release)

	r := NewEngine(p, Options{CallTimeout: 10 * time.Millisecond}).Compute(context.Background(), universe("A", "B"))
	assert.Len(t, r.Skipped, 2)
}

type panicProvider struct{}

func (panicProvider) Name() string { return "panic" }

func (panicProvider) History(context.Context, string, int) ([]domain.Session, error) {
	panic("malformed payload")
}

func TestComputeRecoversProviderPanic(t *testing.T) {
	r := NewEngine(panicProvider{}, Options{}).Compute(context.Background(), universe("A"))
	require.Len(t, r.Skipped, 1)
	assert.Contains(t, r.Skipped[0].Reason, "malformed payload")
}

func TestComputeCancelled(t *testing.T) {
	for _, workers := range []int{1, 4} {
		t.Run(fmt.Sprintf("workers=%d", workers), func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			p := &fakeProvider{hist: map[string][]domain.Session{"A": closes(1, 2), "B": closes(2, 1)}}
			r := NewEngine(p, Options{Workers: workers}).Compute(ctx, universe("A", "B"))

			assert.Empty(t, r.Rows)
			assert.Len(t, r.Skipped, 2)
			assert.EqualValues(t, 0, p.calls.Load())
		})
	}
}

func TestComputeCancelledMidway(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n atomic.Int32
	p := quotes.Func(func(ctx context.Context, symbol string, _ int) ([]domain.Session, error) {
		if n.Add(1) == 2 {
			cancel()
			return nil, ctx.Err()
		}
		return closes(10, 12), nil
	})
	r := NewEngine(p, Options{}).Compute(ctx, universe("A", "B", "C"))

	assert.Equal(t, []string{"A"}, symbolsOf(r.Rows))
	assert.Len(t, r.Skipped, 2)
}

func TestComputeEmptyUniverse(t *testing.T) {
	r := NewEngine(&fakeProvider{}, Options{Workers: 4}).Compute(context.Background(), nil)
	assert.True(t, r.Empty())
	assert.Equal(t, 0.0, r.Ratio)
}

func TestEngineLookback(t *testing.T) {
	var got atomic.Int32
	p := quotes.Func(func(_ context.Context, _ string, sessions int) ([]domain.Session, error) {
		got.Store(int32(sessions))
		return closes(1, 2), nil
	})

	NewEngine(p, Options{}).Compute(context.Background(), universe("A"))
	assert.EqualValues(t, DefaultLookback, got.Load())

	NewEngine(p, Options{Lookback: 1}).Compute(context.Background(), universe("A"))
	assert.EqualValues(t, MinLookback, got.Load())

	NewEngine(p, Options{Lookback: 10}).Compute(context.Background(), universe("A"))
	assert.EqualValues(t, 10, got.Load())
}

func TestEngineMetrics(t *testing.T) {
	m := metrics.NewCollector()
	p := &fakeProvider{hist: map[string][]domain.Session{"A": closes(1, 2)}}
	NewEngine(p, Options{Metrics: m}).Compute(context.Background(), universe("A", "B"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues(metrics.ResultOK)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ProviderCalls.WithLabelValues(metrics.ResultUnavailable)))
}

func TestQuoteFromHistory(t *testing.T) {
	tests := []struct {
		name    string
		hist    []domain.Session
		want    domain.Quote
		wantErr error
	}{
		{"empty", nil, domain.Quote{}, ErrNoHistory},
		{"single uses open", []domain.Session{{Open: 9, Close: 10}}, domain.Quote{Price: 10, Reference: 9}, nil},
		{"previous close", closes(8, 9, 10), domain.Quote{Price: 10, Reference: 9}, nil},
		{"zero reference", closes(0, 10), domain.Quote{}, ErrBadReference},
		{"negative reference", closes(-1, 10), domain.Quote{}, ErrBadReference},
		{"nan reference", closes(math.NaN(), 10), domain.Quote{}, ErrBadReference},
		{"inf price", closes(10, math.Inf(1)), domain.Quote{}, ErrBadReference},
		{"single zero open", []domain.Session{{Open: 0, Close: 10}}, domain.Quote{}, ErrBadReference},
		{"zero price", closes(10, 0), domain.Quote{}, ErrBadReference},
		{"negative price", closes(10, -5), domain.Quote{}, ErrBadReference},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := QuoteFromHistory(tt.hist)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPercentChangeRounding(t *testing.T) {
	tests := []struct {
		price, ref, want float64
	}{
		{110, 100, 10},
		{100.004, 100, 0},
		{99.996, 100, 0},
		{2, 3, -33.33},
		{1, 3, -66.67},
	}
	for _, tt := range tests {
		got, err := PercentChange(domain.Quote{Price: tt.price, Reference: tt.ref})
		require.NoError(t, err)
		if got != tt.want {
			t.Errorf("PercentChange(%v, %v) = %v, want %v", tt.price, tt.ref, got, tt.want)
		}
	}
}

func TestCollectClassifiesRoundedChange(t *testing.T) {
	r := Collect([]Outcome{
		{Instrument: domain.Instrument{Symbol: "TINY"}, Quote: domain.Quote{Price: 100.001, Reference: 100}},
	})
	require.Len(t, r.Rows, 1)
	assert.Equal(t, 0.0, r.Rows[0].Change)
	assert.Equal(t, domain.Neutral, r.Rows[0].Class)
	assert.Equal(t, 100.0, r.Rows[0].Quote.Price)
}

func TestRatio(t *testing.T) {
	tests := []struct {
		a, d int
		want float64
	}{
		{0, 0, 0},
		{3, 0, 3},
		{1, 1, 1},
		{2, 3, 0.67},
		{10, 3, 3.33},
		{0, 5, 0},
	}
	for _, tt := range tests {
		if got := Ratio(tt.a, tt.d); got != tt.want {
			t.Errorf("Ratio(%d, %d) = %v, want %v", tt.a, tt.d, got, tt.want)
		}
	}
}
