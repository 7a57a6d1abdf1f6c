package quotes

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"

	"marketpulse/internal/domain"
	"marketpulse/internal/util"
)

// AlpacaProvider reads daily bars from the Alpaca market-data API. It serves
// US-listed symbols; exchange suffixes are not translated.
type AlpacaProvider struct {
	client *marketdata.Client
	feed   string
	now    func() time.Time
	log    *slog.Logger
}

// NewAlpacaProvider creates a provider with the given credentials. dataURL
// overrides the default market-data endpoint when non-empty.
func NewAlpacaProvider(apiKey, apiSecret, dataURL, feed string) *AlpacaProvider {
	opts := marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	}
	if dataURL != "" {
		opts.BaseURL = dataURL
	}
	if feed == "" {
		feed = "iex"
	}
	return &AlpacaProvider{
		client: marketdata.NewClient(opts),
		feed:   feed,
		now:    time.Now,
		log:    slog.Default().With("provider", "alpaca"),
	}
}

// Name implements Provider.
func (a *AlpacaProvider) Name() string { return "alpaca" }

// History implements Provider.
func (a *AlpacaProvider) History(ctx context.Context, symbol string, sessions int) ([]domain.Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	end := a.now()
	start := util.SessionWindow(end, sessions, 7)

	type result struct {
		bars []marketdata.Bar
		err  error
	}
	// The SDK call takes no context; run it aside so cancellation is honoured.
	ch := make(chan result, 1)
	go func() {
		bars, err := a.client.GetBars(strings.ToUpper(symbol), marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
			Feed:      marketdata.Feed(a.feed),
		})
		ch <- result{bars, err}
	}()

	var r result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case r = <-ch:
	}
	if r.err != nil {
		return nil, fmt.Errorf("alpaca bars %s: %w", symbol, r.err)
	}
	if len(r.bars) == 0 {
		return nil, fmt.Errorf("alpaca bars %s: %w", symbol, ErrUnavailable)
	}

	out := make([]domain.Session, len(r.bars))
	for i, b := range r.bars {
		out[i] = domain.Session{Date: b.Timestamp, Open: b.Open, Close: b.Close}
	}
	return lastN(out, sessions), nil
}
