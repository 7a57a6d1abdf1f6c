package quotes

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"marketpulse/internal/domain"
	"marketpulse/internal/util"
)

const (
	DefaultYahooURL = "https://query1.finance.yahoo.com/v8/finance/chart/"
	yahooUserAgent  = "Mozilla/5.0 (compatible; marketpulse/1.0)"
)

// YahooProvider reads daily sessions from the Yahoo Finance chart API.
type YahooProvider struct {
	baseURL string
	client  *http.Client
	retries int
	now     func() time.Time
	log     *slog.Logger
}

// NewYahooProvider creates a provider against baseURL (the chart endpoint
// prefix; the symbol is appended). retries counts extra attempts after the
// first on transient failures.
func NewYahooProvider(baseURL string, client *http.Client, retries int) *YahooProvider {
	if baseURL == "" {
		baseURL = DefaultYahooURL
	}
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	if client == nil {
		client = defaultClient
	}
	if retries < 0 {
		retries = 0
	}
	return &YahooProvider{
		baseURL: baseURL,
		client:  client,
		retries: retries,
		now:     time.Now,
		log:     slog.Default().With("provider", "yahoo"),
	}
}

// Name implements Provider.
func (y *YahooProvider) Name() string { return "yahoo" }

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResult struct {
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open  []*float64 `json:"open"`
			Close []*float64 `json:"close"`
		} `json:"quote"`
	} `json:"indicators"`
}

// History implements Provider.
func (y *YahooProvider) History(ctx context.Context, symbol string, sessions int) ([]domain.Session, error) {
	end := y.now()
	// Weekday sessions plus a week of slack for exchange holidays.
	start := util.SessionWindow(end, sessions, 7)

	q := url.Values{}
	q.Set("interval", "1d")
	q.Set("period1", strconv.FormatInt(start.Unix(), 10))
	q.Set("period2", strconv.FormatInt(end.Unix(), 10))
	reqURL := y.baseURL + url.PathEscape(symbol) + "?" + q.Encode()

	body, err := util.Retry(ctx, y.retries+1, 500*time.Millisecond, func(ctx context.Context) ([]byte, error) {
		return y.get(ctx, reqURL)
	})
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}

	hist, err := ParseChart(body)
	if err != nil {
		return nil, fmt.Errorf("yahoo chart %s: %w", symbol, err)
	}
	return lastN(hist, sessions), nil
}

func (y *YahooProvider) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, util.Permanent(err)
	}
	req.Header.Set("User-Agent", yahooUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := y.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, util.Permanent(ctx.Err())
		}
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("reading body: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		// Unknown symbols come back as 404 with a chart.error payload.
		return nil, util.Permanent(fmt.Errorf("%w: status 404", ErrUnavailable))
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		y.log.Debug("transient yahoo error", "status", resp.StatusCode)
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	default:
		return nil, util.Permanent(fmt.Errorf("status %d: %s", resp.StatusCode, truncate(body, 200)))
	}
}

// ParseChart decodes a chart API payload into chronological sessions.
// Sessions with a missing open or close (Yahoo emits nulls for halted days)
// are dropped.
func ParseChart(body []byte) ([]domain.Session, error) {
	var cr chartResponse
	if err := json.Unmarshal(body, &cr); err != nil {
		return nil, fmt.Errorf("decoding chart: %w", err)
	}
	if cr.Chart.Error != nil {
		return nil, fmt.Errorf("%w: %s: %s", ErrUnavailable, cr.Chart.Error.Code, cr.Chart.Error.Description)
	}
	if len(cr.Chart.Result) == 0 || len(cr.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, ErrUnavailable
	}

	res := cr.Chart.Result[0]
	q := res.Indicators.Quote[0]
	out := make([]domain.Session, 0, len(res.Timestamp))
	for i, ts := range res.Timestamp {
		if i >= len(q.Close) || i >= len(q.Open) || q.Close[i] == nil || q.Open[i] == nil {
			continue
		}
		out = append(out, domain.Session{
			Date:  time.Unix(ts, 0).UTC(),
			Open:  *q.Open[i],
			Close: *q.Close[i],
		})
	}
	if len(out) == 0 {
		return nil, ErrUnavailable
	}
	return out, nil
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}
