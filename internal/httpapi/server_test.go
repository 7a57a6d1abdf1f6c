package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketpulse/internal/domain"
	"marketpulse/internal/gather"
	"marketpulse/internal/metrics"
	"marketpulse/pkg/marketpulse"
)

type fixedUniverse struct{ u domain.Universe }

func (f fixedUniverse) FetchUniverse(context.Context) domain.Universe { return f.u }

type countingEngine struct {
	calls atomic.Int32
}

func (e *countingEngine) Compute(context.Context, []domain.Instrument) domain.Report {
	e.calls.Add(1)
	return domain.Report{
		Rows: []domain.Row{
			{Instrument: domain.Instrument{Symbol: "TCS.NS"}, Quote: domain.Quote{Price: 110, Reference: 100}, Change: 10, Class: domain.Advance},
			{Instrument: domain.Instrument{Symbol: "INFY.NS"}, Quote: domain.Quote{Price: 50, Reference: 50}, Change: 0, Class: domain.Neutral},
		},
		Advances: 1, Neutral: 1, Ratio: 1,
		Skipped: []domain.Skip{{Symbol: "HDFCBANK.NS", Reason: "no price history"}},
	}
}

func newTestServer(t *testing.T) (*httptest.Server, *gather.Refresher, *countingEngine) {
	t.Helper()
	u := domain.Universe{
		Instruments: []domain.Instrument{{Symbol: "TCS.NS"}, {Symbol: "INFY.NS"}, {Symbol: "HDFCBANK.NS"}},
		Source:      "reference",
	}
	eng := &countingEngine{}
	ref := gather.NewRefresher(fixedUniverse{u}, eng, 0, nil)
	srv := httptest.NewServer(NewBreadthServer(ref, metrics.NewCollector(), nil).Handler())
	t.Cleanup(srv.Close)
	return srv, ref, eng
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil && resp.StatusCode == http.StatusOK {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestBreadthRunsFirstCycleLazily(t *testing.T) {
	srv, _, eng := newTestServer(t)

	var snap marketpulse.Snapshot
	resp := getJSON(t, srv.URL+"/api/breadth", &snap)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, 1, snap.Advances)
	assert.Equal(t, 1, snap.Neutral)
	assert.Equal(t, 2, snap.Total)
	assert.Equal(t, 1.0, snap.ADRatio)
	assert.Equal(t, 3, snap.UniverseSize)
	assert.False(t, snap.Degraded)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "TCS.NS", snap.Rows[0].Symbol)
	assert.Equal(t, 10.0, snap.Rows[0].ChangePct)
	require.Len(t, snap.Skipped, 1)

	// Second call reuses the stored snapshot.
	getJSON(t, srv.URL+"/api/breadth", &snap)
	assert.EqualValues(t, 1, eng.calls.Load())
}

func TestBreadthConcurrentFirstRequests(t *testing.T) {
	srv, _, eng := newTestServer(t)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			resp, err := http.Get(srv.URL + "/api/breadth")
			if err == nil {
				resp.Body.Close()
			}
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, eng.calls.Load())
}

func TestBreadthSortAndFilter(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var snap marketpulse.Snapshot
	getJSON(t, srv.URL+"/api/breadth?sort=symbol", &snap)
	require.Len(t, snap.Rows, 2)
	assert.Equal(t, "INFY.NS", snap.Rows[0].Symbol)

	getJSON(t, srv.URL+"/api/breadth?class=advance", &snap)
	require.Len(t, snap.Rows, 1)
	assert.Equal(t, "TCS.NS", snap.Rows[0].Symbol)
	assert.Equal(t, 2, snap.Total, "counts cover the full report")

	resp := getJSON(t, srv.URL+"/api/breadth?class=sideways", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRefresh(t *testing.T) {
	srv, _, eng := newTestServer(t)

	for i := 0; i < 2; i++ {
		resp, err := http.Post(srv.URL+"/api/breadth/refresh", "application/json", nil)
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusOK, resp.StatusCode)
	}
	assert.EqualValues(t, 2, eng.calls.Load())

	resp, err := http.Get(srv.URL + "/api/breadth/refresh")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestUniverse(t *testing.T) {
	srv, _, _ := newTestServer(t)

	var u marketpulse.Universe
	getJSON(t, srv.URL+"/api/universe", &u)
	assert.Equal(t, []string{"TCS.NS", "INFY.NS", "HDFCBANK.NS"}, u.Symbols)
	assert.Equal(t, 3, u.Count)
	assert.Equal(t, "reference", u.Source)
}

func TestHealthAndMetrics(t *testing.T) {
	srv, ref, _ := newTestServer(t)

	var h marketpulse.Health
	getJSON(t, srv.URL+"/healthz", &h)
	assert.Equal(t, "ok", h.Status)
	assert.True(t, h.LastRefresh.IsZero())

	ref.RunOnce(context.Background())
	getJSON(t, srv.URL+"/healthz", &h)
	assert.False(t, h.LastRefresh.IsZero())

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "marketpulse_refresh_cycles_total")
}

func TestCORSPreflight(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req, _ := http.NewRequest(http.MethodOptions, srv.URL+"/api/breadth", nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestStream(t *testing.T) {
	srv, ref, _ := newTestServer(t)
	ref.RunOnce(context.Background())

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/stream"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	// Latest snapshot on connect.
	var first marketpulse.Snapshot
	require.NoError(t, conn.ReadJSON(&first))
	assert.Equal(t, 1, first.Advances)

	// Wait for the subscription to register before publishing.
	require.Eventually(t, func() bool { return ref.Subscribers() == 1 }, 2*time.Second, 10*time.Millisecond)
	ref.RunOnce(context.Background())

	var next marketpulse.Snapshot
	require.NoError(t, conn.ReadJSON(&next))
	assert.False(t, next.CompletedAt.Before(first.CompletedAt))

	conn.Close()
	assert.Eventually(t, func() bool { return ref.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}
