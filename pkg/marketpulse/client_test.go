package marketpulse_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"marketpulse/internal/domain"
	"marketpulse/internal/gather"
	"marketpulse/internal/httpapi"
	"marketpulse/pkg/marketpulse"
)

type fixedUniverse struct{}

func (fixedUniverse) FetchUniverse(context.Context) domain.Universe {
	return domain.Universe{
		Instruments: []domain.Instrument{{Symbol: "AAA"}, {Symbol: "BBB"}},
		Source:      "reference",
	}
}

type fixedEngine struct{}

func (fixedEngine) Compute(context.Context, []domain.Instrument) domain.Report {
	return domain.Report{
		Rows: []domain.Row{
			{Instrument: domain.Instrument{Symbol: "AAA"}, Quote: domain.Quote{Price: 110, Reference: 100}, Change: 10, Class: domain.Advance},
			{Instrument: domain.Instrument{Symbol: "BBB"}, Quote: domain.Quote{Price: 50, Reference: 50}, Change: 0, Class: domain.Neutral},
		},
		Advances: 1, Neutral: 1, Ratio: 1,
	}
}

func newServer(t *testing.T) (*httptest.Server, *gather.Refresher) {
	t.Helper()
	ref := gather.NewRefresher(fixedUniverse{}, fixedEngine{}, 0, nil)
	srv := httptest.NewServer(httpapi.NewBreadthServer(ref, nil, nil).Handler())
	t.Cleanup(srv.Close)
	return srv, ref
}

func TestNewClient(t *testing.T) {
	c := marketpulse.NewClient("http://localhost:8080/")
	if c == nil {
		t.Fatal("expected non-nil client")
	}
}

func TestGetSnapshot(t *testing.T) {
	srv, _ := newServer(t)
	c := marketpulse.NewClient(srv.URL)

	snap, err := c.GetSnapshot(context.Background(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if snap.Advances != 1 || snap.Neutral != 1 || snap.ADRatio != 1 {
		t.Errorf("snapshot counts = %+v", snap)
	}
	if len(snap.Rows) != 2 || snap.Rows[0].Symbol != "AAA" {
		t.Errorf("rows = %+v", snap.Rows)
	}

	snap, err = c.GetSnapshot(context.Background(), &marketpulse.SnapshotOptions{Class: "neutral"})
	if err != nil {
		t.Fatal(err)
	}
	if len(snap.Rows) != 1 || snap.Rows[0].Symbol != "BBB" {
		t.Errorf("filtered rows = %+v", snap.Rows)
	}
}

func TestGetSnapshotBadRequest(t *testing.T) {
	srv, _ := newServer(t)
	c := marketpulse.NewClient(srv.URL)

	_, err := c.GetSnapshot(context.Background(), &marketpulse.SnapshotOptions{Class: "bogus"})
	var apiErr *marketpulse.APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err = %v, want *APIError", err)
	}
	if apiErr.Status != http.StatusBadRequest || apiErr.Message == "" {
		t.Errorf("APIError = %+v", apiErr)
	}
}

func TestRefreshUniverseHealth(t *testing.T) {
	srv, _ := newServer(t)
	c := marketpulse.NewClient(srv.URL)
	ctx := context.Background()

	snap, err := c.Refresh(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if snap.CompletedAt.IsZero() {
		t.Error("refresh snapshot has no completion time")
	}

	u, err := c.GetUniverse(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if u.Count != 2 || u.Source != "reference" {
		t.Errorf("universe = %+v", u)
	}

	h, err := c.Health(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if h.Status != "ok" || h.LastRefresh.IsZero() {
		t.Errorf("health = %+v", h)
	}
}

func TestStream(t *testing.T) {
	srv, ref := newServer(t)
	ref.RunOnce(context.Background())
	c := marketpulse.NewClient(srv.URL)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	got := make(chan marketpulse.Snapshot, 1)
	errc := make(chan error, 1)
	go func() {
		errc <- c.Stream(ctx, func(s marketpulse.Snapshot) {
			select {
			case got <- s:
			default:
			}
			cancel()
		})
	}()

	select {
	case s := <-got:
		if s.Advances != 1 {
			t.Errorf("streamed snapshot = %+v", s)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no snapshot streamed")
	}
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Errorf("Stream returned %v, want context.Canceled", err)
	}
}
