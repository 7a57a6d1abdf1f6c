package httpapi

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"marketpulse/internal/dashboard"
	"marketpulse/internal/domain"
	"marketpulse/internal/gather"
	"marketpulse/internal/metrics"
	"marketpulse/pkg/marketpulse"
)

// BreadthServer serves the breadth dashboard HTTP API.
type BreadthServer struct {
	refresher *gather.Refresher
	metrics   *metrics.Collector
	log       *slog.Logger
	upgrader  websocket.Upgrader
}

// NewBreadthServer creates a new dashboard HTTP server. m may be nil, in
// which case /metrics is not served.
func NewBreadthServer(refresher *gather.Refresher, m *metrics.Collector, log *slog.Logger) *BreadthServer {
	if log == nil {
		log = slog.Default()
	}
	return &BreadthServer{
		refresher: refresher,
		metrics:   m,
		log:       log.With("component", "httpapi"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *BreadthServer) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/breadth", s.handleBreadth)
	mux.HandleFunc("POST /api/breadth/refresh", s.handleRefresh)
	mux.HandleFunc("GET /api/universe", s.handleUniverse)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// Handler returns an http.Handler with CORS middleware.
func (s *BreadthServer) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// parseClass extracts the classification filter from the "class" query param.
func parseClass(r *http.Request) (domain.Classification, bool) {
	switch c := domain.Classification(strings.ToLower(r.URL.Query().Get("class"))); c {
	case "", domain.Advance, domain.Decline, domain.Neutral:
		return c, true
	default:
		return "", false
	}
}

// handleBreadth serves the latest snapshot, running a first cycle inline if
// the refresher has not produced one yet.
func (s *BreadthServer) handleBreadth(w http.ResponseWriter, r *http.Request) {
	class, ok := parseClass(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "class must be advance, decline or neutral")
		return
	}

	snap := s.refresher.LatestOrRun(r.Context())

	snap.Report.Rows = dashboard.FilterClass(
		dashboard.SortRows(snap.Report.Rows, dashboard.ParseSortMode(r.URL.Query().Get("sort"))),
		class,
	)
	out := ToSnapshotJSON(snap)
	// Counts describe the whole report even when rows are filtered.
	out.Total = out.Advances + out.Declines + out.Neutral
	writeJSON(w, out)
}

func (s *BreadthServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	snap := s.refresher.RunOnce(r.Context())
	s.log.Info("manual refresh", "elapsed", time.Since(start).Round(time.Millisecond), "degraded", snap.Degraded())
	writeJSON(w, ToSnapshotJSON(snap))
}

func (s *BreadthServer) handleUniverse(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, ToUniverseJSON(s.refresher.Universe(r.Context())))
}

func (s *BreadthServer) handleHealth(w http.ResponseWriter, _ *http.Request) {
	h := marketpulse.Health{Status: "ok"}
	if snap, ok := s.refresher.Latest(); ok {
		h.LastRefresh = snap.CompletedAt
		h.Degraded = snap.Degraded()
	}
	writeJSON(w, h)
}
