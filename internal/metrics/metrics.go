// Package metrics exposes Prometheus instruments for refresh cycles and quote
// provider calls. A nil *Collector is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"marketpulse/internal/domain"
)

// Collector holds all marketpulse metrics.
type Collector struct {
	reg *prometheus.Registry

	Cycles        *prometheus.CounterVec
	CycleDuration prometheus.Histogram
	ProviderCalls *prometheus.CounterVec
	CallDuration  prometheus.Histogram
	Breadth       *prometheus.GaugeVec
	ADRatio       prometheus.Gauge
	UniverseSize  prometheus.Gauge
	Degraded      prometheus.Gauge
	Subscribers   prometheus.Gauge
}

// NewCollector creates a Collector registered on its own registry, along with
// the standard Go and process collectors.
func NewCollector() *Collector {
	c := &Collector{
		reg: prometheus.NewRegistry(),
		Cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketpulse_refresh_cycles_total",
			Help: "Refresh cycles by outcome (ok, degraded).",
		}, []string{"outcome"}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketpulse_refresh_duration_seconds",
			Help:    "Wall time of a full refresh cycle.",
			Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
		}),
		ProviderCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketpulse_quote_calls_total",
			Help: "Quote provider calls by result (ok, unavailable, timeout, error).",
		}, []string{"result"}),
		CallDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "marketpulse_quote_call_duration_seconds",
			Help:    "Latency of a single quote provider call.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		Breadth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketpulse_breadth_instruments",
			Help: "Instruments per classification in the latest report.",
		}, []string{"class"}),
		ADRatio: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketpulse_ad_ratio",
			Help: "Advance/decline ratio of the latest report.",
		}),
		UniverseSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketpulse_universe_size",
			Help: "Instruments in the current universe.",
		}),
		Degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketpulse_snapshot_degraded",
			Help: "1 when the latest snapshot carries a warning.",
		}),
		Subscribers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "marketpulse_stream_subscribers",
			Help: "Connected snapshot stream subscribers.",
		}),
	}
	c.reg.MustRegister(
		c.Cycles, c.CycleDuration, c.ProviderCalls, c.CallDuration,
		c.Breadth, c.ADRatio, c.UniverseSize, c.Degraded, c.Subscribers,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	if c == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Call results used as the ProviderCalls label.
const (
	ResultOK          = "ok"
	ResultUnavailable = "unavailable"
	ResultTimeout     = "timeout"
	ResultError       = "error"
)

// ObserveCall records one provider call with its result label.
func (c *Collector) ObserveCall(d time.Duration, result string) {
	if c == nil {
		return
	}
	c.CallDuration.Observe(d.Seconds())
	c.ProviderCalls.WithLabelValues(result).Inc()
}

// ObserveSnapshot records the outcome of a completed refresh cycle.
func (c *Collector) ObserveSnapshot(s domain.Snapshot) {
	if c == nil {
		return
	}
	outcome := "ok"
	degraded := 0.0
	if s.Degraded() {
		outcome, degraded = "degraded", 1
	}
	c.Cycles.WithLabelValues(outcome).Inc()
	c.CycleDuration.Observe(s.CompletedAt.Sub(s.StartedAt).Seconds())
	c.Breadth.WithLabelValues(string(domain.Advance)).Set(float64(s.Report.Advances))
	c.Breadth.WithLabelValues(string(domain.Decline)).Set(float64(s.Report.Declines))
	c.Breadth.WithLabelValues(string(domain.Neutral)).Set(float64(s.Report.Neutral))
	c.Breadth.WithLabelValues("skipped").Set(float64(len(s.Report.Skipped)))
	c.ADRatio.Set(s.Report.Ratio)
	c.UniverseSize.Set(float64(len(s.Universe.Instruments)))
	c.Degraded.Set(degraded)
}

// SetSubscribers records the current number of stream subscribers.
func (c *Collector) SetSubscribers(n int) {
	if c == nil {
		return
	}
	c.Subscribers.Set(float64(n))
}
