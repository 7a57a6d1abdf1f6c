package gather

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"marketpulse/internal/domain"
	"marketpulse/internal/metrics"
	"marketpulse/internal/universe"
)

// Computer turns a universe into a breadth report.
type Computer interface {
	Compute(ctx context.Context, instruments []domain.Instrument) domain.Report
}

var _ Gatherer = (*Refresher)(nil)

// Refresher runs refresh cycles (universe, then breadth) on a fixed interval
// and on demand, keeps the latest snapshot, and fans it out to subscribers.
type Refresher struct {
	universe universe.Fetcher
	engine   Computer
	interval time.Duration
	metrics  *metrics.Collector
	now      func() time.Time
	log      *slog.Logger

	trigger chan struct{}
	runMu   sync.Mutex // serialises cycles

	mu     sync.RWMutex
	latest domain.Snapshot
	has    bool

	subsMu    sync.Mutex
	nextSubID int
	subs      map[int]chan domain.Snapshot
}

// NewRefresher creates a Refresher. interval <= 0 disables the ticker; cycles
// then only run on Trigger or RunOnce.
func NewRefresher(u universe.Fetcher, engine Computer, interval time.Duration, m *metrics.Collector) *Refresher {
	return &Refresher{
		universe: u,
		engine:   engine,
		interval: interval,
		metrics:  m,
		now:      time.Now,
		log:      slog.Default().With("gatherer", "breadth-refresher"),
		trigger:  make(chan struct{}, 1),
		subs:     make(map[int]chan domain.Snapshot),
	}
}

// Name implements Gatherer.
func (r *Refresher) Name() string { return "breadth-refresher" }

// Run performs a cycle immediately, then one per interval and one per
// Trigger, until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	r.log.Info("refresher started", "interval", r.interval)

	var tick <-chan time.Time
	if r.interval > 0 {
		t := time.NewTicker(r.interval)
		defer t.Stop()
		tick = t.C
	}

	r.RunOnce(ctx)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("refresher stopped")
			return nil
		case <-tick:
		case <-r.trigger:
		}
		r.RunOnce(ctx)
	}
}

// Trigger requests an out-of-band cycle from Run. Requests made while one is
// already pending are coalesced.
func (r *Refresher) Trigger() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

// RunOnce performs one full cycle synchronously, stores and publishes the
// snapshot, and returns it. A cycle interrupted by ctx is returned to the
// caller only; the stored snapshot and subscribers keep the previous one.
func (r *Refresher) RunOnce(ctx context.Context) domain.Snapshot {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	return r.cycle(ctx)
}

// LatestOrRun returns the latest snapshot, running a first cycle when none
// exists. Concurrent first callers share that cycle.
func (r *Refresher) LatestOrRun(ctx context.Context) domain.Snapshot {
	if snap, ok := r.Latest(); ok {
		return snap
	}
	r.runMu.Lock()
	defer r.runMu.Unlock()
	if snap, ok := r.Latest(); ok {
		return snap
	}
	return r.cycle(ctx)
}

// cycle runs universe then engine. Callers hold runMu.
func (r *Refresher) cycle(ctx context.Context) domain.Snapshot {
	snap := domain.Snapshot{StartedAt: r.now()}
	snap.Universe = r.universe.FetchUniverse(ctx)
	if snap.Universe.Degraded {
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("using fallback universe: %s", snap.Universe.Reason))
	}

	snap.Report = r.engine.Compute(ctx, snap.Universe.Instruments)
	if snap.Report.Empty() {
		snap.Warnings = append(snap.Warnings, "no instrument quotes available")
	}
	interrupted := ctx.Err()
	if interrupted != nil {
		snap.Warnings = append(snap.Warnings, fmt.Sprintf("refresh interrupted: %v", interrupted))
	}
	snap.CompletedAt = r.now()

	for _, w := range snap.Warnings {
		r.log.Warn("snapshot degraded", "warning", w)
	}
	r.log.Info("refresh complete",
		"universe", len(snap.Universe.Instruments),
		"rows", snap.Report.Total(),
		"skipped", len(snap.Report.Skipped),
		"elapsed", snap.CompletedAt.Sub(snap.StartedAt).Round(time.Millisecond),
	)
	if interrupted != nil {
		return snap
	}

	r.mu.Lock()
	r.latest, r.has = snap, true
	r.mu.Unlock()

	r.metrics.ObserveSnapshot(snap)
	r.publish(snap)
	return snap
}

// Latest returns the most recent snapshot and whether one exists yet.
func (r *Refresher) Latest() (domain.Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.latest, r.has
}

// Universe returns the current universe through the (cached) fetcher.
func (r *Refresher) Universe(ctx context.Context) domain.Universe {
	return r.universe.FetchUniverse(ctx)
}

func (r *Refresher) publish(snap domain.Snapshot) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	for _, ch := range r.subs {
		select {
		case ch <- snap:
		default:
			// Slow subscriber, drop snapshot.
		}
	}
}

// Subscribe creates a subscription channel for new snapshots.
func (r *Refresher) Subscribe(bufSize int) (id int, ch <-chan domain.Snapshot) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	id = r.nextSubID
	r.nextSubID++
	c := make(chan domain.Snapshot, bufSize)
	r.subs[id] = c
	r.metrics.SetSubscribers(len(r.subs))
	return id, c
}

// Unsubscribe removes a subscription and closes its channel.
func (r *Refresher) Unsubscribe(id int) {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	if ch, ok := r.subs[id]; ok {
		close(ch)
		delete(r.subs, id)
	}
	r.metrics.SetSubscribers(len(r.subs))
}

// Subscribers returns the number of active subscriptions.
func (r *Refresher) Subscribers() int {
	r.subsMu.Lock()
	defer r.subsMu.Unlock()
	return len(r.subs)
}
