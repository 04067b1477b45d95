package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/carmarket/crawler/internal/progress"
)

// PrometheusSink exports crawl progress metrics. It owns the collectors for
// run lifecycle, page throughput, and persistence failures.
type PrometheusSink struct {
	runsStarted   prometheus.Counter
	runsCompleted *prometheus.CounterVec
	runsActive    prometheus.Gauge
	runDuration   *prometheus.HistogramVec
	pagesScraped  prometheus.Counter
	carsExtracted prometheus.Counter
	storeFailures prometheus.Counter

	tracker *runTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		runsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_runs_started_total",
			Help: "Total crawl runs that have started.",
		}),
		runsCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "crawler_runs_completed_total",
			Help: "Total crawl runs completed partitioned by result.",
		}, []string{"result"}),
		runsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "crawler_runs_active",
			Help: "Current number of active crawl runs.",
		}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crawler_run_duration_seconds",
			Help:    "Wall time per completed crawl run.",
			Buckets: []float64{5, 15, 30, 60, 120, 300, 600, 1800, 3600},
		}, []string{"result"}),
		pagesScraped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_pages_scraped_total",
			Help: "Total results pages scraped.",
		}),
		carsExtracted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_cars_extracted_total",
			Help: "Total unique listings extracted.",
		}),
		storeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "crawler_store_failures_total",
			Help: "Total listing persistence failures.",
		}),
		tracker: newRunTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.runsStarted,
		s.runsCompleted,
		s.runsActive,
		s.runDuration,
		s.pagesScraped,
		s.carsExtracted,
		s.storeFailures,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the collectors from a batch. Safe for concurrent use.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageRunStarted:
		s.runsStarted.Inc()
		if s.tracker.start(evt.RunID) {
			s.runsActive.Inc()
		}
	case progress.StagePageScraped:
		s.pagesScraped.Inc()
		if evt.Cars > 0 {
			s.carsExtracted.Add(float64(evt.Cars))
		}
	case progress.StageStoreFailed:
		s.storeFailures.Inc()
	case progress.StageRunCompleted:
		s.completeRun(evt, "success")
	case progress.StageRunFailed:
		s.completeRun(evt, "error")
	}
}

func (s *PrometheusSink) completeRun(evt progress.Event, result string) {
	s.runsCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.runDuration.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.tracker.complete(evt.RunID) {
		s.runsActive.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

// runTracker keeps the active gauge honest across duplicate events.
type runTracker struct {
	mu      sync.Mutex
	running map[uuid.UUID]struct{}
}

func newRunTracker() *runTracker {
	return &runTracker{running: make(map[uuid.UUID]struct{})}
}

func (t *runTracker) start(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *runTracker) complete(id uuid.UUID) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
