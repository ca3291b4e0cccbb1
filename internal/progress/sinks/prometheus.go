package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/page-loader/internal/progress"
)

// PrometheusSink turns progress events into page and resource collectors.
type PrometheusSink struct {
	pagesStarted   prometheus.Counter
	pagesCompleted *prometheus.CounterVec
	pagesRunning   prometheus.Gauge
	pageRuntime    *prometheus.HistogramVec

	resources        *prometheus.CounterVec
	resourceBytes    *prometheus.CounterVec
	resourceDuration *prometheus.HistogramVec

	tracker *jobTracker
}

// NewPrometheusSink registers the collectors against the provided registry.
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		pagesStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pageloader_pages_started_total",
			Help: "Total page downloads that have started.",
		}),
		pagesCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageloader_pages_completed_total",
			Help: "Total page downloads completed partitioned by result.",
		}, []string{"result"}),
		pagesRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pageloader_pages_running",
			Help: "Current number of page downloads in flight.",
		}),
		pageRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pageloader_page_runtime_seconds",
			Help:    "Wall time per completed page download.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 15, 30, 60, 120},
		}, []string{"result"}),
		resources: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageloader_resources_total",
			Help: "Resource downloads partitioned by site and result.",
		}, []string{"site", "result"}),
		resourceBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pageloader_resource_bytes_total",
			Help: "Resource bytes written to disk per site.",
		}, []string{"site"}),
		resourceDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "pageloader_resource_duration_seconds",
			Help:    "Resource download duration partitioned by site and status class.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5, 10},
		}, []string{"site", "status_class"}),
		tracker: newJobTracker(),
	}
	for _, collector := range []prometheus.Collector{
		s.pagesStarted,
		s.pagesCompleted,
		s.pagesRunning,
		s.pageRuntime,
		s.resources,
		s.resourceBytes,
		s.resourceDuration,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates the Prometheus collectors using the provided batch. It is
// safe for concurrent use by multiple goroutines.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StagePageStart, progress.StagePageDone, progress.StagePageError:
		s.handlePageEvent(evt)
	case progress.StageResourceDone, progress.StageResourceError:
		s.handleResourceEvent(evt)
	}
}

func (s *PrometheusSink) handlePageEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StagePageStart:
		s.pagesStarted.Inc()
		if s.tracker.start(evt.JobID) {
			s.pagesRunning.Inc()
		}
	case progress.StagePageDone:
		s.pagesCompleted.WithLabelValues("success").Inc()
		s.observeRuntime(evt, "success")
	case progress.StagePageError:
		s.pagesCompleted.WithLabelValues("error").Inc()
		s.observeRuntime(evt, "error")
	}
	if evt.Stage != progress.StagePageStart && s.tracker.complete(evt.JobID) {
		s.pagesRunning.Dec()
	}
}

func (s *PrometheusSink) observeRuntime(evt progress.Event, label string) {
	if evt.Dur > 0 {
		s.pageRuntime.WithLabelValues(label).Observe(evt.Dur.Seconds())
	}
}

func (s *PrometheusSink) handleResourceEvent(evt progress.Event) {
	site := evt.Site
	if site == "" {
		site = "unknown"
	}
	result := "success"
	if evt.Stage == progress.StageResourceError {
		result = "error"
	}
	s.resources.WithLabelValues(site, result).Inc()
	if evt.Bytes > 0 {
		s.resourceBytes.WithLabelValues(site).Add(float64(evt.Bytes))
	}
	if evt.Dur > 0 {
		statusClass := string(evt.StatusClass)
		if statusClass == "" {
			statusClass = string(progress.StatusOther)
		}
		s.resourceDuration.WithLabelValues(site, statusClass).Observe(evt.Dur.Seconds())
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type jobTracker struct {
	mu      sync.Mutex
	running map[[16]byte]struct{}
}

func newJobTracker() *jobTracker {
	return &jobTracker{running: make(map[[16]byte]struct{})}
}

func (t *jobTracker) start(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; ok {
		return false
	}
	t.running[id] = struct{}{}
	return true
}

func (t *jobTracker) complete(id [16]byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.running[id]; !ok {
		return false
	}
	delete(t.running, id)
	return true
}
