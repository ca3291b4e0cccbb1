// Package metrics owns the Prometheus registry of a page-loader run and can
// export it as a node_exporter textfile when the process exits.
package metrics

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles a private registry with the collectors owned directly by
// this package. Progress sinks register their own collectors on Registerer.
type Metrics struct {
	reg *prometheus.Registry

	rateLimitDelays *prometheus.HistogramVec
	fetches         *prometheus.CounterVec
}

// New builds a fresh registry; every call is independent so tests never
// collide on collector names.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		reg: reg,
		rateLimitDelays: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "pageloader_rate_limit_delays_seconds",
				Help:    "Histogram of rate limit wait durations.",
				Buckets: []float64{0.01, 0.1, 0.5, 1, 2, 5, 10},
			},
			[]string{"domain"},
		),
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "pageloader_http_fetches_total",
				Help: "HTTP fetches issued, labeled by site and status code class.",
			},
			[]string{"site", "status"},
		),
	}
}

// Registerer exposes the registry for additional collectors.
func (m *Metrics) Registerer() prometheus.Registerer {
	return m.reg
}

// Gatherer exposes the registry for inspection.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.reg
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func (m *Metrics) ObserveRateLimitDelay(domain string, duration time.Duration) {
	if m == nil {
		return
	}
	m.rateLimitDelays.WithLabelValues(SanitizeSite(domain)).Observe(duration.Seconds())
}

// ObserveFetch counts one HTTP fetch. A zero code counts as "error".
func (m *Metrics) ObserveFetch(site string, code int) {
	if m == nil {
		return
	}
	status := "error"
	if code > 0 {
		status = fmt.Sprintf("%dxx", code/100)
	}
	m.fetches.WithLabelValues(SanitizeSite(site), status).Inc()
}

// WriteTextfile atomically writes the registry in the text exposition format.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// SanitizeSite sanitizes a URL to extract a lowercase hostname.
// It returns "unknown" if the URL is invalid.
func SanitizeSite(rawURL string) string {
	if !strings.HasPrefix(rawURL, "http") {
		rawURL = "http://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "unknown"
	}
	return strings.ToLower(u.Hostname())
}
