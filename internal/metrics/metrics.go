package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "quoteaggregator"

// Metrics holds the collectors exported by the service. A nil *Metrics is
// valid and records nothing, so components can run without instrumentation.
type Metrics struct {
	// Upstream calls per feed, labelled by outcome (ok or a fetcher error type)
	UpstreamRequests *prometheus.CounterVec
	UpstreamDuration *prometheus.HistogramVec

	// Batches started per feed, and batches skipped because the feed has no credentials
	Batches          *prometheus.CounterVec
	UnconfiguredFeed *prometheus.CounterVec

	// How each feed was resolved by the aggregator: fresh, live, stale or empty
	FeedResolutions *prometheus.CounterVec

	// HTTP surface
	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		UpstreamRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "upstream_requests_total",
				Help:      "Upstream price requests by feed and outcome",
			},
			[]string{"feed", "outcome"},
		),
		UpstreamDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "upstream_request_duration_seconds",
				Help:      "Latency of upstream price requests",
				Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"feed"},
		),
		Batches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Batches fanned out per feed",
			},
			[]string{"feed"},
		),
		UnconfiguredFeed: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "unconfigured_feed_total",
				Help:      "Fetches skipped because the feed has no credentials",
			},
			[]string{"feed"},
		),
		FeedResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "feed_resolutions_total",
				Help:      "Per-feed resolution of aggregate reads (fresh, live, stale, empty)",
			},
			[]string{"feed", "state"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// ObserveUpstream records one upstream call.
func (m *Metrics) ObserveUpstream(feed, outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(feed, outcome).Inc()
	m.UpstreamDuration.WithLabelValues(feed).Observe(d.Seconds())
}

// BatchStarted records a batch fan-out for feed.
func (m *Metrics) BatchStarted(feed string) {
	if m == nil {
		return
	}
	m.Batches.WithLabelValues(feed).Inc()
}

// Unconfigured records a fetch skipped for lack of credentials.
func (m *Metrics) Unconfigured(feed string) {
	if m == nil {
		return
	}
	m.UnconfiguredFeed.WithLabelValues(feed).Inc()
}

// Resolved records how the aggregator satisfied a read for feed.
func (m *Metrics) Resolved(feed, state string) {
	if m == nil {
		return
	}
	m.FeedResolutions.WithLabelValues(feed, state).Inc()
}

// ObserveHTTP records one served HTTP request.
func (m *Metrics) ObserveHTTP(method, route, status string, d time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}
