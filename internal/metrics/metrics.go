package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for the service
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// Attempts counts search attempts by terminal outcome
	// (published, cancelled, infeasible, failed).
	Attempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "search_attempts_total", Help: "Search attempts by outcome."},
		[]string{"outcome"},
	)
	// Restarts counts coordinator restarts by cause
	// (problem_changed, commitment_change).
	Restarts = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "search_restarts_total", Help: "Search restarts by cause."},
		[]string{"cause"},
	)
	// Publications counts schedule publications to the sink
	Publications = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "schedule_publications_total", Help: "Schedules published to the sink."},
	)
	// SearchDuration tracks attempt wall time in seconds
	SearchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "search_attempt_duration_seconds", Help: "Search attempt duration in seconds.", Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60}},
	)
	// BestCost exposes the soft cost of the last published schedule
	BestCost = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "schedule_best_cost", Help: "Soft cost of the last published schedule."},
	)
	// SinkPushes counts webhook pushes by status
	SinkPushes = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "sink_pushes_total", Help: "Webhook schedule pushes by status."},
		[]string{"status"},
	)
)

// RegisterDefault registers collectors to the dedicated registry.
func RegisterDefault() {
	regOnce.Do(func() {
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(Attempts)
		Registry.MustRegister(Restarts)
		Registry.MustRegister(Publications)
		Registry.MustRegister(SearchDuration)
		Registry.MustRegister(BestCost)
		Registry.MustRegister(SinkPushes)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
