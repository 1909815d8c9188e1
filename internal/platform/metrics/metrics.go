package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds Prometheus counters and gauges for the stream-session engine.
type Metrics struct {
	registry               *prometheus.Registry
	requestsTotal          prometheus.Counter
	errorsTotal            prometheus.Counter
	sessionsIssuedTotal    prometheus.Counter
	transcodesStartedTotal prometheus.Counter
	copyFallbacksTotal     prometheus.Counter
	jobsEvictedTotal       prometheus.Counter
	activeJobs             prometheus.Gauge
	activeSessions         prometheus.Gauge
}

// New creates and registers Prometheus metrics for the engine.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	requestsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vod_requests_total",
		Help: "Total number of HTTP requests received",
	})
	errorsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vod_errors_total",
		Help: "Total number of HTTP responses with error status (4xx or 5xx)",
	})
	sessionsIssuedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vod_sessions_issued_total",
		Help: "Total number of playback sessions issued",
	})
	transcodesStartedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vod_transcodes_started_total",
		Help: "Total number of encoder processes launched",
	})
	copyFallbacksTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vod_copy_fallbacks_total",
		Help: "Total number of copy jobs restarted in encode mode",
	})
	jobsEvictedTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "vod_jobs_evicted_total",
		Help: "Total number of idle jobs evicted by the reaper",
	})
	activeJobs := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vod_active_jobs",
		Help: "Number of transcode jobs currently tracked",
	})
	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "vod_active_sessions",
		Help: "Number of playback sessions currently tracked",
	})

	registry.MustRegister(
		requestsTotal,
		errorsTotal,
		sessionsIssuedTotal,
		transcodesStartedTotal,
		copyFallbacksTotal,
		jobsEvictedTotal,
		activeJobs,
		activeSessions,
	)

	return &Metrics{
		registry:               registry,
		requestsTotal:          requestsTotal,
		errorsTotal:            errorsTotal,
		sessionsIssuedTotal:    sessionsIssuedTotal,
		transcodesStartedTotal: transcodesStartedTotal,
		copyFallbacksTotal:     copyFallbacksTotal,
		jobsEvictedTotal:       jobsEvictedTotal,
		activeJobs:             activeJobs,
		activeSessions:         activeSessions,
	}
}

// IncRequests increments the total request counter.
func (m *Metrics) IncRequests() {
	m.requestsTotal.Inc()
}

// IncErrors increments the errors counter.
func (m *Metrics) IncErrors() {
	m.errorsTotal.Inc()
}

// IncSessionsIssued increments the sessions issued counter.
func (m *Metrics) IncSessionsIssued() {
	m.sessionsIssuedTotal.Inc()
}

// IncTranscodesStarted increments the encoder launch counter.
func (m *Metrics) IncTranscodesStarted() {
	m.transcodesStartedTotal.Inc()
}

// IncCopyFallbacks increments the copy-to-encode fallback counter.
func (m *Metrics) IncCopyFallbacks() {
	m.copyFallbacksTotal.Inc()
}

// IncJobsEvicted increments the idle-eviction counter.
func (m *Metrics) IncJobsEvicted() {
	m.jobsEvictedTotal.Inc()
}

// SetActiveJobs sets the active jobs gauge.
func (m *Metrics) SetActiveJobs(n int) {
	m.activeJobs.Set(float64(n))
}

// SetActiveSessions sets the active sessions gauge.
func (m *Metrics) SetActiveSessions(n int) {
	m.activeSessions.Set(float64(n))
}

// Handler returns an http.Handler that serves Prometheus metrics.
// updateGauges is called before each scrape to refresh gauge values
// (e.g. active jobs and sessions).
func (m *Metrics) Handler(updateGauges func()) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if updateGauges != nil {
			updateGauges()
		}
		promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}).ServeHTTP(w, r)
	})
}
