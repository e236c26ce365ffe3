// Package metrics exposes Prometheus collectors for the crawler service.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	upstreamRequestsTotal      *prometheus.CounterVec
	upstreamRequestSeconds     *prometheus.HistogramVec
	upstreamRetriesTotal       *prometheus.CounterVec
	rateLimitDelaySeconds      *prometheus.HistogramVec
	casesFetchedTotal          *prometheus.CounterVec
	casesPersistedTotal        *prometheus.CounterVec
	litigantProcessSeconds     *prometheus.HistogramVec
	persistActiveCases         prometheus.Gauge
	cacheLookupsTotal          *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		upstreamRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "causas_upstream_requests_total",
				Help: "Requests sent to the judicial API, labeled by endpoint and status class.",
			},
			[]string{"endpoint", "status"},
		)

		upstreamRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "causas_upstream_request_duration_seconds",
				Help:    "Latency of judicial API requests, labeled by endpoint.",
				Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"endpoint"},
		)

		upstreamRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "causas_retries_total",
				Help: "Retries scheduled after a failed attempt, labeled by operation.",
			},
			[]string{"op"},
		)

		rateLimitDelaySeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "causas_rate_limit_delay_seconds",
				Help:    "Time spent waiting on the client-side rate limiter.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"host"},
		)

		casesFetchedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "causas_cases_fetched_total",
				Help: "Cases fully crawled, labeled by litigant role.",
			},
			[]string{"role"},
		)

		casesPersistedTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "causas_cases_persisted_total",
				Help: "Case persistence attempts, labeled by result.",
			},
			[]string{"result"},
		)

		litigantProcessSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "causas_litigant_process_duration_seconds",
				Help:    "Duration of crawl-and-persist runs, labeled by role and outcome.",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"role", "outcome"},
		)

		persistActiveCases = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "causas_persist_active_cases",
				Help: "Cases currently being written to the store.",
			},
		)

		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "causas_api_cache_lookups_total",
				Help: "Read cache lookups by the API, labeled by result (hit or miss).",
			},
			[]string{"result"},
		)

		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests, labeled by method and code.",
			},
			[]string{"method", "code"},
		)

		httpRequestDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Histogram of HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
			},
			[]string{"method", "route"},
		)
	})
}

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// StatusClass buckets an HTTP status code; zero means no response.
func StatusClass(code int) string {
	switch {
	case code <= 0:
		return "error"
	case code < 200:
		return "1xx"
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}

// ObserveUpstreamRequest records one judicial API call.
func ObserveUpstreamRequest(endpoint string, code int, duration time.Duration) {
	Init()
	upstreamRequestsTotal.WithLabelValues(endpoint, StatusClass(code)).Inc()
	upstreamRequestSeconds.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// ObserveRetry counts a scheduled retry.
func ObserveRetry(op string) {
	Init()
	upstreamRetriesTotal.WithLabelValues(op).Inc()
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(host string, duration time.Duration) {
	Init()
	rateLimitDelaySeconds.WithLabelValues(host).Observe(duration.Seconds())
}

// ObserveCasesFetched counts cases assembled by a crawl.
func ObserveCasesFetched(role string, n int) {
	Init()
	casesFetchedTotal.WithLabelValues(role).Add(float64(n))
}

// ObserveCasePersisted counts a case write attempt.
func ObserveCasePersisted(ok bool) {
	Init()
	result := "ok"
	if !ok {
		result = "error"
	}
	casesPersistedTotal.WithLabelValues(result).Inc()
}

// ObserveLitigantProcess records the duration of a crawl-and-persist run.
func ObserveLitigantProcess(role, outcome string, duration time.Duration) {
	Init()
	litigantProcessSeconds.WithLabelValues(role, outcome).Observe(duration.Seconds())
}

// IncActivePersists increments the in-flight case persistence gauge.
func IncActivePersists() {
	Init()
	persistActiveCases.Inc()
}

// DecActivePersists decrements the in-flight case persistence gauge.
func DecActivePersists() {
	Init()
	persistActiveCases.Dec()
}

// ObserveCacheLookup counts an API read cache lookup.
func ObserveCacheLookup(hit bool) {
	Init()
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}
