// Package metrics exposes Prometheus collectors for the tripsync service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	fetchAttemptsTotal         *prometheus.CounterVec
	fetchDurationSeconds       *prometheus.HistogramVec
	fetchBytesTotal            *prometheus.CounterVec
	extractionsTotal           *prometheus.CounterVec
	syncOperationsTotal        *prometheus.CounterVec
	rateLookupsTotal           *prometheus.CounterVec
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec
	rateLimitDelaysSeconds     *prometheus.HistogramVec
	archiveWritesTotal         *prometheus.CounterVec

	once sync.Once
)

// Init initializes the Prometheus metrics collectors.
// It is safe to call this function multiple times.
func Init() {
	once.Do(func() {
		fetchAttemptsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripsync_fetch_attempts_total",
				Help: "Fetch strategy attempts, labeled by strategy and outcome.",
			},
			[]string{"strategy", "outcome"},
		)

		fetchDurationSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tripsync_fetch_duration_seconds",
				Help:    "Histogram of single fetch attempt latencies, labeled by strategy.",
				Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
			},
			[]string{"strategy"},
		)

		fetchBytesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripsync_fetch_bytes_total",
				Help: "Total number of markup bytes fetched, labeled by site.",
			},
			[]string{"site"},
		)

		extractionsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripsync_extractions_total",
				Help: "Extraction runs, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		syncOperationsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripsync_sync_operations_total",
				Help: "Consultation sync operations, labeled by operation and outcome.",
			},
			[]string{"operation", "outcome"},
		)

		rateLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripsync_rate_lookups_total",
				Help: "Exchange rate lookups, labeled by cache result.",
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
			[]string{"method", "route"},
		)

		rateLimitDelaysSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tripsync_rate_limit_delays_seconds",
				Help:    "Histogram of per-host rate limit wait durations.",
				Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
			},
			[]string{"domain"},
		)

		archiveWritesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tripsync_archive_writes_total",
				Help: "Raw page archive writes, labeled by outcome.",
			},
			[]string{"outcome"},
		)
	})
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

// Handler returns an http.Handler for exposing Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveFetchAttempt records one strategy attempt.
func ObserveFetchAttempt(strategy, outcome string, duration time.Duration) {
	Init()
	fetchAttemptsTotal.WithLabelValues(strategy, outcome).Inc()
	fetchDurationSeconds.WithLabelValues(strategy).Observe(duration.Seconds())
}

// ObserveFetchBytes adds fetched markup size for a site.
func ObserveFetchBytes(site string, n int) {
	if n <= 0 {
		return
	}
	Init()
	fetchBytesTotal.WithLabelValues(SanitizeSite(site)).Add(float64(n))
}

// ObserveExtraction increments the extraction counter for the given outcome.
func ObserveExtraction(outcome string) {
	Init()
	extractionsTotal.WithLabelValues(outcome).Inc()
}

// ObserveSync increments the sync counter.
func ObserveSync(operation, outcome string) {
	Init()
	syncOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// ObserveRateLookup records a cache hit, miss or failure.
func ObserveRateLookup(result string) {
	Init()
	rateLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest increments the HTTP request metrics.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// ObserveRateLimitDelay records the duration of a rate limit wait.
func ObserveRateLimitDelay(domain string, duration time.Duration) {
	Init()
	rateLimitDelaysSeconds.WithLabelValues(domain).Observe(duration.Seconds())
}

// ObserveArchiveWrite increments the archive counter.
func ObserveArchiveWrite(outcome string) {
	Init()
	archiveWritesTotal.WithLabelValues(outcome).Inc()
}
