// Package metrics exposes Prometheus collectors for the crawl service.
package metrics

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	crawlPagesTotal            *prometheus.CounterVec
	crawlJobsTotal             *prometheus.CounterVec
	crawlJobDurationSeconds    prometheus.Histogram
	activeJobs                 prometheus.Gauge
	dispatchedJobsTotal        *prometheus.CounterVec
	collectedResultsTotal      prometheus.Counter
	collectTimeoutsTotal       prometheus.Counter
	deadLettersTotal           *prometheus.CounterVec
	brokerReady                prometheus.Gauge
	httpRequestsTotal          *prometheus.CounterVec
	httpRequestDurationSeconds *prometheus.HistogramVec

	once sync.Once
)

// Init registers the collectors. It is safe to call more than once.
func Init() {
	once.Do(func() {
		crawlPagesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_pages_total",
				Help: "Total number of pages fetched, labeled by site and status.",
			},
			[]string{"site", "status"},
		)

		crawlJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_jobs_total",
				Help: "Total number of jobs handled by workers, labeled by status.",
			},
			[]string{"status"},
		)

		crawlJobDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "crawler_job_duration_seconds",
				Help:    "Histogram of per-link crawl durations.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
		)

		activeJobs = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_active_jobs",
				Help: "Number of jobs currently being crawled.",
			},
		)

		dispatchedJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_dispatched_jobs_total",
				Help: "Total number of jobs published to the work queue, labeled by status.",
			},
			[]string{"status"},
		)

		collectedResultsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_collected_results_total",
				Help: "Total number of results read from result destinations.",
			},
		)

		collectTimeoutsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "crawler_collect_timeouts_total",
				Help: "Number of collections that returned on timeout with missing results.",
			},
		)

		deadLettersTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crawler_dead_letters_total",
				Help: "Total number of jobs forwarded to the dead-letter stream, labeled by reason.",
			},
			[]string{"reason"},
		)

		brokerReady = promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "crawler_broker_ready",
				Help: "1 when the broker connection is ready, 0 otherwise.",
			},
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
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30, 120, 300},
			},
			[]string{"method", "route"},
		)
	})
}

// SanitizeSite extracts a lowercase hostname from rawURL, or "unknown".
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

// Handler returns an http.Handler exposing the registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObservePage counts one page fetch.
func ObservePage(site, status string) {
	Init()
	crawlPagesTotal.WithLabelValues(SanitizeSite(site), status).Inc()
}

// ObserveJob counts one job outcome and its duration.
func ObserveJob(status string, duration time.Duration) {
	Init()
	crawlJobsTotal.WithLabelValues(status).Inc()
	if duration > 0 {
		crawlJobDurationSeconds.Observe(duration.Seconds())
	}
}

func IncActiveJobs() {
	Init()
	activeJobs.Inc()
}

func DecActiveJobs() {
	Init()
	activeJobs.Dec()
}

// ObserveDispatch counts published or failed job messages.
func ObserveDispatch(status string, n int) {
	Init()
	dispatchedJobsTotal.WithLabelValues(status).Add(float64(n))
}

// ObserveCollect records a finished collection.
func ObserveCollect(received, expected int) {
	Init()
	collectedResultsTotal.Add(float64(received))
	if received < expected {
		collectTimeoutsTotal.Inc()
	}
}

// ObserveDeadLetter counts a job moved to the dead-letter stream.
func ObserveDeadLetter(reason string) {
	Init()
	deadLettersTotal.WithLabelValues(reason).Inc()
}

// SetBrokerReady mirrors the broker state into a gauge.
func SetBrokerReady(ready bool) {
	Init()
	if ready {
		brokerReady.Set(1)
		return
	}
	brokerReady.Set(0)
}

// ObserveHTTPRequest records one served request.
func ObserveHTTPRequest(method, route string, code int, duration time.Duration) {
	Init()
	httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	httpRequestDurationSeconds.WithLabelValues(method, route).Observe(duration.Seconds())
}

// Middleware is a chi middleware that records HTTP request metrics.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		ObserveHTTPRequest(r.Method, routePattern, ww.status, time.Since(start))
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
