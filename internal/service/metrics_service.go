package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/curriculum-gate-api/internal/models"
)

// MetricsService encapsulates Prometheus instrumentation.
type MetricsService struct {
	registry           *prometheus.Registry
	handler            http.Handler
	requestDuration    *prometheus.HistogramVec
	requestTotal       *prometheus.CounterVec
	cacheLatency       prometheus.Observer
	cacheWrite         prometheus.Observer
	cacheHitRatio      prometheus.Gauge
	cacheHits          prometheus.Counter
	cacheMisses        prometheus.Counter
	cacheInvalidated   prometheus.Counter
	sweepDuration      prometheus.Histogram
	releaseTransitions *prometheus.CounterVec
	releaseFailures    *prometheus.CounterVec
	submissionChanges  *prometheus.CounterVec
	notifications      *prometheus.CounterVec

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the service collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "progress_cache_read_seconds",
		Help:    "Latency of progress snapshot lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "progress_cache_write_seconds",
		Help:    "Latency of progress snapshot writes",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "progress_cache_hit_ratio",
		Help: "Ratio of progress snapshot hits to lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_cache_hits_total",
		Help: "Progress snapshot hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_cache_misses_total",
		Help: "Progress snapshot misses",
	})

	cacheInvalidated := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "progress_cache_invalidated_total",
		Help: "Progress snapshots dropped after catalog or review changes",
	})

	sweepDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "release_sweep_duration_seconds",
		Help:    "Duration of content release sweeps",
		Buckets: prometheus.DefBuckets,
	})

	releaseTransitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "release_transitions_total",
		Help: "Release flag flips applied by the sweep",
	}, []string{"kind", "direction"})

	releaseFailures := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "release_failures_total",
		Help: "Per-entity release updates that failed and were skipped",
	}, []string{"kind"})

	submissionChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "submission_transitions_total",
		Help: "Submission workflow transitions",
	}, []string{"target", "from", "to"})

	notifications := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "notifications_total",
		Help: "Notifications handed to the notifier",
	}, []string{"kind", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses, cacheInvalidated,
		sweepDuration, releaseTransitions, releaseFailures, submissionChanges, notifications, goroutines)

	return &MetricsService{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration:    requestDuration,
		requestTotal:       requestTotal,
		cacheLatency:       cacheLatency,
		cacheWrite:         cacheWrite,
		cacheHitRatio:      cacheHitRatio,
		cacheHits:          cacheHits,
		cacheMisses:        cacheMisses,
		cacheInvalidated:   cacheInvalidated,
		sweepDuration:      sweepDuration,
		releaseTransitions: releaseTransitions,
		releaseFailures:    releaseFailures,
		submissionChanges:  submissionChanges,
		notifications:      notifications,
	}
}

// Registry exposes the underlying registry for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	if total := hits + misses; total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// RecordCacheInvalidation counts dropped progress snapshots.
func (m *MetricsService) RecordCacheInvalidation(keys int) {
	if m == nil || keys <= 0 {
		return
	}
	m.cacheInvalidated.Add(float64(keys))
}

// ObserveSweep records one release sweep.
func (m *MetricsService) ObserveSweep(duration time.Duration) {
	if m == nil {
		return
	}
	m.sweepDuration.Observe(duration.Seconds())
}

// RecordRelease counts a release ("release") or un-release ("unrelease") flip.
func (m *MetricsService) RecordRelease(kind models.ContentKind, direction string) {
	if m == nil {
		return
	}
	m.releaseTransitions.WithLabelValues(string(kind), direction).Inc()
}

// RecordReleaseFailure counts a skipped entity update.
func (m *MetricsService) RecordReleaseFailure(kind models.ContentKind) {
	if m == nil {
		return
	}
	m.releaseFailures.WithLabelValues(string(kind)).Inc()
}

// RecordSubmissionTransition counts a workflow edge. from is empty for creations.
func (m *MetricsService) RecordSubmissionTransition(target models.SubmissionTarget, from, to models.SubmissionStatus) {
	if m == nil {
		return
	}
	if from == "" {
		from = "NONE"
	}
	m.submissionChanges.WithLabelValues(string(target), string(from), string(to)).Inc()
}

// RecordNotification counts a notification outcome ("sent" or "failed").
func (m *MetricsService) RecordNotification(kind models.NotificationKind, outcome string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(string(kind), outcome).Inc()
}
