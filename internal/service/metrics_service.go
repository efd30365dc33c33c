package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/academy-api/internal/models"
)

const (
	outcomeCommitted = "committed"
	outcomeFailed    = "failed"
)

// lifecycleMetrics is the instrumentation surface used by the lifecycle engine.
type lifecycleMetrics interface {
	ObserveTransition(from, to models.StudentStatus, outcome string, duration time.Duration)
	ObserveCreditApplied(amount int64)
	ObserveTrialsExpired(count int)
}

type nopMetrics struct{}

func (nopMetrics) ObserveTransition(models.StudentStatus, models.StudentStatus, string, time.Duration) {}
func (nopMetrics) ObserveCreditApplied(int64) {}
func (nopMetrics) ObserveTrialsExpired(int) {}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
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
	transitionTotal    *prometheus.CounterVec
	transitionDuration *prometheus.HistogramVec
	creditsApplied     prometheus.Counter
	creditAmount       prometheus.Counter
	trialsExpired      prometheus.Counter

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	transitionFailures   uint64
	creditAppliedCount   uint64
	creditAmountTotal    int64
	trialsExpiredCount   uint64

	mu          sync.Mutex
	transitions map[string]uint64
}

// NewMetricsService registers core Prometheus collectors.
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
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	transitionTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "student_transitions_total",
		Help: "Student lifecycle transitions by outcome",
	}, []string{"from", "to", "outcome"})

	transitionDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "student_transition_duration_seconds",
		Help:    "Duration of student lifecycle transitions including cascades",
		Buckets: prometheus.DefBuckets,
	}, []string{"from", "to"})

	creditsApplied := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credit_applications_total",
		Help: "Number of credit applications against invoices",
	})

	creditAmount := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "credit_applied_amount_total",
		Help: "Sum of credit amounts applied against invoices",
	})

	trialsExpired := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "trials_expired_total",
		Help: "Trial students moved to pending by housekeeping",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		transitionTotal, transitionDuration, creditsApplied, creditAmount, trialsExpired, goroutines)

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
		transitionTotal:    transitionTotal,
		transitionDuration: transitionDuration,
		creditsApplied:     creditsApplied,
		creditAmount:       creditAmount,
		trialsExpired:      trialsExpired,
		transitions:        make(map[string]uint64),
	}
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

// ObserveHTTPRequest records request metrics and aggregates simple stats for snapshots.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
	atomic.AddUint64(&m.requestCount, 1)
	atomic.AddUint64(&m.requestDurationTotal, uint64(duration.Nanoseconds()))
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

// ObserveTransition counts a lifecycle transition and its duration.
func (m *MetricsService) ObserveTransition(from, to models.StudentStatus, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	fromLabel := string(from)
	if fromLabel == "" {
		fromLabel = "new"
	}
	m.transitionTotal.WithLabelValues(fromLabel, string(to), outcome).Inc()
	m.transitionDuration.WithLabelValues(fromLabel, string(to)).Observe(duration.Seconds())
	if outcome != outcomeCommitted {
		atomic.AddUint64(&m.transitionFailures, 1)
		return
	}
	m.mu.Lock()
	m.transitions[fromLabel+"->"+string(to)]++
	m.mu.Unlock()
}

// ObserveCreditApplied records one credit application.
func (m *MetricsService) ObserveCreditApplied(amount int64) {
	if m == nil {
		return
	}
	m.creditsApplied.Inc()
	m.creditAmount.Add(float64(amount))
	atomic.AddUint64(&m.creditAppliedCount, 1)
	atomic.AddInt64(&m.creditAmountTotal, amount)
}

// ObserveTrialsExpired records trials moved to pending.
func (m *MetricsService) ObserveTrialsExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.trialsExpired.Add(float64(count))
	atomic.AddUint64(&m.trialsExpiredCount, uint64(count))
}

// Snapshot returns aggregated metrics for the metrics endpoint.
func (m *MetricsService) Snapshot() models.SystemMetrics {
	if m == nil {
		return models.SystemMetrics{}
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	requests := atomic.LoadUint64(&m.requestCount)
	reqDuration := atomic.LoadUint64(&m.requestDurationTotal)

	var cacheRatio float64
	if totalLookups := hits + misses; totalLookups > 0 {
		cacheRatio = float64(hits) / float64(totalLookups)
	}
	var avgRequestMs float64
	if requests > 0 {
		avgRequestMs = float64(reqDuration) / float64(requests) / float64(time.Millisecond)
	}

	m.mu.Lock()
	transitions := make(map[string]uint64, len(m.transitions))
	for k, v := range m.transitions {
		transitions[k] = v
	}
	m.mu.Unlock()

	return models.SystemMetrics{
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		Transitions:              transitions,
		TransitionFailures:       atomic.LoadUint64(&m.transitionFailures),
		CreditsApplied:           atomic.LoadUint64(&m.creditAppliedCount),
		CreditAmountApplied:      atomic.LoadInt64(&m.creditAmountTotal),
		TrialsExpired:            atomic.LoadUint64(&m.trialsExpiredCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
