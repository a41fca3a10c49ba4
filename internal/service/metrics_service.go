package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/noah-isme/driving-school-api/internal/models"
)

// MetricsSnapshot is a lightweight view of the service counters.
type MetricsSnapshot struct {
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	CacheHits                uint64    `json:"cacheHits"`
	CacheMisses              uint64    `json:"cacheMisses"`
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	DiffsTotal               uint64    `json:"diffsTotal"`
	GuardKeepsTotal          uint64    `json:"guardKeepsTotal"`
	SavesTotal               uint64    `json:"savesTotal"`
	ActiveSessions           int64     `json:"activeSessions"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}

// MetricsService encapsulates Prometheus instrumentation and provides lightweight snapshots for API consumption.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	diffDuration    prometheus.Histogram
	diffBuckets     *prometheus.CounterVec
	deletionsKept   *prometheus.CounterVec
	pendingChanges  *prometheus.CounterVec
	saves           *prometheus.CounterVec
	activeSessions  prometheus.Gauge
	jobOutcomes     *prometheus.CounterVec

	cacheHitCount        uint64
	cacheMissCount       uint64
	requestCount         uint64
	requestDurationTotal uint64
	diffCount            uint64
	guardKeepCount       uint64
	saveCount            uint64
	sessionCount         int64
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

	diffDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "schedule_diff_duration_seconds",
		Help:    "Duration of schedule reconciliation runs",
		Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
	})

	diffBuckets := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_diff_slots_total",
		Help: "Slots placed in each reconciliation bucket",
	}, []string{"bucket"})

	deletionsKept := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_deletions_kept_total",
		Help: "Unmatched original slots kept by a deletion rule",
	}, []string{"rule", "category"})

	pendingChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_pending_changes_total",
		Help: "Pending schedule changes recorded by action type",
	}, []string{"action"})

	saves := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "schedule_saves_total",
		Help: "Schedule persistence rounds by outcome",
	}, []string{"outcome"})

	activeSessions := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "schedule_sessions_active",
		Help: "Open schedule edit sessions",
	})

	jobOutcomes := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "background_jobs_total",
		Help: "Background job executions by queue and outcome",
	}, []string{"queue", "outcome"})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(
		requestDuration, requestTotal,
		cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		diffDuration, diffBuckets, deletionsKept, pendingChanges, saves, activeSessions, jobOutcomes,
		goroutines,
	)

	handler := promhttp.HandlerFor(registry, promhttp.HandlerOpts{})

	return &MetricsService{
		registry:        registry,
		handler:         handler,
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		diffDuration:    diffDuration,
		diffBuckets:     diffBuckets,
		deletionsKept:   deletionsKept,
		pendingChanges:  pendingChanges,
		saves:           saves,
		activeSessions:  activeSessions,
		jobOutcomes:     jobOutcomes,
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

// Registry exposes the underlying registry.
func (m *MetricsService) Registry() *prometheus.Registry {
	return m.registry
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
	if m.cacheLatency != nil {
		m.cacheLatency.Observe(duration.Seconds())
	}
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	misses := atomic.LoadUint64(&m.cacheMissCount)
	total := hits + misses
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil || m.cacheWrite == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDiff records a reconciliation run and the size of each bucket.
func (m *MetricsService) ObserveDiff(result models.DiffResult, duration time.Duration) {
	if m == nil {
		return
	}
	m.diffDuration.Observe(duration.Seconds())
	m.diffBuckets.WithLabelValues("create").Add(float64(len(result.ToCreate)))
	m.diffBuckets.WithLabelValues("update").Add(float64(len(result.ToUpdate)))
	m.diffBuckets.WithLabelValues("delete").Add(float64(len(result.ToDelete)))
	m.diffBuckets.WithLabelValues("keep").Add(float64(len(result.ToKeep)))
	atomic.AddUint64(&m.diffCount, 1)
}

// DeletionKept counts an unmatched slot that a deletion rule refused to delete.
func (m *MetricsService) DeletionKept(rule string, category models.SlotCategory) {
	if m == nil {
		return
	}
	m.deletionsKept.WithLabelValues(rule, string(category)).Inc()
	atomic.AddUint64(&m.guardKeepCount, 1)
}

// RecordPendingChange counts a change recorded in an edit session.
func (m *MetricsService) RecordPendingChange(action models.ActionType) {
	if m == nil {
		return
	}
	m.pendingChanges.WithLabelValues(string(action)).Inc()
}

// RecordSave counts a persistence round.
func (m *MetricsService) RecordSave(outcome string) {
	if m == nil {
		return
	}
	m.saves.WithLabelValues(outcome).Inc()
	atomic.AddUint64(&m.saveCount, 1)
}

// SetActiveSessions publishes the number of open edit sessions.
func (m *MetricsService) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.activeSessions.Set(float64(count))
	atomic.StoreInt64(&m.sessionCount, int64(count))
}

// RecordJob counts a background job outcome.
func (m *MetricsService) RecordJob(queue, outcome string) {
	if m == nil {
		return
	}
	m.jobOutcomes.WithLabelValues(queue, outcome).Inc()
}

// Snapshot returns aggregated metrics suitable for API consumers.
func (m *MetricsService) Snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
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

	return MetricsSnapshot{
		CacheHitRatio:            cacheRatio,
		CacheHits:                hits,
		CacheMisses:              misses,
		RequestsTotal:            requests,
		AverageRequestDurationMs: avgRequestMs,
		DiffsTotal:               atomic.LoadUint64(&m.diffCount),
		GuardKeepsTotal:          atomic.LoadUint64(&m.guardKeepCount),
		SavesTotal:               atomic.LoadUint64(&m.saveCount),
		ActiveSessions:           atomic.LoadInt64(&m.sessionCount),
		Goroutines:               runtime.NumGoroutine(),
		GeneratedAt:              time.Now().UTC(),
	}
}
