package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service. All helpers are
// nil-safe so components can run without metrics wired (tests, tools).
type Metrics struct {
	SyncRuns           *prometheus.CounterVec
	SyncDuration       prometheus.Histogram
	SyncRecordsLoaded  prometheus.Counter
	SyncRecordsSkipped prometheus.Counter

	ResolverLookups  *prometheus.CounterVec
	CacheEvents      *prometheus.CounterVec
	UpstreamRequests *prometheus.CounterVec
	UpstreamLatency  prometheus.Histogram
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		SyncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skyreg_sync_runs_total",
			Help: "Registry sync runs by result.",
		}, []string{"result"}),
		SyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "skyreg_sync_duration_seconds",
			Help:    "Wall time of full registry sync runs.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
		SyncRecordsLoaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skyreg_sync_records_loaded_total",
			Help: "Canonical records loaded across all sync runs.",
		}),
		SyncRecordsSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Name: "skyreg_sync_records_skipped_total",
			Help: "Source records skipped for missing a registration code.",
		}),
		ResolverLookups: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skyreg_resolver_lookups_total",
			Help: "Resolver lookups by tier and outcome.",
		}, []string{"tier", "outcome"}),
		CacheEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skyreg_cache_events_total",
			Help: "Cache hits and misses by cache name.",
		}, []string{"cache", "event"}),
		UpstreamRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "skyreg_upstream_requests_total",
			Help: "Upstream registry requests by result.",
		}, []string{"result"}),
		UpstreamLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "skyreg_upstream_latency_seconds",
			Help:    "Latency of upstream registry calls.",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) RecordSyncRun(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.SyncRuns.WithLabelValues(result).Inc()
	m.SyncDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) AddRecordsLoaded(n int) {
	if m == nil {
		return
	}
	m.SyncRecordsLoaded.Add(float64(n))
}

func (m *Metrics) AddRecordsSkipped(n int) {
	if m == nil {
		return
	}
	m.SyncRecordsSkipped.Add(float64(n))
}

func (m *Metrics) RecordLookup(tier, outcome string) {
	if m == nil {
		return
	}
	m.ResolverLookups.WithLabelValues(tier, outcome).Inc()
}

func (m *Metrics) RecordCacheHit(cache string) {
	if m == nil {
		return
	}
	m.CacheEvents.WithLabelValues(cache, "hit").Inc()
}

func (m *Metrics) RecordCacheMiss(cache string) {
	if m == nil {
		return
	}
	m.CacheEvents.WithLabelValues(cache, "miss").Inc()
}

func (m *Metrics) RecordUpstream(result string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.UpstreamRequests.WithLabelValues(result).Inc()
	m.UpstreamLatency.Observe(elapsed.Seconds())
}
