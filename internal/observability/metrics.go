package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus instruments for the extraction store.
type Metrics struct {
	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
	CachePutsTotal   *prometheus.CounterVec

	SessionsRecordedTotal *prometheus.CounterVec

	RetentionDeletedTotal *prometheus.CounterVec
	RetentionErrorsTotal  *prometheus.CounterVec

	ComputeDuration prometheus.Histogram
}

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Init registers the instruments on the default registry, once per process.
func Init() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = &Metrics{
			CacheHitsTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "extraction_store_cache_hits_total",
				Help: "Cache lookups that returned a stored result",
			}),
			CacheMissesTotal: promauto.NewCounter(prometheus.CounterOpts{
				Name: "extraction_store_cache_misses_total",
				Help: "Cache lookups that required a fresh computation",
			}),
			CachePutsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "extraction_store_cache_puts_total",
				Help: "Cache stores by outcome",
			}, []string{"outcome"}),
			SessionsRecordedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "extraction_store_sessions_recorded_total",
				Help: "Ledger appends by attempt status",
			}, []string{"status"}),
			RetentionDeletedTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "extraction_store_retention_deleted_total",
				Help: "Rows deleted by retention sweeps, per entity",
			}, []string{"entity"}),
			RetentionErrorsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
				Name: "extraction_store_retention_errors_total",
				Help: "Per-row retention failures, per entity",
			}, []string{"entity"}),
			ComputeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
				Name:    "extraction_store_compute_duration_seconds",
				Help:    "Duration of external extraction computations",
				Buckets: prometheus.DefBuckets,
			}),
		}
	})
	return globalMetrics
}
