package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/ftpfs/pkg/stat/cache"
)

// statCacheMetrics is the Prometheus implementation of the cache.Metrics
// interface.
//
// This implementation collects metrics about stat cache behavior:
//   - Hit and miss counts
//   - Eviction counts
//   - Current entry count
type statCacheMetrics struct {
	hits      prometheus.Counter
	misses    prometheus.Counter
	evictions prometheus.Counter
	entries   prometheus.Gauge
}

// NewStatCacheMetrics creates a new Prometheus-backed stat cache metrics
// instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called), which
// causes the cache to use its built-in no-op implementation.
func NewStatCacheMetrics() cache.Metrics {
	if !IsEnabled() {
		return nil // Cache will use its no-op metrics
	}

	reg := GetRegistry()

	return &statCacheMetrics{
		hits: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ftpfs_stat_cache_hits_total",
				Help: "Total number of stat cache hits",
			},
		),
		misses: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ftpfs_stat_cache_misses_total",
				Help: "Total number of stat cache misses",
			},
		),
		evictions: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "ftpfs_stat_cache_evictions_total",
				Help: "Total number of stat cache evictions (LRU and expiry)",
			},
		),
		entries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "ftpfs_stat_cache_entries",
				Help: "Current number of entries in the stat cache",
			},
		),
	}
}

// RecordHit implements cache.Metrics.RecordHit
func (m *statCacheMetrics) RecordHit() {
	m.hits.Inc()
}

// RecordMiss implements cache.Metrics.RecordMiss
func (m *statCacheMetrics) RecordMiss() {
	m.misses.Inc()
}

// RecordEviction implements cache.Metrics.RecordEviction
func (m *statCacheMetrics) RecordEviction() {
	m.evictions.Inc()
}

// RecordSize implements cache.Metrics.RecordSize
func (m *statCacheMetrics) RecordSize(entries int) {
	m.entries.Set(float64(entries))
}
