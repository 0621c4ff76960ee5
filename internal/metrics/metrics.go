// Package metrics exposes prometheus collectors for the batch collector and
// the record cache.
package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "batchloader"

const (
	MetricLookupsSubmitted = "lookups_submitted_total"
	MetricBatchesExecuted  = "batches_executed_total"
	MetricKeysFetched      = "keys_fetched_total"
	MetricKeysDeduplicated = "keys_deduplicated_total"
	MetricFetchErrors      = "fetch_errors_total"
	MetricBatchSize        = "batch_size"
	MetricCacheHits        = "cache_hits_total"
	MetricCacheMisses      = "cache_misses_total"
	MetricRangeQueries     = "range_queries_total"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	LookupsSubmitted *prometheus.CounterVec
	BatchesExecuted  *prometheus.CounterVec
	KeysFetched      *prometheus.CounterVec
	KeysDeduplicated *prometheus.CounterVec
	FetchErrors      *prometheus.CounterVec
	BatchSize        *prometheus.HistogramVec
	CacheHits        *prometheus.CounterVec
	CacheMisses      *prometheus.CounterVec
	RangeQueries     *prometheus.CounterVec
}

// New creates the collectors and registers them with reg
func New(reg prometheus.Registerer) *Metrics {
	entity := []string{"datasource", "entity"}

	m := &Metrics{
		LookupsSubmitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricLookupsSubmitted,
			Help:      "Point lookups submitted to the collector.",
		}, entity),
		BatchesExecuted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricBatchesExecuted,
			Help:      "Consolidated fetches sent to the backend.",
		}, entity),
		KeysFetched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricKeysFetched,
			Help:      "Distinct keys sent to the backend.",
		}, entity),
		KeysDeduplicated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricKeysDeduplicated,
			Help:      "Lookups served by a key already pending in the same batch.",
		}, entity),
		FetchErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricFetchErrors,
			Help:      "Consolidated fetches that failed.",
		}, entity),
		BatchSize: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      MetricBatchSize,
			Help:      "Distinct keys per consolidated fetch.",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
		}, entity),
		CacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricCacheHits,
			Help:      "Keys answered from the record cache.",
		}, []string{"entity"}),
		CacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricCacheMisses,
			Help:      "Keys not found in the record cache.",
		}, []string{"entity"}),
		RangeQueries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      MetricRangeQueries,
			Help:      "Bulk-range queries, executed without batching.",
		}, entity),
	}

	reg.MustRegister(
		m.LookupsSubmitted,
		m.BatchesExecuted,
		m.KeysFetched,
		m.KeysDeduplicated,
		m.FetchErrors,
		m.BatchSize,
		m.CacheHits,
		m.CacheMisses,
		m.RangeQueries,
	)
	return m
}

// Submitted records one submitted lookup
func (m *Metrics) Submitted(datasource, entity string, duplicate bool) {
	if m == nil {
		return
	}
	m.LookupsSubmitted.WithLabelValues(datasource, entity).Inc()
	if duplicate {
		m.KeysDeduplicated.WithLabelValues(datasource, entity).Inc()
	}
}

// Batch records one consolidated fetch
func (m *Metrics) Batch(datasource, entity string, keys int, err error) {
	if m == nil {
		return
	}
	m.BatchesExecuted.WithLabelValues(datasource, entity).Inc()
	m.KeysFetched.WithLabelValues(datasource, entity).Add(float64(keys))
	m.BatchSize.WithLabelValues(datasource, entity).Observe(float64(keys))
	if err != nil {
		m.FetchErrors.WithLabelValues(datasource, entity).Inc()
	}
}

// Cache records cache hits and misses for one fetch
func (m *Metrics) Cache(entity string, hits, misses int) {
	if m == nil {
		return
	}
	m.CacheHits.WithLabelValues(entity).Add(float64(hits))
	m.CacheMisses.WithLabelValues(entity).Add(float64(misses))
}

// Range records one bulk-range query
func (m *Metrics) Range(datasource, entity string) {
	if m == nil {
		return
	}
	m.RangeQueries.WithLabelValues(datasource, entity).Inc()
}
