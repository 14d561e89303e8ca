// Package metrics exposes Prometheus collectors for the viewport pipeline,
// the dataset cache and the HTTP layer.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/sells-group/lmia-map/internal/dataset"
	"github.com/sells-group/lmia-map/internal/gazetteer"
	"github.com/sells-group/lmia-map/internal/model"
)

const namespace = "lmia"

var durationBuckets = []float64{1, 5, 10, 20, 50, 100, 200, 500, 1000, 2000}

// Metrics holds the collectors registered on one registry.
type Metrics struct {
	registry *prometheus.Registry

	QueriesTotal       *prometheus.CounterVec
	QueryDurationMs    *prometheus.HistogramVec
	QueryShown         *prometheus.HistogramVec
	EmptyResultsTotal  prometheus.Counter
	LoadFailuresTotal  *prometheus.CounterVec
	ClusterFallbacks   *prometheus.CounterVec
	HTTPRequestsTotal  *prometheus.CounterVec
	HTTPDurationMs     *prometheus.HistogramVec
	RespCacheHitsTotal prometheus.Counter
	RespCacheMissTotal prometheus.Counter
}

// New creates and registers the collectors on a fresh registry that also
// carries the Go runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		QueriesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewport_queries_total",
			Help:      "Viewport queries served, by render strategy.",
		}, []string{"strategy"}),
		QueryDurationMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "viewport_query_duration_ms",
			Help:      "Viewport query duration in milliseconds.",
			Buckets:   durationBuckets,
		}, []string{"strategy"}),
		QueryShown: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "viewport_payload_items",
			Help:      "Clusters or markers returned per query.",
			Buckets:   []float64{0, 10, 50, 100, 200, 500, 1000},
		}, []string{"strategy"}),
		EmptyResultsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "viewport_empty_results_total",
			Help:      "Queries whose viewport contained no employers.",
		}),
		LoadFailuresTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dataset_load_failures_total",
			Help:      "Queries degraded to an empty result because the period failed to load.",
		}, []string{"period"}),
		ClusterFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cluster_fallbacks_total",
			Help:      "Clustering requests answered with unclustered singletons.",
		}, []string{"reason"}),
		HTTPRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		HTTPDurationMs: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_ms",
			Help:      "HTTP request duration in milliseconds.",
			Buckets:   durationBuckets,
		}, []string{"route"}),
		RespCacheHitsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_hits_total",
			Help:      "Redis response cache hits.",
		}),
		RespCacheMissTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_cache_misses_total",
			Help:      "Redis response cache misses, errors included.",
		}),
	}

	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.QueriesTotal,
		m.QueryDurationMs,
		m.QueryShown,
		m.EmptyResultsTotal,
		m.LoadFailuresTotal,
		m.ClusterFallbacks,
		m.HTTPRequestsTotal,
		m.HTTPDurationMs,
		m.RespCacheHitsTotal,
		m.RespCacheMissTotal,
	)
	return m
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveQuery records one served viewport query.
func (m *Metrics) ObserveQuery(strategy model.StrategyName, elapsed time.Duration, total, shown int) {
	s := string(strategy)
	m.QueriesTotal.WithLabelValues(s).Inc()
	m.QueryDurationMs.WithLabelValues(s).Observe(float64(elapsed.Microseconds()) / 1000)
	m.QueryShown.WithLabelValues(s).Observe(float64(shown))
	if total == 0 {
		m.EmptyResultsTotal.Inc()
	}
}

// LoadFailed records a query degraded by a dataset load failure.
func (m *Metrics) LoadFailed(period model.Period) {
	m.LoadFailuresTotal.WithLabelValues(period.String()).Inc()
}

// ClusterFallback records a clustering fallback. It matches the Offloader
// fallback hook signature.
func (m *Metrics) ClusterFallback(reason string) {
	m.ClusterFallbacks.WithLabelValues(reason).Inc()
}

// ObserveHTTP records one HTTP response.
func (m *Metrics) ObserveHTTP(route string, code int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(code)).Inc()
	m.HTTPDurationMs.WithLabelValues(route).Observe(float64(elapsed.Microseconds()) / 1000)
}

// ResponseCache records a response cache lookup.
func (m *Metrics) ResponseCache(hit bool) {
	if hit {
		m.RespCacheHitsTotal.Inc()
		return
	}
	m.RespCacheMissTotal.Inc()
}

// CacheStatsSource reports dataset cache counters.
type CacheStatsSource interface {
	Stats() dataset.CacheStats
}

// RegisterDatasetCache exports the cache's counters, read at scrape time.
func (m *Metrics) RegisterDatasetCache(src CacheStatsSource) {
	counter := func(name, help string, read func(dataset.CacheStats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      name,
			Help:      help,
		}, func() float64 { return float64(read(src.Stats())) })
	}
	m.registry.MustRegister(
		counter("dataset_cache_hits_total", "Dataset cache hits.", func(s dataset.CacheStats) int64 { return s.Hits }),
		counter("dataset_cache_misses_total", "Dataset cache misses.", func(s dataset.CacheStats) int64 { return s.Misses }),
		counter("dataset_cache_loads_total", "Dataset loads started.", func(s dataset.CacheStats) int64 { return s.Loads }),
		counter("dataset_cache_load_errors_total", "Dataset loads that failed.", func(s dataset.CacheStats) int64 { return s.LoadFailures }),
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dataset_cache_entries",
			Help:      "Periods currently cached.",
		}, func() float64 { return float64(src.Stats().Entries) }),
	)
}

// ResolverStatsSource reports gazetteer resolution counters.
type ResolverStatsSource interface {
	Stats() gazetteer.ResolverStats
}

// RegisterGazetteer exports gazetteer resolutions by precision.
func (m *Metrics) RegisterGazetteer(src ResolverStatsSource) {
	m.registry.MustRegister(&resolverCollector{
		src: src,
		desc: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "gazetteer", "resolutions_total"),
			"Gazetteer resolutions by precision.",
			[]string{"precision"}, nil,
		),
	})
}

type resolverCollector struct {
	src  ResolverStatsSource
	desc *prometheus.Desc
}

func (c *resolverCollector) Describe(ch chan<- *prometheus.Desc) { ch <- c.desc }

func (c *resolverCollector) Collect(ch chan<- prometheus.Metric) {
	s := c.src.Stats()
	for _, v := range []struct {
		label string
		n     int64
	}{
		{string(gazetteer.PrecisionCity), s.City},
		{string(gazetteer.PrecisionProvince), s.Province},
		{string(gazetteer.PrecisionNational), s.National},
	} {
		ch <- prometheus.MustNewConstMetric(c.desc, prometheus.CounterValue, float64(v.n), v.label)
	}
}
