package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lmia-map/internal/dataset"
	"github.com/sells-group/lmia-map/internal/gazetteer"
	"github.com/sells-group/lmia-map/internal/model"
)

func TestObserveQuery(t *testing.T) {
	m := New()
	m.ObserveQuery(model.StrategyRegionalSummary, 12*time.Millisecond, 10, 5)
	m.ObserveQuery(model.StrategyRegionalSummary, time.Millisecond, 0, 0)
	m.ObserveQuery(model.StrategyIndividualMarkers, time.Millisecond, 3, 3)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("regional_summary")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.QueriesTotal.WithLabelValues("individual_markers")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.EmptyResultsTotal))
	assert.Equal(t, 2, testutil.CollectAndCount(m.QueryDurationMs))
}

func TestLoadFailedAndFallback(t *testing.T) {
	m := New()
	m.LoadFailed(model.Period{Year: 2024, Quarter: "Q3"})
	m.ClusterFallback("timeout")
	m.ClusterFallback("timeout")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.LoadFailuresTotal.WithLabelValues("2024-Q3")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.ClusterFallbacks.WithLabelValues("timeout")))
}

func TestObserveHTTPAndResponseCache(t *testing.T) {
	m := New()
	m.ObserveHTTP("/api/employers", 200, time.Millisecond)
	m.ObserveHTTP("/api/employers", 400, time.Millisecond)
	m.ResponseCache(true)
	m.ResponseCache(false)
	m.ResponseCache(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("/api/employers", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RespCacheHitsTotal))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RespCacheMissTotal))
}

type fakeCacheStats struct{ s dataset.CacheStats }

func (f *fakeCacheStats) Stats() dataset.CacheStats { return f.s }

type fakeResolverStats struct{ s gazetteer.ResolverStats }

func (f *fakeResolverStats) Stats() gazetteer.ResolverStats { return f.s }

func TestRegisteredSources(t *testing.T) {
	m := New()
	src := &fakeCacheStats{s: dataset.CacheStats{Entries: 2, Hits: 7, Misses: 3, Loads: 3, LoadFailures: 1}}
	m.RegisterDatasetCache(src)
	m.RegisterGazetteer(&fakeResolverStats{s: gazetteer.ResolverStats{City: 4, Province: 2, National: 1}})

	expected := `
# HELP lmia_dataset_cache_hits_total Dataset cache hits.
# TYPE lmia_dataset_cache_hits_total counter
lmia_dataset_cache_hits_total 7
# HELP lmia_dataset_cache_entries Periods currently cached.
# TYPE lmia_dataset_cache_entries gauge
lmia_dataset_cache_entries 2
# HELP lmia_gazetteer_resolutions_total Gazetteer resolutions by precision.
# TYPE lmia_gazetteer_resolutions_total counter
lmia_gazetteer_resolutions_total{precision="city"} 4
lmia_gazetteer_resolutions_total{precision="national"} 1
lmia_gazetteer_resolutions_total{precision="province"} 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected),
		"lmia_dataset_cache_hits_total", "lmia_dataset_cache_entries", "lmia_gazetteer_resolutions_total"))

	src.s.Hits = 9
	assert.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(`
# HELP lmia_dataset_cache_hits_total Dataset cache hits.
# TYPE lmia_dataset_cache_hits_total counter
lmia_dataset_cache_hits_total 9
`), "lmia_dataset_cache_hits_total"))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveQuery(model.StrategyCityClusters, time.Millisecond, 1, 1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `lmia_viewport_queries_total{strategy="city_clusters"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
