package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lmia-map/internal/config"
	"github.com/sells-group/lmia-map/internal/gazetteer"
	"github.com/sells-group/lmia-map/internal/model"
)

func TestOpenGazetteer_Static(t *testing.T) {
	gz, err := openGazetteer(context.Background(), config.GazetteerConfig{Driver: "static"})
	require.NoError(t, err)
	defer gz.Close()

	assert.Nil(t, gz.SQLite)
	assert.Nil(t, gz.Postgres)
	m := gz.Resolver.Resolve(context.Background(), "ON", "Toronto")
	assert.Equal(t, gazetteer.PrecisionCity, m.Precision)
}

func TestOpenGazetteer_SQLite(t *testing.T) {
	ctx := context.Background()
	gz, err := openGazetteer(ctx, config.GazetteerConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "gazetteer.db"),
	})
	require.NoError(t, err)
	defer gz.Close()

	require.NotNil(t, gz.SQLite)
	// Empty database: the static table still answers.
	m := gz.Resolver.Resolve(ctx, "Manitoba", "Winnipeg")
	assert.Equal(t, gazetteer.PrecisionCity, m.Precision)
	assert.Equal(t, "static", m.Source)
}

func TestOpenGazetteer_UnknownDriver(t *testing.T) {
	_, err := openGazetteer(context.Background(), config.GazetteerConfig{Driver: "mongo"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown driver")
}

func TestOpenGazetteer_PostgresNeedsURL(t *testing.T) {
	_, err := openGazetteer(context.Background(), config.GazetteerConfig{Driver: "postgres"})
	assert.Error(t, err)
}

func TestBuildApp_ServesEmployers(t *testing.T) {
	c := testConfig(t)
	app, err := buildApp(context.Background(), c)
	require.NoError(t, err)
	defer app.Close()

	assert.Nil(t, app.RespCache, "no redis configured")
	h := app.Server.Routes()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/employers?north=83&south=41&east=-52&west=-141&zoom=12&year=2024&quarter=Q1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Type     string `json:"type"`
		Total    int    `json:"total"`
		Strategy string `json:"strategy"`
		Markers  []model.EmployerRecord
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "markers", body.Type)
	assert.Equal(t, 3, body.Total)
	assert.Equal(t, string(model.StrategyIndividualMarkers), body.Strategy)
	assert.Len(t, body.Markers, 3)

	// Only Winnipeg falls inside this box.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/employers?north=51&south=49&east=-96&west=-98&zoom=12&year=2024&quarter=Q1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)

	st := app.Cache.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(1), st.Loads)
}

func TestBuildApp_MetricsExposed(t *testing.T) {
	app, err := buildApp(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	h := app.Server.Routes()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/employers?north=83&south=41&east=-52&west=-141&zoom=3&year=2024&quarter=Q1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	out := rec.Body.String()
	assert.Contains(t, out, "lmia_dataset_cache_loads_total 1")
	assert.Contains(t, out, `lmia_gazetteer_resolutions_total{precision="city"}`)
	assert.Contains(t, out, "lmia_viewport_queries_total")
}

func TestBuildApp_GridClustering(t *testing.T) {
	c := testConfig(t)
	c.Viewport.ClusterAlgorithm = "grid"
	c.Viewport.GridCellDegrees = 50
	app, err := buildApp(context.Background(), c)
	require.NoError(t, err)
	defer app.Close()

	rec := httptest.NewRecorder()
	app.Server.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/employers?north=83&south=41&east=-52&west=-141&zoom=7&year=2024&quarter=Q1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Type     string          `json:"type"`
		Total    int             `json:"total"`
		Clusters []model.Cluster `json:"clusters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "clusters", body.Type)
	assert.Equal(t, 3, body.Total)
	count := 0
	for _, cl := range body.Clusters {
		count += cl.Count
	}
	assert.Equal(t, 3, count)
}

func TestBuildApp_GridHonoursMinClusterSize(t *testing.T) {
	c := testConfig(t)
	c.Viewport.CityMode = "cluster"
	c.Viewport.ClusterAlgorithm = "grid"
	c.Viewport.GridCellDegrees = 50
	c.Viewport.MinClusterSize = 4
	app, err := buildApp(context.Background(), c)
	require.NoError(t, err)
	defer app.Close()

	rec := httptest.NewRecorder()
	app.Server.Routes().ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/api/employers?north=83&south=41&east=-52&west=-141&zoom=7&year=2024&quarter=Q1", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Clusters []model.Cluster `json:"clusters"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Clusters, 3, "one three-point cell below the minimum splits into singletons")
	for _, cl := range body.Clusters {
		assert.Equal(t, 1, cl.Count)
	}
}

func TestCacheVariant(t *testing.T) {
	base := config.ViewportConfig{CityMode: "cluster", ClusterAlgorithm: "greedy", GridCellDegrees: 0.5, RegionTopN: 5, CityTopN: 10, MinClusterSize: 2}
	grid := base
	grid.ClusterAlgorithm = "grid"
	group := base
	group.CityMode = "group"
	topN := base
	topN.RegionTopN = 8

	seen := map[string]bool{}
	for _, vc := range []config.ViewportConfig{base, grid, group, topN} {
		seen[cacheVariant(vc)] = true
	}
	assert.Len(t, seen, 4)
	assert.Equal(t, cacheVariant(base), cacheVariant(base))
}

func TestBuildApp_UnreachableRedisDegrades(t *testing.T) {
	c := testConfig(t)
	c.Redis.Addr = "127.0.0.1:1"
	app, err := buildApp(context.Background(), c)
	require.NoError(t, err)
	defer app.Close()
	assert.Nil(t, app.RespCache)
}

func TestAppPreload(t *testing.T) {
	app, err := buildApp(context.Background(), testConfig(t))
	require.NoError(t, err)
	defer app.Close()

	app.preload(context.Background(), []model.Period{{Year: 2024, Quarter: "Q1"}, {Year: 1999, Quarter: "Q1"}})
	st := app.Cache.Stats()
	assert.Equal(t, 1, st.Entries)
	assert.Equal(t, int64(1), st.LoadFailures)

	app.preload(context.Background(), nil)
}
