package viewport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lmia-map/internal/cluster"
	"github.com/sells-group/lmia-map/internal/model"
)

var testPeriod = model.Period{Year: 2024, Quarter: "Q1"}

type fakeSource struct {
	data map[string][]model.EmployerRecord
	err  error
}

func (f *fakeSource) Get(ctx context.Context, p model.Period) ([]model.EmployerRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	recs, ok := f.data[p.String()]
	if !ok {
		return nil, errors.New("no such period")
	}
	return recs, nil
}

type blockingSource struct{}

func (blockingSource) Get(ctx context.Context, _ model.Period) ([]model.EmployerRecord, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type stubClusterer struct {
	fellBack bool
}

func (s stubClusterer) Cluster(_ context.Context, points []model.EmployerRecord, r float64, m int) ([]model.Cluster, bool) {
	if s.fellBack {
		return cluster.Unclustered(points), true
	}
	return cluster.Greedy(points, r, m), false
}

type recordingRecorder struct {
	mu       sync.Mutex
	queries  []model.StrategyName
	failures int
}

func (r *recordingRecorder) ObserveQuery(s model.StrategyName, _ time.Duration, _, _ int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.queries = append(r.queries, s)
}

func (r *recordingRecorder) LoadFailed(model.Period) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures++
}

func employer(id, province, city string, lat, lng float64, positions int) model.EmployerRecord {
	return model.EmployerRecord{
		ID:                id,
		EmployerName:      id,
		ProvinceTerritory: province,
		City:              city,
		Latitude:          lat,
		Longitude:         lng,
		TotalPositions:    positions,
		TotalLMIAs:        1,
	}
}

func sampleRecords() []model.EmployerRecord {
	return []model.EmployerRecord{
		employer("on-1", "Ontario", "Toronto", 43.6532, -79.3832, 3),
		employer("on-2", "Ontario", "Toronto", 43.6532, -79.3832, 10),
		employer("on-3", "Ontario", "Ottawa", 45.4215, -75.6972, 7),
		employer("bc-1", "British Columbia", "Vancouver", 49.2827, -123.1207, 2),
		employer("ab-1", "Alberta", "Calgary", 51.0447, -114.0719, 5),
		employer("yt-1", "Yukon", "Whitehorse", 60.7212, -135.0568, 1),
	}
}

func newTestEngine(recs []model.EmployerRecord, opts Options) (*Engine, *recordingRecorder) {
	src := &fakeSource{data: map[string][]model.EmployerRecord{testPeriod.String(): recs}}
	rec := &recordingRecorder{}
	return NewEngine(src, stubClusterer{}, rec, opts), rec
}

func query(bbox model.BoundingBox, zoom int) model.ViewportQuery {
	return model.ViewportQuery{BBox: bbox, Zoom: zoom, Period: testPeriod}
}

func TestQuery_TotalInvariantAcrossZooms(t *testing.T) {
	eng, _ := newTestEngine(sampleRecords(), DefaultOptions())
	ontario := model.BoundingBox{North: 47, South: 42, East: -74, West: -81}

	for z := 0; z <= 18; z++ {
		resp := eng.Query(context.Background(), query(ontario, z))
		assert.Equal(t, 3, resp.Total, "zoom %d", z)
		assert.LessOrEqual(t, resp.Len(), SelectStrategy(z).MaxPoints, "zoom %d", z)
		assert.Equal(t, resp.Len(), resp.Shown, "zoom %d", z)
	}
}

func TestQuery_CanadaAtZoom3_LargeDataset(t *testing.T) {
	recs := make([]model.EmployerRecord, 0, 50000)
	provinces := []string{"Ontario", "Quebec", "Alberta", "British Columbia", "Manitoba"}
	for i := range 50000 {
		p := provinces[i%len(provinces)]
		recs = append(recs, employer(fmt.Sprintf("e%d", i), p, "X", 45+float64(i%100)*0.1, -100+float64(i%200)*0.1, i%37))
	}
	eng, _ := newTestEngine(recs, DefaultOptions())

	resp := eng.Query(context.Background(), query(model.CanadaBounds, 3))
	assert.Equal(t, model.StrategyRegionalSummary, resp.Strategy)
	assert.Equal(t, TypeMarkers, resp.Type)
	assert.Equal(t, 50000, resp.Total)
	assert.LessOrEqual(t, resp.Len(), 50)
	assert.Len(t, resp.Markers, 25, "5 provinces x top 5")
	assert.Len(t, resp.Regions, 5)
}

func TestQuery_RegionalSummaryTopN(t *testing.T) {
	eng, _ := newTestEngine(sampleRecords(), Options{RegionTopN: 2})

	resp := eng.Query(context.Background(), query(model.CanadaBounds, 4))
	require.Equal(t, model.StrategyRegionalSummary, resp.Strategy)
	assert.Equal(t, 6, resp.Total)

	ids := make([]string, len(resp.Markers))
	for i, m := range resp.Markers {
		ids[i] = m.ID
	}
	// Ontario keeps its two largest, in descending order; groups keep first-seen order.
	assert.Equal(t, []string{"on-2", "on-3", "bc-1", "ab-1", "yt-1"}, ids)

	require.Len(t, resp.Regions, 4)
	assert.Equal(t, "Ontario", resp.Regions[0].Province)
	assert.Equal(t, 3, resp.Regions[0].Employers)
	assert.Equal(t, 20, resp.Regions[0].Positions)
}

func TestQuery_CityClusters(t *testing.T) {
	eng, rec := newTestEngine(sampleRecords(), DefaultOptions())

	resp := eng.Query(context.Background(), query(model.CanadaBounds, 7))
	assert.Equal(t, TypeClusters, resp.Type)
	assert.Equal(t, model.StrategyCityClusters, resp.Strategy)
	assert.Equal(t, 6, resp.Total)
	// The two Toronto employers share a coordinate.
	require.Len(t, resp.Clusters, 5)
	assert.Equal(t, 2, resp.Clusters[0].Count)
	assert.False(t, resp.Fallback)
	assert.Equal(t, []model.StrategyName{model.StrategyCityClusters}, rec.queries)
}

func TestQuery_CityClustersFallbackFlag(t *testing.T) {
	src := &fakeSource{data: map[string][]model.EmployerRecord{testPeriod.String(): sampleRecords()}}
	eng := NewEngine(src, stubClusterer{fellBack: true}, nil, DefaultOptions())

	resp := eng.Query(context.Background(), query(model.CanadaBounds, 8))
	assert.True(t, resp.Fallback)
	assert.Len(t, resp.Clusters, 6)
	assert.Equal(t, 6, resp.Total)
}

func TestQuery_CityGroupMode(t *testing.T) {
	eng, _ := newTestEngine(sampleRecords(), Options{CityMode: CityModeGroup, CityTopN: 1})

	resp := eng.Query(context.Background(), query(model.CanadaBounds, 9))
	assert.Equal(t, TypeMarkers, resp.Type)
	assert.Equal(t, model.StrategyCityClusters, resp.Strategy)
	require.Len(t, resp.Markers, 5)
	assert.Equal(t, "on-2", resp.Markers[0].ID)
}

func TestQuery_IndividualMarkersTruncates(t *testing.T) {
	recs := make([]model.EmployerRecord, 1500)
	for i := range recs {
		recs[i] = employer(fmt.Sprintf("e%d", i), "Ontario", "Toronto", 43.65, -79.38, 1)
	}
	eng, _ := newTestEngine(recs, DefaultOptions())

	resp := eng.Query(context.Background(), query(model.BoundingBox{North: 44, South: 43, East: -79, West: -80}, 14))
	assert.Equal(t, model.StrategyIndividualMarkers, resp.Strategy)
	assert.Equal(t, 1500, resp.Total)
	assert.Len(t, resp.Markers, 1000)
	assert.Equal(t, "e0", resp.Markers[0].ID, "pass-through keeps input order")
}

func TestQuery_ClusterBudget(t *testing.T) {
	recs := make([]model.EmployerRecord, 800)
	for i := range recs {
		// Spread far enough that nothing clusters.
		recs[i] = employer(fmt.Sprintf("e%d", i), "Ontario", "X", 42+float64(i)*0.005, -80, 1)
	}
	eng, _ := newTestEngine(recs, DefaultOptions())

	resp := eng.Query(context.Background(), query(model.CanadaBounds, 6))
	assert.Equal(t, 800, resp.Total)
	assert.Len(t, resp.Clusters, 200)
}

func TestQuery_UnavailablePeriodIsEmpty(t *testing.T) {
	eng, rec := newTestEngine(sampleRecords(), DefaultOptions())
	q := query(model.CanadaBounds, 12)
	q.Period = model.Period{Year: 1999, Quarter: "Q1"}

	resp := eng.Query(context.Background(), q)
	assert.Equal(t, 0, resp.Total)
	assert.Equal(t, 0, resp.Len())
	assert.Equal(t, TypeMarkers, resp.Type)
	assert.Equal(t, 1, rec.failures)
}

func TestQuery_LoadTimeoutIsEmpty(t *testing.T) {
	eng := NewEngine(blockingSource{}, stubClusterer{}, nil, Options{LoadTimeout: 10 * time.Millisecond})

	resp := eng.Query(context.Background(), query(model.CanadaBounds, 7))
	assert.Equal(t, 0, resp.Total)
	assert.Equal(t, TypeClusters, resp.Type)
	assert.Empty(t, resp.Clusters)
}

func TestQuery_EmptyViewport(t *testing.T) {
	eng, _ := newTestEngine(sampleRecords(), DefaultOptions())
	atlantic := model.BoundingBox{North: 40, South: 30, East: -40, West: -50}

	resp := eng.Query(context.Background(), query(atlantic, 7))
	assert.Equal(t, 0, resp.Total)
	assert.Empty(t, resp.Clusters)
}

func TestResponse_MarshalJSON_Clusters(t *testing.T) {
	resp := &Response{Type: TypeClusters, Strategy: model.StrategyCityClusters}
	b, err := json.Marshal(resp)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(b, &body))
	assert.Equal(t, "clusters", body["type"])
	assert.Equal(t, []any{}, body["clusters"])
	assert.NotContains(t, body, "markers")
	assert.NotContains(t, body, "showing")
	assert.Equal(t, "city_clusters", body["strategy"])
	assert.EqualValues(t, 0, body["total"])
}

func TestResponse_MarshalJSON_Markers(t *testing.T) {
	resp := &Response{
		Type:     TypeMarkers,
		Total:    9,
		Shown:    1,
		Strategy: model.StrategyIndividualMarkers,
		Markers:  []model.EmployerRecord{employer("a", "Ontario", "Toronto", 1, 2, 3)},
	}
	b, err := json.Marshal(resp)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(b, &body))
	assert.EqualValues(t, 9, body["total"])
	assert.EqualValues(t, 1, body["showing"])
	assert.NotContains(t, body, "clusters")
	markers, ok := body["markers"].([]any)
	require.True(t, ok)
	assert.Len(t, markers, 1)
}

func TestFilterBBox_Inclusive(t *testing.T) {
	recs := []model.EmployerRecord{
		employer("edge", "X", "X", 50, -70, 1),
		employer("in", "X", "X", 45, -75, 1),
		employer("out", "X", "X", 50.01, -75, 1),
	}
	out := FilterBBox(recs, model.BoundingBox{North: 50, South: 40, East: -70, West: -80})
	require.Len(t, out, 2)
	assert.Equal(t, "edge", out[0].ID)
	assert.Equal(t, "in", out[1].ID)
}

func TestTopNPerGroup_StableTies(t *testing.T) {
	recs := []model.EmployerRecord{
		employer("a", "P", "C", 0, 0, 1),
		employer("b", "P", "C", 0, 0, 1),
		employer("c", "P", "C", 0, 0, 1),
	}
	out := TopNPerGroup(recs, 2, provinceKey)
	require.Len(t, out, 2)
	assert.Equal(t, "a", out[0].ID)
	assert.Equal(t, "b", out[1].ID)
	assert.Equal(t, "a", recs[0].ID, "input untouched")
}

func TestEngine_Records(t *testing.T) {
	eng, _ := newTestEngine(sampleRecords(), DefaultOptions())

	recs, err := eng.Records(context.Background(), testPeriod, model.BoundingBox{North: 47, South: 42, East: -74, West: -81})
	require.NoError(t, err)
	assert.Len(t, recs, 3)

	_, err = eng.Records(context.Background(), model.Period{Year: 1900, Quarter: "Q1"}, model.CanadaBounds)
	assert.Error(t, err)
}
