package viewport

import (
	"context"
	"encoding/json"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lmia-map/internal/model"
)

// Response types reported to the map client.
const (
	TypeClusters = "clusters"
	TypeMarkers  = "markers"
)

// CityMode selects how the city_clusters strategy summarizes dense areas.
type CityMode string

const (
	// CityModeCluster runs the proximity clusterer.
	CityModeCluster CityMode = "cluster"
	// CityModeGroup groups by (city, province) and keeps the top employers.
	CityModeGroup CityMode = "group"
)

// DatasetSource returns the full record set for a period.
type DatasetSource interface {
	Get(ctx context.Context, period model.Period) ([]model.EmployerRecord, error)
}

// Clusterer clusters points. The bool result reports a fallback to
// unclustered output.
type Clusterer interface {
	Cluster(ctx context.Context, points []model.EmployerRecord, radiusMeters float64, minClusterSize int) ([]model.Cluster, bool)
}

// Recorder observes query outcomes. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveQuery(strategy model.StrategyName, elapsed time.Duration, total, shown int)
	LoadFailed(period model.Period)
}

// Options tunes the engine.
type Options struct {
	RegionTopN     int
	CityTopN       int
	CityMode       CityMode
	MinClusterSize int
	LoadTimeout    time.Duration
}

// DefaultOptions returns the engine defaults.
func DefaultOptions() Options {
	return Options{
		RegionTopN:     5,
		CityTopN:       10,
		CityMode:       CityModeCluster,
		MinClusterSize: 2,
		LoadTimeout:    30 * time.Second,
	}
}

// RegionSummary aggregates every in-viewport employer of one province.
type RegionSummary struct {
	Province  string  `json:"province"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	Employers int     `json:"employers"`
	Positions int     `json:"positions"`
}

// Response is the envelope for one viewport query. Total is always the
// in-viewport record count before aggregation and truncation.
type Response struct {
	Type     string
	Total    int
	Shown    int
	Strategy model.StrategyName
	Clusters []model.Cluster
	Markers  []model.EmployerRecord
	Regions  []RegionSummary
	Fallback bool
}

// Len returns the payload length.
func (r *Response) Len() int {
	if r.Type == TypeClusters {
		return len(r.Clusters)
	}
	return len(r.Markers)
}

// MarshalJSON emits only the payload that matches Type, as an array even
// when empty.
func (r *Response) MarshalJSON() ([]byte, error) {
	type envelope struct {
		Type     string                  `json:"type"`
		Total    int                     `json:"total"`
		Shown    int                     `json:"shown"`
		Showing  *int                    `json:"showing,omitempty"`
		Strategy model.StrategyName      `json:"strategy"`
		Clusters *[]model.Cluster        `json:"clusters,omitempty"`
		Markers  *[]model.EmployerRecord `json:"markers,omitempty"`
		Regions  []RegionSummary         `json:"regions,omitempty"`
		Fallback bool                    `json:"fallback,omitempty"`
	}
	env := envelope{
		Type:     r.Type,
		Total:    r.Total,
		Shown:    r.Shown,
		Strategy: r.Strategy,
		Regions:  r.Regions,
		Fallback: r.Fallback,
	}
	if r.Type == TypeClusters {
		clusters := r.Clusters
		if clusters == nil {
			clusters = []model.Cluster{}
		}
		env.Clusters = &clusters
	} else {
		markers := r.Markers
		if markers == nil {
			markers = []model.EmployerRecord{}
		}
		env.Markers = &markers
		shown := r.Shown
		env.Showing = &shown
	}
	return json.Marshal(env)
}

// Engine answers viewport queries against cached period datasets.
type Engine struct {
	source    DatasetSource
	clusterer Clusterer
	recorder  Recorder
	opts      Options
}

// NewEngine creates an Engine. recorder may be nil.
func NewEngine(source DatasetSource, clusterer Clusterer, recorder Recorder, opts Options) *Engine {
	def := DefaultOptions()
	if opts.RegionTopN <= 0 {
		opts.RegionTopN = def.RegionTopN
	}
	if opts.CityTopN <= 0 {
		opts.CityTopN = def.CityTopN
	}
	if opts.CityMode == "" {
		opts.CityMode = def.CityMode
	}
	if opts.MinClusterSize <= 0 {
		opts.MinClusterSize = def.MinClusterSize
	}
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = def.LoadTimeout
	}
	return &Engine{source: source, clusterer: clusterer, recorder: recorder, opts: opts}
}

// Query runs one viewport request end to end. It never fails: a period that
// cannot be loaded yields an empty response.
func (e *Engine) Query(ctx context.Context, q model.ViewportQuery) *Response {
	start := time.Now()
	strategy := SelectStrategy(q.Zoom)

	resp := &Response{Type: e.typeFor(strategy), Strategy: strategy.Name}

	records, err := e.load(ctx, q.Period)
	if err != nil {
		zap.L().Warn("viewport: dataset unavailable, returning empty result",
			zap.String("period", q.Period.String()),
			zap.Error(err),
		)
		if e.recorder != nil {
			e.recorder.LoadFailed(q.Period)
		}
		return resp
	}

	visible := FilterBBox(records, q.BBox)
	resp.Total = len(visible)

	switch strategy.Name {
	case model.StrategyRegionalSummary:
		resp.Markers = TopNPerGroup(visible, e.opts.RegionTopN, provinceKey)
		resp.Regions = SummarizeRegions(visible)
	case model.StrategyCityClusters:
		if e.opts.CityMode == CityModeGroup {
			resp.Markers = TopNPerGroup(visible, e.opts.CityTopN, cityKey)
		} else {
			clusters, fellBack := e.clusterer.Cluster(ctx, visible, float64(strategy.ClusterRadiusMeters), e.opts.MinClusterSize)
			resp.Clusters = clusters
			resp.Fallback = fellBack
		}
	default:
		resp.Markers = visible
	}

	if len(resp.Clusters) > strategy.MaxPoints {
		resp.Clusters = resp.Clusters[:strategy.MaxPoints]
	}
	if len(resp.Markers) > strategy.MaxPoints {
		resp.Markers = resp.Markers[:strategy.MaxPoints]
	}
	resp.Shown = resp.Len()

	elapsed := time.Since(start)
	zap.L().Debug("viewport: query served",
		zap.String("period", q.Period.String()),
		zap.Int("zoom", q.Zoom),
		zap.String("strategy", string(strategy.Name)),
		zap.Int("total", resp.Total),
		zap.Int("shown", resp.Shown),
		zap.Int("dataset", len(records)),
		zap.Duration("elapsed", elapsed),
	)
	if e.recorder != nil {
		e.recorder.ObserveQuery(strategy.Name, elapsed, resp.Total, resp.Shown)
	}
	return resp
}

// Records returns the period dataset filtered to bbox. Unlike Query it
// reports load errors to the caller.
func (e *Engine) Records(ctx context.Context, period model.Period, bbox model.BoundingBox) ([]model.EmployerRecord, error) {
	records, err := e.load(ctx, period)
	if err != nil {
		return nil, err
	}
	return FilterBBox(records, bbox), nil
}

func (e *Engine) load(ctx context.Context, period model.Period) ([]model.EmployerRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.LoadTimeout)
	defer cancel()
	return e.source.Get(ctx, period)
}

func (e *Engine) typeFor(s model.RenderStrategy) string {
	if s.Name == model.StrategyCityClusters && e.opts.CityMode != CityModeGroup {
		return TypeClusters
	}
	return TypeMarkers
}

// FilterBBox returns the records whose coordinate lies inside bbox, edges
// included, in input order.
func FilterBBox(records []model.EmployerRecord, bbox model.BoundingBox) []model.EmployerRecord {
	out := make([]model.EmployerRecord, 0)
	for _, r := range records {
		if bbox.Contains(r.Latitude, r.Longitude) {
			out = append(out, r)
		}
	}
	return out
}

func provinceKey(r model.EmployerRecord) string { return r.ProvinceTerritory }

func cityKey(r model.EmployerRecord) string { return r.City + "-" + r.ProvinceTerritory }

// TopNPerGroup groups records by key (groups in first-seen order) and keeps
// the n records with the most positions from each group. Ties keep input
// order.
func TopNPerGroup(records []model.EmployerRecord, n int, key func(model.EmployerRecord) string) []model.EmployerRecord {
	var order []string
	groups := make(map[string][]model.EmployerRecord)
	for _, r := range records {
		k := key(r)
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], r)
	}

	out := make([]model.EmployerRecord, 0, min(len(records), n*len(order)))
	for _, k := range order {
		g := groups[k]
		sort.SliceStable(g, func(i, j int) bool {
			return g[i].TotalPositions > g[j].TotalPositions
		})
		if len(g) > n {
			g = g[:n]
		}
		out = append(out, g...)
	}
	return out
}

// SummarizeRegions totals employers and positions per province, with the
// mean coordinate of the province's employers.
func SummarizeRegions(records []model.EmployerRecord) []RegionSummary {
	var order []string
	sums := make(map[string]*RegionSummary)
	for _, r := range records {
		s, ok := sums[r.ProvinceTerritory]
		if !ok {
			s = &RegionSummary{Province: r.ProvinceTerritory}
			sums[r.ProvinceTerritory] = s
			order = append(order, r.ProvinceTerritory)
		}
		s.Employers++
		s.Positions += r.TotalPositions
		s.Lat += r.Latitude
		s.Lng += r.Longitude
	}

	out := make([]RegionSummary, 0, len(order))
	for _, p := range order {
		s := sums[p]
		s.Lat /= float64(s.Employers)
		s.Lng /= float64(s.Employers)
		out = append(out, *s)
	}
	return out
}
