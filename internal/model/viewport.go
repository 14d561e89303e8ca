package model

import (
	"github.com/paulmach/orb"
)

// BoundingBox is a map viewport in degrees. It assumes South <= North and
// West <= East; boxes crossing the antimeridian are not supported.
type BoundingBox struct {
	North float64 `json:"north"`
	South float64 `json:"south"`
	East  float64 `json:"east"`
	West  float64 `json:"west"`
}

// CanadaBounds covers every province and territory.
var CanadaBounds = BoundingBox{North: 84, South: 41, East: -52, West: -142}

// Bound converts the box to an orb.Bound (lon/lat order).
func (b BoundingBox) Bound() orb.Bound {
	return orb.Bound{
		Min: orb.Point{b.West, b.South},
		Max: orb.Point{b.East, b.North},
	}
}

// Contains reports whether (lat, lng) lies inside the box, edges included.
func (b BoundingBox) Contains(lat, lng float64) bool {
	return b.Bound().Contains(orb.Point{lng, lat})
}

// Valid reports whether the box satisfies South <= North and West <= East
// within legal latitude and longitude ranges.
func (b BoundingBox) Valid() bool {
	if b.South > b.North || b.West > b.East {
		return false
	}
	if b.South < -90 || b.North > 90 {
		return false
	}
	return b.West >= -180 && b.East <= 180
}

// ViewportQuery is one map request: the visible box, zoom, and data period.
type ViewportQuery struct {
	BBox   BoundingBox `json:"bbox"`
	Zoom   int         `json:"zoom"`
	Period Period      `json:"period"`
}

// Cluster is a synthetic point standing for one or more nearby employers.
// Lat/Lng are the seed member's coordinate. Count == 1 is a raw point.
type Cluster struct {
	Lat       float64          `json:"lat"`
	Lng       float64          `json:"lng"`
	Count     int              `json:"count"`
	MemberIDs []string         `json:"member_ids"`
	Points    []EmployerRecord `json:"points"`
}

// Singleton wraps a single record as a pass-through cluster.
func Singleton(r EmployerRecord) Cluster {
	return Cluster{
		Lat:       r.Latitude,
		Lng:       r.Longitude,
		Count:     1,
		MemberIDs: []string{r.ID},
		Points:    []EmployerRecord{r},
	}
}

// StrategyName names a zoom-dependent aggregation granularity.
type StrategyName string

const (
	StrategyRegionalSummary   StrategyName = "regional_summary"
	StrategyCityClusters      StrategyName = "city_clusters"
	StrategyIndividualMarkers StrategyName = "individual_markers"
)

// RenderStrategy is the outcome of strategy selection for one zoom level.
type RenderStrategy struct {
	Name                StrategyName `json:"name"`
	MaxPoints           int          `json:"max_points"`
	ClusterRadiusMeters int          `json:"cluster_radius_meters"`
	Description         string       `json:"description"`
}
