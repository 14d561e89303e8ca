// Package viewport turns a map viewport into a bounded response: it picks a
// render strategy from the zoom level, filters the period dataset to the
// visible box, and aggregates or truncates the result.
package viewport

import "github.com/sells-group/lmia-map/internal/model"

// Zoom thresholds for strategy selection. Leaflet zoom levels run 0-18.
const (
	ZoomCityClusters      = 6
	ZoomNeighborhood      = 8
	ZoomIndividualMarkers = 10
	MaxZoom               = 22
)

// SelectStrategy maps a zoom level to its render strategy. It is a pure
// function of zoom.
//
//	zoom < 6        regional_summary    50 points
//	6 <= zoom < 8   city_clusters      200 points, 80 m radius
//	8 <= zoom < 10  city_clusters      500 points, 40 m radius
//	zoom >= 10      individual_markers 1000 points
func SelectStrategy(zoom int) model.RenderStrategy {
	switch {
	case zoom < ZoomCityClusters:
		return model.RenderStrategy{
			Name:        model.StrategyRegionalSummary,
			MaxPoints:   50,
			Description: "Province-level aggregation",
		}
	case zoom < ZoomNeighborhood:
		return model.RenderStrategy{
			Name:                model.StrategyCityClusters,
			MaxPoints:           200,
			ClusterRadiusMeters: 80,
			Description:         "City-level clustering",
		}
	case zoom < ZoomIndividualMarkers:
		return model.RenderStrategy{
			Name:                model.StrategyCityClusters,
			MaxPoints:           500,
			ClusterRadiusMeters: 40,
			Description:         "Neighborhood-level clustering",
		}
	default:
		return model.RenderStrategy{
			Name:        model.StrategyIndividualMarkers,
			MaxPoints:   1000,
			Description: "Individual employer markers",
		}
	}
}
