package api

import (
	"encoding/json"

	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/geojson"

	"github.com/sells-group/lmia-map/internal/model"
	"github.com/sells-group/lmia-map/internal/viewport"
)

// featureCollection is a GeoJSON FeatureCollection with the viewport
// envelope fields carried as foreign members.
type featureCollection struct {
	Type     string             `json:"type"`
	Total    int                `json:"total"`
	Shown    int                `json:"shown"`
	Strategy model.StrategyName `json:"strategy"`
	Fallback bool               `json:"fallback,omitempty"`
	Features []json.RawMessage  `json:"features"`
}

func pointFeature(lat, lng float64) *geojson.Feature {
	return &geojson.Feature{
		Geometry: geom.NewPointFlat(geom.XY, []float64{lng, lat}),
	}
}

func clusterFeature(c model.Cluster) *geojson.Feature {
	f := pointFeature(c.Lat, c.Lng)
	positions := 0
	for _, p := range c.Points {
		positions += p.TotalPositions
	}
	f.Properties = map[string]any{
		"kind":       "cluster",
		"count":      c.Count,
		"positions":  positions,
		"member_ids": c.MemberIDs,
	}
	if c.Count == 1 && len(c.Points) == 1 {
		f.ID = c.Points[0].ID
		f.Properties["employer_name"] = c.Points[0].EmployerName
	}
	return f
}

func markerFeature(r model.EmployerRecord) *geojson.Feature {
	f := pointFeature(r.Latitude, r.Longitude)
	f.ID = r.ID
	f.Properties = map[string]any{
		"kind":               "employer",
		"employer_name":      r.EmployerName,
		"address":            r.Address,
		"city":               r.City,
		"province_territory": r.ProvinceTerritory,
		"total_positions":    r.TotalPositions,
		"total_lmias":        r.TotalLMIAs,
		"primary_program":    r.PrimaryProgram,
		"primary_occupation": r.PrimaryOccupation,
	}
	return f
}

// renderGeoJSON encodes clusters or markers as Point features.
func renderGeoJSON(resp *viewport.Response) ([]byte, error) {
	features := make([]*geojson.Feature, 0, resp.Len())
	if resp.Type == viewport.TypeClusters {
		for _, c := range resp.Clusters {
			features = append(features, clusterFeature(c))
		}
	} else {
		for _, r := range resp.Markers {
			features = append(features, markerFeature(r))
		}
	}

	fc := featureCollection{
		Type:     "FeatureCollection",
		Total:    resp.Total,
		Shown:    resp.Shown,
		Strategy: resp.Strategy,
		Fallback: resp.Fallback,
		Features: make([]json.RawMessage, 0, len(features)),
	}
	for _, f := range features {
		b, err := f.MarshalJSON()
		if err != nil {
			return nil, err
		}
		fc.Features = append(fc.Features, b)
	}
	return json.Marshal(fc)
}
