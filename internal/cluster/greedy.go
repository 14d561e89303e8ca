// Package cluster groups geo-located employer records into proximity clusters.
package cluster

import (
	"math"

	"github.com/sells-group/lmia-map/internal/model"
)

// MetersPerDegree is the mean meters per degree of latitude. Radii are
// converted to degrees with it and compared in a planar lat/lng space.
const MetersPerDegree = 111000.0

// DefaultMinClusterSize is used when callers pass a non-positive minimum.
const DefaultMinClusterSize = 2

// RadiusDegrees converts a radius in meters to the planar degree threshold.
func RadiusDegrees(radiusMeters float64) float64 {
	return radiusMeters / MetersPerDegree
}

// Greedy clusters points in a single greedy pass over the input order.
//
// Each unprocessed point seeds a cluster and absorbs every later unprocessed
// point strictly closer than the radius. The seed's coordinate is the cluster
// coordinate. Groups smaller than minClusterSize are emitted as singletons so
// that every input point appears in exactly one output cluster.
//
// The result depends on input order and is not globally optimal: a point may
// join an earlier seed even when a later seed would be closer. Runtime is
// O(n^2); callers bound n by filtering to the viewport first.
func Greedy(points []model.EmployerRecord, radiusMeters float64, minClusterSize int) []model.Cluster {
	if len(points) == 0 {
		return []model.Cluster{}
	}
	if minClusterSize <= 0 {
		minClusterSize = DefaultMinClusterSize
	}

	threshold := RadiusDegrees(radiusMeters)
	processed := make([]bool, len(points))
	clusters := make([]model.Cluster, 0, len(points))

	for i := range points {
		if processed[i] {
			continue
		}
		processed[i] = true
		seed := points[i]
		members := []model.EmployerRecord{seed}

		for j := i + 1; j < len(points); j++ {
			if processed[j] {
				continue
			}
			if planarDistance(seed, points[j]) < threshold {
				members = append(members, points[j])
				processed[j] = true
			}
		}

		if len(members) < minClusterSize {
			for _, m := range members {
				clusters = append(clusters, model.Singleton(m))
			}
			continue
		}
		clusters = append(clusters, newCluster(seed, members))
	}

	return clusters
}

// Unclustered wraps every point as a singleton, preserving order.
func Unclustered(points []model.EmployerRecord) []model.Cluster {
	out := make([]model.Cluster, len(points))
	for i, p := range points {
		out[i] = model.Singleton(p)
	}
	return out
}

func newCluster(seed model.EmployerRecord, members []model.EmployerRecord) model.Cluster {
	ids := make([]string, len(members))
	for i, m := range members {
		ids[i] = m.ID
	}
	return model.Cluster{
		Lat:       seed.Latitude,
		Lng:       seed.Longitude,
		Count:     len(members),
		MemberIDs: ids,
		Points:    members,
	}
}

func planarDistance(a, b model.EmployerRecord) float64 {
	dLat := a.Latitude - b.Latitude
	dLng := a.Longitude - b.Longitude
	return math.Sqrt(dLat*dLat + dLng*dLng)
}
