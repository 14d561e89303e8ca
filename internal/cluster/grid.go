package cluster

import (
	"math"

	"github.com/sells-group/lmia-map/internal/model"
)

// Grid bins points into fixed square cells of cellDegrees and emits one
// cluster per occupied cell, in order of first occupancy. The cluster
// coordinate is the first point that landed in the cell. Cells holding fewer
// than minClusterSize points are emitted as singletons, as Greedy does.
//
// Unlike Greedy, the result does not depend on input order for membership,
// only for which point seeds each cell. Runtime is O(n).
func Grid(points []model.EmployerRecord, cellDegrees float64, minClusterSize int) []model.Cluster {
	if len(points) == 0 {
		return []model.Cluster{}
	}
	if cellDegrees <= 0 {
		return Unclustered(points)
	}
	if minClusterSize <= 0 {
		minClusterSize = DefaultMinClusterSize
	}

	type cell struct{ row, col int64 }
	index := make(map[cell]int)
	clusters := make([]model.Cluster, 0)

	for _, p := range points {
		key := cell{
			row: int64(math.Floor(p.Latitude / cellDegrees)),
			col: int64(math.Floor(p.Longitude / cellDegrees)),
		}
		if i, ok := index[key]; ok {
			c := &clusters[i]
			c.Count++
			c.MemberIDs = append(c.MemberIDs, p.ID)
			c.Points = append(c.Points, p)
			continue
		}
		index[key] = len(clusters)
		clusters = append(clusters, model.Singleton(p))
	}

	out := make([]model.Cluster, 0, len(clusters))
	for _, c := range clusters {
		if c.Count >= minClusterSize {
			out = append(out, c)
			continue
		}
		for _, m := range c.Points {
			out = append(out, model.Singleton(m))
		}
	}
	return out
}
