package viewport

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lmia-map/internal/model"
)

func TestSelectStrategy_Table(t *testing.T) {
	tests := []struct {
		zoom      int
		name      model.StrategyName
		maxPoints int
		radius    int
	}{
		{0, model.StrategyRegionalSummary, 50, 0},
		{3, model.StrategyRegionalSummary, 50, 0},
		{5, model.StrategyRegionalSummary, 50, 0},
		{6, model.StrategyCityClusters, 200, 80},
		{7, model.StrategyCityClusters, 200, 80},
		{8, model.StrategyCityClusters, 500, 40},
		{9, model.StrategyCityClusters, 500, 40},
		{10, model.StrategyIndividualMarkers, 1000, 0},
		{18, model.StrategyIndividualMarkers, 1000, 0},
	}
	for _, tt := range tests {
		s := SelectStrategy(tt.zoom)
		assert.Equal(t, tt.name, s.Name, "zoom %d", tt.zoom)
		assert.Equal(t, tt.maxPoints, s.MaxPoints, "zoom %d", tt.zoom)
		assert.Equal(t, tt.radius, s.ClusterRadiusMeters, "zoom %d", tt.zoom)
	}
}

// detailRank orders strategies from coarsest to finest detail.
func detailRank(s model.StrategyName) int {
	switch s {
	case model.StrategyRegionalSummary:
		return 0
	case model.StrategyCityClusters:
		return 1
	case model.StrategyIndividualMarkers:
		return 2
	default:
		return -1
	}
}

func TestSelectStrategy_Monotonic(t *testing.T) {
	prev := detailRank(SelectStrategy(0).Name)
	require.GreaterOrEqual(t, prev, 0)
	for z := 1; z <= MaxZoom; z++ {
		rank := detailRank(SelectStrategy(z).Name)
		assert.GreaterOrEqual(t, rank, prev, "zoom %d went backwards", z)
		prev = rank
	}
}

func TestSelectStrategy_Pure(t *testing.T) {
	for z := 0; z <= MaxZoom; z++ {
		assert.Equal(t, SelectStrategy(z), SelectStrategy(z))
	}
}
