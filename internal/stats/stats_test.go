package stats

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lmia-map/internal/model"
)

func rec(province, program, occupation string, positions, lmias int) model.EmployerRecord {
	return model.EmployerRecord{
		ProvinceTerritory: province,
		PrimaryProgram:    program,
		PrimaryOccupation: occupation,
		TotalPositions:    positions,
		TotalLMIAs:        lmias,
	}
}

func TestCompute(t *testing.T) {
	records := []model.EmployerRecord{
		rec("Ontario", "High-wage", "Cooks", 5, 1),
		rec("Ontario", "Low-wage", "Cooks", 3, 2),
		rec("Quebec", "Agricultural", "Farm workers", 20, 1),
		rec("Alberta", "", "", 1, 1),
	}

	s := Compute(records, 10)
	assert.Equal(t, 4, s.TotalEmployers)
	assert.Equal(t, 29, s.TotalPositions)
	assert.Equal(t, 5, s.TotalLMIAs)

	require.Len(t, s.TopOccupations, 3)
	assert.Equal(t, Count{Label: "Farm workers", Employers: 1, Positions: 20}, s.TopOccupations[0])
	assert.Equal(t, Count{Label: "Cooks", Employers: 2, Positions: 8}, s.TopOccupations[1])
	assert.Equal(t, "Unknown", s.TopOccupations[2].Label)

	require.Len(t, s.TopPrograms, 4)
	assert.Equal(t, "Agricultural", s.TopPrograms[0].Label)

	require.Len(t, s.Provinces, 3)
	assert.Equal(t, Count{Label: "Quebec", Employers: 1, Positions: 20}, s.Provinces[0])
	assert.Equal(t, Count{Label: "Ontario", Employers: 2, Positions: 8}, s.Provinces[1])
}

func TestCompute_TopN(t *testing.T) {
	var records []model.EmployerRecord
	for i := range 15 {
		records = append(records, rec("Ontario", "High-wage", fmt.Sprintf("occ-%02d", i), i+1, 1))
	}

	s := Compute(records, 0)
	require.Len(t, s.TopOccupations, DefaultTopN)
	assert.Equal(t, "occ-14", s.TopOccupations[0].Label)

	s = Compute(records, 3)
	assert.Len(t, s.TopOccupations, 3)
}

func TestCompute_TiesOrderedByLabel(t *testing.T) {
	s := Compute([]model.EmployerRecord{
		rec("Yukon", "b", "x", 2, 1),
		rec("Nunavut", "a", "x", 2, 1),
	}, 5)
	assert.Equal(t, "Nunavut", s.Provinces[0].Label)
	assert.Equal(t, "a", s.TopPrograms[0].Label)
}

func TestCompute_Empty(t *testing.T) {
	s := Compute(nil, 5)
	assert.Zero(t, s.TotalEmployers)
	assert.NotNil(t, s.TopOccupations)
	assert.NotNil(t, s.TopPrograms)
	assert.NotNil(t, s.Provinces)
}
