// Package stats computes summary statistics over employer records.
package stats

import (
	"cmp"
	"slices"

	"github.com/sells-group/lmia-map/internal/model"
)

// DefaultTopN is the number of occupations reported when topN <= 0.
const DefaultTopN = 10

const unknown = "Unknown"

// Count is one labelled bucket, ranked by positions.
type Count struct {
	Label     string `json:"label"`
	Employers int    `json:"employers"`
	Positions int    `json:"positions"`
}

// Summary is the statistics payload for a period or viewport.
type Summary struct {
	TotalEmployers int     `json:"total_employers"`
	TotalPositions int     `json:"total_positions"`
	TotalLMIAs     int     `json:"total_lmias"`
	TopOccupations []Count `json:"top_occupations"`
	TopPrograms    []Count `json:"top_programs"`
	Provinces      []Count `json:"provinces_distribution"`
}

type bucket struct {
	index map[string]int
	out   []Count
}

func newBucket() *bucket {
	return &bucket{index: make(map[string]int)}
}

func (b *bucket) add(label string, positions int) {
	if label == "" {
		label = unknown
	}
	i, ok := b.index[label]
	if !ok {
		i = len(b.out)
		b.index[label] = i
		b.out = append(b.out, Count{Label: label})
	}
	b.out[i].Employers++
	b.out[i].Positions += positions
}

// ranked sorts by positions descending, then employers descending, then
// label, and truncates to n when n > 0.
func (b *bucket) ranked(n int) []Count {
	out := b.out
	slices.SortStableFunc(out, func(x, y Count) int {
		if c := cmp.Compare(y.Positions, x.Positions); c != 0 {
			return c
		}
		if c := cmp.Compare(y.Employers, x.Employers); c != 0 {
			return c
		}
		return cmp.Compare(x.Label, y.Label)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	if out == nil {
		out = []Count{}
	}
	return out
}

// Compute summarizes records. Occupations are truncated to topN; programs
// and provinces are reported in full.
func Compute(records []model.EmployerRecord, topN int) Summary {
	if topN <= 0 {
		topN = DefaultTopN
	}
	occupations, programs, provinces := newBucket(), newBucket(), newBucket()

	var s Summary
	for i := range records {
		r := &records[i]
		s.TotalEmployers++
		s.TotalPositions += r.TotalPositions
		s.TotalLMIAs += r.TotalLMIAs
		occupations.add(r.PrimaryOccupation, r.TotalPositions)
		programs.add(r.PrimaryProgram, r.TotalPositions)
		provinces.add(r.ProvinceTerritory, r.TotalPositions)
	}

	s.TopOccupations = occupations.ranked(topN)
	s.TopPrograms = programs.ranked(0)
	s.Provinces = provinces.ranked(0)
	return s
}
