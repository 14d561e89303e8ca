package gazetteer

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// ResolverStats counts resolutions by precision.
type ResolverStats struct {
	City     int64 `json:"city"`
	Province int64 `json:"province"`
	National int64 `json:"national"`
	Memo     int   `json:"memo_entries"`
}

// Resolver resolves (province, city) through providers, then the province
// default, then the national centroid. Results are memoized.
type Resolver struct {
	table     *StaticTable
	providers []Provider

	mu   sync.RWMutex
	memo map[string]Match

	city     atomic.Int64
	province atomic.Int64
	national atomic.Int64
}

// NewResolver creates a Resolver. table supplies province aliases and
// defaults; it is not queried for cities unless also passed as a provider.
func NewResolver(table *StaticTable, providers ...Provider) *Resolver {
	return &Resolver{
		table:     table,
		providers: providers,
		memo:      make(map[string]Match),
	}
}

// Resolve never fails. Provider errors are logged and treated as misses,
// and such results are not memoized.
func (r *Resolver) Resolve(ctx context.Context, province, city string) Match {
	canon, known := r.table.CanonicalProvince(province)
	if !known {
		canon = province
	}
	key := canon + "|" + NormalizeName(city)

	r.mu.RLock()
	m, ok := r.memo[key]
	r.mu.RUnlock()
	if ok {
		r.count(m.Precision)
		return m
	}

	m, clean := r.resolve(ctx, canon, known, city)
	if clean {
		r.mu.Lock()
		r.memo[key] = m
		r.mu.Unlock()
	}
	r.count(m.Precision)
	return m
}

func (r *Resolver) resolve(ctx context.Context, province string, known bool, city string) (Match, bool) {
	clean := true
	if known && city != "" {
		for _, p := range r.providers {
			m, err := p.Lookup(ctx, province, city)
			if err != nil {
				clean = false
				zap.L().Debug("gazetteer: provider error, trying next",
					zap.String("provider", p.Name()),
					zap.String("province", province),
					zap.String("city", city),
					zap.Error(err),
				)
				continue
			}
			if m != nil {
				return *m, clean
			}
		}
	}

	if known {
		if c, ok := r.table.ProvinceDefault(province); ok {
			return Match{Coordinate: c, Precision: PrecisionProvince, Source: r.table.Name(), Place: province}, clean
		}
	}
	return Match{Coordinate: NationalCentroid, Precision: PrecisionNational, Source: "centroid"}, clean
}

func (r *Resolver) count(p Precision) {
	switch p {
	case PrecisionCity:
		r.city.Add(1)
	case PrecisionProvince:
		r.province.Add(1)
	default:
		r.national.Add(1)
	}
}

// CanonicalProvince exposes the table's alias resolution.
func (r *Resolver) CanonicalProvince(s string) (string, bool) {
	return r.table.CanonicalProvince(s)
}

// Stats returns resolution counters.
func (r *Resolver) Stats() ResolverStats {
	r.mu.RLock()
	n := len(r.memo)
	r.mu.RUnlock()
	return ResolverStats{
		City:     r.city.Load(),
		Province: r.province.Load(),
		National: r.national.Load(),
		Memo:     n,
	}
}
