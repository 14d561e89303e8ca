package gazetteer

import (
	"context"
	_ "embed"
	"sort"
	"sync"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"
)

//go:embed gazetteer.yaml
var embeddedTable []byte

type tableFile struct {
	Provinces []provinceEntry `yaml:"provinces"`
}

type provinceEntry struct {
	Name    string                `yaml:"name"`
	Code    string                `yaml:"code"`
	Aliases []string              `yaml:"aliases"`
	Default *Coordinate           `yaml:"default"`
	Cities  map[string]Coordinate `yaml:"cities"`
}

type staticCity struct {
	name  string
	coord Coordinate
}

// StaticTable is an in-memory city and province-default table.
type StaticTable struct {
	provinces provinceIndex
	defaults  map[string]Coordinate
	cities    map[string]map[string]staticCity
}

// ParseStaticTable builds a StaticTable from YAML.
func ParseStaticTable(data []byte) (*StaticTable, error) {
	var tf tableFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, eris.Wrap(err, "gazetteer: parse table")
	}

	t := &StaticTable{
		provinces: newProvinceIndex(),
		defaults:  make(map[string]Coordinate),
		cities:    make(map[string]map[string]staticCity),
	}
	for _, p := range tf.Provinces {
		if p.Name == "" {
			return nil, eris.New("gazetteer: province entry without name")
		}
		t.provinces.add(p.Name, p.Name)
		if p.Code != "" {
			t.provinces.add(p.Code, p.Name)
		}
		for _, a := range p.Aliases {
			t.provinces.add(a, p.Name)
		}
		if p.Default != nil {
			t.defaults[p.Name] = *p.Default
		}
		cities := make(map[string]staticCity, len(p.Cities))
		for name, c := range p.Cities {
			cities[NormalizeName(name)] = staticCity{name: name, coord: c}
		}
		t.cities[p.Name] = cities
	}
	return t, nil
}

var defaultTable = sync.OnceValues(func() (*StaticTable, error) {
	return ParseStaticTable(embeddedTable)
})

// DefaultStaticTable returns the embedded table.
func DefaultStaticTable() (*StaticTable, error) {
	return defaultTable()
}

// Name implements Provider.
func (t *StaticTable) Name() string { return "static" }

// Lookup implements Provider.
func (t *StaticTable) Lookup(_ context.Context, province, city string) (*Match, error) {
	canon, ok := t.CanonicalProvince(province)
	if !ok {
		return nil, nil
	}
	c, ok := t.cities[canon][NormalizeName(city)]
	if !ok {
		return nil, nil
	}
	return &Match{Coordinate: c.coord, Precision: PrecisionCity, Source: t.Name(), Place: c.name}, nil
}

// CanonicalProvince resolves names, codes and aliases to the canonical
// province name.
func (t *StaticTable) CanonicalProvince(s string) (string, bool) {
	return t.provinces.canonical(s)
}

// ProvinceDefault returns the fallback coordinate of a province.
func (t *StaticTable) ProvinceDefault(province string) (Coordinate, bool) {
	canon, ok := t.CanonicalProvince(province)
	if !ok {
		return Coordinate{}, false
	}
	c, ok := t.defaults[canon]
	return c, ok
}

// Provinces returns the canonical province names, sorted.
func (t *StaticTable) Provinces() []string {
	out := make([]string, 0, len(t.cities))
	for p := range t.cities {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CityCount returns the number of listed cities across all provinces.
func (t *StaticTable) CityCount() int {
	n := 0
	for _, c := range t.cities {
		n += len(c)
	}
	return n
}
