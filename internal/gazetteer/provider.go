// Package gazetteer maps (province, city) pairs to coordinates.
package gazetteer

import (
	"context"
)

// Coordinate is a latitude/longitude pair in degrees.
type Coordinate struct {
	Lat float64 `json:"lat" yaml:"lat"`
	Lng float64 `json:"lng" yaml:"lng"`
}

// Precision reports which level of the fallback chain produced a match.
type Precision string

const (
	PrecisionCity     Precision = "city"
	PrecisionProvince Precision = "province"
	PrecisionNational Precision = "national"
)

// Match is a resolved coordinate and its provenance.
type Match struct {
	Coordinate
	Precision Precision `json:"precision"`
	Source    string    `json:"source"`
	Place     string    `json:"place,omitempty"`
}

// Provider is one city lookup backend. Lookup returns (nil, nil) on a miss.
// province is a canonical province name.
type Provider interface {
	Name() string
	Lookup(ctx context.Context, province, city string) (*Match, error)
}
