package gazetteer

import (
	"context"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lmia-map/internal/fetcher"
)

// Place is one populated place from a GeoNames dump, keyed by
// (GeonameID, NameNorm). A place with a distinct ASCII name yields two rows.
type Place struct {
	GeonameID   int64
	Name        string
	NameNorm    string
	Province    string
	FeatureCode string
	Population  int64
	Lat         float64
	Lng         float64
}

// placeColumns is the column order shared by the SQL providers.
var placeColumns = []string{"geoname_id", "name", "name_norm", "province", "feature_code", "population", "lat", "lng"}

func (p Place) values() []any {
	return []any{p.GeonameID, p.Name, p.NameNorm, p.Province, p.FeatureCode, p.Population, p.Lat, p.Lng}
}

// rankOrder orders candidate places: capital, provincial seat, lower admin
// seats, plain populated place, anything else; then by population.
const rankOrder = `CASE feature_code
		WHEN 'PPLC' THEN 0
		WHEN 'PPLA' THEN 1
		WHEN 'PPLA2' THEN 2
		WHEN 'PPLA3' THEN 3
		WHEN 'PPLA4' THEN 4
		WHEN 'PPL' THEN 5
		ELSE 6
	END, population DESC`

// GeoNames column positions.
const (
	gnID         = 0
	gnName       = 1
	gnASCIIName  = 2
	gnLat        = 4
	gnLng        = 5
	gnClass      = 6
	gnCode       = 7
	gnCountry    = 8
	gnAdmin1     = 10
	gnPopulation = 14
	gnMinColumns = 15
)

// ImportStats summarizes a GeoNames import.
type ImportStats struct {
	Rows     int `json:"rows"`
	Places   int `json:"places"`
	Skipped  int `json:"skipped"`
	Inserted int `json:"inserted"`
}

// parseGeoNamesRow converts one dump row. ok is false for rows outside
// Canada, non-populated features and malformed rows.
func parseGeoNamesRow(row []string) ([]Place, bool) {
	if len(row) < gnMinColumns {
		return nil, false
	}
	if row[gnCountry] != "CA" || row[gnClass] != "P" {
		return nil, false
	}
	code, ok := ProvinceFromAdmin1(row[gnAdmin1])
	if !ok {
		return nil, false
	}
	id, err := strconv.ParseInt(row[gnID], 10, 64)
	if err != nil {
		return nil, false
	}
	lat, err := strconv.ParseFloat(row[gnLat], 64)
	if err != nil {
		return nil, false
	}
	lng, err := strconv.ParseFloat(row[gnLng], 64)
	if err != nil {
		return nil, false
	}
	pop, _ := strconv.ParseInt(strings.TrimSpace(row[gnPopulation]), 10, 64)

	base := Place{
		GeonameID:   id,
		Name:        row[gnName],
		Province:    provinceCodes[code],
		FeatureCode: row[gnCode],
		Population:  pop,
		Lat:         lat,
		Lng:         lng,
	}
	base.NameNorm = NormalizeName(base.Name)
	out := []Place{base}
	if ascii := NormalizeName(row[gnASCIIName]); ascii != "" && ascii != base.NameNorm {
		alt := base
		alt.NameNorm = ascii
		out = append(out, alt)
	}
	return out, true
}

// readGeoNames streams a tab-separated GeoNames dump and hands batches of
// places to sink.
func readGeoNames(ctx context.Context, r io.Reader, batchSize int, sink func([]Place) (int, error)) (*ImportStats, error) {
	if batchSize <= 0 {
		batchSize = 5000
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	rowCh, errCh := fetcher.StreamCSV(ctx, r, fetcher.CSVOptions{
		Delimiter:  '\t',
		LazyQuotes: true,
	})

	stats := &ImportStats{}
	batch := make([]Place, 0, batchSize)
	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		n, err := sink(batch)
		if err != nil {
			return err
		}
		stats.Inserted += n
		batch = batch[:0]
		return nil
	}

	for row := range rowCh {
		stats.Rows++
		places, ok := parseGeoNamesRow(row)
		if !ok {
			stats.Skipped++
			continue
		}
		stats.Places++
		batch = append(batch, places...)
		if len(batch) >= batchSize {
			if err := flush(); err != nil {
				return stats, err
			}
		}
	}
	if err := <-errCh; err != nil {
		return stats, eris.Wrap(err, "gazetteer: read geonames dump")
	}
	if err := flush(); err != nil {
		return stats, err
	}

	zap.L().Info("gazetteer: geonames import complete",
		zap.Int("rows", stats.Rows),
		zap.Int("places", stats.Places),
		zap.Int("skipped", stats.Skipped),
		zap.Int("inserted", stats.Inserted),
	)
	return stats, nil
}
