// Package ingest turns LMIA spreadsheets into normalized, geo-located
// employer records.
package ingest

import (
	"context"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lmia-map/internal/fetcher"
	"github.com/sells-group/lmia-map/internal/gazetteer"
	"github.com/sells-group/lmia-map/internal/model"
)

// HeadOfficeOutsideCanada is the pseudo-province used for foreign-headquartered
// employers; those rows carry no Canadian location and are skipped.
const HeadOfficeOutsideCanada = "Employers carrying on business in Canada with Head Office outside of Canada"

const unknown = "Unknown"

// ErrNoHeader is returned when no header row is found.
var ErrNoHeader = eris.New("ingest: header row not found")

var (
	postalCodeRe = regexp.MustCompile(`\b[A-Z]\d[A-Z]\s?\d[A-Z]\d\b`)
	nocCodeRe    = regexp.MustCompile(`\b(\d{4,5})\b`)
)

// Skip reasons reported in Report.Skipped.
const (
	SkipTooShort   = "too_short"
	SkipNoEmployer = "missing_employer"
	SkipNoAddress  = "missing_address"
	SkipHeadOffice = "head_office_outside_canada"
)

// Report summarizes one normalization run.
type Report struct {
	Path      string                      `json:"path,omitempty"`
	Period    string                      `json:"period"`
	HeaderRow int                         `json:"header_row"`
	Rows      int                         `json:"rows"`
	Accepted  int                         `json:"accepted"`
	Skipped   map[string]int              `json:"skipped"`
	Employers int                         `json:"employers"`
	Precision map[gazetteer.Precision]int `json:"precision"`
	Elapsed   time.Duration               `json:"elapsed"`
}

// Result is the output of a normalization run.
type Result struct {
	Records []model.EmployerRecord
	Report  Report
}

// Normalizer converts spreadsheet rows to employer records.
type Normalizer struct {
	resolver *gazetteer.Resolver
	sheet    string
}

// NormalizerOption configures a Normalizer.
type NormalizerOption func(*Normalizer)

// WithSheet reads the named XLSX worksheet instead of the first one.
func WithSheet(name string) NormalizerOption {
	return func(n *Normalizer) { n.sheet = name }
}

// NewNormalizer creates a Normalizer that geo-locates through resolver.
func NewNormalizer(resolver *gazetteer.Resolver, opts ...NormalizerOption) *Normalizer {
	n := &Normalizer{resolver: resolver}
	for _, o := range opts {
		o(n)
	}
	return n
}

// ParseFile reads and normalizes one file, logging its report.
func (n *Normalizer) ParseFile(ctx context.Context, path string, period model.Period) ([]model.EmployerRecord, error) {
	res, err := n.NormalizeFile(ctx, path, period)
	if err != nil {
		return nil, err
	}
	r := res.Report
	zap.L().Info("ingest: file normalized",
		zap.String("path", path),
		zap.String("period", r.Period),
		zap.Int("rows", r.Rows),
		zap.Int("accepted", r.Accepted),
		zap.Int("employers", r.Employers),
		zap.Any("skipped", r.Skipped),
		zap.Any("precision", r.Precision),
		zap.Duration("elapsed", r.Elapsed),
	)
	return res.Records, nil
}

// NormalizeFile reads a .xlsx or .csv file and normalizes its rows.
func (n *Normalizer) NormalizeFile(ctx context.Context, path string, period model.Period) (*Result, error) {
	rows, err := fetcher.ReadTable(ctx, path, n.sheet)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: read %s", path)
	}
	res, err := n.Normalize(ctx, rows, period)
	if err != nil {
		return nil, eris.Wrapf(err, "ingest: normalize %s", path)
	}
	res.Report.Path = path
	return res, nil
}

// Normalize converts raw rows (title rows, header, data, notes) into
// employer records aggregated per employer ID, in first-seen order.
func (n *Normalizer) Normalize(ctx context.Context, rows [][]string, period model.Period) (*Result, error) {
	start := time.Now()
	headerIdx := findHeader(rows)
	if headerIdx < 0 {
		return nil, ErrNoHeader
	}
	cols := mapColumns(rows[headerIdx])

	report := Report{
		Period:    period.String(),
		HeaderRow: headerIdx,
		Skipped:   make(map[string]int),
		Precision: make(map[gazetteer.Precision]int),
	}

	index := make(map[string]int)
	var records []model.EmployerRecord

	for i, row := range rows[headerIdx+1:] {
		if i%1000 == 0 && ctx.Err() != nil {
			return nil, eris.Wrap(ctx.Err(), "ingest: normalize cancelled")
		}
		report.Rows++

		if len(row) < 3 {
			report.Skipped[SkipTooShort]++
			continue
		}
		employer := cols.get(row, colEmployer)
		address := cols.get(row, colAddress)
		province := cols.get(row, colProvince)
		switch {
		case employer == "":
			report.Skipped[SkipNoEmployer]++
			continue
		case address == "":
			report.Skipped[SkipNoAddress]++
			continue
		case province == HeadOfficeOutsideCanada:
			report.Skipped[SkipHeadOffice]++
			continue
		}
		report.Accepted++

		if province == "" {
			province = unknown
		} else if canon, ok := n.resolver.CanonicalProvince(province); ok {
			province = canon
		}
		city := CityFromAddress(address)
		positions := parseCount(cols.get(row, colPositions))
		lmias := parseCount(cols.get(row, colLMIAs))

		id := model.EmployerID(employer, province, city)
		if at, ok := index[id]; ok {
			records[at].TotalPositions += positions
			records[at].TotalLMIAs += lmias
			continue
		}

		occupation := orUnknown(cols.get(row, colOccupation))
		match := n.resolver.Resolve(ctx, province, city)
		report.Precision[match.Precision]++

		index[id] = len(records)
		records = append(records, model.EmployerRecord{
			ID:                id,
			EmployerName:      employer,
			Address:           address,
			City:              city,
			ProvinceTerritory: province,
			PostalCode:        PostalCode(address),
			IncorporateStatus: orUnknown(cols.get(row, colIncorporate)),
			Latitude:          match.Lat,
			Longitude:         match.Lng,
			TotalPositions:    positions,
			TotalLMIAs:        lmias,
			PrimaryProgram:    orUnknown(cols.get(row, colProgram)),
			PrimaryOccupation: occupation,
			NOCCode:           NOCCode(occupation),
			Year:              period.Year,
			Quarter:           period.Quarter,
		})
	}

	if records == nil {
		records = []model.EmployerRecord{}
	}
	report.Employers = len(records)
	report.Elapsed = time.Since(start)
	return &Result{Records: records, Report: report}, nil
}

// CityFromAddress returns the second-to-last comma-separated part of an
// address, or "Unknown".
func CityFromAddress(address string) string {
	parts := strings.Split(address, ",")
	if len(parts) < 2 {
		return unknown
	}
	city := strings.TrimSpace(parts[len(parts)-2])
	if city == "" {
		return unknown
	}
	return city
}

// PostalCode returns the first Canadian postal code (A1A 1A1) in address.
func PostalCode(address string) string {
	return postalCodeRe.FindString(strings.ToUpper(address))
}

// NOCCode returns the first 4 or 5 digit NOC code in an occupation label.
func NOCCode(occupation string) string {
	m := nocCodeRe.FindStringSubmatch(occupation)
	if m == nil {
		return ""
	}
	return m[1]
}

// parseCount parses an approval count. Missing, unparsable and
// non-positive values count as 1.
func parseCount(s string) int {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return 1
	}
	if v, err := strconv.Atoi(s); err == nil {
		if v <= 0 {
			return 1
		}
		return v
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 1 {
		return int(f)
	}
	return 1
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}
