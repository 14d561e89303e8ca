// Package model defines the employer, viewport, and cluster values shared by
// the ingest, viewport, and API layers.
package model

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
)

// EmployerRecord is one employer's aggregate LMIA position for a period.
type EmployerRecord struct {
	ID                string  `json:"id"`
	EmployerName      string  `json:"employer_name"`
	Address           string  `json:"address"`
	City              string  `json:"city"`
	ProvinceTerritory string  `json:"province_territory"`
	PostalCode        string  `json:"postal_code"`
	IncorporateStatus string  `json:"incorporate_status,omitempty"`
	Latitude          float64 `json:"latitude"`
	Longitude         float64 `json:"longitude"`
	TotalPositions    int     `json:"total_positions"`
	TotalLMIAs        int     `json:"total_lmias"`
	PrimaryProgram    string  `json:"primary_program"`
	PrimaryOccupation string  `json:"primary_occupation"`
	NOCCode           string  `json:"noc_code,omitempty"`
	Year              int     `json:"year,omitempty"`
	Quarter           string  `json:"quarter,omitempty"`
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// EmployerID derives the stable identifier for an employer within a period.
// The same (name, province, city) always yields the same ID.
func EmployerID(name, province, city string) string {
	raw := fmt.Sprintf("%s-%s-%s", strings.TrimSpace(name), strings.TrimSpace(province), strings.TrimSpace(city))
	return strings.ToLower(whitespaceRun.ReplaceAllString(raw, "-"))
}

// Quarter labels accepted for a period.
const (
	QuarterQ1      = "Q1"
	QuarterQ2      = "Q2"
	QuarterQ3      = "Q3"
	QuarterQ4      = "Q4"
	QuarterH1      = "Q1-Q2"
	QuarterFull    = "Q1-Q4"
	DefaultYear    = 2025
	DefaultQuarter = QuarterQ1
)

var validQuarters = map[string]bool{
	QuarterQ1: true, QuarterQ2: true, QuarterQ3: true, QuarterQ4: true,
	QuarterH1: true, QuarterFull: true,
}

// Period identifies one published LMIA dataset.
type Period struct {
	Year    int    `json:"year"`
	Quarter string `json:"quarter"`
}

// String returns the canonical cache key, e.g. "2024-Q1".
func (p Period) String() string {
	return fmt.Sprintf("%d-%s", p.Year, p.Quarter)
}

// ValidQuarter reports whether q is a recognized quarter label.
func ValidQuarter(q string) bool {
	return validQuarters[q]
}

// ParsePeriodKey parses a "2024-Q1" style key back into a Period.
func ParsePeriodKey(key string) (Period, error) {
	yearStr, quarter, ok := strings.Cut(strings.TrimSpace(key), "-")
	if !ok {
		return Period{}, eris.Errorf("model: invalid period %q", key)
	}
	var year int
	if _, err := fmt.Sscanf(yearStr, "%d", &year); err != nil {
		return Period{}, eris.Wrapf(err, "model: invalid period year %q", key)
	}
	quarter = strings.ToUpper(quarter)
	if !ValidQuarter(quarter) {
		return Period{}, eris.Errorf("model: invalid period quarter %q", key)
	}
	return Period{Year: year, Quarter: quarter}, nil
}
