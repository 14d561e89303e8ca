package ingest

import (
	"regexp"
	"strings"
)

// column identifies one logical LMIA field.
type column int

const (
	colProvince column = iota
	colProgram
	colEmployer
	colAddress
	colOccupation
	colIncorporate
	colLMIAs
	colPositions
	numColumns
)

// headerAliases lists accepted header spellings per field, normalized.
// Publications since 2015 have renamed several columns.
var headerAliases = map[column][]string{
	colProvince:    {"province/territory", "province / territory", "province", "province/territory/territoire"},
	colProgram:     {"program stream", "stream", "program"},
	colEmployer:    {"employer", "employer name"},
	colAddress:     {"address", "employer address"},
	colOccupation:  {"occupation", "occupations under noc 2011", "occupations under noc 2016", "occupations under noc 2021", "noc"},
	colIncorporate: {"incorporate status", "incorporation status"},
	colLMIAs:       {"approved lmias", "approved lmia's", "lmias approved"},
	colPositions:   {"approved positions", "positions approved"},
}

var footnoteMarks = regexp.MustCompile(`[*¹²³†]+$|\s*\(\d+\)$`)

func normalizeHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = footnoteMarks.ReplaceAllString(s, "")
	return strings.Join(strings.Fields(s), " ")
}

// columnMap maps logical fields to cell indexes; -1 means absent.
type columnMap [numColumns]int

func mapColumns(header []string) columnMap {
	var m columnMap
	for i := range m {
		m[i] = -1
	}
	for idx, cell := range header {
		h := normalizeHeader(cell)
		if h == "" {
			continue
		}
		for col, aliases := range headerAliases {
			if m[col] >= 0 {
				continue
			}
			for _, a := range aliases {
				if h == a {
					m[col] = idx
					break
				}
			}
		}
	}
	return m
}

func (m columnMap) get(row []string, col column) string {
	i := m[col]
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// isHeaderRow reports whether row is the column header rather than a title
// or note row.
func isHeaderRow(row []string) bool {
	if len(row) == 0 {
		return false
	}
	first := normalizeHeader(row[0])
	if first == "province/territory" {
		return true
	}
	if strings.Contains(first, "province") && len(row) > 5 {
		return true
	}
	m := mapColumns(row)
	return m[colEmployer] >= 0 && m[colAddress] >= 0
}

// findHeader returns the index of the header row, or -1.
func findHeader(rows [][]string) int {
	for i, row := range rows {
		if isHeaderRow(row) {
			return i
		}
	}
	return -1
}
