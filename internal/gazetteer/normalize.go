package gazetteer

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// NationalCentroid is the last-resort coordinate for unknown provinces.
var NationalCentroid = Coordinate{Lat: 56.1304, Lng: -106.3468}

// provinceCodes maps postal abbreviations to canonical names.
var provinceCodes = map[string]string{
	"AB": "Alberta",
	"BC": "British Columbia",
	"MB": "Manitoba",
	"NB": "New Brunswick",
	"NL": "Newfoundland and Labrador",
	"NS": "Nova Scotia",
	"NT": "Northwest Territories",
	"NU": "Nunavut",
	"ON": "Ontario",
	"PE": "Prince Edward Island",
	"QC": "Quebec",
	"SK": "Saskatchewan",
	"YT": "Yukon",
}

// geonamesAdmin1 maps GeoNames admin1 codes for CA to postal abbreviations.
var geonamesAdmin1 = map[string]string{
	"01": "AB",
	"02": "BC",
	"03": "MB",
	"04": "NB",
	"05": "NL",
	"07": "NS",
	"08": "ON",
	"09": "PE",
	"10": "QC",
	"11": "SK",
	"12": "YT",
	"13": "NT",
	"14": "NU",
}

// ProvinceCode returns the postal abbreviation for a canonical province
// name, or "" if unknown.
func ProvinceCode(name string) string {
	for code, n := range provinceCodes {
		if n == name {
			return code
		}
	}
	return ""
}

// ProvinceFromAdmin1 converts a GeoNames admin1 code to a postal
// abbreviation.
func ProvinceFromAdmin1(admin1 string) (string, bool) {
	code, ok := geonamesAdmin1[strings.TrimSpace(admin1)]
	return code, ok
}

var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// NormalizeName folds a place name for matching: accents stripped,
// lower-cased, punctuation dropped, hyphens as spaces, and the St/Ste
// abbreviations expanded.
func NormalizeName(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)

	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		switch {
		case r == '-' || r == '_' || r == '/':
			b.WriteRune(' ')
		case r == '.' || r == '\'' || r == '’':
			// dropped
		case unicode.IsLetter(r) || unicode.IsDigit(r) || unicode.IsSpace(r):
			b.WriteRune(r)
		}
	}

	words := strings.Fields(b.String())
	for i, w := range words {
		switch w {
		case "st":
			words[i] = "saint"
		case "ste":
			words[i] = "sainte"
		}
	}
	return strings.Join(words, " ")
}

// provinceIndex maps normalized province spellings to canonical names.
type provinceIndex map[string]string

func newProvinceIndex() provinceIndex {
	idx := make(provinceIndex)
	for code, name := range provinceCodes {
		idx[NormalizeName(code)] = name
		idx[NormalizeName(name)] = name
	}
	return idx
}

func (idx provinceIndex) add(alias, name string) {
	if alias = NormalizeName(alias); alias != "" {
		idx[alias] = name
	}
}

// canonical returns the canonical province name for s.
func (idx provinceIndex) canonical(s string) (string, bool) {
	name, ok := idx[NormalizeName(s)]
	return name, ok
}
