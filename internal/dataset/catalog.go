// Package dataset locates LMIA period files on disk and caches their parsed
// employer records.
package dataset

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lmia-map/internal/model"
)

// ErrPeriodNotFound is returned when no file backs the requested period.
var ErrPeriodNotFound = eris.New("dataset: period not found")

// Entry is one data file and the period it covers.
type Entry struct {
	Period model.Period `json:"period"`
	Path   string       `json:"path"`
}

// Availability lists the years on disk and the quarter labels per year.
type Availability struct {
	Years    []int               `json:"years"`
	Quarters map[string][]string `json:"quarters"`
}

// Catalog scans <dir>/<year>/ for spreadsheet files.
type Catalog struct {
	dir string
}

// NewCatalog creates a Catalog rooted at dir.
func NewCatalog(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Dir returns the catalog root.
func (c *Catalog) Dir() string { return c.dir }

// QuarterFromFilename labels a file by the quarter tokens in its name.
// Files without a token are treated as full-year files.
func QuarterFromFilename(name string) string {
	lower := strings.ToLower(filepath.Base(name))
	switch {
	case strings.Contains(lower, "q1q2"), strings.Contains(lower, "q1-q2"), strings.Contains(lower, "q1_q2"):
		return model.QuarterH1
	case strings.Contains(lower, "q1"):
		return model.QuarterQ1
	case strings.Contains(lower, "q2"):
		return model.QuarterQ2
	case strings.Contains(lower, "q3"):
		return model.QuarterQ3
	case strings.Contains(lower, "q4"):
		return model.QuarterQ4
	default:
		return model.QuarterFull
	}
}

func isDataFile(name string) bool {
	if strings.HasPrefix(name, "~$") || strings.HasPrefix(name, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".csv":
		return true
	}
	return false
}

// Years returns the numeric year directories in ascending order.
func (c *Catalog) Years() ([]int, error) {
	dirents, err := os.ReadDir(c.dir)
	if err != nil {
		return nil, eris.Wrapf(err, "dataset: read data dir %s", c.dir)
	}

	var years []int
	for _, d := range dirents {
		if !d.IsDir() {
			continue
		}
		y, err := strconv.Atoi(d.Name())
		if err != nil {
			continue
		}
		years = append(years, y)
	}
	sort.Ints(years)
	return years, nil
}

// Entries returns the data files of one year sorted by file name.
func (c *Catalog) Entries(year int) ([]Entry, error) {
	yearDir := filepath.Join(c.dir, strconv.Itoa(year))
	dirents, err := os.ReadDir(yearDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, eris.Wrapf(ErrPeriodNotFound, "dataset: no directory for year %d", year)
		}
		return nil, eris.Wrapf(err, "dataset: read year dir %s", yearDir)
	}

	var out []Entry
	for _, d := range dirents {
		if d.IsDir() || !isDataFile(d.Name()) {
			continue
		}
		out = append(out, Entry{
			Period: model.Period{Year: year, Quarter: QuarterFromFilename(d.Name())},
			Path:   filepath.Join(yearDir, d.Name()),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Available lists every year and its distinct quarter labels in file order.
func (c *Catalog) Available() (*Availability, error) {
	years, err := c.Years()
	if err != nil {
		return nil, err
	}

	av := &Availability{Years: make([]int, 0, len(years)), Quarters: make(map[string][]string, len(years))}
	for _, y := range years {
		entries, err := c.Entries(y)
		if err != nil {
			return nil, err
		}
		seen := make(map[string]bool)
		labels := make([]string, 0, len(entries))
		for _, e := range entries {
			if seen[e.Period.Quarter] {
				continue
			}
			seen[e.Period.Quarter] = true
			labels = append(labels, e.Period.Quarter)
		}
		av.Years = append(av.Years, y)
		av.Quarters[strconv.Itoa(y)] = labels
	}
	return av, nil
}

// Resolve returns the file backing period. A file labelled with the exact
// quarter wins. Q1-Q4 and Q1-Q2 requests fall back to the first file of the
// year.
func (c *Catalog) Resolve(p model.Period) (Entry, error) {
	if !model.ValidQuarter(p.Quarter) {
		return Entry{}, eris.Wrapf(ErrPeriodNotFound, "dataset: invalid quarter %q", p.Quarter)
	}

	entries, err := c.Entries(p.Year)
	if err != nil {
		return Entry{}, err
	}
	if len(entries) == 0 {
		return Entry{}, eris.Wrapf(ErrPeriodNotFound, "dataset: no files for year %d", p.Year)
	}

	for _, e := range entries {
		if e.Period.Quarter == p.Quarter {
			return e, nil
		}
	}
	if p.Quarter == model.QuarterFull || p.Quarter == model.QuarterH1 {
		e := entries[0]
		e.Period = p
		return e, nil
	}
	return Entry{}, eris.Wrapf(ErrPeriodNotFound, "dataset: no file for %s", p)
}
