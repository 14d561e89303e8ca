package api

import (
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/lmia-map/internal/model"
)

// ErrMalformedBounds is the cause of every query-parameter validation error.
var ErrMalformedBounds = eris.New("api: malformed query")

// MaxZoom is the highest accepted map zoom level.
const MaxZoom = 22

// paramError is a client-facing validation message that unwraps to
// ErrMalformedBounds.
type paramError struct {
	msg string
}

func (e *paramError) Error() string { return e.msg }

func (e *paramError) Unwrap() error { return ErrMalformedBounds }

func malformed(format string, args ...any) error {
	return &paramError{msg: fmt.Sprintf(format, args...)}
}

func parseFloatParam(r *http.Request, name string) (float64, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, malformed("missing %s parameter", name)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, malformed("invalid %s parameter %q", name, raw)
	}
	return v, nil
}

// parseBBox reads north, south, east and west. All four are required.
func parseBBox(r *http.Request) (model.BoundingBox, error) {
	var b model.BoundingBox
	var err error
	if b.North, err = parseFloatParam(r, "north"); err != nil {
		return b, err
	}
	if b.South, err = parseFloatParam(r, "south"); err != nil {
		return b, err
	}
	if b.East, err = parseFloatParam(r, "east"); err != nil {
		return b, err
	}
	if b.West, err = parseFloatParam(r, "west"); err != nil {
		return b, err
	}

	if b.Valid() {
		return b, nil
	}
	switch {
	case b.North < -90 || b.North > 90 || b.South < -90 || b.South > 90:
		return b, malformed("latitudes must be within [-90, 90]")
	case b.East < -180 || b.East > 180 || b.West < -180 || b.West > 180:
		return b, malformed("longitudes must be within [-180, 180]")
	case b.South > b.North:
		return b, malformed("south (%g) must not exceed north (%g)", b.South, b.North)
	case b.West > b.East:
		return b, malformed("west (%g) must not exceed east (%g); antimeridian-crossing boxes are not supported", b.West, b.East)
	default:
		return b, malformed("invalid bounding box")
	}
}

// parseOptionalBBox returns Canada when no bound is given, otherwise it
// requires all four.
func parseOptionalBBox(r *http.Request) (model.BoundingBox, error) {
	q := r.URL.Query()
	if !q.Has("north") && !q.Has("south") && !q.Has("east") && !q.Has("west") {
		return model.CanadaBounds, nil
	}
	return parseBBox(r)
}

func parseZoom(r *http.Request) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get("zoom"))
	if raw == "" {
		return 0, malformed("missing zoom parameter")
	}
	z, err := strconv.Atoi(raw)
	if err != nil {
		return 0, malformed("invalid zoom parameter %q", raw)
	}
	if z < 0 || z > MaxZoom {
		return 0, malformed("zoom must be within [0, %d]", MaxZoom)
	}
	return z, nil
}

// parsePeriod reads year and quarter, defaulting to the latest published
// dataset.
func parsePeriod(r *http.Request) (model.Period, error) {
	p := model.Period{Year: model.DefaultYear, Quarter: model.DefaultQuarter}
	q := r.URL.Query()

	if raw := strings.TrimSpace(q.Get("year")); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1900 || y > 9999 {
			return p, malformed("invalid year parameter %q", raw)
		}
		p.Year = y
	}
	if raw := strings.TrimSpace(q.Get("quarter")); raw != "" {
		quarter := strings.ToUpper(raw)
		if !model.ValidQuarter(quarter) {
			return p, malformed("invalid quarter parameter %q", raw)
		}
		p.Quarter = quarter
	}
	return p, nil
}

// parseViewport reads a full viewport query.
func parseViewport(r *http.Request) (model.ViewportQuery, error) {
	var vq model.ViewportQuery
	var err error
	if vq.BBox, err = parseBBox(r); err != nil {
		return vq, err
	}
	if vq.Zoom, err = parseZoom(r); err != nil {
		return vq, err
	}
	if vq.Period, err = parsePeriod(r); err != nil {
		return vq, err
	}
	return vq, nil
}
