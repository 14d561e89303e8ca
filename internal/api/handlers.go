package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lmia-map/internal/dataset"
	"github.com/sells-group/lmia-map/internal/model"
	"github.com/sells-group/lmia-map/internal/respcache"
	"github.com/sells-group/lmia-map/internal/stats"
	"github.com/sells-group/lmia-map/internal/viewport"
)

const (
	contentTypeJSON    = "application/json"
	contentTypeGeoJSON = "application/geo+json"
)

func (s *Server) badRequest(w http.ResponseWriter, r *http.Request, err error) {
	zap.L().Debug("api: rejected query",
		zap.String("path", r.URL.Path),
		zap.String("query", r.URL.RawQuery),
		zap.Error(err),
	)
	writeError(w, http.StatusBadRequest, err.Error())
}

func (s *Server) handleEmployers(w http.ResponseWriter, r *http.Request) {
	q, err := parseViewport(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	s.serveViewport(w, r, q, "json", contentTypeJSON, func(resp *viewport.Response) ([]byte, error) {
		return json.Marshal(resp)
	})
}

func (s *Server) handleEmployersGeoJSON(w http.ResponseWriter, r *http.Request) {
	q, err := parseViewport(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	s.serveViewport(w, r, q, "geojson", contentTypeGeoJSON, renderGeoJSON)
}

// serveViewport runs the query through the response cache. Empty and
// fallback responses are not cached.
func (s *Server) serveViewport(w http.ResponseWriter, r *http.Request, q model.ViewportQuery, kind, contentType string, render func(*viewport.Response) ([]byte, error)) {
	ctx := r.Context()
	rc := s.deps.RespCache
	key := respcache.Key(kind, s.opts.CacheVariant, q)

	if body, ok := rc.Get(ctx, key); ok {
		writeRaw(w, contentType, "hit", body)
		return
	}

	resp := s.deps.Engine.Query(ctx, q)
	body, err := render(resp)
	if err != nil {
		zap.L().Error("api: encode response",
			zap.String("kind", kind),
			zap.String("request_id", RequestID(ctx)),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "failed to encode response")
		return
	}

	state := ""
	if rc != nil {
		state = "miss"
		if resp.Total > 0 && !resp.Fallback {
			rc.Set(ctx, key, body)
		}
	}
	writeRaw(w, contentType, state, body)
}

func (s *Server) handleAvailableData(w http.ResponseWriter, _ *http.Request) {
	av, err := s.deps.Catalog.Available()
	if err != nil {
		zap.L().Warn("api: catalog unavailable", zap.Error(err))
		av = &dataset.Availability{Years: []int{}, Quarters: map[string][]string{}}
	}
	writeJSON(w, http.StatusOK, av)
}

type statisticsResponse struct {
	Year    int               `json:"year"`
	Quarter string            `json:"quarter"`
	BBox    model.BoundingBox `json:"bbox"`
	stats.Summary
}

func (s *Server) handleStatistics(w http.ResponseWriter, r *http.Request) {
	period, err := parsePeriod(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	bbox, err := parseOptionalBBox(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}

	records, err := s.deps.Engine.Records(r.Context(), period, bbox)
	if err != nil {
		level := zap.L().Warn
		if errors.Is(err, dataset.ErrPeriodNotFound) {
			level = zap.L().Info
		}
		level("api: statistics on unavailable period",
			zap.String("period", period.String()),
			zap.Error(err),
		)
		records = nil
	}

	writeJSON(w, http.StatusOK, statisticsResponse{
		Year:    period.Year,
		Quarter: period.Quarter,
		BBox:    bbox,
		Summary: stats.Compute(records, s.opts.StatsTopN),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "ok",
		"timestamp": s.now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleCacheStats(w http.ResponseWriter, _ *http.Request) {
	out := struct {
		Dataset       *dataset.CacheStats `json:"dataset"`
		ResponseCache bool                `json:"response_cache"`
	}{ResponseCache: s.deps.RespCache != nil}
	if s.deps.Cache != nil {
		st := s.deps.Cache.Stats()
		out.Dataset = &st
	}
	writeJSON(w, http.StatusOK, out)
}

// handleCacheReset drops one period from the dataset cache when year or
// quarter is given, otherwise every period.
func (s *Server) handleCacheReset(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("year") == "" && q.Get("quarter") == "" {
		s.deps.Cache.Purge()
		zap.L().Info("api: dataset cache purged", zap.String("request_id", RequestID(r.Context())))
		writeJSON(w, http.StatusOK, map[string]string{"reset": "all"})
		return
	}

	period, err := parsePeriod(r)
	if err != nil {
		s.badRequest(w, r, err)
		return
	}
	s.deps.Cache.Invalidate(period)
	zap.L().Info("api: dataset period invalidated",
		zap.String("period", period.String()),
		zap.String("request_id", RequestID(r.Context())),
	)
	writeJSON(w, http.StatusOK, map[string]string{"reset": period.String()})
}
