// Package api serves the LMIA employer map over HTTP.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/lmia-map/internal/dataset"
	"github.com/sells-group/lmia-map/internal/model"
	"github.com/sells-group/lmia-map/internal/respcache"
	"github.com/sells-group/lmia-map/internal/viewport"
)

// Querier answers viewport and record queries.
type Querier interface {
	Query(ctx context.Context, q model.ViewportQuery) *viewport.Response
	Records(ctx context.Context, period model.Period, bbox model.BoundingBox) ([]model.EmployerRecord, error)
}

// Catalog lists the periods on disk.
type Catalog interface {
	Available() (*dataset.Availability, error)
}

// DatasetCache reports on and resets the dataset cache.
type DatasetCache interface {
	Stats() dataset.CacheStats
	Invalidate(period model.Period)
	Purge()
}

// Options configures the HTTP layer.
type Options struct {
	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	StatsTopN      int
	// CacheVariant names the engine settings that shape a response. It is
	// part of every response cache key.
	CacheVariant string
}

// Deps are the collaborators a Server needs. Cache, RespCache, Metrics and
// MetricsHandler are optional.
type Deps struct {
	Engine         Querier
	Catalog        Catalog
	Cache          DatasetCache
	RespCache      *respcache.Cache
	Metrics        HTTPObserver
	MetricsHandler http.Handler
}

// Server holds the API handlers.
type Server struct {
	deps Deps
	opts Options
	now  func() time.Time
}

// NewServer creates a Server.
func NewServer(deps Deps, opts Options) *Server {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	return &Server{deps: deps, opts: opts, now: time.Now}
}

// Routes builds the chi router with the middleware stack.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(accessLog(s.deps.Metrics))
	r.Use(recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", RequestIDHeader},
		ExposedHeaders: []string{RequestIDHeader, "X-Cache"},
		MaxAge:         300,
	}))

	r.Get("/api/health", s.handleHealth)
	if s.deps.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.MetricsHandler)
	}

	r.Group(func(r chi.Router) {
		if s.opts.RateLimitRPS > 0 {
			burst := max(s.opts.RateLimitBurst, 1)
			r.Use(rateLimit(rate.NewLimiter(rate.Limit(s.opts.RateLimitRPS), burst)))
		}
		r.Get("/api/employers", s.handleEmployers)
		r.Get("/api/employers.geojson", s.handleEmployersGeoJSON)
		r.Get("/api/available-data", s.handleAvailableData)
		r.Get("/api/statistics", s.handleStatistics)
		r.Get("/api/cache/stats", s.handleCacheStats)
		if s.deps.Cache != nil {
			r.Post("/api/cache/reset", s.handleCacheReset)
		}
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Debug("api: write response", zap.Error(err))
	}
}

func writeRaw(w http.ResponseWriter, contentType, cacheState string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	if cacheState != "" {
		w.Header().Set("X-Cache", cacheState)
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
