package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lmia-map/internal/api"
	"github.com/sells-group/lmia-map/internal/cluster"
	"github.com/sells-group/lmia-map/internal/config"
	"github.com/sells-group/lmia-map/internal/dataset"
	"github.com/sells-group/lmia-map/internal/db"
	"github.com/sells-group/lmia-map/internal/gazetteer"
	"github.com/sells-group/lmia-map/internal/ingest"
	"github.com/sells-group/lmia-map/internal/metrics"
	"github.com/sells-group/lmia-map/internal/model"
	"github.com/sells-group/lmia-map/internal/respcache"
	"github.com/sells-group/lmia-map/internal/viewport"
)

// gazetteerEnv holds the resolver and whichever backing store the
// configured driver opened.
type gazetteerEnv struct {
	Resolver *gazetteer.Resolver
	SQLite   *gazetteer.SQLiteProvider
	Postgres *gazetteer.PostgresProvider

	closers []func()
}

// Close releases the backing store.
func (g *gazetteerEnv) Close() {
	for i := len(g.closers) - 1; i >= 0; i-- {
		g.closers[i]()
	}
}

// openGazetteer builds the resolver for the configured driver. The embedded
// static table is always the last provider so province and city defaults
// resolve even when the database has no match.
func openGazetteer(ctx context.Context, gc config.GazetteerConfig) (*gazetteerEnv, error) {
	table, err := gazetteer.DefaultStaticTable()
	if err != nil {
		return nil, eris.Wrap(err, "gazetteer: load static table")
	}

	env := &gazetteerEnv{}
	switch gc.Driver {
	case "", "static":
		env.Resolver = gazetteer.NewResolver(table, table)
	case "sqlite":
		p, err := gazetteer.OpenSQLite(ctx, gc.SQLitePath)
		if err != nil {
			return nil, err
		}
		env.SQLite = p
		env.closers = append(env.closers, func() { _ = p.Close() })
		env.Resolver = gazetteer.NewResolver(table, p, table)
	case "postgres":
		pool, err := db.Open(ctx, gc.DatabaseURL, db.PoolConfig{MaxConns: 5})
		if err != nil {
			return nil, err
		}
		env.closers = append(env.closers, pool.Close)
		p := gazetteer.NewPostgresProvider(pool)
		if err := p.Migrate(ctx); err != nil {
			env.Close()
			return nil, err
		}
		env.Postgres = p
		env.Resolver = gazetteer.NewResolver(table, p, table)
	default:
		return nil, eris.Errorf("gazetteer: unknown driver %q", gc.Driver)
	}

	zap.L().Debug("gazetteer ready",
		zap.String("driver", gc.Driver),
		zap.Int("static_cities", table.CityCount()),
	)
	return env, nil
}

// appEnv is the wired serving stack.
type appEnv struct {
	Gazetteer *gazetteerEnv
	Catalog   *dataset.Catalog
	Cache     *dataset.Cache
	Metrics   *metrics.Metrics
	Engine    *viewport.Engine
	RespCache *respcache.Cache
	Server    *api.Server
}

// Close releases every resource the app opened.
func (a *appEnv) Close() {
	if a.RespCache != nil {
		_ = a.RespCache.Close()
	}
	if a.Gazetteer != nil {
		a.Gazetteer.Close()
	}
}

// buildApp wires the dataset cache, viewport engine and HTTP server from cfg.
// A configured but unreachable Redis downgrades to no response cache.
func buildApp(ctx context.Context, c *config.Config) (*appEnv, error) {
	gz, err := openGazetteer(ctx, c.Gazetteer)
	if err != nil {
		return nil, err
	}
	app := &appEnv{Gazetteer: gz}

	app.Catalog = dataset.NewCatalog(c.Dataset.DataDir)
	loader := dataset.NewFileLoader(app.Catalog, ingest.NewNormalizer(gz.Resolver))
	app.Cache = dataset.NewCache(loader, c.Dataset.CacheMaxPeriods, c.Dataset.CacheTTL,
		dataset.WithLoadTimeout(c.Dataset.LoadTimeout),
	)

	app.Metrics = metrics.New()
	app.Metrics.RegisterDatasetCache(app.Cache)
	app.Metrics.RegisterGazetteer(gz.Resolver)

	offOpts := []cluster.OffloadOption{cluster.WithFallbackHook(app.Metrics.ClusterFallback)}
	if c.Viewport.ClusterAlgorithm == "grid" {
		cell := c.Viewport.GridCellDegrees
		offOpts = append(offOpts, cluster.WithFunc(func(points []model.EmployerRecord, _ float64, minSize int) []model.Cluster {
			return cluster.Grid(points, cell, minSize)
		}))
	}
	offloader := cluster.NewOffloader(c.Viewport.ClusterWorkers, c.Viewport.ClusterTimeout, offOpts...)

	app.Engine = viewport.NewEngine(app.Cache, offloader, app.Metrics, viewport.Options{
		RegionTopN:     c.Viewport.RegionTopN,
		CityTopN:       c.Viewport.CityTopN,
		CityMode:       viewport.CityMode(c.Viewport.CityMode),
		MinClusterSize: c.Viewport.MinClusterSize,
		LoadTimeout:    c.Dataset.LoadTimeout,
	})

	rc, err := respcache.Open(ctx, respcache.Config{
		Addr:     c.Redis.Addr,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		TTL:      c.Redis.TTL,
	}, respcache.WithObserver(app.Metrics.ResponseCache))
	if err != nil {
		zap.L().Warn("response cache disabled", zap.String("addr", c.Redis.Addr), zap.Error(err))
		rc = nil
	}
	app.RespCache = rc

	app.Server = api.NewServer(api.Deps{
		Engine:         app.Engine,
		Catalog:        app.Catalog,
		Cache:          app.Cache,
		RespCache:      app.RespCache,
		Metrics:        app.Metrics,
		MetricsHandler: app.Metrics.Handler(),
	}, api.Options{
		CORSOrigins:    c.Server.CORSOrigins,
		RateLimitRPS:   c.Server.RateLimitRPS,
		RateLimitBurst: c.Server.RateLimitBurst,
		CacheVariant:   cacheVariant(c.Viewport),
	})
	return app, nil
}

// cacheVariant fingerprints the viewport settings that change response
// bodies.
func cacheVariant(vc config.ViewportConfig) string {
	return fmt.Sprintf("%s/%s/%g/%d/%d/%d",
		vc.CityMode, vc.ClusterAlgorithm, vc.GridCellDegrees,
		vc.RegionTopN, vc.CityTopN, vc.MinClusterSize)
}

// preload warms the dataset cache for the configured periods.
func (a *appEnv) preload(ctx context.Context, periods []model.Period) {
	if len(periods) == 0 {
		return
	}
	start := time.Now()
	n := a.Cache.Preload(ctx, periods, 2)
	zap.L().Info("dataset preload complete",
		zap.Int("requested", len(periods)),
		zap.Int("loaded", n),
		zap.Duration("elapsed", time.Since(start)),
	)
}
