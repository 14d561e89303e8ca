package dataset

import (
	"context"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/sells-group/lmia-map/internal/model"
)

// Loader produces the full record set for a period.
type Loader interface {
	Load(ctx context.Context, period model.Period) ([]model.EmployerRecord, error)
}

// LoaderFunc adapts a function to Loader.
type LoaderFunc func(ctx context.Context, period model.Period) ([]model.EmployerRecord, error)

// Load calls f.
func (f LoaderFunc) Load(ctx context.Context, period model.Period) ([]model.EmployerRecord, error) {
	return f(ctx, period)
}

// Cache is a concurrent-safe LRU cache of period datasets with TTL
// expiration. Concurrent misses for the same period share one load.
// Failed loads are never stored.
type Cache struct {
	mu          sync.RWMutex
	entries     map[string]*cacheEntry
	maxEntries  int
	ttl         time.Duration
	loadTimeout time.Duration
	loader      Loader
	group       singleflight.Group
	now         func() time.Time

	hits     atomic.Int64
	misses   atomic.Int64
	loads    atomic.Int64
	failures atomic.Int64
}

type cacheEntry struct {
	records   []model.EmployerRecord
	createdAt time.Time
	lastUsed  atomic.Int64 // unix nanos
}

// CacheStats contains cache performance statistics.
type CacheStats struct {
	Entries      int      `json:"entries"`
	MaxEntries   int      `json:"max_entries"`
	Periods      []string `json:"periods"`
	Hits         int64    `json:"hits"`
	Misses       int64    `json:"misses"`
	Loads        int64    `json:"loads"`
	LoadFailures int64    `json:"load_failures"`
	HitRate      float64  `json:"hit_rate"`
}

// CacheOption configures a Cache.
type CacheOption func(*Cache)

// WithClock overrides the time source.
func WithClock(now func() time.Time) CacheOption {
	return func(c *Cache) { c.now = now }
}

// WithLoadTimeout bounds each underlying load.
func WithLoadTimeout(d time.Duration) CacheOption {
	return func(c *Cache) {
		if d > 0 {
			c.loadTimeout = d
		}
	}
}

// NewCache creates a Cache holding at most maxEntries periods for ttl each.
// A non-positive ttl disables expiry.
func NewCache(loader Loader, maxEntries int, ttl time.Duration, opts ...CacheOption) *Cache {
	if maxEntries <= 0 {
		maxEntries = 1
	}
	c := &Cache{
		entries:     make(map[string]*cacheEntry),
		maxEntries:  maxEntries,
		ttl:         ttl,
		loadTimeout: 30 * time.Second,
		loader:      loader,
		now:         time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Get returns the records for period, loading them on a miss.
func (c *Cache) Get(ctx context.Context, period model.Period) ([]model.EmployerRecord, error) {
	key := period.String()
	if recs, ok := c.lookup(key); ok {
		c.hits.Add(1)
		return recs, nil
	}
	c.misses.Add(1)

	ch := c.group.DoChan(key, func() (any, error) {
		if recs, ok := c.lookup(key); ok {
			return recs, nil
		}
		return c.load(ctx, key, period)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]model.EmployerRecord), nil
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "dataset: wait for %s", key)
	}
}

// load runs detached from the first caller's cancellation so that other
// callers waiting on the same key still get a result.
func (c *Cache) load(ctx context.Context, key string, period model.Period) ([]model.EmployerRecord, error) {
	c.loads.Add(1)
	lctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.loadTimeout)
	defer cancel()

	start := c.now()
	recs, err := c.loader.Load(lctx, period)
	if err != nil {
		c.failures.Add(1)
		return nil, eris.Wrapf(err, "dataset: load %s", key)
	}
	if recs == nil {
		recs = []model.EmployerRecord{}
	}
	c.put(key, recs)

	zap.L().Info("dataset: period loaded",
		zap.String("period", key),
		zap.Int("records", len(recs)),
		zap.Duration("elapsed", c.now().Sub(start)),
	)
	return recs, nil
}

func (c *Cache) lookup(key string) ([]model.EmployerRecord, bool) {
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	now := c.now()
	if c.ttl > 0 && now.Sub(entry.createdAt) > c.ttl {
		c.mu.Lock()
		if cur, ok := c.entries[key]; ok && cur == entry {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}
	entry.lastUsed.Store(now.UnixNano())
	return entry.records, true
}

func (c *Cache) put(key string, recs []model.EmployerRecord) {
	now := c.now()
	entry := &cacheEntry{records: recs, createdAt: now}
	entry.lastUsed.Store(now.UnixNano())

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok {
		for len(c.entries) >= c.maxEntries {
			c.evictOldest()
		}
	}
	c.entries[key] = entry
}

// evictOldest removes the least recently used entry. Caller holds mu.
func (c *Cache) evictOldest() {
	var (
		oldestKey string
		oldest    int64
		found     bool
	)
	for k, e := range c.entries {
		used := e.lastUsed.Load()
		if !found || used < oldest || (used == oldest && k < oldestKey) {
			oldestKey, oldest, found = k, used, true
		}
	}
	if found {
		delete(c.entries, oldestKey)
	}
}

// Invalidate drops one period.
func (c *Cache) Invalidate(period model.Period) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, period.String())
}

// Purge drops every cached period.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*cacheEntry)
}

// Preload loads periods concurrently. Failures are logged and skipped.
func (c *Cache) Preload(ctx context.Context, periods []model.Period, concurrency int) int {
	if concurrency <= 0 {
		concurrency = 2
	}
	var loaded atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, p := range periods {
		g.Go(func() error {
			if _, err := c.Get(gctx, p); err != nil {
				zap.L().Warn("dataset: preload failed", zap.String("period", p.String()), zap.Error(err))
				return nil
			}
			loaded.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(loaded.Load())
}

// Stats returns cache performance statistics.
func (c *Cache) Stats() CacheStats {
	c.mu.RLock()
	periods := make([]string, 0, len(c.entries))
	for k := range c.entries {
		periods = append(periods, k)
	}
	maxEntries := c.maxEntries
	c.mu.RUnlock()
	sort.Strings(periods)

	hits := c.hits.Load()
	misses := c.misses.Load()

	var hitRate float64
	if total := hits + misses; total > 0 {
		hitRate = float64(hits) / float64(total)
	}

	return CacheStats{
		Entries:      len(periods),
		MaxEntries:   maxEntries,
		Periods:      periods,
		Hits:         hits,
		Misses:       misses,
		Loads:        c.loads.Load(),
		LoadFailures: c.failures.Load(),
		HitRate:      hitRate,
	}
}
