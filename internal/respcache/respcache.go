// Package respcache caches encoded API responses in Redis. A nil *Cache is
// valid and never hits.
package respcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/lmia-map/internal/model"
)

// DefaultTTL applies when Config.TTL is zero.
const DefaultTTL = 10 * time.Minute

const keyPrefix = "lmia:resp:"

// Client is the subset of redis.Cmdable the cache needs.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Config holds the Redis connection settings.
type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Cache stores response bodies under hashed query keys.
type Cache struct {
	client  Client
	ttl     time.Duration
	timeout time.Duration
	observe func(hit bool)
	closer  func() error
}

// Option configures a Cache.
type Option func(*Cache)

// WithObserver registers a callback invoked on every lookup.
func WithObserver(fn func(hit bool)) Option {
	return func(c *Cache) { c.observe = fn }
}

// WithTimeout bounds each Redis round trip. Default 200ms.
func WithTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// New wraps an existing client.
func New(client Client, ttl time.Duration, opts ...Option) *Cache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c := &Cache{client: client, ttl: ttl, timeout: 200 * time.Millisecond}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Open connects to Redis. It returns nil, nil when cfg.Addr is empty.
func Open(ctx context.Context, cfg Config, opts ...Option) (*Cache, error) {
	if cfg.Addr == "" {
		return nil, nil
	}
	rc := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})

	pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	if err := rc.Ping(pingCtx).Err(); err != nil {
		_ = rc.Close()
		return nil, eris.Wrapf(err, "respcache: ping %s", cfg.Addr)
	}

	c := New(rc, cfg.TTL, opts...)
	c.closer = rc.Close
	zap.L().Info("respcache: connected",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.Duration("ttl", c.ttl),
	)
	return c, nil
}

// Get returns the cached body for key. Misses and errors both report false.
func (c *Cache) Get(ctx context.Context, key string) ([]byte, bool) {
	if c == nil {
		return nil, false
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	b, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		c.record(true)
		return b, true
	case errors.Is(err, redis.Nil):
	default:
		zap.L().Warn("respcache: get failed, treating as miss", zap.String("key", key), zap.Error(err))
	}
	c.record(false)
	return nil, false
}

// Set stores body under key. Errors are logged and dropped.
func (c *Cache) Set(ctx context.Context, key string, body []byte) {
	if c == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.client.Set(ctx, key, body, c.ttl).Err(); err != nil {
		zap.L().Warn("respcache: set failed", zap.String("key", key), zap.Error(err))
	}
}

// Close releases the connection when the cache owns it.
func (c *Cache) Close() error {
	if c == nil || c.closer == nil {
		return nil
	}
	return c.closer()
}

func (c *Cache) record(hit bool) {
	if c.observe != nil {
		c.observe(hit)
	}
}

// Key derives the cache key for a viewport query rendered as kind. variant
// identifies the aggregation settings of the serving instance, so instances
// configured differently never share entries. Coordinates are keyed on their
// exact values because the engine filters on exact values.
func Key(kind, variant string, q model.ViewportQuery) string {
	raw := strings.Join([]string{
		kind, variant, q.Period.String(), strconv.Itoa(q.Zoom),
		formatCoord(q.BBox.North), formatCoord(q.BBox.South),
		formatCoord(q.BBox.East), formatCoord(q.BBox.West),
	}, "|")
	sum := sha256.Sum256([]byte(raw))
	return keyPrefix + kind + ":" + hex.EncodeToString(sum[:16])
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
