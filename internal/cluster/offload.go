package cluster

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/lmia-map/internal/model"
)

// Func is a clustering algorithm over a fixed radius and minimum size.
type Func func(points []model.EmployerRecord, radiusMeters float64, minClusterSize int) []model.Cluster

// Offloader runs clustering on a bounded set of worker goroutines and gives
// up after a deadline. On timeout the caller gets every point back as a
// singleton so the map always has something to draw.
//
// A worker that misses the deadline keeps its slot until the computation
// finishes, so slow inputs cannot pile up unbounded goroutines.
type Offloader struct {
	slots      chan struct{}
	timeout    time.Duration
	fn         Func
	onFallback func(reason string)
}

// OffloadOption configures an Offloader.
type OffloadOption func(*Offloader)

// WithFunc replaces the clustering algorithm (default Greedy).
func WithFunc(fn Func) OffloadOption {
	return func(o *Offloader) {
		if fn != nil {
			o.fn = fn
		}
	}
}

// WithFallbackHook registers a callback invoked each time the fallback path
// is taken.
func WithFallbackHook(fn func(reason string)) OffloadOption {
	return func(o *Offloader) {
		o.onFallback = fn
	}
}

// NewOffloader creates an Offloader with the given worker count and timeout.
func NewOffloader(workers int, timeout time.Duration, opts ...OffloadOption) *Offloader {
	if workers <= 0 {
		workers = 4
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	o := &Offloader{
		slots:   make(chan struct{}, workers),
		timeout: timeout,
		fn:      Greedy,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Cluster clusters points within the offloader's deadline. The second return
// value is true when the unclustered fallback was used.
func (o *Offloader) Cluster(ctx context.Context, points []model.EmployerRecord, radiusMeters float64, minClusterSize int) ([]model.Cluster, bool) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		return o.fallback(points, "no worker available"), true
	}

	done := make(chan []model.Cluster, 1)
	go func() {
		defer func() { <-o.slots }()
		done <- o.fn(points, radiusMeters, minClusterSize)
	}()

	select {
	case res := <-done:
		return res, false
	case <-ctx.Done():
		return o.fallback(points, "timeout"), true
	}
}

func (o *Offloader) fallback(points []model.EmployerRecord, reason string) []model.Cluster {
	zap.L().Warn("cluster: falling back to unclustered points",
		zap.String("reason", reason),
		zap.Int("points", len(points)),
		zap.Duration("timeout", o.timeout),
	)
	if o.onFallback != nil {
		o.onFallback(reason)
	}
	return Unclustered(points)
}
