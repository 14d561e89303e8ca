package cluster

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/lmia-map/internal/model"
)

func TestOffloader_ReturnsClusters(t *testing.T) {
	o := NewOffloader(2, time.Second)
	out, fellBack := o.Cluster(context.Background(), exampleTrio(), 200, 2)
	assert.False(t, fellBack)
	assert.Len(t, out, 2)
}

func TestOffloader_TimeoutFallsBack(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	var fallbacks atomic.Int32
	slow := func(points []model.EmployerRecord, r float64, m int) []model.Cluster {
		<-release
		return Greedy(points, r, m)
	}
	o := NewOffloader(1, 20*time.Millisecond,
		WithFunc(slow),
		WithFallbackHook(func(string) { fallbacks.Add(1) }),
	)

	out, fellBack := o.Cluster(context.Background(), exampleTrio(), 200, 2)
	require.True(t, fellBack)
	require.Len(t, out, 3)
	for _, c := range out {
		assert.Equal(t, 1, c.Count)
	}
	assert.Equal(t, int32(1), fallbacks.Load())
}

func TestOffloader_NoFreeWorkerFallsBack(t *testing.T) {
	release := make(chan struct{})
	slow := func(points []model.EmployerRecord, r float64, m int) []model.Cluster {
		<-release
		return nil
	}
	o := NewOffloader(1, 20*time.Millisecond, WithFunc(slow))

	// First call occupies the only worker and times out.
	_, fellBack := o.Cluster(context.Background(), exampleTrio(), 200, 2)
	require.True(t, fellBack)

	// Second call cannot acquire the slot before its deadline.
	out, fellBack := o.Cluster(context.Background(), exampleTrio(), 200, 2)
	assert.True(t, fellBack)
	assert.Len(t, out, 3)

	close(release)
}

func TestOffloader_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	release := make(chan struct{})
	defer close(release)
	slow := func(points []model.EmployerRecord, r float64, m int) []model.Cluster {
		<-release
		return nil
	}
	o := NewOffloader(1, time.Second, WithFunc(slow))
	out, fellBack := o.Cluster(ctx, exampleTrio(), 200, 2)
	assert.True(t, fellBack)
	assert.Len(t, out, 3)
}

func TestNewOffloader_Defaults(t *testing.T) {
	o := NewOffloader(0, 0)
	assert.Equal(t, 4, cap(o.slots))
	assert.Equal(t, 10*time.Second, o.timeout)
}
