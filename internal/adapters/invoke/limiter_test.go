package invoke

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

type countingInvoker struct {
	running atomic.Int32
	peak    atomic.Int32
	hold    time.Duration
}

func (c *countingInvoker) Invoke(ctx context.Context, _ domain.Invocation) (domain.Completion, error) {
	n := c.running.Add(1)
	for {
		p := c.peak.Load()
		if n <= p || c.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(c.hold)
	c.running.Add(-1)
	return domain.Completion{Text: "ok"}, nil
}

func TestLimiter_BoundsConcurrentCompute(t *testing.T) {
	backend := &countingInvoker{hold: 50 * time.Millisecond}
	l := NewLimiter(testLogger(), backend, 4)
	model := domain.ModelDescriptor{ID: "m", Resources: domain.ResourceRequirement{Compute: 2}}

	var wg sync.WaitGroup
	for range 6 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := l.Invoke(context.Background(), domain.Invocation{Model: model})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, backend.peak.Load(), int32(2))
	assert.Positive(t, backend.peak.Load())
}

func TestLimiter_Weight(t *testing.T) {
	l := NewLimiter(testLogger(), &countingInvoker{}, 8)

	tests := []struct {
		compute float64
		want    int64
	}{
		{0, 1},
		{0.5, 1},
		{1.5, 2},
		{8, 8},
		{32, 8},
	}
	for _, tt := range tests {
		got := l.weight(domain.ModelDescriptor{Resources: domain.ResourceRequirement{Compute: tt.compute}})
		assert.Equal(t, tt.want, got, "compute %v", tt.compute)
	}
}

func TestLimiter_CancelledWhileWaiting(t *testing.T) {
	backend := &countingInvoker{hold: 200 * time.Millisecond}
	l := NewLimiter(testLogger(), backend, 1)
	model := domain.ModelDescriptor{ID: "m", Resources: domain.ResourceRequirement{Compute: 1}}

	go func() {
		_, _ = l.Invoke(context.Background(), domain.Invocation{Model: model})
	}()
	require.Eventually(t, func() bool { return backend.running.Load() == 1 }, time.Second, 5*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := l.Invoke(ctx, domain.Invocation{Model: model})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
