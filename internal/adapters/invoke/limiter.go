package invoke

import (
	"context"
	"fmt"
	"log/slog"
	"math"

	"golang.org/x/sync/semaphore"

	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/core/ports"
)

const defaultComputeCapacity = 16

// Limiter bounds concurrent invocations by compute units. Each call holds
// ceil(model compute) units, at least one and at most the whole capacity,
// until the backend returns.
type Limiter struct {
	logger   *slog.Logger
	next     ports.Invoker
	sem      *semaphore.Weighted
	capacity int64
}

var (
	_ ports.Invoker   = (*Limiter)(nil)
	_ ports.Preloader = (*Limiter)(nil)
)

func NewLimiter(logger *slog.Logger, next ports.Invoker, capacity int64) *Limiter {
	if capacity <= 0 {
		capacity = defaultComputeCapacity
	}
	return &Limiter{
		logger:   logger,
		next:     next,
		sem:      semaphore.NewWeighted(capacity),
		capacity: capacity,
	}
}

func (l *Limiter) Invoke(ctx context.Context, inv domain.Invocation) (domain.Completion, error) {
	weight := l.weight(inv.Model)
	if !l.sem.TryAcquire(weight) {
		l.logger.Debug("waiting for compute capacity", "model", inv.Model.ID, "units", weight)
		if err := l.sem.Acquire(ctx, weight); err != nil {
			return domain.Completion{}, fmt.Errorf("acquire compute for %s: %w", inv.Model.ID, err)
		}
	}
	defer l.sem.Release(weight)

	return l.next.Invoke(ctx, inv)
}

// Preload is not rate limited; warming does not hold compute.
func (l *Limiter) Preload(ctx context.Context, model domain.ModelDescriptor) error {
	if p, ok := l.next.(ports.Preloader); ok {
		return p.Preload(ctx, model)
	}
	return nil
}

func (l *Limiter) weight(m domain.ModelDescriptor) int64 {
	w := int64(math.Ceil(m.Resources.Compute))
	return max(1, min(w, l.capacity))
}
