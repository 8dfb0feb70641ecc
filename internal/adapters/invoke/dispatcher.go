package invoke

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/core/ports"
)

// Dispatcher routes each invocation to the backend registered for the model's
// provider. Models whose provider has no backend run on the fallback.
type Dispatcher struct {
	logger   *slog.Logger
	fallback ports.Invoker

	mu       sync.RWMutex
	backends map[string]ports.Invoker
}

// Reaper is implemented by backends that can leave external resources behind.
type Reaper interface {
	Reap(ctx context.Context) (int, error)
}

var (
	_ ports.Invoker   = (*Dispatcher)(nil)
	_ ports.Preloader = (*Dispatcher)(nil)
)

func NewDispatcher(logger *slog.Logger, fallback ports.Invoker) *Dispatcher {
	return &Dispatcher{
		logger:   logger,
		fallback: fallback,
		backends: make(map[string]ports.Invoker),
	}
}

// Register installs or replaces the backend for provider.
func (d *Dispatcher) Register(provider string, backend ports.Invoker) {
	d.mu.Lock()
	_, replaced := d.backends[provider]
	d.backends[provider] = backend
	d.mu.Unlock()

	d.logger.Info("invoker backend registered", "provider", provider, "replaced", replaced)
}

// Remove drops the backend for provider; its models fall back.
func (d *Dispatcher) Remove(provider string) {
	d.mu.Lock()
	delete(d.backends, provider)
	d.mu.Unlock()
}

// Providers lists the providers with a dedicated backend.
func (d *Dispatcher) Providers() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return slices.Sorted(maps.Keys(d.backends))
}

func (d *Dispatcher) Invoke(ctx context.Context, inv domain.Invocation) (domain.Completion, error) {
	return d.backendFor(inv.Model.Provider).Invoke(ctx, inv)
}

// Preload warms the model when its backend supports it; otherwise it is a
// no-op.
func (d *Dispatcher) Preload(ctx context.Context, model domain.ModelDescriptor) error {
	if p, ok := d.backendFor(model.Provider).(ports.Preloader); ok {
		return p.Preload(ctx, model)
	}
	return nil
}

func (d *Dispatcher) backendFor(provider string) ports.Invoker {
	d.mu.RLock()
	b, ok := d.backends[provider]
	d.mu.RUnlock()
	if ok {
		return b
	}
	return d.fallback
}

// Reap runs Reap on every registered backend that supports it.
func (d *Dispatcher) Reap(ctx context.Context) error {
	d.mu.RLock()
	reapers := make(map[string]Reaper)
	for name, b := range d.backends {
		if r, ok := b.(Reaper); ok {
			reapers[name] = r
		}
	}
	d.mu.RUnlock()

	var errs []error
	for name, r := range reapers {
		if _, err := r.Reap(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
