package services

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

// ModelRegistry is the static catalog of model descriptors.
// Registration order is kept so selection tie-breaks stay deterministic:
// re-registering an ID overwrites the descriptor in place.
type ModelRegistry struct {
	logger *slog.Logger
	mu     sync.RWMutex
	models map[string]domain.ModelDescriptor
	order  []string
}

// NewModelRegistry creates an empty registry.
func NewModelRegistry(logger *slog.Logger) *ModelRegistry {
	return &ModelRegistry{
		logger: logger,
		models: make(map[string]domain.ModelDescriptor),
	}
}

// Register inserts or silently overwrites the descriptor keyed by its ID.
func (r *ModelRegistry) Register(desc domain.ModelDescriptor) error {
	if err := desc.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.models[desc.ID]; exists {
		r.logger.Debug("model descriptor overwritten", "model", desc.ID)
	} else {
		r.order = append(r.order, desc.ID)
	}
	r.models[desc.ID] = desc.Clone()
	return nil
}

// Get returns the descriptor for id or ErrModelNotFound.
func (r *ModelRegistry) Get(id string) (domain.ModelDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.models[id]
	if !ok {
		return domain.ModelDescriptor{}, fmt.Errorf("%w: %s", domain.ErrModelNotFound, id)
	}
	return desc.Clone(), nil
}

// Has reports whether id is registered.
func (r *ModelRegistry) Has(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.models[id]
	return ok
}

// List returns every descriptor in registration order.
func (r *ModelRegistry) List() []domain.ModelDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.ModelDescriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.models[id].Clone())
	}
	return out
}

// Unregister removes id. Unknown ids are a no-op.
func (r *ModelRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.models[id]; !ok {
		return
	}
	delete(r.models, id)
	r.order = slices.DeleteFunc(r.order, func(s string) bool { return s == id })
}

// Len returns the number of registered descriptors.
func (r *ModelRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.models)
}
