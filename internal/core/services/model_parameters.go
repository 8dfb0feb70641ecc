package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/core/ports"
)

const summarizationMaxTokens = 512

// ModelParameters derives per-category parameter overlays from model defaults
// and tracks which models have been preloaded.
type ModelParameters struct {
	logger    *slog.Logger
	registry  *ModelRegistry
	preloader ports.Preloader // optional

	mu        sync.RWMutex
	preloaded map[string]bool
}

// NewModelParameters creates the parameter service. preloader may be nil, in
// which case PreloadModel only sets the readiness marker.
func NewModelParameters(logger *slog.Logger, registry *ModelRegistry, preloader ports.Preloader) *ModelParameters {
	return &ModelParameters{
		logger:    logger,
		registry:  registry,
		preloader: preloader,
		preloaded: make(map[string]bool),
	}
}

// OptimizedParameters clones the model defaults and applies the category overlay.
func (p *ModelParameters) OptimizedParameters(id string, category domain.TaskCategory) (domain.ExecutionParameters, error) {
	desc, err := p.registry.Get(id)
	if err != nil {
		return domain.ExecutionParameters{}, err
	}
	return categoryOverlay(desc.Defaults.Clone(), category), nil
}

func categoryOverlay(params domain.ExecutionParameters, category domain.TaskCategory) domain.ExecutionParameters {
	switch category {
	case domain.CategoryClassification:
		params.Temperature = 0.3
	case domain.CategorySummarization:
		params.Temperature = 0.5
		if params.MaxTokens <= 0 || params.MaxTokens > summarizationMaxTokens {
			params.MaxTokens = summarizationMaxTokens
		}
	case domain.CategoryCodeGeneration:
		params.Temperature = 0.2
		params.TopP = 0.95
	case domain.CategoryReasoning:
		params.Temperature = 0.8
		params.TopP = 0.9
	}
	return params
}

// PreloadModel warms the model on its backend when supported and marks it
// ready. The marker is a readiness signal only.
func (p *ModelParameters) PreloadModel(ctx context.Context, id string) error {
	desc, err := p.registry.Get(id)
	if err != nil {
		return err
	}

	if p.preloader != nil {
		if err := p.preloader.Preload(ctx, desc); err != nil {
			return fmt.Errorf("preload %s: %w", id, err)
		}
	}

	p.mu.Lock()
	p.preloaded[id] = true
	p.mu.Unlock()

	p.logger.Info("model preloaded", "model", id)
	return nil
}

func (p *ModelParameters) IsPreloaded(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.preloaded[id]
}
