package services

import (
	"context"
	"log/slog"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

// Plan is a selected model together with the parameters it would run with.
type Plan struct {
	Selection
	Parameters domain.ExecutionParameters `json:"parameters"`
	Preloaded  bool                       `json:"preloaded"`
}

// Orchestrator is the single entry point over registry, selection and
// parameters.
type Orchestrator struct {
	logger    *slog.Logger
	registry  *ModelRegistry
	selection *ModelSelection
	params    *ModelParameters
}

func NewOrchestrator(logger *slog.Logger, registry *ModelRegistry, selection *ModelSelection, params *ModelParameters) *Orchestrator {
	return &Orchestrator{
		logger:    logger,
		registry:  registry,
		selection: selection,
		params:    params,
	}
}

func (o *Orchestrator) RegisterModel(desc domain.ModelDescriptor) error {
	if err := o.registry.Register(desc); err != nil {
		return err
	}
	o.logger.Info("model registered", "model", desc.ID, "provider", desc.Provider)
	return nil
}

func (o *Orchestrator) ListModels() []domain.ModelDescriptor {
	return o.registry.List()
}

func (o *Orchestrator) GetModel(id string) (domain.ModelDescriptor, error) {
	return o.registry.Get(id)
}

// SelectModel returns the best model for req, or false when none is capable.
func (o *Orchestrator) SelectModel(req domain.TaskRequest) (domain.ModelDescriptor, bool) {
	sel, ok := o.selection.Select(req)
	if !ok {
		return domain.ModelDescriptor{}, false
	}
	return sel.Model, true
}

// SelectWithParameters selects a model and resolves its parameter overlay
// without executing anything.
func (o *Orchestrator) SelectWithParameters(req domain.TaskRequest, overrides *domain.ParameterOverrides) (Plan, bool) {
	sel, ok := o.selection.Select(req)
	if !ok {
		return Plan{}, false
	}

	params, err := o.params.OptimizedParameters(sel.Model.ID, req.Category)
	if err != nil {
		// unregistered between select and lookup
		o.logger.Warn("selected model vanished", "model", sel.Model.ID, "error", err)
		return Plan{}, false
	}

	return Plan{
		Selection:  sel,
		Parameters: overrides.Apply(params),
		Preloaded:  o.params.IsPreloaded(sel.Model.ID),
	}, true
}

func (o *Orchestrator) PreloadModel(ctx context.Context, id string) error {
	return o.params.PreloadModel(ctx, id)
}

// Rank exposes the scores of every eligible candidate.
func (o *Orchestrator) Rank(req domain.TaskRequest) []Selection {
	return o.selection.Rank(req)
}

// OptimizedParameters resolves the overlay for a known model.
func (o *Orchestrator) OptimizedParameters(id string, category domain.TaskCategory) (domain.ExecutionParameters, error) {
	return o.params.OptimizedParameters(id, category)
}
