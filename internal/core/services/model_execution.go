package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/core/ports"
	"github.com/manthysbr/aule-router/internal/telemetry"
)

const (
	// charsPerToken is the rough length-based token estimate used when a
	// backend does not report usage.
	charsPerToken = 4
	// costPlaces is the USD precision of computed costs (micro-dollars).
	costPlaces = 6
)

var perThousand = decimal.NewFromInt(1000)

// InvocationError is returned when the backend call itself fails.
type InvocationError struct {
	ModelID string
	Err     error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("invoke %s: %v", e.ModelID, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }

// ModelExecution shapes and performs one invocation against a chosen model.
// It does not catch invocation errors; recording failures is the caller's job.
type ModelExecution struct {
	logger    *slog.Logger
	registry  *ModelRegistry
	selection *ModelSelection
	params    *ModelParameters
	invoker   ports.Invoker
	metrics   *telemetry.Metrics
}

func NewModelExecution(
	logger *slog.Logger,
	registry *ModelRegistry,
	selection *ModelSelection,
	params *ModelParameters,
	invoker ports.Invoker,
	metrics *telemetry.Metrics,
) *ModelExecution {
	return &ModelExecution{
		logger:    logger,
		registry:  registry,
		selection: selection,
		params:    params,
		invoker:   invoker,
		metrics:   metrics,
	}
}

// ExecuteTask runs req.Prompt on req.ModelID with the category overlay and the
// caller overrides merged on top of the model defaults.
func (e *ModelExecution) ExecuteTask(ctx context.Context, req domain.ExecutionRequest) (domain.ExecutionResult, error) {
	desc, err := e.registry.Get(req.ModelID)
	if err != nil {
		return domain.ExecutionResult{}, err
	}

	base, err := e.params.OptimizedParameters(desc.ID, req.Category)
	if err != nil {
		return domain.ExecutionResult{}, err
	}
	params := req.Overrides.Apply(base)

	start := time.Now()
	completion, err := e.invoker.Invoke(ctx, domain.Invocation{
		Model:  desc,
		Prompt: req.Prompt,
		System: req.System,
		Params: params,
	})
	elapsed := time.Since(start)

	inTokens := completion.InputTokens
	if inTokens == 0 {
		inTokens = EstimateTokens(req.System) + EstimateTokens(req.Prompt)
	}

	if err != nil {
		e.metrics.ObserveExecution(desc.ID, false, elapsed, inTokens, 0)
		return domain.ExecutionResult{}, &InvocationError{ModelID: desc.ID, Err: err}
	}

	outTokens := completion.OutputTokens
	if outTokens == 0 {
		outTokens = EstimateTokens(completion.Text)
	}

	e.selection.UpdateMetrics(desc.ID, domain.MetricSet{
		domain.MetricLatency: float64(elapsed.Milliseconds()),
	})
	e.metrics.ObserveExecution(desc.ID, true, elapsed, inTokens, outTokens)

	result := domain.ExecutionResult{
		Text:          completion.Text,
		ModelID:       desc.ID,
		ExecutionTime: elapsed,
		StartTime:     start,
		InputTokens:   inTokens,
		OutputTokens:  outTokens,
		Truncated:     params.MaxTokens > 0 && outTokens >= params.MaxTokens,
		Cost:          cost(desc.Pricing, inTokens, outTokens),
		Parameters:    params,
	}

	e.logger.Debug("model executed",
		"model", desc.ID,
		"category", req.Category,
		"duration_ms", elapsed.Milliseconds(),
		"input_tokens", inTokens,
		"output_tokens", outTokens,
		"truncated", result.Truncated,
	)
	return result, nil
}

// ExecuteWithOptimalModel selects a model for req and executes prompt on it.
func (e *ModelExecution) ExecuteWithOptimalModel(ctx context.Context, prompt, system string, req domain.TaskRequest, overrides *domain.ParameterOverrides) (domain.ExecutionResult, error) {
	sel, ok := e.selection.Select(req)
	if !ok {
		return domain.ExecutionResult{}, fmt.Errorf("%w for category %s", domain.ErrNoSuitableModel, req.Category)
	}

	return e.ExecuteTask(ctx, domain.ExecutionRequest{
		ModelID:   sel.Model.ID,
		Prompt:    prompt,
		System:    system,
		Category:  req.Category,
		Overrides: overrides,
	})
}

// EstimateTokens approximates the token count of s from its length.
func EstimateTokens(s string) int {
	if s == "" {
		return 0
	}
	return (len(s) + charsPerToken - 1) / charsPerToken
}

// cost sums input and output charges in decimal and rounds to micro-dollars.
func cost(p *domain.Pricing, in, out int) float64 {
	if p == nil {
		return 0
	}
	input := decimal.NewFromInt(int64(max(in, 0))).Mul(decimal.NewFromFloat(p.InputPer1K))
	output := decimal.NewFromInt(int64(max(out, 0))).Mul(decimal.NewFromFloat(p.OutputPer1K))
	return input.Add(output).Div(perThousand).Round(costPlaces).InexactFloat64()
}
