package services

import (
	"context"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

// MockInvoker is a testify double for ports.Invoker.
type MockInvoker struct {
	mock.Mock
}

func (m *MockInvoker) Invoke(ctx context.Context, inv domain.Invocation) (domain.Completion, error) {
	args := m.Called(ctx, inv)
	return args.Get(0).(domain.Completion), args.Error(1)
}

func (m *MockInvoker) Preload(ctx context.Context, model domain.ModelDescriptor) error {
	return m.Called(ctx, model).Error(0)
}

func descriptor(id string, memory, compute float64, caps ...domain.TaskCategory) domain.ModelDescriptor {
	return domain.ModelDescriptor{
		ID:           id,
		Name:         id,
		Provider:     "test",
		Capabilities: caps,
		Resources:    domain.ResourceRequirement{Memory: memory, Compute: compute},
		Defaults:     domain.ExecutionParameters{Temperature: 0.7, MaxTokens: 1024, TopP: 0.9},
	}
}

// stack wires the routing services the way main does, around a mock invoker.
type stack struct {
	registry  *ModelRegistry
	selection *ModelSelection
	params    *ModelParameters
	execution *ModelExecution
	monitor   *PerformanceMonitor
	agents    *AgentIntegration
	state     *StateMonitor
	invoker   *MockInvoker
}

func newStack(t *testing.T, models ...domain.ModelDescriptor) *stack {
	t.Helper()
	logger := testLogger()
	cfg := domain.DefaultConfig().Router

	s := &stack{invoker: &MockInvoker{}}
	s.registry = NewModelRegistry(logger)
	for _, m := range models {
		require.NoError(t, s.registry.Register(m))
	}
	s.selection = NewModelSelection(logger, s.registry, nil)
	s.params = NewModelParameters(logger, s.registry, s.invoker)
	s.execution = NewModelExecution(logger, s.registry, s.selection, s.params, s.invoker, nil)
	s.monitor = NewPerformanceMonitor(logger, cfg, s.selection, nil, nil, nil)
	s.agents = NewAgentIntegration(logger, s.selection, s.execution, s.monitor)
	s.state = NewStateMonitor(logger, cfg, s.registry, s.monitor, s.agents, nil, nil)
	return s
}
