package ports

import (
	"context"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

// Invoker abstracts the inference capability (Ollama, OpenAI, Wasm, Docker, ...).
// The routing core never looks inside a completion beyond text and usage.
type Invoker interface {
	Invoke(ctx context.Context, inv domain.Invocation) (domain.Completion, error)
}

// Preloader is implemented by backends that can warm a model ahead of use.
type Preloader interface {
	Preload(ctx context.Context, model domain.ModelDescriptor) error
}

// HistoryRepository archives execution records and evaluations (DuckDB).
type HistoryRepository interface {
	SaveExecution(ctx context.Context, rec domain.ExecutionRecord) error
	SaveEvaluation(ctx context.Context, modelID string, category domain.TaskCategory, eval domain.Evaluation) error
	ListExecutions(ctx context.Context, limit int) ([]domain.ExecutionRecord, error)
}
