package domain

import "time"

// ExecutionRecord is one observed invocation outcome kept in the bounded history.
type ExecutionRecord struct {
	ID           string    `json:"id"`
	ModelID      string    `json:"model_id"`
	TaskID       string    `json:"task_id"`
	StartTime    time.Time `json:"start_time"`
	EndTime      time.Time `json:"end_time"`
	InputTokens  int       `json:"input_tokens"`
	OutputTokens int       `json:"output_tokens"`
	Success      bool      `json:"success"`
	Error        string    `json:"error,omitempty"`
}

// Duration is the wall-clock time between start and end.
func (r ExecutionRecord) Duration() time.Duration {
	return r.EndTime.Sub(r.StartTime)
}

// ExecutionRequest asks for a specific model to run a prompt.
type ExecutionRequest struct {
	ModelID   string              `json:"model_id"`
	TaskID    string              `json:"task_id,omitempty"`
	Prompt    string              `json:"prompt"`
	System    string              `json:"system,omitempty"`
	Category  TaskCategory        `json:"category"`
	Overrides *ParameterOverrides `json:"overrides,omitempty"`
}

// ExecutionResult is returned by the execution service for one invocation.
type ExecutionResult struct {
	Text          string              `json:"text"`
	ModelID       string              `json:"model_id"`
	ExecutionTime time.Duration       `json:"execution_time"`
	StartTime     time.Time           `json:"start_time"`
	InputTokens   int                 `json:"input_tokens"`
	OutputTokens  int                 `json:"output_tokens"`
	Truncated     bool                `json:"truncated"`
	Cost          float64             `json:"cost,omitempty"` // USD, zero when the model has no pricing
	Parameters    ExecutionParameters `json:"parameters"`
}

// Invocation is what a backend receives: the model, the prompt and the merged
// parameter overlay.
type Invocation struct {
	Model  ModelDescriptor
	Prompt string
	System string
	Params ExecutionParameters
}

// Completion is a backend's answer. Token counts are zero when the backend does
// not report usage.
type Completion struct {
	Text         string
	InputTokens  int
	OutputTokens int
}
