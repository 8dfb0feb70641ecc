package domain

import (
	"maps"
	"slices"
	"time"
)

// HealthStatus is the coarse health derived by the periodic poll.
type HealthStatus string

const (
	HealthStatusUnknown  HealthStatus = "UNKNOWN"
	HealthStatusHealthy  HealthStatus = "HEALTHY"
	HealthStatusDegraded HealthStatus = "DEGRADED"
)

// StateMetrics are rolling counters over completed agent tasks.
type StateMetrics struct {
	CompletedTasks      int     `json:"completed_tasks"`
	AverageResponseTime float64 `json:"average_response_time"` // ms
	SuccessRate         float64 `json:"success_rate"`
	CompletionRate      float64 `json:"completion_rate"`
	SatisfactionScore   float64 `json:"satisfaction_score"`
}

// SystemState is the live runtime picture of the router.
type SystemState struct {
	ActiveAgents   []string       `json:"active_agents"`
	TaskQueue      []AgentTask    `json:"task_queue"`
	CompletedTasks []AgentTask    `json:"completed_tasks"`
	Metrics        StateMetrics   `json:"metrics"`
	Variables      map[string]any `json:"variables"`
	LastUpdated    time.Time      `json:"last_updated"`
}

// Clone returns a copy that shares nothing mutable with s. Variable values are
// copied shallowly.
func (s SystemState) Clone() SystemState {
	out := s
	out.ActiveAgents = slices.Clone(s.ActiveAgents)
	out.TaskQueue = slices.Clone(s.TaskQueue)
	out.CompletedTasks = slices.Clone(s.CompletedTasks)
	out.Variables = maps.Clone(s.Variables)
	if out.Variables == nil {
		out.Variables = map[string]any{}
	}
	return out
}
