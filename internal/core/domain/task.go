package domain

import (
	"strings"
	"time"
)

// ResourceCeiling caps what a selected model may require.
// A zero value on an axis leaves that axis unconstrained.
type ResourceCeiling struct {
	MaxMemory  float64 `json:"max_memory,omitempty"`
	MaxCompute float64 `json:"max_compute,omitempty"`
}

// TaskRequest is the generic routing request produced from any task description.
type TaskRequest struct {
	Category   TaskCategory     `json:"category"`
	Complexity float64          `json:"complexity"` // clamped to [0,1]
	DomainTags []string         `json:"domain_tags,omitempty"`
	Ceiling    *ResourceCeiling `json:"ceiling,omitempty"`
}

// Priority of an agent task as assigned by the coordination layer.
type Priority string

const (
	PriorityCritical Priority = "critical"
	PriorityHigh     Priority = "high"
	PriorityMedium   Priority = "medium"
	PriorityLow      Priority = "low"
)

// Weight maps a priority to its complexity contribution. Matching is
// case-insensitive; unknown priorities weigh as medium.
func (p Priority) Weight() float64 {
	switch Priority(strings.ToLower(string(p))) {
	case PriorityCritical:
		return 0.9
	case PriorityHigh:
		return 0.7
	case PriorityLow:
		return 0.3
	default:
		return 0.5
	}
}

type AgentTaskStatus string

const (
	AgentTaskPending   AgentTaskStatus = "PENDING"
	AgentTaskRunning   AgentTaskStatus = "RUNNING"
	AgentTaskCompleted AgentTaskStatus = "COMPLETED"
	AgentTaskFailed    AgentTaskStatus = "FAILED"
)

// AgentTask is a work item handed over by the multi-agent coordination layer.
type AgentTask struct {
	ID          string          `json:"id"`
	UserID      string          `json:"user_id"`
	TaskType    string          `json:"task_type"`
	Description string          `json:"description"`
	Priority    Priority        `json:"priority"`
	Context     []string        `json:"context,omitempty"`
	Data        map[string]any  `json:"data,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
	Status      AgentTaskStatus `json:"status,omitempty"`
}

// Clamp01 bounds v to [0,1].
func Clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
