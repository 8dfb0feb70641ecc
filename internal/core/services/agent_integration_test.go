package services

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

func TestTaskComplexity(t *testing.T) {
	tests := []struct {
		name string
		task domain.AgentTask
		want float64
	}{
		{"low empty", domain.AgentTask{Priority: "LOW"}, 0.17},
		{"medium empty", domain.AgentTask{Priority: domain.PriorityMedium}, 0.27},
		{"unknown priority weighs as medium", domain.AgentTask{Priority: "urgent"}, 0.27},
		{"critical with context", domain.AgentTask{
			Priority: domain.PriorityCritical,
			Context:  []string{"a", "b", "c"},
		}, 0.45 + 0.09 + 0.02},
		{"context contribution is capped", domain.AgentTask{
			Priority: domain.PriorityHigh,
			Context:  []string{"1", "2", "3", "4", "5", "6", "7", "8"},
		}, 0.35 + 0.15 + 0.02},
		{"large payload", domain.AgentTask{
			Priority: domain.PriorityLow,
			Data:     map[string]any{"a": 1, "b": 2, "c": 3, "d": 4, "e": 5, "f": 6},
		}, 0.15 + 0.04},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := TaskComplexity(tt.task)
			assert.InDelta(t, tt.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestCategoryForTaskType(t *testing.T) {
	assert.Equal(t, domain.CategoryReasoning, CategoryForTaskType("learning_path"))
	assert.Equal(t, domain.CategorySummarization, CategoryForTaskType("Content-Summary"))
	assert.Equal(t, domain.CategoryCodeGeneration, CategoryForTaskType("code_review"))
	assert.Equal(t, domain.CategoryTextGeneration, CategoryForTaskType("something_new"))
	assert.Equal(t, domain.CategoryTextGeneration, CategoryForTaskType(""))
}

func TestBuildPrompt(t *testing.T) {
	task := domain.AgentTask{
		TaskType:    "knowledge_qa",
		Description: "What is a goroutine?",
		Priority:    domain.PriorityHigh,
		Context:     []string{"go", "concurrency"},
		Data:        map[string]any{"level": "beginner"},
	}

	prompt := BuildPrompt(domain.CategoryQuestionAnswering, task)

	assert.True(t, strings.HasPrefix(prompt, categoryPreambles[domain.CategoryQuestionAnswering]))
	assert.Contains(t, prompt, "Task type: knowledge_qa")
	assert.Contains(t, prompt, "Description: What is a goroutine?")
	assert.Contains(t, prompt, "Context: go, concurrency")
	assert.Contains(t, prompt, "Priority: high")
	assert.Contains(t, prompt, `"level": "beginner"`)
}

func TestProcessAgentTask_Success(t *testing.T) {
	s := newStack(t,
		descriptor("qa-small", 3, 1, domain.CategoryQuestionAnswering),
		descriptor("writer", 4, 2, domain.CategoryTextGeneration),
	)
	s.invoker.On("Invoke", mock.Anything, mock.MatchedBy(func(inv domain.Invocation) bool {
		return inv.Model.ID == "qa-small" && strings.Contains(inv.Prompt, "What is a channel?")
	})).Return(domain.Completion{Text: "A typed conduit."}, nil).Once()

	text, err := s.agents.ProcessAgentTask(context.Background(), domain.AgentTask{
		ID:          "task-1",
		TaskType:    "knowledge_qa",
		Description: "What is a channel?",
		Priority:    domain.PriorityLow,
	})
	require.NoError(t, err)
	assert.Equal(t, "A typed conduit.", text)

	recent := s.monitor.RecentExecutions(10)
	require.Len(t, recent, 1)
	assert.True(t, recent[0].Success)
	assert.Equal(t, "qa-small", recent[0].ModelID)
	assert.Equal(t, "task-1", recent[0].TaskID)

	perf, ok := s.monitor.ModelPerformance("qa-small")
	require.True(t, ok)
	assert.InDelta(t, 0.85, perf.Accuracy, 1e-9)
	assert.InDelta(t, 0.8, perf.Quality, 1e-9)

	// evaluation feedback reaches selection
	assert.InDelta(t, 0.85, s.selection.Metrics("qa-small")[domain.MetricAccuracy], 1e-9)
	s.invoker.AssertExpectations(t)
}

func TestProcessAgentTask_FailureIsRecordedAndReturned(t *testing.T) {
	s := newStack(t, descriptor("writer", 4, 2, domain.CategoryTextGeneration))
	boom := errors.New("backend exploded")
	s.invoker.On("Invoke", mock.Anything, mock.Anything).Return(domain.Completion{}, boom).Once()

	_, err := s.agents.ProcessAgentTask(context.Background(), domain.AgentTask{ID: "task-2", TaskType: "unmapped"})
	require.ErrorIs(t, err, boom)

	recent := s.monitor.RecentExecutions(10)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].Success)
	assert.Equal(t, "writer", recent[0].ModelID)
	assert.Contains(t, recent[0].Error, "backend exploded")

	_, ok := s.monitor.ModelPerformance("writer")
	assert.False(t, ok, "failed tasks must not record an evaluation")
}

func TestProcessAgentTask_NoSuitableModel(t *testing.T) {
	s := newStack(t, descriptor("coder", 8, 4, domain.CategoryCodeGeneration))

	_, err := s.agents.ProcessAgentTask(context.Background(), domain.AgentTask{ID: "t", TaskType: "tagging"})
	require.ErrorIs(t, err, domain.ErrNoSuitableModel)

	recent := s.monitor.RecentExecutions(10)
	require.Len(t, recent, 1)
	assert.False(t, recent[0].Success)
	assert.Empty(t, recent[0].ModelID)
}

func TestOptimalModelForTaskType(t *testing.T) {
	s := newStack(t, domain.DefaultCatalog()...)

	id, ok := s.agents.OptimalModelForTaskType("code_generation")
	require.True(t, ok)
	assert.Equal(t, "qwen2.5-coder:7b", id)

	_, ok = newStack(t).agents.OptimalModelForTaskType("code_generation")
	assert.False(t, ok)

	s.invoker.AssertNotCalled(t, "Invoke", mock.Anything, mock.Anything)
	assert.Empty(t, s.monitor.RecentExecutions(10))
}
