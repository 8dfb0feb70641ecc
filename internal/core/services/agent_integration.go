package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

// baseAgentTags are prepended to every agent task's domain context.
var baseAgentTags = []string{"agent", "task"}

// taskTypeCategories maps coordination-layer task types to routing categories.
var taskTypeCategories = map[string]domain.TaskCategory{
	"learning_path":      domain.CategoryReasoning,
	"content_generation": domain.CategoryContentCreation,
	"content_summary":    domain.CategorySummarization,
	"knowledge_qa":       domain.CategoryQuestionAnswering,
	"question_answering": domain.CategoryQuestionAnswering,
	"classification":     domain.CategoryClassification,
	"tagging":            domain.CategoryClassification,
	"code_generation":    domain.CategoryCodeGeneration,
	"code_review":        domain.CategoryCodeGeneration,
	"graph_analysis":     domain.CategoryReasoning,
	"portfolio_review":   domain.CategorySummarization,
	"translation":        domain.CategoryTranslation,
	"sentiment":          domain.CategorySentiment,
}

var categoryPreambles = map[domain.TaskCategory]string{
	domain.CategoryTextGeneration:    "You are a helpful assistant. Produce clear, well-structured text.",
	domain.CategoryQuestionAnswering: "You are a knowledgeable assistant. Answer accurately and concisely, stating uncertainty when relevant.",
	domain.CategoryClassification:    "You are a precise classifier. Respond with the most appropriate label and a one-line rationale.",
	domain.CategorySummarization:     "You are an expert summarizer. Capture the key points faithfully and briefly.",
	domain.CategoryReasoning:         "You are a careful analyst. Reason step by step before giving your conclusion.",
	domain.CategoryCodeGeneration:    "You are a senior software engineer. Write correct, idiomatic and well-tested code.",
	domain.CategoryContentCreation:   "You are a skilled content creator. Write engaging material tailored to the audience.",
	domain.CategoryTranslation:       "You are a professional translator. Preserve meaning, tone and formatting.",
	domain.CategorySentiment:         "You are a sentiment analyst. Report the overall sentiment and its intensity.",
}

// Fixed evaluation figures recorded after a successful agent task until real
// scoring is wired in.
const (
	placeholderAccuracy     = 0.85
	placeholderQuality      = 0.8
	placeholderEfficiency   = 0.75
	placeholderSatisfaction = 0.8
)

// AgentIntegration translates agent tasks into routing requests, executes them
// on the best model and reports the outcome to monitoring.
type AgentIntegration struct {
	logger    *slog.Logger
	selection *ModelSelection
	execution *ModelExecution
	monitor   *PerformanceMonitor
}

func NewAgentIntegration(logger *slog.Logger, selection *ModelSelection, execution *ModelExecution, monitor *PerformanceMonitor) *AgentIntegration {
	return &AgentIntegration{
		logger:    logger,
		selection: selection,
		execution: execution,
		monitor:   monitor,
	}
}

// ProcessAgentTask runs task on the optimal model and returns the produced
// text. Failures are recorded and returned, never swallowed.
func (a *AgentIntegration) ProcessAgentTask(ctx context.Context, task domain.AgentTask) (string, error) {
	category := CategoryForTaskType(task.TaskType)
	req := domain.TaskRequest{
		Category:   category,
		Complexity: TaskComplexity(task),
		DomainTags: append(append([]string{}, baseAgentTags...), task.Context...),
	}
	prompt := BuildPrompt(category, task)

	a.logger.Info("processing agent task",
		"task_id", task.ID,
		"task_type", task.TaskType,
		"category", category,
		"complexity", req.Complexity,
	)

	start := time.Now()
	result, err := a.execution.ExecuteWithOptimalModel(ctx, prompt, "", req, nil)
	if err != nil {
		var modelID string
		var invErr *InvocationError
		if errors.As(err, &invErr) {
			modelID = invErr.ModelID
		}

		a.logger.Error("agent task failed",
			"task_id", task.ID,
			"task_type", task.TaskType,
			"model", modelID,
			"error", err,
		)
		a.monitor.RecordExecution(domain.ExecutionRecord{
			ModelID:     modelID,
			TaskID:      task.ID,
			StartTime:   start,
			EndTime:     time.Now(),
			InputTokens: EstimateTokens(prompt),
			Success:     false,
			Error:       err.Error(),
		})
		return "", fmt.Errorf("agent task %s: %w", task.ID, err)
	}

	a.monitor.RecordExecution(domain.ExecutionRecord{
		ModelID:      result.ModelID,
		TaskID:       task.ID,
		StartTime:    result.StartTime,
		EndTime:      result.StartTime.Add(result.ExecutionTime),
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		Success:      true,
	})
	a.monitor.RecordEvaluation(result.ModelID, category, domain.Evaluation{
		Accuracy:           placeholderAccuracy,
		Latency:            float64(result.ExecutionTime.Milliseconds()),
		Quality:            placeholderQuality,
		ResourceEfficiency: placeholderEfficiency,
		Satisfaction:       placeholderSatisfaction,
	})

	a.logger.Info("agent task completed",
		"task_id", task.ID,
		"model", result.ModelID,
		"duration_ms", result.ExecutionTime.Milliseconds(),
	)
	return result.Text, nil
}

// OptimalModelForTaskType reports which model would serve taskType without
// executing anything.
func (a *AgentIntegration) OptimalModelForTaskType(taskType string) (string, bool) {
	sel, ok := a.selection.Select(domain.TaskRequest{
		Category:   CategoryForTaskType(taskType),
		Complexity: domain.PriorityMedium.Weight(),
		DomainTags: baseAgentTags,
	})
	if !ok {
		return "", false
	}
	return sel.Model.ID, true
}

// CategoryForTaskType maps a task type tag to a category. Unknown types route
// as generic text generation.
func CategoryForTaskType(taskType string) domain.TaskCategory {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(taskType)), "-", "_")
	if c, ok := taskTypeCategories[key]; ok {
		return c
	}
	return domain.CategoryTextGeneration
}

// TaskComplexity derives a [0,1] complexity estimate from priority, context
// breadth and payload size.
func TaskComplexity(task domain.AgentTask) float64 {
	contextFactor := min(0.1*float64(len(task.Context)), 0.5)
	payloadFactor := 0.1
	if len(task.Data) > 5 {
		payloadFactor = 0.2
	}
	return domain.Clamp01(0.5*task.Priority.Weight() + 0.3*contextFactor + 0.2*payloadFactor)
}

// BuildPrompt renders the category preamble followed by the task details.
func BuildPrompt(category domain.TaskCategory, task domain.AgentTask) string {
	var b strings.Builder

	preamble, ok := categoryPreambles[category]
	if !ok {
		preamble = categoryPreambles[domain.CategoryTextGeneration]
	}
	b.WriteString(preamble)
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "Task type: %s\n", task.TaskType)
	fmt.Fprintf(&b, "Description: %s\n", task.Description)
	if len(task.Context) > 0 {
		fmt.Fprintf(&b, "Context: %s\n", strings.Join(task.Context, ", "))
	}
	priority := task.Priority
	if priority == "" {
		priority = domain.PriorityMedium
	}
	fmt.Fprintf(&b, "Priority: %s\n", priority)

	if len(task.Data) > 0 {
		data, err := json.MarshalIndent(task.Data, "", "  ")
		if err != nil {
			data = []byte(fmt.Sprintf("%v", task.Data))
		}
		fmt.Fprintf(&b, "\nData:\n%s\n", data)
	}
	return b.String()
}
