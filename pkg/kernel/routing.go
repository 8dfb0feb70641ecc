package kernel

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/oapi-codegen/runtime"

	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/core/services"
)

type selectRequest struct {
	domain.TaskRequest
	Overrides *domain.ParameterOverrides `json:"overrides,omitempty"`
	Explain   bool                       `json:"explain,omitempty"`
}

type selectResponse struct {
	services.Plan
	Ranking []services.Selection `json:"ranking,omitempty"`
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	var req selectRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	plan, ok := s.orchestrator.SelectWithParameters(req.TaskRequest, req.Overrides)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w for category %s", domain.ErrNoSuitableModel, req.Category))
		return
	}

	resp := selectResponse{Plan: plan}
	if req.Explain {
		resp.Ranking = s.orchestrator.Rank(req.TaskRequest)
	}
	writeJSON(w, http.StatusOK, resp)
}

type executeRequest struct {
	domain.TaskRequest
	ModelID   string                     `json:"model_id,omitempty"`
	TaskID    string                     `json:"task_id,omitempty"`
	Prompt    string                     `json:"prompt"`
	System    string                     `json:"system,omitempty"`
	Overrides *domain.ParameterOverrides `json:"overrides,omitempty"`
}

// handleExecute runs a prompt on the named model, or on the best model for the
// request when no model is named. The outcome is recorded in the execution
// history either way.
func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	start := time.Now()
	var (
		result domain.ExecutionResult
		err    error
	)
	if req.ModelID != "" {
		result, err = s.execution.ExecuteTask(r.Context(), domain.ExecutionRequest{
			ModelID:   req.ModelID,
			TaskID:    req.TaskID,
			Prompt:    req.Prompt,
			System:    req.System,
			Category:  req.Category,
			Overrides: req.Overrides,
		})
	} else {
		result, err = s.execution.ExecuteWithOptimalModel(r.Context(), req.Prompt, req.System, req.TaskRequest, req.Overrides)
	}

	if err != nil {
		var invErr *services.InvocationError
		if errors.As(err, &invErr) {
			s.monitor.RecordExecution(domain.ExecutionRecord{
				ModelID:     invErr.ModelID,
				TaskID:      req.TaskID,
				StartTime:   start,
				EndTime:     time.Now(),
				InputTokens: services.EstimateTokens(req.System) + services.EstimateTokens(req.Prompt),
				Error:       err.Error(),
			})
		}
		s.fail(w, r, err)
		return
	}

	s.monitor.RecordExecution(domain.ExecutionRecord{
		ModelID:      result.ModelID,
		TaskID:       req.TaskID,
		StartTime:    result.StartTime,
		EndTime:      result.StartTime.Add(result.ExecutionTime),
		InputTokens:  result.InputTokens,
		OutputTokens: result.OutputTokens,
		Success:      true,
	})
	writeJSON(w, http.StatusOK, result)
}

type agentTaskResponse struct {
	TaskID string `json:"task_id"`
	Result string `json:"result"`
}

func (s *Server) handleSubmitAgentTask(w http.ResponseWriter, r *http.Request) {
	var task domain.AgentTask
	if err := decodeBody(w, r, &task); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if task.ID == "" {
		task.ID = uuid.New().String()
	}

	text, err := s.state.RunTask(r.Context(), task)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agentTaskResponse{TaskID: task.ID, Result: text})
}

func (s *Server) handleOptimalModel(w http.ResponseWriter, r *http.Request) {
	var taskType string
	if err := runtime.BindQueryParameter("form", true, true, "task_type", r.URL.Query(), &taskType); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid task_type: %w", err))
		return
	}

	category := services.CategoryForTaskType(taskType)
	modelID, ok := s.agents.OptimalModelForTaskType(taskType)
	if !ok {
		s.fail(w, r, fmt.Errorf("%w for task type %s", domain.ErrNoSuitableModel, taskType))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"task_type": taskType,
		"category":  category,
		"model_id":  modelID,
	})
}
