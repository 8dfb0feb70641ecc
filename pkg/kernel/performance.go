package kernel

import (
	"fmt"
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

const defaultExecutionsLimit = 50

func (s *Server) handleModelPerformance(w http.ResponseWriter, r *http.Request) {
	id, err := pathParam(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	perf, ok := s.monitor.ModelPerformance(id)
	if !ok {
		writeError(w, http.StatusNotFound, fmt.Errorf("no evaluations recorded for %s", id))
		return
	}
	writeJSON(w, http.StatusOK, perf)
}

func (s *Server) handleCategoryPerformance(w http.ResponseWriter, r *http.Request) {
	category, err := pathParam(r, "category")
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.TaskPerformanceComparison(domain.TaskCategory(category)))
}

// handleListExecutions serves the in-memory ring buffer (oldest first) or,
// with source=archive, the DuckDB archive (newest first).
func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	var limit *int
	if err := runtime.BindQueryParameter("form", true, false, "limit", r.URL.Query(), &limit); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid limit: %w", err))
		return
	}
	var source *string
	if err := runtime.BindQueryParameter("form", true, false, "source", r.URL.Query(), &source); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Errorf("invalid source: %w", err))
		return
	}

	n := defaultExecutionsLimit
	if limit != nil {
		n = *limit
	}

	if source != nil && *source == "archive" {
		if s.history == nil {
			writeError(w, http.StatusNotFound, fmt.Errorf("execution archive is not configured"))
			return
		}
		records, err := s.history.ListExecutions(r.Context(), n)
		if err != nil {
			s.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, records)
		return
	}
	writeJSON(w, http.StatusOK, s.monitor.RecentExecutions(n))
}

type evaluationRequest struct {
	ModelID    string              `json:"model_id"`
	Category   domain.TaskCategory `json:"category"`
	Evaluation domain.Evaluation   `json:"evaluation"`
}

func (s *Server) handleRecordEvaluation(w http.ResponseWriter, r *http.Request) {
	var req evaluationRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	stored := s.monitor.RecordEvaluation(req.ModelID, req.Category, req.Evaluation)
	writeJSON(w, http.StatusCreated, stored)
}
