package kernel

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/core/ports"
	"github.com/manthysbr/aule-router/internal/core/services"
)

const maxBodyBytes = 1 << 20

type Server struct {
	logger       *slog.Logger
	orchestrator *services.Orchestrator
	execution    *services.ModelExecution
	agents       *services.AgentIntegration
	monitor      *services.PerformanceMonitor
	providers    *services.ProviderIntegration
	state        *services.StateMonitor
	eventBus     *services.EventBus
	history      ports.HistoryRepository // optional archive
	metrics      http.Handler            // optional /metrics
	validator    *requestValidator
}

func NewServer(
	ctx context.Context,
	logger *slog.Logger,
	orchestrator *services.Orchestrator,
	execution *services.ModelExecution,
	agents *services.AgentIntegration,
	monitor *services.PerformanceMonitor,
	providers *services.ProviderIntegration,
	state *services.StateMonitor,
	eventBus *services.EventBus,
	history ports.HistoryRepository,
	metrics http.Handler,
) (*Server, error) {
	validator, err := newRequestValidator(ctx)
	if err != nil {
		return nil, err
	}
	return &Server{
		logger:       logger,
		orchestrator: orchestrator,
		execution:    execution,
		agents:       agents,
		monitor:      monitor,
		providers:    providers,
		state:        state,
		eventBus:     eventBus,
		history:      history,
		metrics:      metrics,
		validator:    validator,
	}, nil
}

// Handler returns the routed, contract-validated API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/models", s.handleListModels)
	mux.HandleFunc("POST /v1/models", s.handleRegisterModel)
	mux.HandleFunc("GET /v1/models/{id}", s.handleGetModel)
	mux.HandleFunc("GET /v1/models/{id}/parameters", s.handleGetParameters)
	mux.HandleFunc("POST /v1/models/{id}/preload", s.handlePreloadModel)

	mux.HandleFunc("POST /v1/select", s.handleSelect)
	mux.HandleFunc("POST /v1/execute", s.handleExecute)
	mux.HandleFunc("POST /v1/agent-tasks", s.handleSubmitAgentTask)
	mux.HandleFunc("GET /v1/agent-tasks/optimal-model", s.handleOptimalModel)

	mux.HandleFunc("GET /v1/performance/{id}", s.handleModelPerformance)
	mux.HandleFunc("GET /v1/performance/categories/{category}", s.handleCategoryPerformance)
	mux.HandleFunc("GET /v1/executions", s.handleListExecutions)
	mux.HandleFunc("POST /v1/evaluations", s.handleRecordEvaluation)

	mux.HandleFunc("GET /v1/providers", s.handleListProviders)
	mux.HandleFunc("POST /v1/providers", s.handleRegisterProvider)
	mux.HandleFunc("GET /v1/providers/{name}/models", s.handleDiscoverModels)
	mux.HandleFunc("POST /v1/providers/{name}/import", s.handleImportModel)
	mux.HandleFunc("PUT /v1/providers/{name}/credentials", s.handleConfigureCredentials)

	mux.HandleFunc("GET /v1/state", s.handleGetState)
	mux.HandleFunc("POST /v1/agents/{id}/activate", s.handleActivateAgent)
	mux.HandleFunc("POST /v1/agents/{id}/deactivate", s.handleDeactivateAgent)
	mux.HandleFunc("GET /v1/events", s.handleEvents)

	mux.HandleFunc("GET /healthz", s.handleHealth)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	return s.validator.middleware(mux)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	health := s.state.Health()
	status := http.StatusOK
	if health == domain.HealthStatusDegraded {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]any{"status": health})
}

// pathParam binds a path wildcard with the simple style.
func pathParam(r *http.Request, name string) (string, error) {
	var v string
	err := runtime.BindStyledParameterWithOptions("simple", name, r.PathValue(name), &v,
		runtime.BindStyledParameterOptions{ParamLocation: runtime.ParamLocationPath, Required: true})
	if err != nil {
		return "", fmt.Errorf("invalid %s: %w", name, err)
	}
	return v, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	var invErr *services.InvocationError
	switch {
	case errors.Is(err, domain.ErrModelNotFound),
		errors.Is(err, domain.ErrProviderNotFound),
		errors.Is(err, domain.ErrTaskNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrNoSuitableModel):
		return http.StatusUnprocessableEntity
	case errors.Is(err, domain.ErrInvalidDescriptor):
		return http.StatusBadRequest
	case errors.As(err, &invErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err)
}
