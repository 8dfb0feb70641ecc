package kernel

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/manthysbr/aule-router/internal/adapters/invoke"
	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/core/services"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, nil))
}

type testEnv struct {
	server   *httptest.Server
	monitor  *services.PerformanceMonitor
	state    *services.StateMonitor
	eventBus *services.EventBus
}

func summarizer() domain.ModelDescriptor {
	return domain.ModelDescriptor{
		ID:           "summarizer",
		Name:         "Summarizer",
		Provider:     "local",
		Capabilities: []domain.TaskCategory{domain.CategorySummarization, domain.CategoryTextGeneration},
		Resources:    domain.ResourceRequirement{Memory: 2, Compute: 1},
		Defaults:     domain.ExecutionParameters{Temperature: 0.7, MaxTokens: 1024, TopP: 0.9},
	}
}

func newTestEnv(t *testing.T, models ...domain.ModelDescriptor) *testEnv {
	t.Helper()
	logger := testLogger()
	cfg := domain.DefaultConfig().Router

	dispatcher := invoke.NewDispatcher(logger, invoke.NewSimulated(0))
	registry := services.NewModelRegistry(logger)
	for _, m := range models {
		require.NoError(t, registry.Register(m))
	}
	selection := services.NewModelSelection(logger, registry, nil)
	params := services.NewModelParameters(logger, registry, dispatcher)
	execution := services.NewModelExecution(logger, registry, selection, params, dispatcher, nil)
	eventBus := services.NewEventBus(logger)
	monitor := services.NewPerformanceMonitor(logger, cfg, selection, eventBus, nil, nil)
	agents := services.NewAgentIntegration(logger, selection, execution, monitor)
	state := services.NewStateMonitor(logger, cfg, registry, monitor, agents, eventBus, nil)
	providers := services.NewProviderIntegration(logger, registry, nil, nil, nil)
	orchestrator := services.NewOrchestrator(logger, registry, selection, params)

	srv, err := NewServer(context.Background(), logger, orchestrator, execution, agents, monitor, providers, state, eventBus, nil, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return &testEnv{server: ts, monitor: monitor, state: state, eventBus: eventBus}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestModels_RegisterGetList(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/models", summarizer())
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/models/summarizer", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	got := decode[domain.ModelDescriptor](t, resp)
	assert.Equal(t, "Summarizer", got.Name)

	resp = env.do(t, http.MethodGet, "/v1/models", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]domain.ModelDescriptor](t, resp), 1)

	resp = env.do(t, http.MethodGet, "/v1/models/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestModels_RegisterRejectsInvalidBody(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/models", map[string]any{
		"id":           "bad",
		"capabilities": []string{"painting"},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/models", map[string]any{"name": "no id"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestModels_Parameters(t *testing.T) {
	env := newTestEnv(t, summarizer())

	resp := env.do(t, http.MethodGet, "/v1/models/summarizer/parameters?category=summarization", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	params := decode[domain.ExecutionParameters](t, resp)
	assert.Equal(t, 0.5, params.Temperature)
	assert.Equal(t, 512, params.MaxTokens)

	resp = env.do(t, http.MethodGet, "/v1/models/summarizer/parameters", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestModels_Preload(t *testing.T) {
	env := newTestEnv(t, summarizer())

	resp := env.do(t, http.MethodPost, "/v1/models/summarizer/preload", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/models/missing/preload", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestSelect(t *testing.T) {
	env := newTestEnv(t, summarizer())

	resp := env.do(t, http.MethodPost, "/v1/select", map[string]any{
		"category": "summarization",
		"explain":  true,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Model      domain.ModelDescriptor     `json:"model"`
		Parameters domain.ExecutionParameters `json:"parameters"`
		Ranking    []services.Selection       `json:"ranking"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "summarizer", body.Model.ID)
	assert.Equal(t, 512, body.Parameters.MaxTokens)
	assert.Len(t, body.Ranking, 1)

	resp = env.do(t, http.MethodPost, "/v1/select", map[string]any{"category": "translation"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestExecute_RecordsHistory(t *testing.T) {
	env := newTestEnv(t, summarizer())

	resp := env.do(t, http.MethodPost, "/v1/execute", map[string]any{
		"prompt":   "Summarize the quarterly report",
		"category": "summarization",
		"task_id":  "t-1",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	result := decode[domain.ExecutionResult](t, resp)
	assert.Equal(t, "summarizer", result.ModelID)
	assert.Contains(t, result.Text, "Summarize the quarterly report")

	records := env.monitor.RecentExecutions(10)
	require.Len(t, records, 1)
	assert.Equal(t, "t-1", records[0].TaskID)
	assert.True(t, records[0].Success)

	resp = env.do(t, http.MethodGet, "/v1/executions?limit=5", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]domain.ExecutionRecord](t, resp), 1)
}

func TestExecute_NamedModel(t *testing.T) {
	env := newTestEnv(t, summarizer())

	resp := env.do(t, http.MethodPost, "/v1/execute", map[string]any{
		"model_id": "summarizer",
		"prompt":   "hello",
		"category": "text_generation",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/execute", map[string]any{
		"model_id": "missing",
		"prompt":   "hello",
		"category": "text_generation",
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExecutions_ArchiveWithoutRepository(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/v1/executions?source=archive", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/executions?limit=0", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAgentTasks(t *testing.T) {
	env := newTestEnv(t, summarizer())

	resp := env.do(t, http.MethodPost, "/v1/agent-tasks", map[string]any{
		"task_type":   "content_summary",
		"description": "Summarize the onboarding guide",
		"priority":    "high",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[agentTaskResponse](t, resp)
	assert.NotEmpty(t, body.TaskID)
	assert.NotEmpty(t, body.Result)

	snapshot := env.state.Snapshot()
	assert.Empty(t, snapshot.TaskQueue)
	require.Len(t, snapshot.CompletedTasks, 1)
	assert.Equal(t, body.TaskID, snapshot.CompletedTasks[0].ID)

	resp = env.do(t, http.MethodGet, "/v1/agent-tasks/optimal-model?task_type=content_summary", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	optimal := decode[map[string]string](t, resp)
	assert.Equal(t, "summarizer", optimal["model_id"])
	assert.Equal(t, "summarization", optimal["category"])

	resp = env.do(t, http.MethodGet, "/v1/agent-tasks/optimal-model?task_type=translation", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
}

func TestEvaluationsAndPerformance(t *testing.T) {
	env := newTestEnv(t, summarizer())

	resp := env.do(t, http.MethodGet, "/v1/performance/summarizer", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/v1/evaluations", map[string]any{
		"model_id": "summarizer",
		"category": "summarization",
		"evaluation": map[string]any{
			"accuracy":            1.4,
			"latency":             120,
			"quality":             0.8,
			"resource_efficiency": 0.6,
			"satisfaction":        0.9,
		},
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	stored := decode[domain.Evaluation](t, resp)
	assert.Equal(t, 1.0, stored.Accuracy)

	resp = env.do(t, http.MethodGet, "/v1/performance/summarizer", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	perf := decode[domain.Evaluation](t, resp)
	assert.InDelta(t, 0.8, perf.Quality, 1e-9)

	resp = env.do(t, http.MethodGet, "/v1/performance/categories/summarization", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	byModel := decode[map[string]domain.Evaluation](t, resp)
	assert.Contains(t, byModel, "summarizer")
}

func TestProviders(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/providers", map[string]any{
		"name":             "lab",
		"kind":             "static",
		"available_models": []string{"lab-model:7b"},
		"api_key":          "sk-secret-value",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[domain.ProviderConfig](t, resp)
	assert.NotContains(t, created.APIKey, "secret")

	resp = env.do(t, http.MethodGet, "/v1/providers/lab/models", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var discovered struct {
		Models []string `json:"models"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&discovered))
	assert.Equal(t, []string{"lab-model:7b"}, discovered.Models)

	resp = env.do(t, http.MethodPost, "/v1/providers/lab/import", map[string]any{"model_id": "lab-model:7b"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp = env.do(t, http.MethodPost, "/v1/providers/lab/import", map[string]any{"model_id": "lab-model:7b"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/v1/providers/lab/credentials", map[string]any{"api_key": "sk-rotated"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPut, "/v1/providers/ghost/credentials", map[string]any{"api_key": "x"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/v1/providers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[[]domain.ProviderConfig](t, resp)
	require.Len(t, list, 1)
	assert.NotContains(t, list[0].APIKey, "rotated")
}

func TestAgentsAndState(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/v1/agents/planner/activate", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	first := decode[agentResponse](t, resp)
	assert.True(t, first.Changed)
	assert.Equal(t, []string{"planner"}, first.ActiveAgents)

	resp = env.do(t, http.MethodPost, "/v1/agents/planner/activate", nil)
	assert.False(t, decode[agentResponse](t, resp).Changed)

	resp = env.do(t, http.MethodPost, "/v1/agents/planner/deactivate", nil)
	second := decode[agentResponse](t, resp)
	assert.True(t, second.Changed)
	assert.Empty(t, second.ActiveAgents)

	resp = env.do(t, http.MethodGet, "/v1/state", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	state := decode[domain.SystemState](t, resp)
	assert.Empty(t, state.ActiveAgents)
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	env.state.PollHealth()
	resp = env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestEvents_StreamsTopic(t *testing.T) {
	env := newTestEnv(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, env.server.URL+"/v1/events?topic=state", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	// the subscription is registered before headers are flushed back
	env.state.ActivateAgent("watcher")

	reader := bufio.NewReader(resp.Body)
	var lines []string
	for len(lines) < 2 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line = strings.TrimSpace(line); line != "" {
			lines = append(lines, line)
		}
	}
	assert.Equal(t, "event: "+string(services.EventTypeState), lines[0])
	assert.Contains(t, lines[1], "watcher")
}
