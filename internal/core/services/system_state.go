package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/telemetry"
)

const (
	defaultHealthInterval   = 30 * time.Second
	defaultCompletedTaskCap = 500
)

// Variables written by the health poll.
const (
	VarHealth           = "health"
	VarRegisteredModels = "registered_models"
	VarRecentExecutions = "recent_executions"
	VarRecentFailures   = "recent_failures"
	VarTotalExecutions  = "total_executions"
	VarLastHealthCheck  = "last_health_check"
)

// Variables written once at startup.
const (
	VarStartedAt = "started_at"
	VarProviders = "providers"
)

// StateMonitor owns the live SystemState: agent membership, the task queue,
// rolling completion metrics and the periodic health snapshot.
// The health snapshot is advisory telemetry and never feeds selection.
type StateMonitor struct {
	logger   *slog.Logger
	registry *ModelRegistry
	monitor  *PerformanceMonitor
	agents   *AgentIntegration
	eventBus *EventBus
	metrics  *telemetry.Metrics

	interval     time.Duration
	completedCap int

	mu     sync.RWMutex
	state  domain.SystemState
	health domain.HealthStatus
}

func NewStateMonitor(
	logger *slog.Logger,
	cfg domain.RouterConfig,
	registry *ModelRegistry,
	monitor *PerformanceMonitor,
	agents *AgentIntegration,
	eventBus *EventBus,
	metrics *telemetry.Metrics,
) *StateMonitor {
	interval := cfg.HealthInterval
	if interval <= 0 {
		interval = defaultHealthInterval
	}
	completedCap := cfg.CompletedTaskCap
	if completedCap <= 0 {
		completedCap = defaultCompletedTaskCap
	}
	return &StateMonitor{
		logger:       logger,
		registry:     registry,
		monitor:      monitor,
		agents:       agents,
		eventBus:     eventBus,
		metrics:      metrics,
		interval:     interval,
		completedCap: completedCap,
		health:       domain.HealthStatusUnknown,
		state: domain.SystemState{
			ActiveAgents:   []string{},
			TaskQueue:      []domain.AgentTask{},
			CompletedTasks: []domain.AgentTask{},
			Variables:      map[string]any{},
			LastUpdated:    time.Now(),
		},
	}
}

// Run polls health on the configured interval until ctx is cancelled.
func (s *StateMonitor) Run(ctx context.Context) error {
	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %s", s.interval), s.PollHealth); err != nil {
		return fmt.Errorf("schedule health poll: %w", err)
	}

	s.logger.Info("state monitor started", "health_interval", s.interval)
	s.PollHealth()
	c.Start()

	<-ctx.Done()
	stopped := c.Stop()
	<-stopped.Done()
	s.logger.Info("state monitor stopped")
	return nil
}

// PollHealth derives health from the registry and snapshots recent execution
// counts into the variable map.
func (s *StateMonitor) PollHealth() {
	models := s.registry.Len()
	health := domain.HealthStatusDegraded
	if models > 0 {
		health = domain.HealthStatusHealthy
	}

	stats := s.monitor.Stats()
	satisfaction, rated := s.meanSatisfaction()

	s.mu.Lock()
	s.health = health
	s.state.Variables[VarHealth] = string(health)
	s.state.Variables[VarRegisteredModels] = models
	s.state.Variables[VarRecentExecutions] = stats.Buffered
	s.state.Variables[VarRecentFailures] = stats.Failed
	s.state.Variables[VarTotalExecutions] = stats.Recorded
	s.state.Variables[VarLastHealthCheck] = time.Now().UTC().Format(time.RFC3339)
	if rated {
		s.state.Metrics.SatisfactionScore = satisfaction
	}
	s.state.LastUpdated = time.Now()
	s.mu.Unlock()

	s.metrics.SetHealthy(health == domain.HealthStatusHealthy)
	s.eventBus.PublishJSON(TopicState, EventTypeHealth, map[string]any{
		"health":            health,
		"registered_models": models,
		"recent_executions": stats.Buffered,
		"recent_failures":   stats.Failed,
	})

	if health != domain.HealthStatusHealthy {
		s.logger.Warn("health poll: registry is empty", "health", health)
		return
	}
	s.logger.Debug("health poll", "health", health, "models", models, "recent_executions", stats.Buffered)
}

func (s *StateMonitor) meanSatisfaction() (float64, bool) {
	var sum float64
	var n int
	for _, m := range s.registry.List() {
		if perf, ok := s.monitor.ModelPerformance(m.ID); ok {
			sum += perf.Satisfaction
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

func (s *StateMonitor) Health() domain.HealthStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.health
}

// ActivateAgent moves id from inactive to active. It reports false when the
// agent was already active.
func (s *StateMonitor) ActivateAgent(id string) bool {
	s.mu.Lock()
	if slices.Contains(s.state.ActiveAgents, id) {
		s.mu.Unlock()
		return false
	}
	s.state.ActiveAgents = append(s.state.ActiveAgents, id)
	s.state.LastUpdated = time.Now()
	active := len(s.state.ActiveAgents)
	s.mu.Unlock()

	s.metrics.SetActiveAgents(active)
	s.eventBus.PublishJSON(TopicState, EventTypeState, map[string]any{"agent_id": id, "active": true})
	s.logger.Info("agent activated", "agent_id", id, "active_agents", active)
	return true
}

// DeactivateAgent moves id from active to inactive. It reports false when the
// agent was not active.
func (s *StateMonitor) DeactivateAgent(id string) bool {
	s.mu.Lock()
	idx := slices.Index(s.state.ActiveAgents, id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	s.state.ActiveAgents = slices.Delete(s.state.ActiveAgents, idx, idx+1)
	s.state.LastUpdated = time.Now()
	active := len(s.state.ActiveAgents)
	s.mu.Unlock()

	s.metrics.SetActiveAgents(active)
	s.eventBus.PublishJSON(TopicState, EventTypeState, map[string]any{"agent_id": id, "active": false})
	s.logger.Info("agent deactivated", "agent_id", id, "active_agents", active)
	return true
}

// EnqueueTask appends task to the pending queue, assigning an ID and creation
// time when missing.
func (s *StateMonitor) EnqueueTask(task domain.AgentTask) domain.AgentTask {
	if task.ID == "" {
		task.ID = uuid.New().String()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.Status = domain.AgentTaskPending

	s.mu.Lock()
	s.state.TaskQueue = append(s.state.TaskQueue, task)
	s.recomputeCompletionRate()
	s.state.LastUpdated = time.Now()
	depth := len(s.state.TaskQueue)
	s.mu.Unlock()

	s.metrics.SetQueueDepth(depth)
	return task
}

func (s *StateMonitor) markRunning(taskID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.queueIndex(taskID); i >= 0 {
		s.state.TaskQueue[i].Status = domain.AgentTaskRunning
	}
}

// CompleteTask removes taskID from the queue, archives it and folds the
// outcome into the rolling metrics.
func (s *StateMonitor) CompleteTask(taskID string, responseTime time.Duration, success bool) error {
	s.mu.Lock()
	i := s.queueIndex(taskID)
	if i < 0 {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrTaskNotFound, taskID)
	}

	task := s.state.TaskQueue[i]
	s.state.TaskQueue = slices.Delete(s.state.TaskQueue, i, i+1)
	task.Status = domain.AgentTaskCompleted
	if !success {
		task.Status = domain.AgentTaskFailed
	}
	s.state.CompletedTasks = append(s.state.CompletedTasks, task)
	if over := len(s.state.CompletedTasks) - s.completedCap; over > 0 {
		s.state.CompletedTasks = slices.Delete(s.state.CompletedTasks, 0, over)
	}
	s.updateMetricsLocked(responseTime, success)
	depth := len(s.state.TaskQueue)
	metrics := s.state.Metrics
	s.mu.Unlock()

	s.metrics.SetQueueDepth(depth)
	s.eventBus.PublishJSON(TopicState, EventTypeState, map[string]any{
		"task_id": taskID,
		"status":  task.Status,
		"metrics": metrics,
	})
	return nil
}

// UpdateMetricsAfterTaskCompletion folds one completion into the running mean
// response time and success rate.
func (s *StateMonitor) UpdateMetricsAfterTaskCompletion(responseTime time.Duration, success bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updateMetricsLocked(responseTime, success)
}

func (s *StateMonitor) updateMetricsLocked(responseTime time.Duration, success bool) {
	m := &s.state.Metrics
	n := float64(m.CompletedTasks)
	rt := float64(responseTime.Milliseconds())
	outcome := 0.0
	if success {
		outcome = 1
	}

	m.AverageResponseTime = (m.AverageResponseTime*n + rt) / (n + 1)
	m.SuccessRate = (m.SuccessRate*n + outcome) / (n + 1)
	m.CompletedTasks++
	s.recomputeCompletionRate()
	s.state.LastUpdated = time.Now()
}

func (s *StateMonitor) recomputeCompletionRate() {
	done := s.state.Metrics.CompletedTasks
	total := done + len(s.state.TaskQueue)
	if total == 0 {
		s.state.Metrics.CompletionRate = 0
		return
	}
	s.state.Metrics.CompletionRate = float64(done) / float64(total)
}

func (s *StateMonitor) queueIndex(taskID string) int {
	return slices.IndexFunc(s.state.TaskQueue, func(t domain.AgentTask) bool { return t.ID == taskID })
}

func (s *StateMonitor) SetVariable(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Variables[key] = value
	s.state.LastUpdated = time.Now()
}

// Snapshot returns a deep copy of the current state.
func (s *StateMonitor) Snapshot() domain.SystemState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Clone()
}

// RunTask takes task through the queue: enqueue, process on the optimal model,
// then complete with the observed response time.
func (s *StateMonitor) RunTask(ctx context.Context, task domain.AgentTask) (string, error) {
	queued := s.EnqueueTask(task)
	s.markRunning(queued.ID)

	start := time.Now()
	text, err := s.agents.ProcessAgentTask(ctx, queued)
	if cerr := s.CompleteTask(queued.ID, time.Since(start), err == nil); cerr != nil {
		s.logger.Warn("failed to complete task", "task_id", queued.ID, "error", cerr)
	}
	if err != nil {
		return "", err
	}
	return text, nil
}
