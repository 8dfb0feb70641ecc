package services

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/core/ports"
	"github.com/manthysbr/aule-router/internal/telemetry"
)

const (
	defaultHistoryCapacity = 100
	defaultBucketCap       = 1000
	persistTimeout         = 10 * time.Second
)

// ExecutionStats summarizes the execution history.
type ExecutionStats struct {
	Recorded  int `json:"recorded"`  // total since start
	Buffered  int `json:"buffered"`  // currently retrievable
	Succeeded int `json:"succeeded"` // within the buffer
	Failed    int `json:"failed"`    // within the buffer
}

type bucketKey struct {
	model    string
	category domain.TaskCategory
}

type evalBucket struct {
	observations []domain.Evaluation
	mean         domain.Evaluation
}

// PerformanceMonitor records execution outcomes and evaluations and feeds the
// aggregated means back into selection.
// Executions live in a fixed-capacity ring buffer; evaluations are bucketed
// per (model, category) with a bounded number of observations each.
type PerformanceMonitor struct {
	logger    *slog.Logger
	selection *ModelSelection
	eventBus  *EventBus
	repo      ports.HistoryRepository // optional archive
	metrics   *telemetry.Metrics

	mu       sync.RWMutex
	ring     []domain.ExecutionRecord
	head     int // next write position
	count    int
	recorded int

	bucketCap int
	buckets   map[bucketKey]*evalBucket
}

// NewPerformanceMonitor creates a monitor. repo, eventBus and metrics may be nil.
func NewPerformanceMonitor(
	logger *slog.Logger,
	cfg domain.RouterConfig,
	selection *ModelSelection,
	eventBus *EventBus,
	repo ports.HistoryRepository,
	metrics *telemetry.Metrics,
) *PerformanceMonitor {
	capacity := cfg.HistoryCapacity
	if capacity <= 0 {
		capacity = defaultHistoryCapacity
	}
	bucketCap := cfg.EvaluationBucketCap
	if bucketCap <= 0 {
		bucketCap = defaultBucketCap
	}
	return &PerformanceMonitor{
		logger:    logger,
		selection: selection,
		eventBus:  eventBus,
		repo:      repo,
		metrics:   metrics,
		ring:      make([]domain.ExecutionRecord, capacity),
		bucketCap: bucketCap,
		buckets:   make(map[bucketKey]*evalBucket),
	}
}

// Capacity is the ring buffer size.
func (m *PerformanceMonitor) Capacity() int {
	return len(m.ring)
}

// RecordExecution appends rec to the history, evicting the oldest record at
// capacity.
func (m *PerformanceMonitor) RecordExecution(rec domain.ExecutionRecord) domain.ExecutionRecord {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	m.mu.Lock()
	m.ring[m.head] = rec
	m.head = (m.head + 1) % len(m.ring)
	if m.count < len(m.ring) {
		m.count++
	}
	m.recorded++
	m.mu.Unlock()

	m.eventBus.PublishJSON(TopicExecutions, EventTypeExecution, rec)

	if m.repo != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := m.repo.SaveExecution(ctx, rec); err != nil {
				m.logger.Error("failed to persist execution", "execution_id", rec.ID, "error", err)
			}
		}()
	}
	return rec
}

// RecentExecutions returns at most limit records, oldest to newest.
func (m *PerformanceMonitor) RecentExecutions(limit int) []domain.ExecutionRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := min(limit, m.count)
	if n <= 0 {
		return []domain.ExecutionRecord{}
	}

	out := make([]domain.ExecutionRecord, 0, n)
	start := m.head - n
	if start < 0 {
		start += len(m.ring)
	}
	for i := 0; i < n; i++ {
		out = append(out, m.ring[(start+i)%len(m.ring)])
	}
	return out
}

// Stats counts outcomes within the current buffer.
func (m *PerformanceMonitor) Stats() ExecutionStats {
	m.mu.RLock()
	defer m.mu.RUnlock()

	stats := ExecutionStats{Recorded: m.recorded, Buffered: m.count}
	start := m.head - m.count
	if start < 0 {
		start += len(m.ring)
	}
	for i := 0; i < m.count; i++ {
		if m.ring[(start+i)%len(m.ring)].Success {
			stats.Succeeded++
		} else {
			stats.Failed++
		}
	}
	return stats
}

// RecordEvaluation adds an observation to the (model, category) bucket,
// recomputes the bucket mean from scratch and pushes it into selection.
func (m *PerformanceMonitor) RecordEvaluation(modelID string, category domain.TaskCategory, eval domain.Evaluation) domain.Evaluation {
	eval = eval.Normalized()
	if eval.Timestamp.IsZero() {
		eval.Timestamp = time.Now()
	}

	key := bucketKey{model: modelID, category: category}

	m.mu.Lock()
	b, ok := m.buckets[key]
	if !ok {
		b = &evalBucket{}
		m.buckets[key] = b
	}
	b.observations = append(b.observations, eval)
	if over := len(b.observations) - m.bucketCap; over > 0 {
		b.observations = append(b.observations[:0:0], b.observations[over:]...)
	}
	b.mean = domain.MeanEvaluation(b.observations)
	mean := b.mean
	observations := len(b.observations)
	m.mu.Unlock()

	m.selection.UpdateMetrics(modelID, mean.Metrics())
	m.metrics.ObserveEvaluation(modelID, string(category))
	m.eventBus.PublishJSON(TopicExecutions, EventTypeEvaluation, map[string]any{
		"model_id": modelID,
		"category": category,
		"mean":     mean,
	})

	if m.repo != nil {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
			defer cancel()
			if err := m.repo.SaveEvaluation(ctx, modelID, category, eval); err != nil {
				m.logger.Error("failed to persist evaluation", "model", modelID, "category", category, "error", err)
			}
		}()
	}

	m.logger.Debug("evaluation recorded",
		"model", modelID,
		"category", category,
		"observations", observations,
		"mean_accuracy", mean.Accuracy,
	)
	return mean
}

// ModelPerformance is the mean of the model's per-category means.
func (m *PerformanceMonitor) ModelPerformance(modelID string) (domain.Evaluation, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var means []domain.Evaluation
	for key, b := range m.buckets {
		if key.model == modelID {
			means = append(means, b.mean)
		}
	}
	if len(means) == 0 {
		return domain.Evaluation{}, false
	}
	return domain.MeanEvaluation(means), true
}

// TaskPerformanceComparison returns the bucket mean of every model evaluated
// under category.
func (m *PerformanceMonitor) TaskPerformanceComparison(category domain.TaskCategory) map[string]domain.Evaluation {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]domain.Evaluation)
	for key, b := range m.buckets {
		if key.category == category {
			out[key.model] = b.mean
		}
	}
	return out
}
