package services

import (
	"log/slog"
	"maps"
	"strings"
	"sync"

	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/telemetry"
)

// Scoring constants for the selection function.
const (
	baseScore           = 1.0
	highComplexityBonus = 0.5
	lowComplexityBonus  = 0.3
	accuracyBonus       = 0.2
	latencyBonus        = 0.2
	qaQualityBonus      = 0.3
	domainAffinityBonus = 0.2

	highComplexity   = 0.7
	lowComplexity    = 0.3
	largeCompute     = 4.0
	smallCompute     = 2.0
	accuracyFloor    = 0.8
	latencyCeilingMs = 100.0
	qaQualityFloor   = 0.7
)

// Selection is the outcome of ranking one candidate.
type Selection struct {
	Model domain.ModelDescriptor `json:"model"`
	Score float64                `json:"score"`
	// CeilingRelaxed is set when the caller's resource ceiling excluded every
	// capable model and the lowest-resource one was chosen instead.
	CeilingRelaxed bool `json:"ceiling_relaxed"`
}

// ModelSelection scores and ranks registry entries against a task request and
// the dynamically observed per-model metrics.
type ModelSelection struct {
	logger   *slog.Logger
	registry *ModelRegistry
	metrics  *telemetry.Metrics

	mu       sync.RWMutex
	observed map[string]domain.MetricSet
}

// NewModelSelection creates a selector over registry. metrics may be nil.
func NewModelSelection(logger *slog.Logger, registry *ModelRegistry, metrics *telemetry.Metrics) *ModelSelection {
	return &ModelSelection{
		logger:   logger,
		registry: registry,
		metrics:  metrics,
		observed: make(map[string]domain.MetricSet),
	}
}

// Select returns the best model for req. ok is false when no registered model
// supports the category.
func (s *ModelSelection) Select(req domain.TaskRequest) (Selection, bool) {
	ranked := s.Rank(req)
	if len(ranked) == 0 {
		s.logger.Debug("no capable model", "category", req.Category)
		return Selection{}, false
	}

	best := ranked[0]
	for _, c := range ranked[1:] {
		// strict comparison keeps the first-found candidate on ties
		if c.Score > best.Score {
			best = c
		}
	}

	s.metrics.ObserveSelection(string(req.Category), best.Model.ID)
	s.logger.Debug("model selected",
		"category", req.Category,
		"model", best.Model.ID,
		"score", best.Score,
		"ceiling_relaxed", best.CeilingRelaxed,
	)
	return best, true
}

// Rank scores every eligible candidate in registry order without picking one.
func (s *ModelSelection) Rank(req domain.TaskRequest) []Selection {
	capable := s.capable(req.Category)
	if len(capable) == 0 {
		return nil
	}

	candidates := capable
	relaxed := false
	if req.Ceiling != nil {
		candidates = withinCeiling(capable, *req.Ceiling)
		if len(candidates) == 0 {
			candidates = []domain.ModelDescriptor{lowestResource(capable)}
			relaxed = true
			s.logger.Info("resource ceiling excludes every capable model, using fallback",
				"category", req.Category,
				"model", candidates[0].ID,
				"max_memory", req.Ceiling.MaxMemory,
				"max_compute", req.Ceiling.MaxCompute,
			)
		}
	}

	complexity := domain.Clamp01(req.Complexity)
	out := make([]Selection, 0, len(candidates))
	for _, m := range candidates {
		out = append(out, Selection{
			Model:          m,
			Score:          s.score(m, req.Category, complexity, req.DomainTags),
			CeilingRelaxed: relaxed,
		})
	}
	return out
}

// UpdateMetrics merges the given fields into the metric store of id.
func (s *ModelSelection) UpdateMetrics(id string, partial domain.MetricSet) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.observed[id]
	if !ok {
		current = make(domain.MetricSet, len(partial))
		s.observed[id] = current
	}
	maps.Copy(current, partial)
}

// Metrics returns a copy of the observed metrics of id.
func (s *ModelSelection) Metrics(id string) domain.MetricSet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return maps.Clone(s.observed[id])
}

func (s *ModelSelection) capable(category domain.TaskCategory) []domain.ModelDescriptor {
	var out []domain.ModelDescriptor
	for _, m := range s.registry.List() {
		if m.Supports(category) {
			out = append(out, m)
		}
	}
	return out
}

func (s *ModelSelection) score(m domain.ModelDescriptor, category domain.TaskCategory, complexity float64, tags []string) float64 {
	score := baseScore

	if complexity > highComplexity && m.Resources.Compute > largeCompute {
		score += highComplexityBonus
	}
	if complexity < lowComplexity && m.Resources.Compute <= smallCompute {
		score += lowComplexityBonus
	}

	observed := s.Metrics(m.ID)
	if v, ok := observed[domain.MetricAccuracy]; ok && v > accuracyFloor {
		score += accuracyBonus
	}
	if v, ok := observed[domain.MetricLatency]; ok && v < latencyCeilingMs {
		score += latencyBonus
	}
	if category == domain.CategoryQuestionAnswering {
		if v, ok := observed[domain.MetricQuality]; ok && v > qaQualityFloor {
			score += qaQualityBonus
		}
	}

	if hasDomainAffinity(m.ID, tags) {
		score += domainAffinityBonus
	}
	return score
}

// hasDomainAffinity is a substring heuristic: a tag appearing in the model id.
func hasDomainAffinity(modelID string, tags []string) bool {
	id := strings.ToLower(modelID)
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag != "" && strings.Contains(id, tag) {
			return true
		}
	}
	return false
}

func withinCeiling(models []domain.ModelDescriptor, c domain.ResourceCeiling) []domain.ModelDescriptor {
	var out []domain.ModelDescriptor
	for _, m := range models {
		if m.Fits(c) {
			out = append(out, m)
		}
	}
	return out
}

// lowestResource picks the smallest memory footprint, then the smallest
// compute, then the earliest registered. models must be non-empty.
func lowestResource(models []domain.ModelDescriptor) domain.ModelDescriptor {
	best := models[0]
	for _, m := range models[1:] {
		switch {
		case m.Resources.Memory < best.Resources.Memory:
			best = m
		case m.Resources.Memory == best.Resources.Memory && m.Resources.Compute < best.Resources.Compute:
			best = m
		}
	}
	return best
}
