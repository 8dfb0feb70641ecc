package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

// DiscoveredModel is what a live model source reports about one model.
type DiscoveredModel struct {
	ID            string
	ParameterSize string // "7B", "32.8B", empty when unknown
	Quantization  string
	Family        string
}

// PluginCatalog lists models served by local Wasm plugins.
type PluginCatalog interface {
	Discover(ctx context.Context) ([]domain.ModelDescriptor, error)
}

// ModelDiscovery queries live model sources (Ollama, OpenAI-compatible APIs).
type ModelDiscovery struct {
	logger *slog.Logger
	client *http.Client
}

func NewModelDiscovery(logger *slog.Logger) *ModelDiscovery {
	return &ModelDiscovery{
		logger: logger,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// ollamaTagsResponse is the Ollama /api/tags JSON structure.
type ollamaTagsResponse struct {
	Models []struct {
		Name    string `json:"name"`
		Details struct {
			ParameterSize     string `json:"parameter_size"`
			QuantizationLevel string `json:"quantization_level"`
			Family            string `json:"family"`
		} `json:"details"`
	} `json:"models"`
}

// openAIModelsResponse is the OpenAI-compatible /v1/models response.
type openAIModelsResponse struct {
	Data []struct {
		ID      string `json:"id"`
		OwnedBy string `json:"owned_by"`
	} `json:"data"`
}

// DiscoverOllama lists the models installed on the Ollama instance at baseURL.
func (d *ModelDiscovery) DiscoverOllama(ctx context.Context, baseURL string) ([]DiscoveredModel, error) {
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	baseURL = strings.TrimRight(baseURL, "/")

	var tags ollamaTagsResponse
	if err := d.getJSON(ctx, baseURL+"/api/tags", "", &tags); err != nil {
		return nil, fmt.Errorf("ollama at %s: %w", baseURL, err)
	}

	models := make([]DiscoveredModel, 0, len(tags.Models))
	for _, m := range tags.Models {
		models = append(models, DiscoveredModel{
			ID:            m.Name,
			ParameterSize: m.Details.ParameterSize,
			Quantization:  m.Details.QuantizationLevel,
			Family:        m.Details.Family,
		})
	}

	d.logger.Info("discovered ollama models", "count", len(models), "base_url", baseURL)
	return models, nil
}

// DiscoverOpenAICompatible lists models via GET {baseURL}/models.
// baseURL is expected to include the API version prefix ("https://api.openai.com/v1").
func (d *ModelDiscovery) DiscoverOpenAICompatible(ctx context.Context, baseURL, apiKey string) ([]DiscoveredModel, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("openai-compatible base URL is required")
	}
	baseURL = strings.TrimRight(baseURL, "/")

	var result openAIModelsResponse
	if err := d.getJSON(ctx, baseURL+"/models", apiKey, &result); err != nil {
		return nil, fmt.Errorf("openai-compatible endpoint at %s: %w", baseURL, err)
	}

	models := make([]DiscoveredModel, 0, len(result.Data))
	for _, m := range result.Data {
		models = append(models, DiscoveredModel{ID: m.ID, Family: m.OwnedBy})
	}

	d.logger.Info("discovered openai-compatible models", "count", len(models), "base_url", baseURL)
	return models, nil
}

func (d *ModelDiscovery) getJSON(ctx context.Context, url, bearer string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("not reachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

var paramSizeRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*b\b`)

// parseParamSize extracts the parameter count in billions from strings like
// "7B", "qwen2.5:32b" or "llama-3.1-8b-instruct".
func parseParamSize(s string) (float64, bool) {
	m := paramSizeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, false
	}
	v, err := strconv.ParseFloat(m[1], 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

// inferResources estimates the footprint of a 4-bit quantized model.
func inferResources(m DiscoveredModel) domain.ResourceRequirement {
	size, ok := parseParamSize(m.ParameterSize)
	if !ok {
		size, ok = parseParamSize(m.ID)
	}
	if !ok {
		return domain.ResourceRequirement{Memory: 4, Compute: 2}
	}
	return domain.ResourceRequirement{
		Memory:  math.Ceil(size*0.6) + 1,
		Compute: math.Max(1, math.Ceil(size/4)),
	}
}

// inferCapabilities guesses the task categories a model handles from its name
// and family.
func inferCapabilities(name, family string) []domain.TaskCategory {
	lower := strings.ToLower(name + " " + family)
	switch {
	case strings.Contains(lower, "embed"):
		return nil
	case strings.Contains(lower, "code") || strings.Contains(lower, "starcoder"):
		return []domain.TaskCategory{
			domain.CategoryCodeGeneration, domain.CategoryReasoning, domain.CategoryTextGeneration,
		}
	case strings.Contains(lower, "phi") || strings.Contains(lower, "mini") || strings.Contains(lower, "tiny"):
		return []domain.TaskCategory{
			domain.CategoryClassification, domain.CategorySentiment,
			domain.CategorySummarization, domain.CategoryQuestionAnswering,
		}
	}

	caps := []domain.TaskCategory{
		domain.CategoryTextGeneration, domain.CategoryQuestionAnswering,
		domain.CategorySummarization, domain.CategoryContentCreation, domain.CategoryReasoning,
	}
	if strings.Contains(lower, "translat") || strings.Contains(lower, "aya") || strings.Contains(lower, "qwen") {
		caps = append(caps, domain.CategoryTranslation)
	}
	return caps
}

// descriptorFor builds a registry entry for a discovered model.
func descriptorFor(provider domain.ProviderConfig, m DiscoveredModel) domain.ModelDescriptor {
	return domain.ModelDescriptor{
		ID:           m.ID,
		Name:         m.ID,
		Provider:     provider.Name,
		Endpoint:     provider.Endpoint,
		Capabilities: inferCapabilities(m.ID, m.Family),
		Resources:    inferResources(m),
		Defaults:     domain.ExecutionParameters{Temperature: 0.7, MaxTokens: 1024, TopP: 0.9},
		Quantization: m.Quantization,
	}
}
