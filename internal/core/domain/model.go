package domain

import (
	"fmt"
	"slices"
)

// TaskCategory classifies the kind of work a model is asked to perform.
// Selection filters the catalog by category before any scoring happens.
type TaskCategory string

const (
	CategoryTextGeneration    TaskCategory = "text_generation"
	CategoryQuestionAnswering TaskCategory = "question_answering"
	CategoryClassification    TaskCategory = "classification"
	CategorySummarization     TaskCategory = "summarization"
	CategoryReasoning         TaskCategory = "reasoning"
	CategoryCodeGeneration    TaskCategory = "code_generation"
	CategoryContentCreation   TaskCategory = "content_creation"
	CategoryTranslation       TaskCategory = "translation"
	CategorySentiment         TaskCategory = "sentiment_analysis"
)

// AllCategories lists every known task category in a stable order.
func AllCategories() []TaskCategory {
	return []TaskCategory{
		CategoryTextGeneration,
		CategoryQuestionAnswering,
		CategoryClassification,
		CategorySummarization,
		CategoryReasoning,
		CategoryCodeGeneration,
		CategoryContentCreation,
		CategoryTranslation,
		CategorySentiment,
	}
}

// Valid reports whether c is one of the known categories.
func (c TaskCategory) Valid() bool {
	return slices.Contains(AllCategories(), c)
}

// ResourceRequirement is what a model needs to run.
// Memory and Compute are abstract units (GiB and cores for container backends).
type ResourceRequirement struct {
	Memory  float64 `json:"memory" yaml:"memory"`
	Compute float64 `json:"compute" yaml:"compute"`
}

// ExecutionParameters are the sampling knobs handed to a backend for one call.
type ExecutionParameters struct {
	Temperature      float64  `json:"temperature" yaml:"temperature"`
	MaxTokens        int      `json:"max_tokens" yaml:"max_tokens"`
	TopP             float64  `json:"top_p" yaml:"top_p"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty"`
}

// Clone returns a deep copy, including the optional penalty pointers.
func (p ExecutionParameters) Clone() ExecutionParameters {
	out := p
	if p.FrequencyPenalty != nil {
		v := *p.FrequencyPenalty
		out.FrequencyPenalty = &v
	}
	if p.PresencePenalty != nil {
		v := *p.PresencePenalty
		out.PresencePenalty = &v
	}
	return out
}

// ParameterOverrides is a caller-supplied partial overlay. Nil fields keep the
// value computed from model defaults and the category adjustment.
type ParameterOverrides struct {
	Temperature      *float64 `json:"temperature,omitempty"`
	MaxTokens        *int     `json:"max_tokens,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

// Apply layers the overrides on top of p and returns the merged set.
func (o *ParameterOverrides) Apply(p ExecutionParameters) ExecutionParameters {
	out := p.Clone()
	if o == nil {
		return out
	}
	if o.Temperature != nil {
		out.Temperature = *o.Temperature
	}
	if o.MaxTokens != nil {
		out.MaxTokens = *o.MaxTokens
	}
	if o.TopP != nil {
		out.TopP = *o.TopP
	}
	if o.FrequencyPenalty != nil {
		v := *o.FrequencyPenalty
		out.FrequencyPenalty = &v
	}
	if o.PresencePenalty != nil {
		v := *o.PresencePenalty
		out.PresencePenalty = &v
	}
	return out
}

// Pricing is the optional per-1k-token price of a model, in USD.
type Pricing struct {
	InputPer1K  float64 `json:"input_per_1k" yaml:"input_per_1k"`
	OutputPer1K float64 `json:"output_per_1k" yaml:"output_per_1k"`
}

// ModelDescriptor is a catalog entry describing an inference backend.
// Descriptors are treated as immutable once registered; the registry stores and
// hands out copies.
type ModelDescriptor struct {
	ID            string              `json:"id" yaml:"id"`             // "llama3.2:3b", "gpt-4o-mini"
	Name          string              `json:"name" yaml:"name"`         // "Llama 3.2 3B"
	Provider      string              `json:"provider" yaml:"provider"` // "ollama", "openai", "wasm", ...
	Endpoint      string              `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Capabilities  []TaskCategory      `json:"capabilities" yaml:"capabilities"`
	Resources     ResourceRequirement `json:"resources" yaml:"resources"`
	Defaults      ExecutionParameters `json:"defaults" yaml:"defaults"`
	Quantization  string              `json:"quantization,omitempty" yaml:"quantization,omitempty"`
	ContextLength int                 `json:"context_length,omitempty" yaml:"context_length,omitempty"`
	Pricing       *Pricing            `json:"pricing,omitempty" yaml:"pricing,omitempty"`
}

// Supports reports whether the model lists category among its capabilities.
func (m ModelDescriptor) Supports(category TaskCategory) bool {
	return slices.Contains(m.Capabilities, category)
}

// Fits reports whether the model's requirements stay within the ceiling.
// A zero axis on the ceiling is unconstrained.
func (m ModelDescriptor) Fits(c ResourceCeiling) bool {
	if c.MaxMemory > 0 && m.Resources.Memory > c.MaxMemory {
		return false
	}
	if c.MaxCompute > 0 && m.Resources.Compute > c.MaxCompute {
		return false
	}
	return true
}

// Validate checks the registration invariants.
func (m ModelDescriptor) Validate() error {
	if m.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidDescriptor)
	}
	if m.Resources.Memory < 0 || m.Resources.Compute < 0 {
		return fmt.Errorf("%w: %s has negative resource requirement", ErrInvalidDescriptor, m.ID)
	}
	return nil
}

// Clone returns a deep copy.
func (m ModelDescriptor) Clone() ModelDescriptor {
	out := m
	out.Capabilities = slices.Clone(m.Capabilities)
	out.Defaults = m.Defaults.Clone()
	if m.Pricing != nil {
		p := *m.Pricing
		out.Pricing = &p
	}
	return out
}

// DefaultCatalog returns the built-in descriptors registered at start-up.
// They run on the simulated backend unless a provider with the same name is
// configured.
func DefaultCatalog() []ModelDescriptor {
	return []ModelDescriptor{
		{
			ID:       "llama3.2:3b",
			Name:     "Llama 3.2 3B",
			Provider: "ollama",
			Capabilities: []TaskCategory{
				CategoryTextGeneration, CategoryQuestionAnswering, CategorySummarization,
				CategoryClassification, CategoryContentCreation,
			},
			Resources:     ResourceRequirement{Memory: 4, Compute: 2},
			Defaults:      ExecutionParameters{Temperature: 0.7, MaxTokens: 1024, TopP: 0.9},
			Quantization:  "q4_K_M",
			ContextLength: 8192,
		},
		{
			ID:       "qwen2.5-coder:7b",
			Name:     "Qwen 2.5 Coder 7B",
			Provider: "ollama",
			Capabilities: []TaskCategory{
				CategoryCodeGeneration, CategoryReasoning, CategoryTextGeneration,
			},
			Resources:     ResourceRequirement{Memory: 8, Compute: 4},
			Defaults:      ExecutionParameters{Temperature: 0.4, MaxTokens: 2048, TopP: 0.9},
			Quantization:  "q4_K_M",
			ContextLength: 32768,
		},
		{
			ID:       "phi4-mini:3.8b",
			Name:     "Phi-4 Mini 3.8B",
			Provider: "ollama",
			Capabilities: []TaskCategory{
				CategoryClassification, CategorySentiment, CategorySummarization,
				CategoryQuestionAnswering,
			},
			Resources:     ResourceRequirement{Memory: 3, Compute: 1},
			Defaults:      ExecutionParameters{Temperature: 0.5, MaxTokens: 512, TopP: 0.9},
			Quantization:  "q4_K_M",
			ContextLength: 4096,
		},
		{
			ID:       "qwen2.5:32b",
			Name:     "Qwen 2.5 32B",
			Provider: "ollama",
			Capabilities: []TaskCategory{
				CategoryReasoning, CategoryQuestionAnswering, CategoryTextGeneration,
				CategoryContentCreation, CategoryTranslation, CategorySummarization,
			},
			Resources:     ResourceRequirement{Memory: 24, Compute: 8},
			Defaults:      ExecutionParameters{Temperature: 0.7, MaxTokens: 4096, TopP: 0.95},
			Quantization:  "q4_K_M",
			ContextLength: 32768,
		},
	}
}
