package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

// Catalog is the on-disk model catalog:
//
//	models:
//	  - id: llama3.2:3b
//	    provider: ollama
//	    capabilities: [text_generation, summarization]
//	    resources: {memory: 4, compute: 2}
//	providers:
//	  - name: openrouter
//	    kind: openai
//	    endpoint: https://openrouter.ai/api/v1
//	    api_key_env: OPENROUTER_API_KEY
type Catalog struct {
	Models    []domain.ModelDescriptor `yaml:"models"`
	Providers []CatalogProvider        `yaml:"providers"`
}

// CatalogProvider is a provider entry whose credential is read from the
// environment rather than stored in the file.
type CatalogProvider struct {
	domain.ProviderConfig `yaml:",inline"`
	APIKeyEnv             string `yaml:"api_key_env,omitempty"`
}

// LoadCatalog parses and validates a YAML catalog file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	return ParseCatalog(data)
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}

	seen := make(map[string]bool, len(cat.Models))
	for i, m := range cat.Models {
		if err := m.Validate(); err != nil {
			return nil, fmt.Errorf("catalog model #%d: %w", i, err)
		}
		for _, c := range m.Capabilities {
			if !c.Valid() {
				return nil, fmt.Errorf("catalog model %s: unknown capability %q", m.ID, c)
			}
		}
		if seen[m.ID] {
			return nil, fmt.Errorf("catalog model %s: duplicate id", m.ID)
		}
		seen[m.ID] = true
	}

	for i, p := range cat.Providers {
		if p.Name == "" {
			return nil, fmt.Errorf("catalog provider #%d: name is required", i)
		}
	}
	return &cat, nil
}

// ProviderConfigs resolves api_key_env references against the environment.
func (c *Catalog) ProviderConfigs() []domain.ProviderConfig {
	out := make([]domain.ProviderConfig, 0, len(c.Providers))
	for _, p := range c.Providers {
		cfg := p.ProviderConfig
		if p.APIKeyEnv != "" {
			cfg.APIKey = os.Getenv(p.APIKeyEnv)
		}
		out = append(out, cfg)
	}
	return out
}
