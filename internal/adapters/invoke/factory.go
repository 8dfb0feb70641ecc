package invoke

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/core/ports"
	"github.com/manthysbr/aule-router/internal/synapse"
)

// Build creates the backend serving cfg. Static providers have no backend of
// their own and return nil, leaving their models on the dispatcher fallback.
// plugins may be nil when no Wasm runtime is configured.
func Build(logger *slog.Logger, cfg domain.ProviderConfig, plugins *synapse.Runtime) (ports.Invoker, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)

	switch cfg.Kind {
	case "", domain.ProviderKindStatic:
		return nil, nil
	case domain.ProviderKindOllama:
		return NewOllama(endpoint), nil
	case domain.ProviderKindOpenAI:
		if cfg.AuthType != domain.AuthNone && strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("provider %s: api key is required", cfg.Name)
		}
		return NewOpenAI(endpoint, cfg.APIKey), nil
	case domain.ProviderKindAnthropic:
		if strings.TrimSpace(cfg.APIKey) == "" {
			return nil, fmt.Errorf("provider %s: api key is required", cfg.Name)
		}
		return NewAnthropic(endpoint, cfg.APIKey), nil
	case domain.ProviderKindContainer:
		c, err := NewContainer(logger.With("provider", cfg.Name), endpoint)
		if err != nil {
			return nil, err
		}
		return c, nil
	case domain.ProviderKindWasm:
		if plugins == nil {
			return nil, fmt.Errorf("provider %s: wasm runtime is not available", cfg.Name)
		}
		return NewWasm(plugins), nil
	default:
		return nil, fmt.Errorf("unsupported provider kind: %s", cfg.Kind)
	}
}
