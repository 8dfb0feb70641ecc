package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/aule-router/internal/config"
	"github.com/manthysbr/aule-router/internal/core/domain"
)

// CredentialSealer encrypts provider credentials held in memory.
type CredentialSealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(encrypted string) (string, error)
}

// ProviderChangeFunc receives the full provider table, credentials decrypted,
// after every mutation.
type ProviderChangeFunc func(providers []domain.ProviderConfig)

type providerEntry struct {
	cfg       domain.ProviderConfig // APIKey always empty here
	sealedKey string
	// discovered caches the last live discovery result, keyed by model id.
	discovered map[string]DiscoveredModel
}

// ProviderIntegration manages external model sources and imports their
// models into the registry.
type ProviderIntegration struct {
	logger    *slog.Logger
	registry  *ModelRegistry
	discovery *ModelDiscovery
	plugins   PluginCatalog // optional, serves ProviderKindWasm
	sealer    CredentialSealer

	mu        sync.RWMutex
	providers map[string]*providerEntry
	order     []string
	onChange  []ProviderChangeFunc
}

// NewProviderIntegration creates the provider service. discovery, plugins and
// sealer may be nil; without a sealer credentials are held in plaintext.
func NewProviderIntegration(logger *slog.Logger, registry *ModelRegistry, discovery *ModelDiscovery, plugins PluginCatalog, sealer CredentialSealer) *ProviderIntegration {
	return &ProviderIntegration{
		logger:    logger,
		registry:  registry,
		discovery: discovery,
		plugins:   plugins,
		sealer:    sealer,
		providers: make(map[string]*providerEntry),
	}
}

// OnChange registers a callback fired after provider or credential updates.
func (p *ProviderIntegration) OnChange(fn ProviderChangeFunc) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onChange = append(p.onChange, fn)
}

// RegisterProvider adds or replaces a provider. A key present in cfg.APIKey is
// stored as if passed to ConfigureCredentials.
func (p *ProviderIntegration) RegisterProvider(cfg domain.ProviderConfig) error {
	if strings.TrimSpace(cfg.Name) == "" {
		return fmt.Errorf("provider name is required")
	}
	if cfg.Kind == "" {
		cfg.Kind = domain.ProviderKindStatic
	}
	if cfg.AuthType == "" {
		cfg.AuthType = domain.AuthNone
	}

	sealed, err := p.seal(cfg.APIKey)
	if err != nil {
		return err
	}
	cfg.APIKey = ""
	cfg.AvailableModels = slices.Clone(cfg.AvailableModels)

	p.mu.Lock()
	if _, exists := p.providers[cfg.Name]; !exists {
		p.order = append(p.order, cfg.Name)
	}
	p.providers[cfg.Name] = &providerEntry{cfg: cfg, sealedKey: sealed}
	p.mu.Unlock()

	p.logger.Info("provider registered",
		"provider", cfg.Name,
		"kind", cfg.Kind,
		"endpoint", cfg.Endpoint,
		"static_models", len(cfg.AvailableModels),
	)
	p.notify()
	return nil
}

// DiscoverModels returns the provider's static model list merged with what its
// live source currently reports. Live discovery failures are logged and the
// static list is still returned.
func (p *ProviderIntegration) DiscoverModels(ctx context.Context, name string) ([]string, error) {
	cfg, key, err := p.lookup(name)
	if err != nil {
		return nil, err
	}

	ids := slices.Clone(cfg.AvailableModels)

	live, err := p.discoverLive(ctx, cfg, key)
	if err != nil {
		p.logger.Warn("live model discovery failed, using static list",
			"provider", name,
			"kind", cfg.Kind,
			"error", err,
		)
		return ids, nil
	}

	cache := make(map[string]DiscoveredModel, len(live))
	for _, m := range live {
		cache[m.ID] = m
		if !slices.Contains(ids, m.ID) {
			ids = append(ids, m.ID)
		}
	}

	p.mu.Lock()
	if entry, ok := p.providers[name]; ok {
		entry.discovered = cache
	}
	p.mu.Unlock()

	return ids, nil
}

func (p *ProviderIntegration) discoverLive(ctx context.Context, cfg domain.ProviderConfig, key string) ([]DiscoveredModel, error) {
	switch cfg.Kind {
	case domain.ProviderKindOllama:
		if p.discovery == nil {
			return nil, nil
		}
		return p.discovery.DiscoverOllama(ctx, cfg.Endpoint)
	case domain.ProviderKindOpenAI:
		if p.discovery == nil || cfg.Endpoint == "" {
			return nil, nil
		}
		return p.discovery.DiscoverOpenAICompatible(ctx, cfg.Endpoint, key)
	case domain.ProviderKindWasm:
		if p.plugins == nil {
			return nil, nil
		}
		descs, err := p.plugins.Discover(ctx)
		if err != nil {
			return nil, err
		}
		out := make([]DiscoveredModel, 0, len(descs))
		for _, d := range descs {
			out = append(out, DiscoveredModel{ID: d.ID})
		}
		return out, nil
	default:
		return nil, nil
	}
}

// DiscoverAll runs DiscoverModels for every provider concurrently.
func (p *ProviderIntegration) DiscoverAll(ctx context.Context) (map[string][]string, error) {
	names := p.names()
	results := make([][]string, len(names))

	g, gctx := errgroup.WithContext(ctx)
	for i, name := range names {
		g.Go(func() error {
			ids, err := p.DiscoverModels(gctx, name)
			if err != nil {
				return fmt.Errorf("discover %s: %w", name, err)
			}
			results[i] = ids
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[string][]string, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out, nil
}

// ImportModel registers modelID from provider. It returns false when the model
// is already in the registry.
func (p *ProviderIntegration) ImportModel(ctx context.Context, provider, modelID string) (bool, error) {
	if strings.TrimSpace(modelID) == "" {
		return false, fmt.Errorf("%w: empty id", domain.ErrInvalidDescriptor)
	}

	p.mu.RLock()
	entry, ok := p.providers[provider]
	var discovered DiscoveredModel
	var known bool
	var cfg domain.ProviderConfig
	if ok {
		cfg = entry.cfg
		discovered, known = entry.discovered[modelID]
	}
	p.mu.RUnlock()

	if !ok {
		return false, fmt.Errorf("%w: %s", domain.ErrProviderNotFound, provider)
	}
	if p.registry.Has(modelID) {
		return false, nil
	}

	desc, err := p.describe(ctx, cfg, modelID, discovered, known)
	if err != nil {
		return false, err
	}
	if err := p.registry.Register(desc); err != nil {
		return false, err
	}

	p.logger.Info("model imported",
		"provider", provider,
		"model", modelID,
		"capabilities", desc.Capabilities,
		"memory", desc.Resources.Memory,
		"compute", desc.Resources.Compute,
	)
	return true, nil
}

func (p *ProviderIntegration) describe(ctx context.Context, cfg domain.ProviderConfig, modelID string, discovered DiscoveredModel, known bool) (domain.ModelDescriptor, error) {
	// Wasm plugins carry their own manifest-declared descriptor.
	if cfg.Kind == domain.ProviderKindWasm && p.plugins != nil {
		descs, err := p.plugins.Discover(ctx)
		if err != nil {
			return domain.ModelDescriptor{}, fmt.Errorf("discover plugins: %w", err)
		}
		for _, d := range descs {
			if d.ID == modelID {
				d.Provider = cfg.Name
				return d, nil
			}
		}
	}

	if !known {
		discovered = DiscoveredModel{ID: modelID}
	}
	return descriptorFor(cfg, discovered), nil
}

// ConfigureCredentials stores key for the provider.
func (p *ProviderIntegration) ConfigureCredentials(name, key string) error {
	sealed, err := p.seal(key)
	if err != nil {
		return err
	}

	p.mu.Lock()
	entry, ok := p.providers[name]
	if !ok {
		p.mu.Unlock()
		return fmt.Errorf("%w: %s", domain.ErrProviderNotFound, name)
	}
	entry.sealedKey = sealed
	if entry.cfg.AuthType == domain.AuthNone && key != "" {
		entry.cfg.AuthType = domain.AuthAPIKey
	}
	p.mu.Unlock()

	p.logger.Info("provider credentials configured", "provider", name, "key", config.MaskSecret(key))
	p.notify()
	return nil
}

// Credentials returns the decrypted key of the provider.
func (p *ProviderIntegration) Credentials(name string) (string, error) {
	_, key, err := p.lookup(name)
	return key, err
}

// Provider returns one provider with its credential masked.
func (p *ProviderIntegration) Provider(name string) (domain.ProviderConfig, error) {
	cfg, key, err := p.lookup(name)
	if err != nil {
		return domain.ProviderConfig{}, err
	}
	cfg.APIKey = config.MaskSecret(key)
	return cfg, nil
}

// ListProviders returns all providers in registration order with credentials
// masked.
func (p *ProviderIntegration) ListProviders() []domain.ProviderConfig {
	providers := p.snapshot()
	for i := range providers {
		providers[i].APIKey = config.MaskSecret(providers[i].APIKey)
	}
	return providers
}

func (p *ProviderIntegration) lookup(name string) (domain.ProviderConfig, string, error) {
	p.mu.RLock()
	entry, ok := p.providers[name]
	var cfg domain.ProviderConfig
	var sealed string
	if ok {
		cfg = entry.cfg
		cfg.AvailableModels = slices.Clone(entry.cfg.AvailableModels)
		sealed = entry.sealedKey
	}
	p.mu.RUnlock()

	if !ok {
		return domain.ProviderConfig{}, "", fmt.Errorf("%w: %s", domain.ErrProviderNotFound, name)
	}
	key, err := p.unseal(sealed)
	if err != nil {
		return domain.ProviderConfig{}, "", fmt.Errorf("credentials for %s: %w", name, err)
	}
	return cfg, key, nil
}

// snapshot returns the provider table with decrypted credentials.
func (p *ProviderIntegration) snapshot() []domain.ProviderConfig {
	out := make([]domain.ProviderConfig, 0, len(p.names()))
	for _, name := range p.names() {
		cfg, key, err := p.lookup(name)
		if err != nil {
			p.logger.Warn("skipping provider in snapshot", "provider", name, "error", err)
			continue
		}
		cfg.APIKey = key
		out = append(out, cfg)
	}
	return out
}

func (p *ProviderIntegration) names() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return slices.Clone(p.order)
}

func (p *ProviderIntegration) notify() {
	p.mu.RLock()
	callbacks := slices.Clone(p.onChange)
	p.mu.RUnlock()
	if len(callbacks) == 0 {
		return
	}

	providers := p.snapshot()
	for _, fn := range callbacks {
		fn(providers)
	}
}

func (p *ProviderIntegration) seal(key string) (string, error) {
	if p.sealer == nil || key == "" {
		return key, nil
	}
	sealed, err := p.sealer.Encrypt(key)
	if err != nil {
		return "", fmt.Errorf("encrypt credentials: %w", err)
	}
	return sealed, nil
}

func (p *ProviderIntegration) unseal(sealed string) (string, error) {
	if p.sealer == nil || sealed == "" {
		return sealed, nil
	}
	return p.sealer.Decrypt(sealed)
}
