package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"golang.org/x/sync/errgroup"

	"github.com/manthysbr/aule-router/internal/adapters/duckdb"
	"github.com/manthysbr/aule-router/internal/adapters/invoke"
	appconfig "github.com/manthysbr/aule-router/internal/config"
	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/core/ports"
	"github.com/manthysbr/aule-router/internal/core/services"
	"github.com/manthysbr/aule-router/internal/synapse"
	"github.com/manthysbr/aule-router/internal/telemetry"
	"github.com/manthysbr/aule-router/pkg/kernel"
)

type invokerWithPreload interface {
	ports.Invoker
	ports.Preloader
}

const (
	pluginProvider  = "synapse"
	shutdownTimeout = 5 * time.Second
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: appconfig.LogLevel()}))
	logger.Info("starting aule-router")

	if err := run(logger); err != nil {
		logger.Error("router startup failed", "error", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := appconfig.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	repo, err := duckdb.NewRepository(cfg.Server.DBPath)
	if err != nil {
		return fmt.Errorf("failed to init repository: %w", err)
	}
	defer repo.Close()

	secretKey, err := appconfig.NewSecretKey()
	if err != nil {
		return fmt.Errorf("failed to init secret key: %w", err)
	}
	logger.Info("credential key loaded", "fingerprint", secretKey.Fingerprint())
	settings := appconfig.NewSettingsStore(logger, repo, secretKey)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(reg)

	// Synapse runtime: local Wasm inference plugins
	var wasmOpts []synapse.Option
	if cfg.Server.PluginCacheDir != "" {
		wasmOpts = append(wasmOpts, synapse.WithCompilationCache(cfg.Server.PluginCacheDir))
	}
	if cfg.Server.PluginMemory > 0 {
		wasmOpts = append(wasmOpts, synapse.WithMemoryLimitPages(uint32(cfg.Server.PluginMemory)))
	}
	wasmRT, err := synapse.NewRuntime(ctx, logger, wasmOpts...)
	if err != nil {
		return fmt.Errorf("failed to init synapse runtime: %w", err)
	}
	defer wasmRT.Close(context.Background())

	var plugins services.PluginCatalog
	if cfg.Server.PluginDir != "" {
		plugins = synapse.NewRegistry(logger, wasmRT, cfg.Server.PluginDir, pluginProvider)
	}

	dispatcher := invoke.NewDispatcher(logger, invoke.NewSimulated(cfg.Router.SimulatedDelay))
	var invoker invokerWithPreload = dispatcher
	if cfg.Router.MaxCompute > 0 {
		invoker = invoke.NewLimiter(logger, dispatcher, int64(cfg.Router.MaxCompute))
	}

	// Core services
	eventBus := services.NewEventBus(logger)
	registry := services.NewModelRegistry(logger)
	selection := services.NewModelSelection(logger, registry, metrics)
	params := services.NewModelParameters(logger, registry, invoker)
	execution := services.NewModelExecution(logger, registry, selection, params, invoker, metrics)
	monitor := services.NewPerformanceMonitor(logger, cfg.Router, selection, eventBus, repo, metrics)
	agents := services.NewAgentIntegration(logger, selection, execution, monitor)
	state := services.NewStateMonitor(logger, cfg.Router, registry, monitor, agents, eventBus, metrics)
	discovery := services.NewModelDiscovery(logger)
	providers := services.NewProviderIntegration(logger, registry, discovery, plugins, secretKey)
	orchestrator := services.NewOrchestrator(logger, registry, selection, params)

	if err := seedModels(logger, cfg, orchestrator); err != nil {
		return err
	}

	providerConfigs, err := providerTable(ctx, logger, cfg, settings)
	if err != nil {
		return err
	}

	// Backends follow the provider table; rebuilt on every change
	providers.OnChange(func(table []domain.ProviderConfig) {
		rebuildBackends(logger, dispatcher, wasmRT, table)
	})
	for _, p := range providerConfigs {
		if err := providers.RegisterProvider(p); err != nil {
			logger.Error("failed to register provider", "provider", p.Name, "error", err)
		}
	}
	providers.OnChange(func(table []domain.ProviderConfig) {
		saveCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := settings.SaveProviders(saveCtx, table); err != nil {
			logger.Error("failed to persist providers", "error", err)
		}
	})

	if err := dispatcher.Reap(ctx); err != nil {
		logger.Warn("failed to reap stale inference containers (non-fatal)", "error", err)
	}
	importPluginModels(ctx, logger, providers)
	state.SetVariable(services.VarStartedAt, time.Now().UTC().Format(time.RFC3339))
	state.SetVariable(services.VarProviders, len(providers.ListProviders()))

	apiServer, err := kernel.NewServer(ctx, logger, orchestrator, execution, agents, monitor, providers, state, eventBus, repo,
		promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	if err != nil {
		return fmt.Errorf("failed to init api server: %w", err)
	}

	c := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	httpServer := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           c.Handler(apiServer.Handler()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return state.Run(gCtx)
	})

	g.Go(func() error {
		logger.Info("starting api server", "addr", cfg.Server.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// seedModels registers the built-in catalog, then the YAML catalog on top.
func seedModels(logger *slog.Logger, cfg *domain.AppConfig, orchestrator *services.Orchestrator) error {
	for _, m := range domain.DefaultCatalog() {
		if err := orchestrator.RegisterModel(m); err != nil {
			return fmt.Errorf("failed to seed model %s: %w", m.ID, err)
		}
	}
	if cfg.Server.CatalogPath == "" {
		return nil
	}

	catalog, err := appconfig.LoadCatalog(cfg.Server.CatalogPath)
	if err != nil {
		return fmt.Errorf("failed to load catalog: %w", err)
	}
	for _, m := range catalog.Models {
		if err := orchestrator.RegisterModel(m); err != nil {
			return fmt.Errorf("failed to register catalog model %s: %w", m.ID, err)
		}
	}
	cfg.Providers = append(cfg.Providers, catalog.ProviderConfigs()...)
	logger.Info("catalog loaded", "path", cfg.Server.CatalogPath, "models", len(catalog.Models), "providers", len(catalog.Providers))
	return nil
}

// providerTable merges persisted providers over the configured ones by name.
func providerTable(ctx context.Context, logger *slog.Logger, cfg *domain.AppConfig, settings *appconfig.SettingsStore) ([]domain.ProviderConfig, error) {
	stored, err := settings.LoadProviders(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted providers: %w", err)
	}

	table := make([]domain.ProviderConfig, 0, len(cfg.Providers)+len(stored))
	index := make(map[string]int)
	for _, p := range append(cfg.Providers, stored...) {
		if i, ok := index[p.Name]; ok {
			table[i] = p
			continue
		}
		index[p.Name] = len(table)
		table = append(table, p)
	}
	if len(stored) > 0 {
		logger.Info("persisted providers loaded", "count", len(stored))
	}
	return table, nil
}

func rebuildBackends(logger *slog.Logger, dispatcher *invoke.Dispatcher, wasmRT *synapse.Runtime, table []domain.ProviderConfig) {
	for _, p := range table {
		backend, err := invoke.Build(logger, p, wasmRT)
		if err != nil {
			logger.Error("failed to build backend", "provider", p.Name, "kind", p.Kind, "error", err)
			dispatcher.Remove(p.Name)
			continue
		}
		if backend == nil {
			dispatcher.Remove(p.Name)
			continue
		}
		dispatcher.Register(p.Name, backend)
	}
}

// importPluginModels discovers every provider once and registers all models
// served by Wasm plugins, which carry their own descriptors.
func importPluginModels(ctx context.Context, logger *slog.Logger, providers *services.ProviderIntegration) {
	discovered, err := providers.DiscoverAll(ctx)
	if err != nil {
		logger.Warn("provider discovery failed (non-fatal)", "error", err)
		return
	}

	for name, ids := range discovered {
		cfg, err := providers.Provider(name)
		if err != nil || cfg.Kind != domain.ProviderKindWasm {
			continue
		}
		for _, id := range ids {
			if _, err := providers.ImportModel(ctx, name, id); err != nil {
				logger.Error("failed to import plugin model", "provider", name, "model", id, "error", err)
			}
		}
		logger.Info("plugin models imported", "provider", name, "count", len(ids))
	}
}
