// Package synapse runs WebAssembly inference plugins. A plugin is a WASI module
// that reads a prompt request as JSON on stdin and writes its completion on
// stdout. Modules are compiled once with wazero and instantiated fresh per call.
package synapse

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
)

// Option tunes a Runtime.
type Option func(*options)

type options struct {
	cacheDir    string
	memoryPages uint32
}

// WithCompilationCache keeps compiled modules under dir across restarts.
func WithCompilationCache(dir string) Option {
	return func(o *options) { o.cacheDir = dir }
}

// WithMemoryLimitPages caps each instance's linear memory in 64KiB pages.
func WithMemoryLimitPages(pages uint32) Option {
	return func(o *options) { o.memoryPages = pages }
}

// Runtime owns the wazero runtime and the compiled plugins, keyed by model ID.
type Runtime struct {
	logger *slog.Logger
	rt     wazero.Runtime
	cache  wazero.CompilationCache

	mu      sync.RWMutex
	plugins map[string]*Plugin
}

func NewRuntime(ctx context.Context, logger *slog.Logger, opts ...Option) (*Runtime, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	if o.memoryPages > 0 {
		cfg = cfg.WithMemoryLimitPages(o.memoryPages)
	}

	var cache wazero.CompilationCache
	if o.cacheDir != "" {
		c, err := wazero.NewCompilationCacheWithDir(o.cacheDir)
		if err != nil {
			return nil, fmt.Errorf("synapse: compilation cache %s: %w", o.cacheDir, err)
		}
		cache = c
		cfg = cfg.WithCompilationCache(cache)
	}

	rt := wazero.NewRuntimeWithConfig(ctx, cfg)
	if _, err := wasi_snapshot_preview1.Instantiate(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		if cache != nil {
			_ = cache.Close(ctx)
		}
		return nil, fmt.Errorf("synapse: failed to instantiate WASI: %w", err)
	}

	logger.Info("synapse runtime initialized",
		"cache_dir", o.cacheDir,
		"memory_limit_pages", o.memoryPages,
	)
	return &Runtime{
		logger:  logger,
		rt:      rt,
		cache:   cache,
		plugins: make(map[string]*Plugin),
	}, nil
}

// LoadPlugin compiles wasmBytes and registers it under meta.ModelID. A plugin
// already loaded under the same ID is closed and replaced.
func (r *Runtime) LoadPlugin(ctx context.Context, wasmBytes []byte, meta PluginMeta) (*Plugin, error) {
	if meta.ModelID == "" {
		return nil, fmt.Errorf("synapse: plugin %q has no model id", meta.Name)
	}

	compiled, err := r.rt.CompileModule(ctx, wasmBytes)
	if err != nil {
		return nil, fmt.Errorf("synapse: failed to compile %q: %w", meta.ModelID, err)
	}
	plugin := &Plugin{meta: meta, compiled: compiled, rt: r.rt, logger: r.logger}

	r.mu.Lock()
	previous, replaced := r.plugins[meta.ModelID]
	r.plugins[meta.ModelID] = plugin
	r.mu.Unlock()

	if replaced {
		previous.Close(ctx)
	}
	r.logger.Info("synapse: plugin loaded", "model", meta.ModelID, "version", meta.Version, "replaced", replaced)
	return plugin, nil
}

func (r *Runtime) Plugin(modelID string) (*Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.plugins[modelID]
	return p, ok
}

// Models returns the sorted IDs of loaded plugins.
func (r *Runtime) Models() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.plugins))
}

func (r *Runtime) UnloadPlugin(ctx context.Context, modelID string) error {
	r.mu.Lock()
	plugin, ok := r.plugins[modelID]
	delete(r.plugins, modelID)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("synapse: plugin %q not found", modelID)
	}
	plugin.Close(ctx)
	r.logger.Info("synapse: plugin unloaded", "model", modelID)
	return nil
}

// Close releases every plugin, the runtime and the compilation cache.
func (r *Runtime) Close(ctx context.Context) error {
	r.mu.Lock()
	loaded := r.plugins
	r.plugins = map[string]*Plugin{}
	r.mu.Unlock()

	for _, p := range loaded {
		p.Close(ctx)
	}
	err := r.rt.Close(ctx)
	if r.cache != nil {
		if cerr := r.cache.Close(ctx); err == nil {
			err = cerr
		}
	}
	return err
}
