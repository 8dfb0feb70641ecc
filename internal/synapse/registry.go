package synapse

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

// ManifestFile is the expected filename for plugin manifests.
const ManifestFile = "plugins.json"

// PluginManifest is the on-disk format of the plugin directory.
type PluginManifest struct {
	Plugins []PluginEntry `json:"plugins"`
}

// PluginEntry is a single plugin definition in the manifest.
type PluginEntry struct {
	PluginMeta
	File    string `json:"file"` // relative path to .wasm
	Enabled bool   `json:"enabled"`
}

// Registry loads inference plugins from a directory into the Runtime.
type Registry struct {
	logger    *slog.Logger
	runtime   *Runtime
	pluginDir string
	provider  string
}

// NewRegistry creates a registry scanning pluginDir. Descriptors it returns are
// owned by provider.
func NewRegistry(logger *slog.Logger, runtime *Runtime, pluginDir, provider string) *Registry {
	return &Registry{
		logger:    logger,
		runtime:   runtime,
		pluginDir: pluginDir,
		provider:  provider,
	}
}

// Discover (re)loads every enabled plugin and returns its model descriptor.
// With a plugins.json manifest only declared entries load; otherwise every
// .wasm file loads as a text generation model named after the file.
// A missing directory yields no models.
func (r *Registry) Discover(ctx context.Context) ([]domain.ModelDescriptor, error) {
	entries, err := r.entries()
	if err != nil {
		return nil, err
	}

	r.unloadRemoved(ctx, entries)

	var descs []domain.ModelDescriptor
	for _, entry := range entries {
		wasmPath := filepath.Join(r.pluginDir, entry.File)
		wasmBytes, err := os.ReadFile(wasmPath)
		if err != nil {
			r.logger.Error("synapse: failed to read plugin wasm", "model", entry.ModelID, "path", wasmPath, "error", err)
			continue
		}

		plugin, err := r.runtime.LoadPlugin(ctx, wasmBytes, entry.PluginMeta)
		if err != nil {
			r.logger.Error("synapse: failed to load plugin", "model", entry.ModelID, "error", err)
			continue
		}
		descs = append(descs, plugin.Meta().Descriptor(r.provider))
	}
	return descs, nil
}

// unloadRemoved drops plugins that are no longer listed.
func (r *Registry) unloadRemoved(ctx context.Context, entries []PluginEntry) {
	listed := make(map[string]bool, len(entries))
	for _, e := range entries {
		listed[e.ModelID] = true
	}
	for _, id := range r.runtime.Models() {
		if listed[id] {
			continue
		}
		if err := r.runtime.UnloadPlugin(ctx, id); err != nil {
			r.logger.Warn("synapse: failed to unload removed plugin", "model", id, "error", err)
		}
	}
}

func (r *Registry) entries() ([]PluginEntry, error) {
	data, err := os.ReadFile(filepath.Join(r.pluginDir, ManifestFile))
	switch {
	case err == nil:
		return r.manifestEntries(data)
	case errors.Is(err, fs.ErrNotExist):
		return r.directoryEntries()
	default:
		return nil, fmt.Errorf("synapse: failed to read manifest: %w", err)
	}
}

func (r *Registry) manifestEntries(data []byte) ([]PluginEntry, error) {
	var manifest PluginManifest
	if err := json.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("synapse: failed to parse manifest: %w", err)
	}

	var out []PluginEntry
	for _, entry := range manifest.Plugins {
		if !entry.Enabled {
			r.logger.Debug("synapse: skipping disabled plugin", "name", entry.Name)
			continue
		}
		if entry.ModelID == "" {
			entry.ModelID = strings.TrimSuffix(filepath.Base(entry.File), ".wasm")
		}
		if len(entry.Capabilities) == 0 {
			entry.Capabilities = []domain.TaskCategory{domain.CategoryTextGeneration}
		}
		out = append(out, entry)
	}
	return out, nil
}

func (r *Registry) directoryEntries() ([]PluginEntry, error) {
	dirEntries, err := os.ReadDir(r.pluginDir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("synapse: failed to read plugin dir: %w", err)
	}

	var out []PluginEntry
	for _, de := range dirEntries {
		if de.IsDir() || !strings.HasSuffix(de.Name(), ".wasm") {
			continue
		}
		id := strings.TrimSuffix(de.Name(), ".wasm")
		out = append(out, PluginEntry{
			PluginMeta: PluginMeta{
				Name:         id,
				Version:      "0.0.0",
				ModelID:      id,
				Capabilities: []domain.TaskCategory{domain.CategoryTextGeneration},
				Resources:    domain.ResourceRequirement{Memory: 1, Compute: 1},
				Defaults:     domain.ExecutionParameters{Temperature: 0.7, MaxTokens: 512, TopP: 0.9},
			},
			File:    de.Name(),
			Enabled: true,
		})
	}
	return out, nil
}

func (r *Registry) PluginDir() string {
	return r.pluginDir
}
