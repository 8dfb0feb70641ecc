package domain

import "time"

// RouterConfig tunes the in-process routing engine.
type RouterConfig struct {
	HistoryCapacity     int           `json:"history_capacity"`      // execution ring buffer size
	EvaluationBucketCap int           `json:"evaluation_bucket_cap"` // observations kept per (model, category)
	HealthInterval      time.Duration `json:"health_interval"`
	SimulatedDelay      time.Duration `json:"simulated_delay"` // per compute unit, placeholder backend only
	CompletedTaskCap    int           `json:"completed_task_cap"`
	MaxCompute          int           `json:"max_compute"` // compute units invoked concurrently, 0 = unbounded
}

// ServerConfig configures the outer HTTP surface and storage.
type ServerConfig struct {
	Addr           string   `json:"addr"`
	DBPath         string   `json:"db_path"`
	CatalogPath    string   `json:"catalog_path"`
	PluginDir      string   `json:"plugin_dir"`
	PluginCacheDir string   `json:"plugin_cache_dir"`    // compiled wasm kept across restarts
	PluginMemory   int      `json:"plugin_memory_pages"` // 64KiB pages per instance, 0 = wazero default
	AllowedOrigins []string `json:"allowed_origins"`
}

// AppConfig is the main application configuration
type AppConfig struct {
	Router    RouterConfig     `json:"router"`
	Server    ServerConfig     `json:"server"`
	Providers []ProviderConfig `json:"providers"`
}

// DefaultConfig returns safe defaults
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Router: RouterConfig{
			HistoryCapacity:     100,
			EvaluationBucketCap: 1000,
			HealthInterval:      30 * time.Second,
			SimulatedDelay:      100 * time.Millisecond,
			CompletedTaskCap:    500,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			DBPath:         "router.db",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		Providers: []ProviderConfig{
			{
				Name:     "ollama",
				Kind:     ProviderKindOllama,
				Endpoint: "http://localhost:11434",
				AuthType: AuthNone,
			},
		},
	}
}
