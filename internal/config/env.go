package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

// Environment variables understood by Load.
const (
	EnvAddr             = "ROUTER_ADDR"
	EnvDBPath           = "ROUTER_DB_PATH"
	EnvCatalog          = "ROUTER_CATALOG"
	EnvPluginDir        = "ROUTER_PLUGIN_DIR"
	EnvPluginCache      = "ROUTER_PLUGIN_CACHE"
	EnvPluginMemory     = "ROUTER_PLUGIN_MEMORY_PAGES"
	EnvAllowedOrigins   = "ROUTER_ALLOWED_ORIGINS"
	EnvHistoryCapacity  = "ROUTER_HISTORY_CAPACITY"
	EnvEvalBucketCap    = "ROUTER_EVAL_BUCKET_CAP"
	EnvHealthInterval   = "ROUTER_HEALTH_INTERVAL"
	EnvSimulatedDelay   = "ROUTER_SIM_DELAY"
	EnvMaxCompute       = "ROUTER_MAX_COMPUTE"
	EnvLogLevel         = "ROUTER_LOG_LEVEL"
	EnvSecretKey        = "ROUTER_SECRET_KEY"
	EnvSecretFile       = "ROUTER_SECRET_FILE"
	EnvOllamaHost       = "OLLAMA_HOST"
	EnvOpenAIKey        = "OPENAI_API_KEY"
	EnvOpenAIBaseURL    = "OPENAI_BASE_URL"
	EnvAnthropicKey     = "ANTHROPIC_API_KEY"
	defaultOpenAIURL    = "https://api.openai.com/v1"
	defaultAnthropicURL = "https://api.anthropic.com"
)

// Load builds the application config from defaults overlaid with the
// environment. A .env file, when present, is expected to be loaded by the
// caller beforehand.
func Load() (*domain.AppConfig, error) {
	cfg := domain.DefaultConfig()

	setString(&cfg.Server.Addr, EnvAddr)
	setString(&cfg.Server.DBPath, EnvDBPath)
	setString(&cfg.Server.CatalogPath, EnvCatalog)
	setString(&cfg.Server.PluginDir, EnvPluginDir)
	setString(&cfg.Server.PluginCacheDir, EnvPluginCache)
	if err := setInt(&cfg.Server.PluginMemory, EnvPluginMemory); err != nil {
		return nil, err
	}
	if v := os.Getenv(EnvAllowedOrigins); v != "" {
		cfg.Server.AllowedOrigins = splitList(v)
	}

	if err := setInt(&cfg.Router.HistoryCapacity, EnvHistoryCapacity); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.Router.EvaluationBucketCap, EnvEvalBucketCap); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.Router.HealthInterval, EnvHealthInterval); err != nil {
		return nil, err
	}
	if err := setDuration(&cfg.Router.SimulatedDelay, EnvSimulatedDelay); err != nil {
		return nil, err
	}
	if err := setInt(&cfg.Router.MaxCompute, EnvMaxCompute); err != nil {
		return nil, err
	}

	if host := os.Getenv(EnvOllamaHost); host != "" {
		for i := range cfg.Providers {
			if cfg.Providers[i].Kind == domain.ProviderKindOllama {
				cfg.Providers[i].Endpoint = normalizeHost(host)
			}
		}
	}

	if key := os.Getenv(EnvOpenAIKey); key != "" {
		baseURL := os.Getenv(EnvOpenAIBaseURL)
		if baseURL == "" {
			baseURL = defaultOpenAIURL
		}
		cfg.Providers = append(cfg.Providers, domain.ProviderConfig{
			Name:            "openai",
			Kind:            domain.ProviderKindOpenAI,
			Endpoint:        baseURL,
			AuthType:        domain.AuthBearer,
			AvailableModels: []string{"gpt-4o-mini", "gpt-4o"},
			APIKey:          key,
		})
	}

	if key := os.Getenv(EnvAnthropicKey); key != "" {
		cfg.Providers = append(cfg.Providers, domain.ProviderConfig{
			Name:            "anthropic",
			Kind:            domain.ProviderKindAnthropic,
			Endpoint:        defaultAnthropicURL,
			AuthType:        domain.AuthAPIKey,
			AvailableModels: []string{"claude-3-5-haiku-latest", "claude-sonnet-4-0"},
			APIKey:          key,
		})
	}

	if cfg.Server.PluginDir != "" {
		cfg.Providers = append(cfg.Providers, domain.ProviderConfig{
			Name:     "synapse",
			Kind:     domain.ProviderKindWasm,
			Endpoint: cfg.Server.PluginDir,
			AuthType: domain.AuthNone,
		})
	}

	return cfg, nil
}

// LogLevel parses ROUTER_LOG_LEVEL, defaulting to info.
func LogLevel() slog.Level {
	var level slog.Level
	if err := level.UnmarshalText([]byte(os.Getenv(EnvLogLevel))); err != nil {
		return slog.LevelInfo
	}
	return level
}

func setString(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}

func setInt(dst *int, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return fmt.Errorf("%s must be a positive integer, got %q", env, v)
	}
	*dst = n
	return nil
}

func setDuration(dst *time.Duration, env string) error {
	v := os.Getenv(env)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil || d < 0 {
		return fmt.Errorf("%s must be a non-negative duration, got %q", env, v)
	}
	*dst = d
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// normalizeHost accepts OLLAMA_HOST in its "host:port" form as well as full URLs.
func normalizeHost(host string) string {
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return strings.TrimRight(host, "/")
	}
	return "http://" + strings.TrimRight(host, "/")
}
