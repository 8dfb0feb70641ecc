package domain

// AuthType is how a provider expects to be authenticated.
type AuthType string

const (
	AuthNone   AuthType = "none"
	AuthAPIKey AuthType = "api_key"
	AuthBearer AuthType = "bearer"
)

// ProviderKind selects both the invocation backend and the live discovery
// source for a provider.
type ProviderKind string

const (
	ProviderKindStatic    ProviderKind = "static" // model list only, simulated backend
	ProviderKindOllama    ProviderKind = "ollama"
	ProviderKindOpenAI    ProviderKind = "openai" // any OpenAI-compatible endpoint
	ProviderKindAnthropic ProviderKind = "anthropic"
	ProviderKindContainer ProviderKind = "container"
	ProviderKindWasm      ProviderKind = "wasm"
)

// ProviderConfig describes an external model source.
type ProviderConfig struct {
	Name            string       `json:"name" yaml:"name"`
	Kind            ProviderKind `json:"kind,omitempty" yaml:"kind,omitempty"`
	Endpoint        string       `json:"endpoint" yaml:"endpoint"`
	AuthType        AuthType     `json:"auth_type" yaml:"auth_type"`
	AvailableModels []string     `json:"available_models" yaml:"available_models"`
	APIKey          string       `json:"api_key,omitempty" yaml:"-"` // masked on every read path
}
