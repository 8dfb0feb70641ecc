package invoke

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

const defaultOllamaURL = "http://localhost:11434"

// Ollama talks to a local or remote Ollama instance over /api/generate.
type Ollama struct {
	baseURL   string
	keepAlive string
	client    *http.Client
}

func NewOllama(baseURL string) *Ollama {
	if baseURL == "" {
		baseURL = defaultOllamaURL
	}
	return &Ollama{
		baseURL:   NormalizeOllamaBaseURL(baseURL),
		keepAlive: "10m",
		client:    &http.Client{Timeout: 120 * time.Second},
	}
}

type ollamaOptions struct {
	Temperature      float64  `json:"temperature"`
	TopP             float64  `json:"top_p,omitempty"`
	NumPredict       int      `json:"num_predict,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
}

type generateRequest struct {
	Model     string         `json:"model"`
	Prompt    string         `json:"prompt"`
	System    string         `json:"system,omitempty"`
	Stream    bool           `json:"stream"`
	KeepAlive string         `json:"keep_alive,omitempty"`
	Options   *ollamaOptions `json:"options,omitempty"`
}

type generateResponse struct {
	Response        string `json:"response"`
	Done            bool   `json:"done"`
	PromptEvalCount int    `json:"prompt_eval_count"`
	EvalCount       int    `json:"eval_count"`
}

func (o *Ollama) Invoke(ctx context.Context, inv domain.Invocation) (domain.Completion, error) {
	p := inv.Params
	resp, err := o.generate(ctx, generateRequest{
		Model:     inv.Model.ID,
		Prompt:    inv.Prompt,
		System:    inv.System,
		KeepAlive: o.keepAlive,
		Options: &ollamaOptions{
			Temperature:      p.Temperature,
			TopP:             p.TopP,
			NumPredict:       p.MaxTokens,
			FrequencyPenalty: p.FrequencyPenalty,
			PresencePenalty:  p.PresencePenalty,
		},
	})
	if err != nil {
		return domain.Completion{}, err
	}

	return domain.Completion{
		Text:         resp.Response,
		InputTokens:  resp.PromptEvalCount,
		OutputTokens: resp.EvalCount,
	}, nil
}

// Preload loads the model into memory with an empty prompt, which Ollama
// treats as a warm-up request.
func (o *Ollama) Preload(ctx context.Context, model domain.ModelDescriptor) error {
	_, err := o.generate(ctx, generateRequest{Model: model.ID, KeepAlive: o.keepAlive})
	if err != nil {
		return fmt.Errorf("preload %s: %w", model.ID, err)
	}
	return nil
}

func (o *Ollama) generate(ctx context.Context, body generateRequest) (generateResponse, error) {
	jsonData, err := json.Marshal(body)
	if err != nil {
		return generateResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(jsonData))
	if err != nil {
		return generateResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return generateResponse{}, fmt.Errorf("ollama connection failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return generateResponse{}, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return generateResponse{}, fmt.Errorf("failed to decode response: %w", err)
	}
	return genResp, nil
}

// NormalizeOllamaBaseURL strips a trailing slash and an OpenAI-style /v1
// suffix.
func NormalizeOllamaBaseURL(baseURL string) string {
	trimmed := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return strings.TrimSuffix(trimmed, "/v1")
}
