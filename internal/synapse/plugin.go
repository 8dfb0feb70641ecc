package synapse

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tetratelabs/wazero"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

const defaultTimeout = 30 * time.Second

// PluginMeta is the manifest entry of an inference plugin. It carries
// everything needed to register the plugin as a routable model.
type PluginMeta struct {
	Name         string                     `json:"name"`
	Version      string                     `json:"version"`
	Description  string                     `json:"description"`
	ModelID      string                     `json:"model_id"`
	Capabilities []domain.TaskCategory      `json:"capabilities"`
	Resources    domain.ResourceRequirement `json:"resources"`
	Defaults     domain.ExecutionParameters `json:"defaults"`
	Timeout      time.Duration              `json:"timeout,omitempty"`
}

// Descriptor renders the plugin as a model descriptor owned by provider.
func (m PluginMeta) Descriptor(provider string) domain.ModelDescriptor {
	name := m.Name
	if name == "" {
		name = m.ModelID
	}
	return domain.ModelDescriptor{
		ID:           m.ModelID,
		Name:         name,
		Provider:     provider,
		Capabilities: append([]domain.TaskCategory(nil), m.Capabilities...),
		Resources:    m.Resources,
		Defaults:     m.Defaults,
	}
}

// Request is written to the plugin's stdin as JSON.
type Request struct {
	Prompt string                     `json:"prompt"`
	System string                     `json:"system,omitempty"`
	Params domain.ExecutionParameters `json:"params"`
}

// Response is what a plugin may write to stdout. Plain non-JSON output is
// taken verbatim as the completion text.
type Response struct {
	Text         string `json:"text"`
	InputTokens  int    `json:"input_tokens,omitempty"`
	OutputTokens int    `json:"output_tokens,omitempty"`
	Error        string `json:"error,omitempty"`
}

// Plugin is a compiled module. Every call instantiates a fresh, anonymous
// module so concurrent invocations share no state.
type Plugin struct {
	meta     PluginMeta
	compiled wazero.CompiledModule
	rt       wazero.Runtime
	logger   *slog.Logger
}

// Invoke runs the module's _start with req on stdin and parses stdout.
func (p *Plugin) Invoke(ctx context.Context, req Request) (Response, error) {
	timeout := p.meta.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	input, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("synapse: marshal request for %q: %w", p.meta.ModelID, err)
	}

	var stdout, stderr bytes.Buffer
	moduleCfg := wazero.NewModuleConfig().
		WithStdin(bytes.NewReader(input)).
		WithStdout(&stdout).
		WithStderr(&stderr).
		WithStartFunctions("_start").
		WithName("")

	mod, err := p.rt.InstantiateModule(ctx, p.compiled, moduleCfg)
	if stderr.Len() > 0 {
		p.logger.Debug("synapse: plugin stderr", "model", p.meta.ModelID, "stderr", stderr.String())
	}
	if err != nil {
		return Response{}, fmt.Errorf("synapse: execution failed for %q: %w", p.meta.ModelID, err)
	}
	defer mod.Close(ctx)

	return parseOutput(stdout.Bytes())
}

func parseOutput(out []byte) (Response, error) {
	trimmed := bytes.TrimSpace(out)
	if len(trimmed) == 0 {
		return Response{}, nil
	}

	var resp Response
	if trimmed[0] == '{' && json.Unmarshal(trimmed, &resp) == nil {
		if resp.Error != "" {
			return Response{}, fmt.Errorf("synapse: plugin error: %s", resp.Error)
		}
		return resp, nil
	}
	return Response{Text: strings.TrimSpace(string(out))}, nil
}

func (p *Plugin) Meta() PluginMeta {
	return p.meta
}

// Close frees the compiled module.
func (p *Plugin) Close(ctx context.Context) {
	if p.compiled != nil {
		p.compiled.Close(ctx)
	}
}
