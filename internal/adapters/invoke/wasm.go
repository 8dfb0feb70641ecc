package invoke

import (
	"context"
	"fmt"

	"github.com/manthysbr/aule-router/internal/core/domain"
	"github.com/manthysbr/aule-router/internal/synapse"
)

// Wasm runs models that are Synapse plugins.
type Wasm struct {
	runtime *synapse.Runtime
}

func NewWasm(runtime *synapse.Runtime) *Wasm {
	return &Wasm{runtime: runtime}
}

func (w *Wasm) Invoke(ctx context.Context, inv domain.Invocation) (domain.Completion, error) {
	plugin, ok := w.runtime.Plugin(inv.Model.ID)
	if !ok {
		return domain.Completion{}, fmt.Errorf("wasm plugin %s is not loaded", inv.Model.ID)
	}

	resp, err := plugin.Invoke(ctx, synapse.Request{
		Prompt: inv.Prompt,
		System: inv.System,
		Params: inv.Params,
	})
	if err != nil {
		return domain.Completion{}, err
	}
	return domain.Completion{
		Text:         resp.Text,
		InputTokens:  resp.InputTokens,
		OutputTokens: resp.OutputTokens,
	}, nil
}
