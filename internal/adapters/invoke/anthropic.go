package invoke

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

// defaultAnthropicMaxTokens is used when the parameter overlay leaves
// MaxTokens unset; the Messages API requires it.
const defaultAnthropicMaxTokens = 1024

// Anthropic serves Claude models over the Messages API.
type Anthropic struct {
	client anthropic.Client
}

func NewAnthropic(baseURL, apiKey string) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &Anthropic{client: anthropic.NewClient(opts...)}
}

func (a *Anthropic) Invoke(ctx context.Context, inv domain.Invocation) (domain.Completion, error) {
	// top_p is not forwarded; newer models reject it alongside temperature.
	p := inv.Params
	maxTokens := int64(p.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = defaultAnthropicMaxTokens
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(inv.Model.ID),
		MaxTokens: maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(inv.Prompt)),
		},
		Temperature: anthropic.Float(min(p.Temperature, 1)),
	}
	if inv.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: inv.System}}
	}

	resp, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("anthropic messages: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return domain.Completion{
		Text:         text.String(),
		InputTokens:  int(resp.Usage.InputTokens),
		OutputTokens: int(resp.Usage.OutputTokens),
	}, nil
}
