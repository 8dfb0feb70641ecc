package invoke

import (
	"context"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/manthysbr/aule-router/internal/core/domain"
)

// OpenAI serves models over the chat completions API. Any OpenAI-compatible
// endpoint works (OpenAI, Together, vLLM, Ollama /v1).
type OpenAI struct {
	client openai.Client
}

func NewOpenAI(baseURL, apiKey string) *OpenAI {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &OpenAI{client: openai.NewClient(opts...)}
}

func (o *OpenAI) Invoke(ctx context.Context, inv domain.Invocation) (domain.Completion, error) {
	var messages []openai.ChatCompletionMessageParamUnion
	if inv.System != "" {
		messages = append(messages, openai.SystemMessage(inv.System))
	}
	messages = append(messages, openai.UserMessage(inv.Prompt))

	p := inv.Params
	params := openai.ChatCompletionNewParams{
		Model:       inv.Model.ID,
		Messages:    messages,
		Temperature: openai.Float(p.Temperature),
	}
	if p.TopP > 0 {
		params.TopP = openai.Float(p.TopP)
	}
	if p.MaxTokens > 0 {
		params.MaxCompletionTokens = openai.Int(int64(p.MaxTokens))
	}
	if p.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*p.FrequencyPenalty)
	}
	if p.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*p.PresencePenalty)
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return domain.Completion{}, fmt.Errorf("openai chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return domain.Completion{}, fmt.Errorf("no choices in response")
	}

	return domain.Completion{
		Text:         resp.Choices[0].Message.Content,
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}
