package completion

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/solidSpoon/DashChat/entity"
)

// AnthropicProvider streams completions from the Anthropic Messages API.
type AnthropicProvider struct {
	client anthropic.Client
}

// NewAnthropicProvider creates a provider authenticated with the given API
// key.
func NewAnthropicProvider(apiKey string) *AnthropicProvider {
	return &AnthropicProvider{client: anthropic.NewClient(option.WithAPIKey(apiKey))}
}

// StreamCompletion implements Provider. System messages in the history are
// folded into the request's system prompt; MaxTokens defaults to 1024
// when unset.
func (p *AnthropicProvider) StreamCompletion(ctx context.Context, cfg Config, messages []*entity.Message, onChunk OnChunk) error {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(cfg.Model),
		MaxTokens: int64(cfg.MaxTokens),
	}
	if params.MaxTokens <= 0 {
		params.MaxTokens = 1024
	}

	system := cfg.System
	for _, m := range messages {
		switch m.Role {
		case entity.RoleSystem:
			if system != "" {
				system += "\n"
			}
			system += m.Content
		case entity.RoleAssistant:
			params.Messages = append(params.Messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			params.Messages = append(params.Messages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	stream := p.client.Messages.NewStreaming(ctx, params)
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := ev.Delta.AsAny().(anthropic.TextDelta); ok && delta.Text != "" {
				if err := onChunk(delta.Text, false); err != nil {
					return err
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return fmt.Errorf("completion stream failed: %w", err)
	}
	return onChunk("", true)
}
