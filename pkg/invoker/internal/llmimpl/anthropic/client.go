// Package anthropic provides the Anthropic Claude client implementation for the llm interface.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"advisor/pkg/llm"
	"advisor/pkg/llmerrors"
)

// ClaudeClient wraps the Anthropic API client to implement llm.LLMClient interface.
//
//nolint:govet // Simple client struct, logical grouping preferred
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClientWithModel creates a new Claude client with specific model (raw client, middleware applied at higher level).
func NewClaudeClientWithModel(apiKey, model string, opts ...option.RequestOption) llm.LLMClient {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &ClaudeClient{
		client: anthropic.NewClient(append(base, opts...)...),
		model:  anthropic.Model(model),
	}
}

// toMessages extracts the system prompt and merges consecutive user turns so roles alternate.
func toMessages(messages []llm.CompletionMessage) (string, []anthropic.MessageParam, error) {
	system, rest := llm.SplitSystem(messages)
	if len(rest) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	var out []anthropic.MessageParam
	var pending []string
	flush := func() {
		if len(pending) == 0 {
			return
		}
		out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(strings.Join(pending, "\n\n"))))
		pending = nil
	}

	for i := range rest {
		msg := &rest[i]
		if msg.Role == llm.RoleAssistant {
			flush()
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(msg.Content)))
			continue
		}
		pending = append(pending, msg.Content)
	}
	flush()

	if out[len(out)-1].Role != anthropic.MessageParamRoleUser {
		return "", nil, fmt.Errorf("last message must be user role")
	}
	return system, out, nil
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest is 80 bytes but passing by value matches interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	system, messages, err := toMessages(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion error")
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(in.MaxTokens),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return llm.CompletionResponse{
		Content:    text.String(),
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// Stream implements the llm.LLMClient interface by buffering a single completion.
//
//nolint:gocritic // CompletionRequest is 80 bytes but passing by value matches interface
func (c *ClaudeClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return llm.CompleteAsStream(ctx, c, in)
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

// classifyError maps Anthropic SDK errors to our structured error types.
func classifyError(err error) *llmerrors.Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return llmerrors.FromStatus(apiErr.StatusCode, apiErr.Error(), fmt.Errorf("anthropic messages call failed: %w", err))
	}
	return llmerrors.FromTransport(err)
}
