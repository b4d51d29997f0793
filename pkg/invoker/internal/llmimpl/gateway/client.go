// Package gateway provides a chat-completions client for OpenAI-compatible endpoints using the official OpenAI Go package.
//
// The same client serves the AI gateway (vendor/model identifiers such as google/gemini-2.5-pro)
// and OpenAI directly (bare gpt-*/o* identifiers).
package gateway

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"advisor/pkg/llm"
	"advisor/pkg/llmerrors"
)

// ChatClient wraps the official OpenAI client to implement llm.LLMClient against /chat/completions.
//
//nolint:govet // Simple struct, field alignment not critical
type ChatClient struct {
	client openai.Client
	model  string
	// direct is set when talking to api.openai.com, where reasoning models reject temperature and max_tokens.
	direct bool
}

// NewGatewayClient creates a client for an OpenAI-compatible gateway (raw client, middleware applied at higher level).
func NewGatewayClient(apiKey, baseURL, model string, opts ...option.RequestOption) llm.LLMClient {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0), // retries are owned by the resilience middleware
	}
	return &ChatClient{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
	}
}

// NewOpenAIClient creates a client talking to OpenAI directly (raw client, middleware applied at higher level).
func NewOpenAIClient(apiKey, model string, opts ...option.RequestOption) llm.LLMClient {
	base := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithMaxRetries(0),
	}
	return &ChatClient{
		client: openai.NewClient(append(base, opts...)...),
		model:  model,
		direct: true,
	}
}

func (c *ChatClient) params(in llm.CompletionRequest) openai.ChatCompletionNewParams {
	messages := make([]openai.ChatCompletionMessageParamUnion, 0, len(in.Messages))
	for i := range in.Messages {
		msg := &in.Messages[i]
		switch msg.Role {
		case llm.RoleSystem:
			messages = append(messages, openai.SystemMessage(msg.Content))
		case llm.RoleAssistant:
			messages = append(messages, openai.AssistantMessage(msg.Content))
		default:
			messages = append(messages, openai.UserMessage(msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(c.model),
		Messages: messages,
	}

	reasoning := c.direct && (strings.HasPrefix(c.model, "o3") || strings.HasPrefix(c.model, "o4"))
	if in.MaxTokens > 0 {
		if c.direct {
			params.MaxCompletionTokens = openai.Int(int64(in.MaxTokens))
		} else {
			params.MaxTokens = openai.Int(int64(in.MaxTokens))
		}
	}
	if !reasoning {
		params.Temperature = openai.Float(float64(in.Temperature))
	}
	return params
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (c *ChatClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	resp, err := c.client.Chat.Completions.New(ctx, c.params(in))
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if resp == nil || len(resp.Choices) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "no choices in chat completion response")
	}

	choice := resp.Choices[0]
	if choice.Message.Content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "chat completion returned empty content")
	}

	return llm.CompletionResponse{
		Content:    choice.Message.Content,
		StopReason: choice.FinishReason,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
		},
	}, nil
}

// Stream implements the llm.LLMClient interface using server-sent events.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (c *ChatClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	stream := c.client.Chat.Completions.NewStreaming(ctx, c.params(in))

	ch := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case ch <- llm.StreamChunk{Content: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				ch <- llm.StreamChunk{Error: llmerrors.FromContext(ctx.Err())}
				return
			}
		}
		if err := stream.Err(); err != nil {
			ch <- llm.StreamChunk{Error: classifyError(err)}
			return
		}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (c *ChatClient) GetModelName() string {
	return c.model
}

// classifyError maps OpenAI SDK errors to our structured error types.
func classifyError(err error) *llmerrors.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return llmerrors.FromStatus(apiErr.StatusCode, apiErr.Message, fmt.Errorf("chat completion failed: %w", err))
	}
	return llmerrors.FromTransport(err)
}
