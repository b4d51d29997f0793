// Package ollama provides the Ollama client implementation for local models.
package ollama

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"advisor/pkg/llm"
	"advisor/pkg/llmerrors"
)

// DefaultHost is used when no OLLAMA_HOST is configured.
const DefaultHost = "http://localhost:11434"

// Client wraps the Ollama API client to implement llm.LLMClient.
type Client struct {
	client *api.Client
	model  string
}

// NewOllamaClientWithModel creates a new Ollama client for the given host and model.
// The "ollama:" routing prefix is stripped from the model name sent to the server.
func NewOllamaClientWithModel(hostURL, model string) llm.LLMClient {
	parsedURL, err := url.Parse(hostURL)
	if err != nil || hostURL == "" {
		parsedURL, _ = url.Parse(DefaultHost)
	}
	return &Client{
		client: api.NewClient(parsedURL, http.DefaultClient),
		model:  model,
	}
}

func (o *Client) request(in llm.CompletionRequest, stream bool) *api.ChatRequest {
	messages := make([]api.Message, 0, len(in.Messages))
	for i := range in.Messages {
		messages = append(messages, api.Message{
			Role:    string(in.Messages[i].Role),
			Content: in.Messages[i].Content,
		})
	}
	return &api.ChatRequest{
		Model:    strings.TrimPrefix(o.model, "ollama:"),
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
			"num_predict": in.MaxTokens,
		},
	}
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	if len(in.Messages) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeBadPrompt, "message list cannot be empty")
	}

	var response api.ChatResponse
	err := o.client.Chat(ctx, o.request(in, false), func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	if response.Message.Content == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Ollama returned empty content")
	}

	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: getStopReason(&response),
		Usage: llm.Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
		},
	}, nil
}

// Stream implements the llm.LLMClient interface using Ollama's native streaming.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (o *Client) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	ch := make(chan llm.StreamChunk, 16)
	go func() {
		defer close(ch)
		err := o.client.Chat(ctx, o.request(in, true), func(resp api.ChatResponse) error {
			if resp.Message.Content != "" {
				select {
				case ch <- llm.StreamChunk{Content: resp.Message.Content}:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
		if err != nil {
			ch <- llm.StreamChunk{Error: classifyError(err)}
			return
		}
		ch <- llm.StreamChunk{Done: true}
	}()
	return ch, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}
	switch resp.DoneReason {
	case "", "stop":
		return "stop"
	default:
		return resp.DoneReason
	}
}

func classifyError(err error) *llmerrors.Error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		return llmerrors.FromStatus(statusErr.StatusCode, statusErr.ErrorMessage, fmt.Errorf("ollama chat failed: %w", err))
	}

	errStr := err.Error()
	if strings.Contains(errStr, "model") && strings.Contains(errStr, "not found") {
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Ollama model not found")
	}
	return llmerrors.FromTransport(err)
}
