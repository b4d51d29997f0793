// Package llm provides interfaces and types for language-model client implementations.
package llm

import (
	"context"
	"fmt"
	"io"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the model.
	RoleAssistant CompletionRole = "assistant"
)

const (
	// DefaultMaxTokens is the output budget for one stage reply.
	DefaultMaxTokens = 8192

	// TemperatureDefault suits extraction and planning stages.
	TemperatureDefault = 0.3

	// TemperatureCreative suits divergent idea generation.
	TemperatureCreative = 0.9
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
//
//nolint:govet // fieldalignment: value semantics preferred over pointer indirection
type CompletionRequest struct {
	Messages    []CompletionMessage
	MaxTokens   int
	Temperature float32
}

// Usage is the token accounting reported by a provider, zero when unknown.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string // Top completion text, verbatim
	StopReason string // Why the response stopped: "stop", "length", ...
	Usage      Usage
}

// StreamChunk represents a chunk of streamed completion response.
type StreamChunk struct {
	Error   error
	Content string
	Done    bool
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // established name
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// Stream generates a completion as a stream of chunks.
	Stream(ctx context.Context, in CompletionRequest) (<-chan StreamChunk, error)

	// GetModelName returns the model name for this client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:    messages,
		MaxTokens:   DefaultMaxTokens,
		Temperature: TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// SplitSystem separates system messages from the conversation, joining them with blank lines.
func SplitSystem(messages []CompletionMessage) (system string, rest []CompletionMessage) {
	rest = make([]CompletionMessage, 0, len(messages))
	for i := range messages {
		if messages[i].Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += messages[i].Content
			continue
		}
		rest = append(rest, messages[i])
	}
	return system, rest
}

// LLMConfig represents configuration for a provider client.
type LLMConfig struct { //nolint:revive // established name
	APIKey      string
	BaseURL     string
	ModelName   string
	MaxTokens   int
	Temperature float32
}

// Validate validates the client configuration.
func (c *LLMConfig) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key cannot be empty")
	}
	if c.ModelName == "" {
		return fmt.Errorf("model name cannot be empty")
	}
	if c.MaxTokens <= 0 {
		return fmt.Errorf("max tokens must be positive")
	}
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("temperature must be between 0.0 and 2.0")
	}
	return nil
}

// CompleteAsStream adapts a synchronous call to the Stream signature as a single chunk.
func CompleteAsStream(ctx context.Context, c LLMClient, in CompletionRequest) (<-chan StreamChunk, error) {
	ch := make(chan StreamChunk, 2)
	go func() {
		defer close(ch)
		resp, err := c.Complete(ctx, in)
		if err != nil {
			ch <- StreamChunk{Error: err}
			return
		}
		ch <- StreamChunk{Content: resp.Content}
		ch <- StreamChunk{Done: true}
	}()
	return ch, nil
}

// StreamToReader converts a stream channel to an io.Reader.
func StreamToReader(stream <-chan StreamChunk) io.Reader {
	pr, pw := io.Pipe()

	go func() {
		defer func() { _ = pw.Close() }()
		for chunk := range stream {
			if chunk.Error != nil {
				pw.CloseWithError(chunk.Error)
				return
			}
			if _, err := pw.Write([]byte(chunk.Content)); err != nil {
				pw.CloseWithError(err)
				return
			}
			if chunk.Done {
				return
			}
		}
	}()

	return pr
}

// CollectStream buffers a stream into one string.
func CollectStream(stream <-chan StreamChunk) (string, error) {
	b, err := io.ReadAll(StreamToReader(stream))
	if err != nil {
		return "", fmt.Errorf("failed to read stream: %w", err)
	}
	return string(b), nil
}
