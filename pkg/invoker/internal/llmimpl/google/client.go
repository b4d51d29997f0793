// Package google provides the Google Gemini client implementation for the llm interface.
package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"google.golang.org/genai"

	"advisor/pkg/llm"
	"advisor/pkg/llmerrors"
)

// GeminiClient wraps the Google GenAI client to implement llm.LLMClient.
type GeminiClient struct {
	client     *genai.Client
	initErr    error
	httpClient *http.Client
	apiKey     string
	baseURL    string
	model      string
	once       sync.Once
}

// Option customizes a GeminiClient.
type Option func(*GeminiClient)

// WithBaseURL points the client at a different Gemini API endpoint.
func WithBaseURL(url string) Option {
	return func(g *GeminiClient) { g.baseURL = url }
}

// WithHTTPClient sets the HTTP client used by the SDK.
func WithHTTPClient(c *http.Client) Option {
	return func(g *GeminiClient) { g.httpClient = c }
}

// NewGeminiClientWithModel creates a new Gemini client with a specific model.
// The underlying SDK client is created lazily on first use since it needs a context.
func NewGeminiClientWithModel(apiKey, model string, opts ...Option) llm.LLMClient {
	g := &GeminiClient{apiKey: apiKey, model: model}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *GeminiClient) sdk(ctx context.Context) (*genai.Client, error) {
	g.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:     g.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: g.httpClient,
		}
		if g.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: g.baseURL}
		}
		g.client, g.initErr = genai.NewClient(ctx, cfg)
	})
	return g.client, g.initErr
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := g.sdk(ctx)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}

	system, contents, err := toContents(in.Messages)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion error")
	}

	temperature := in.Temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: int32(in.MaxTokens), //nolint:gosec // bounded by DefaultMaxTokens
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil || len(result.Candidates) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	text := result.Text()
	if text == "" {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "Gemini returned no text")
	}

	resp := llm.CompletionResponse{
		Content:    text,
		StopReason: string(result.Candidates[0].FinishReason),
	}
	if result.UsageMetadata != nil {
		resp.Usage = llm.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return resp, nil
}

// toContents extracts the system instruction and maps the remaining turns to Gemini roles.
func toContents(messages []llm.CompletionMessage) (string, []*genai.Content, error) {
	system, rest := llm.SplitSystem(messages)
	if len(rest) == 0 {
		return "", nil, fmt.Errorf("message list has no user content")
	}

	contents := make([]*genai.Content, 0, len(rest))
	for i := range rest {
		role := "user"
		if rest[i].Role == llm.RoleAssistant {
			role = "model" // Gemini uses "model" instead of "assistant"
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: rest[i].Content}},
		})
	}
	return system, contents, nil
}

// Stream implements the llm.LLMClient interface by buffering a single completion.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (g *GeminiClient) Stream(ctx context.Context, in llm.CompletionRequest) (<-chan llm.StreamChunk, error) {
	return llm.CompleteAsStream(ctx, g, in)
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

func classifyError(err error) *llmerrors.Error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return llmerrors.FromStatus(apiErr.Code, apiErr.Message, fmt.Errorf("gemini generate content failed: %w", err))
	}
	return llmerrors.FromTransport(err)
}
