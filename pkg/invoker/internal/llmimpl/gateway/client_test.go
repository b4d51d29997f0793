package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/llm"
	"advisor/pkg/llmerrors"
)

type chatRequest struct {
	Model    string `json:"model"`
	Messages []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

func newServer(t *testing.T, status int, body string, seen *chatRequest, auth *string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "/chat/completions"), "unexpected path %s", r.URL.Path)
		if seen != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(seen))
		}
		if auth != nil {
			*auth = r.Header.Get("Authorization")
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

const okBody = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1,
  "model": "google/gemini-2.5-flash",
  "choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": "{\"ok\":true}"}}],
  "usage": {"prompt_tokens": 12, "completion_tokens": 4, "total_tokens": 16}
}`

func TestCompleteSendsSystemAndUserMessages(t *testing.T) {
	var seen chatRequest
	var auth string
	srv := newServer(t, http.StatusOK, okBody, &seen, &auth)

	client := NewGatewayClient("secret", srv.URL+"/v1", "google/gemini-2.5-flash")
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("du är en analytiker"),
		llm.NewUserMessage("analysera Acme AB"),
	}))
	require.NoError(t, err)

	assert.Equal(t, `{"ok":true}`, resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 12, resp.Usage.PromptTokens)
	assert.Equal(t, 4, resp.Usage.CompletionTokens)

	assert.Equal(t, "Bearer secret", auth)
	assert.Equal(t, "google/gemini-2.5-flash", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, "du är en analytiker", seen.Messages[0].Content)
	assert.Equal(t, "user", seen.Messages[1].Role)
	assert.Equal(t, "analysera Acme AB", seen.Messages[1].Content)
}

func TestCompleteClassifiesStatus(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		want      llmerrors.ErrorType
		retryable bool
	}{
		{"rate limited", http.StatusTooManyRequests, llmerrors.ErrorTypeRateLimit, true},
		{"payment required", http.StatusPaymentRequired, llmerrors.ErrorTypeRateLimit, true},
		{"unauthorized", http.StatusUnauthorized, llmerrors.ErrorTypeAuth, false},
		{"bad request", http.StatusBadRequest, llmerrors.ErrorTypeBadPrompt, false},
		{"bad gateway", http.StatusBadGateway, llmerrors.ErrorTypeTransient, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newServer(t, tt.status, `{"error":{"message":"nope","type":"error"}}`, nil, nil)
			client := NewGatewayClient("k", srv.URL, "google/gemini-2.5-pro")

			_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
				llm.NewUserMessage("hi"),
			}))
			require.Error(t, err)
			assert.Equal(t, tt.want, llmerrors.TypeOf(err))
			assert.Equal(t, tt.status, llmerrors.StatusOf(err))

			var llmErr *llmerrors.Error
			require.ErrorAs(t, err, &llmErr)
			assert.Equal(t, tt.retryable, llmErr.IsRetryable())
		})
	}
}

func TestCompleteEmptyChoices(t *testing.T) {
	srv := newServer(t, http.StatusOK, `{"id":"x","object":"chat.completion","created":1,"model":"m","choices":[]}`, nil, nil)
	client := NewGatewayClient("k", srv.URL, "m/x")

	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse))
}

func TestGetModelName(t *testing.T) {
	assert.Equal(t, "gpt-4o", NewOpenAIClient("k", "gpt-4o").GetModelName())
	assert.Equal(t, "google/gemini-2.5-pro", NewGatewayClient("k", "http://localhost", "google/gemini-2.5-pro").GetModelName())
}
