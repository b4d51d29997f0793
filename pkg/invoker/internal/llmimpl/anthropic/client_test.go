package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/llm"
	"advisor/pkg/llmerrors"
)

func TestToMessagesMergesConsecutiveUserTurns(t *testing.T) {
	system, msgs, err := toMessages([]llm.CompletionMessage{
		llm.NewSystemMessage("persona"),
		llm.NewUserMessage("first"),
		llm.NewUserMessage("second"),
	})
	require.NoError(t, err)
	assert.Equal(t, "persona", system)
	require.Len(t, msgs, 1)
}

func TestToMessagesRejectsSystemOnly(t *testing.T) {
	_, _, err := toMessages([]llm.CompletionMessage{llm.NewSystemMessage("persona")})
	assert.Error(t, err)
}

func TestCompleteAgainstStubServer(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "msg_1", "type": "message", "role": "assistant", "model": "claude-sonnet-4-5",
			"content": [{"type": "text", "text": "{\"a\":1}"}],
			"stop_reason": "end_turn",
			"usage": {"input_tokens": 9, "output_tokens": 3}
		}`))
	}))
	defer srv.Close()

	client := NewClaudeClientWithModel("k", "claude-sonnet-4-5", option.WithBaseURL(srv.URL))
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("persona"),
		llm.NewUserMessage("question"),
	}))
	require.NoError(t, err)

	assert.Equal(t, `{"a":1}`, resp.Content)
	assert.Equal(t, "end_turn", resp.StopReason)
	assert.Equal(t, 9, resp.Usage.PromptTokens)
	assert.Equal(t, 3, resp.Usage.CompletionTokens)
	assert.Equal(t, "claude-sonnet-4-5", body["model"])
	assert.NotNil(t, body["system"])
}

func TestCompleteClassifiesOverload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`))
	}))
	defer srv.Close()

	client := NewClaudeClientWithModel("k", "claude-sonnet-4-5", option.WithBaseURL(srv.URL))
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("q")}))
	require.Error(t, err)
	assert.Equal(t, llmerrors.ErrorTypeTransient, llmerrors.TypeOf(err))
	assert.Equal(t, http.StatusServiceUnavailable, llmerrors.StatusOf(err))
}
