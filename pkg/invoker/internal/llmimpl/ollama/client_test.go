package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ollama/ollama/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"advisor/pkg/llm"
	"advisor/pkg/llmerrors"
)

func TestCompleteStripsRoutingPrefix(t *testing.T) {
	var seen api.ChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&seen))
		w.Header().Set("Content-Type", "application/x-ndjson")
		_, _ = w.Write([]byte(`{"model":"qwen3","message":{"role":"assistant","content":"[1,2]"},"done":true,"done_reason":"stop","prompt_eval_count":11,"eval_count":5}` + "\n"))
	}))
	defer srv.Close()

	client := NewOllamaClientWithModel(srv.URL, "ollama:qwen3")
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("sys"),
		llm.NewUserMessage("hi"),
	}))
	require.NoError(t, err)

	assert.Equal(t, "[1,2]", resp.Content)
	assert.Equal(t, "stop", resp.StopReason)
	assert.Equal(t, 11, resp.Usage.PromptTokens)
	assert.Equal(t, 5, resp.Usage.CompletionTokens)
	assert.Equal(t, "qwen3", seen.Model)
	require.Len(t, seen.Messages, 2)
	assert.Equal(t, "system", seen.Messages[0].Role)
	assert.Equal(t, "ollama:qwen3", client.GetModelName())
}

func TestCompleteServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"model crashed"}`))
	}))
	defer srv.Close()

	client := NewOllamaClientWithModel(srv.URL, "llama3")
	_, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{llm.NewUserMessage("hi")}))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model crashed")

	var llmErr *llmerrors.Error
	require.ErrorAs(t, err, &llmErr)
	assert.True(t, llmErr.IsRetryable())
}

func TestCompleteRejectsEmptyMessages(t *testing.T) {
	client := NewOllamaClientWithModel("", "llama3")
	_, err := client.Complete(context.Background(), llm.CompletionRequest{})
	assert.True(t, llmerrors.Is(err, llmerrors.ErrorTypeBadPrompt))
}

func TestGetStopReason(t *testing.T) {
	assert.Equal(t, "incomplete", getStopReason(&api.ChatResponse{}))
	assert.Equal(t, "stop", getStopReason(&api.ChatResponse{Done: true}))
	assert.Equal(t, "length", getStopReason(&api.ChatResponse{Done: true, DoneReason: "length"}))
}
