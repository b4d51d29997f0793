package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"advisor/pkg/llm"
	"advisor/pkg/llmerrors"
)

func TestToContents(t *testing.T) {
	system, contents, err := toContents([]llm.CompletionMessage{
		llm.NewSystemMessage("You are helpful"),
		llm.NewSystemMessage("And concise"),
		llm.NewUserMessage("Hello"),
		{Role: llm.RoleAssistant, Content: "Hi there"},
		llm.NewUserMessage("Again"),
	})
	require.NoError(t, err)

	assert.Equal(t, "You are helpful\n\nAnd concise", system)
	require.Len(t, contents, 3)
	assert.Equal(t, "user", contents[0].Role)
	assert.Equal(t, "model", contents[1].Role)
	assert.Equal(t, "Again", contents[2].Parts[0].Text)
}

func TestToContentsRequiresUserContent(t *testing.T) {
	_, _, err := toContents([]llm.CompletionMessage{llm.NewSystemMessage("only system")})
	assert.Error(t, err)
}

func TestClassifyError(t *testing.T) {
	err := classifyError(fmt.Errorf("wrapped: %w", genai.APIError{Code: 429, Message: "resource exhausted"}))
	assert.Equal(t, llmerrors.ErrorTypeRateLimit, err.Type)
	assert.Equal(t, 429, err.StatusCode)

	err = classifyError(errors.New("dial tcp: connection refused"))
	assert.Equal(t, llmerrors.ErrorTypeTransient, err.Type)
}

func TestCompleteAgainstStubServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "gemini-2.5-flash:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"candidates": [{"content": {"role": "model", "parts": [{"text": "{\"ok\":1}"}]}, "finishReason": "STOP"}],
			"usageMetadata": {"promptTokenCount": 7, "candidatesTokenCount": 2}
		}`))
	}))
	defer srv.Close()

	client := NewGeminiClientWithModel("k", "gemini-2.5-flash", WithBaseURL(srv.URL), WithHTTPClient(srv.Client()))
	resp, err := client.Complete(context.Background(), llm.NewCompletionRequest([]llm.CompletionMessage{
		llm.NewSystemMessage("persona"),
		llm.NewUserMessage("question"),
	}))
	require.NoError(t, err)

	assert.Equal(t, `{"ok":1}`, resp.Content)
	assert.Equal(t, "STOP", resp.StopReason)
	assert.Equal(t, 7, resp.Usage.PromptTokens)
	assert.Equal(t, 2, resp.Usage.CompletionTokens)
}

func TestGetModelName(t *testing.T) {
	assert.Equal(t, "gemini-2.5-pro", NewGeminiClientWithModel("k", "gemini-2.5-pro").GetModelName())
}
