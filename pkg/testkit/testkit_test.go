package testkit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"advisor/pkg/faults"
	"advisor/pkg/llm"
	"advisor/pkg/sanitize"
)

func TestMockGatewayServer(t *testing.T) {
	server := MockGatewayServer(ReplyBySystemPrompt(map[string]string{"analytiker": `{"ok":true}`}))
	defer server.Close()

	requestBody := `{
		"model": "google/gemini-2.5-flash",
		"messages": [
			{"role": "system", "content": "Du är en analytiker"},
			{"role": "user", "content": "Analysera Acme AB"}
		]
	}`

	resp, err := http.Post(server.BaseURL()+"/chat/completions", "application/json", strings.NewReader(requestBody))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("Failed to read response: %v", err)
	}

	var response struct {
		Model   string `json:"model"`
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		t.Fatalf("Failed to parse JSON response: %v", err)
	}
	if len(response.Choices) != 1 || response.Choices[0].Message.Content != `{"ok":true}` {
		t.Errorf("Unexpected choices: %+v", response.Choices)
	}
	if response.Model != "google/gemini-2.5-flash" {
		t.Errorf("Expected model echo, got %s", response.Model)
	}
	if server.Requests() != 1 {
		t.Errorf("Expected 1 request, got %d", server.Requests())
	}
}

func TestMockGatewayServerUnknownPrompt(t *testing.T) {
	server := MockGatewayServer(ReplyBySystemPrompt(nil))
	defer server.Close()

	resp, err := http.Post(server.BaseURL()+"/chat/completions", "application/json",
		strings.NewReader(`{"model":"m","messages":[{"role":"system","content":"x"}]}`))
	if err != nil {
		t.Fatalf("Failed to make request: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", resp.StatusCode)
	}
}

func TestStageInvoker(t *testing.T) {
	inv := NewStageInvoker(map[string]string{"a": "reply a"})
	inv.Fail("b", errors.New("boom"))

	ctx := llm.WithCallInfo(context.Background(), llm.CallInfo{Pipeline: "p", Stage: "a", RunID: "r1"})
	got, err := inv.Invoke(ctx, "sys", "user", "model", 2)
	if err != nil || got != "reply a" {
		t.Fatalf("Expected canned reply, got %q, %v", got, err)
	}

	ctx = llm.WithCallInfo(context.Background(), llm.CallInfo{Stage: "b"})
	if _, err := inv.Invoke(ctx, "sys", "user", "model", 2); err == nil {
		t.Error("Expected configured failure")
	}

	ctx = llm.WithCallInfo(context.Background(), llm.CallInfo{Stage: "c"})
	_, err = inv.Invoke(ctx, "sys", "user", "model", 2)
	AssertFault(t, err, faults.KindModelUnavailable)

	AssertCalledStages(t, inv, "a", "b", "c")
	AssertUserMessageContains(t, inv, "a", "user")
	if c, _ := inv.Call("a"); c.RunID != "r1" || c.Pipeline != "p" {
		t.Errorf("Expected call info to be recorded, got %+v", c)
	}
}

func TestCannedRepliesSanitize(t *testing.T) {
	all := AnalysisReplies()
	for k, v := range BrainstormReplies() {
		all[k] = v
	}
	for stage, reply := range all {
		if _, err := sanitize.Parse(stage, reply); err != nil {
			t.Errorf("Canned reply for %s does not sanitize: %v", stage, err)
		}
	}
}
