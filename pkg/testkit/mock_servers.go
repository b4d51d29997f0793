package testkit

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
)

// ReplyFunc produces a completion for one chat request. A non-zero status makes the server fail
// the request with that status instead.
type ReplyFunc func(system, user string) (content string, status int)

// ReplyBySystemPrompt answers with the first reply whose key occurs in the system prompt.
func ReplyBySystemPrompt(replies map[string]string) ReplyFunc {
	return func(system, _ string) (string, int) {
		for marker, reply := range replies {
			if strings.Contains(system, marker) {
				return reply, 0
			}
		}
		return "", http.StatusNotFound
	}
}

// GatewayServer is an httptest server emulating an OpenAI-compatible chat completions gateway.
type GatewayServer struct {
	*httptest.Server
	requests atomic.Int64
}

// Requests returns how many completion requests were served.
func (g *GatewayServer) Requests() int {
	return int(g.requests.Load())
}

// BaseURL returns the /v1 base, suitable for gateway.base_url.
func (g *GatewayServer) BaseURL() string {
	return g.URL + "/v1"
}

// MockGatewayServer creates a gateway that answers every chat completion through reply.
func MockGatewayServer(reply ReplyFunc) *GatewayServer {
	g := &GatewayServer{}
	g.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Verify it's a chat completions endpoint
		if !strings.HasSuffix(r.URL.Path, "/chat/completions") {
			http.Error(w, "Not found", http.StatusNotFound)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		var request struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			http.Error(w, "Invalid JSON", http.StatusBadRequest)
			return
		}
		g.requests.Add(1)

		var system, user string
		for _, m := range request.Messages {
			switch m.Role {
			case "system":
				system = m.Content
			case "user":
				user = m.Content
			}
		}

		content, status := reply(system, user)
		if status != 0 {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(status)
			_ = json.NewEncoder(w).Encode(map[string]any{
				"error": map[string]any{"message": http.StatusText(status), "type": "mock_error"},
			})
			return
		}

		response := map[string]any{
			"id":      "chatcmpl-mock12345",
			"object":  "chat.completion",
			"created": 1699999999,
			"model":   request.Model,
			"choices": []map[string]any{
				{
					"index": 0,
					"message": map[string]any{
						"role":    "assistant",
						"content": content,
					},
					"finish_reason": "stop",
				},
			},
			"usage": map[string]any{
				"prompt_tokens":     50,
				"completion_tokens": 100,
				"total_tokens":      150,
			},
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(response)
	}))
	return g
}
