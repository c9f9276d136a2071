package reasoning

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/openai/openai-go/v3/option"

	"github.com/kokistudios/decksmith/internal/session"
	"github.com/kokistudios/decksmith/internal/store"
)

const toolCallCompletion = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "test-model",
  "choices": [{
    "index": 0,
    "finish_reason": "tool_calls",
    "logprobs": null,
    "message": {
      "role": "assistant",
      "content": null,
      "refusal": null,
      "tool_calls": [{
        "id": "call_abc",
        "type": "function",
        "function": {"name": "save_card_suggestions", "arguments": "{\"suggestions\":[]}"}
      }]
    }
  }]
}`

func TestOpenAIComplete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(data, &body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, toolCallCompletion)
	}))
	defer srv.Close()

	cfg := store.DefaultConfig().Model
	cfg.BaseURL = srv.URL
	cfg.Name = "test-model"
	cfg.APIKeyEnv = "DECKSMITH_TEST_KEY"
	t.Setenv("DECKSMITH_TEST_KEY", "sk-test")

	m := NewOpenAI(cfg, option.WithMaxRetries(0))
	msg, err := m.Complete(context.Background(), Request{
		System: "be helpful",
		Messages: []session.Message{
			session.HumanMessage("upgrade my deck"),
			{Role: session.RoleAssistant, ToolCalls: []session.ToolCall{{ID: "call_0", Name: "prompt_user", Arguments: `{"prompt":"?"}`}}},
			session.ToolResult("call_0", "prompt_user", "mono green"),
		},
		Tools: []ToolSpec{{Name: "save_card_suggestions", Description: "save", Parameters: map[string]any{"type": "object"}}},
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	if len(msg.ToolCalls) != 1 {
		t.Fatalf("expected 1 tool call, got %d", len(msg.ToolCalls))
	}
	if msg.ToolCalls[0].ID != "call_abc" || msg.ToolCalls[0].Name != "save_card_suggestions" {
		t.Errorf("tool call = %+v", msg.ToolCalls[0])
	}

	if body["model"] != "test-model" {
		t.Errorf("model = %v", body["model"])
	}
	msgs, _ := body["messages"].([]any)
	if len(msgs) != 4 {
		t.Fatalf("sent %d messages, want 4 (system + 3)", len(msgs))
	}
	roles := []string{"system", "user", "assistant", "tool"}
	for i, want := range roles {
		m, _ := msgs[i].(map[string]any)
		if m["role"] != want {
			t.Errorf("messages[%d].role = %v, want %s", i, m["role"], want)
		}
	}
	tools, _ := body["tools"].([]any)
	if len(tools) != 1 {
		t.Errorf("sent %d tools, want 1", len(tools))
	}
}

func TestOpenAICompleteError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
	}))
	defer srv.Close()

	cfg := store.DefaultConfig().Model
	cfg.BaseURL = srv.URL
	m := NewOpenAI(cfg, option.WithMaxRetries(0), option.WithAPIKey("sk-test"))
	if _, err := m.Complete(context.Background(), Request{Messages: []session.Message{session.HumanMessage("hi")}}); err == nil {
		t.Error("expected error from 401 response")
	}
}
