package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"moltguard/internal/config"
)

func TestReasonerFixup_MergesSystemIntoFirstUserMessage(t *testing.T) {
	body := map[string]any{
		"model": "deepseek-reasoner",
		"messages": []any{
			map[string]any{"role": "system", "content": "follow the rules"},
			map[string]any{"role": "user", "content": "hello"},
		},
	}
	reasonerFixup(body)

	messages, _ := body["messages"].([]any)
	if len(messages) != 1 {
		t.Fatalf("expected system message merged away, got %d messages", len(messages))
	}
	m, _ := messages[0].(map[string]any)
	if m["role"] != "user" {
		t.Fatalf("expected remaining message to be the user message, got %v", m["role"])
	}
	content, _ := m["content"].(string)
	if content != "follow the rules\n\nhello" {
		t.Errorf("got %q", content)
	}
}

func TestReasonerFixup_NonReasonerModelUntouched(t *testing.T) {
	body := map[string]any{
		"model": "gpt-4o",
		"messages": []any{
			map[string]any{"role": "system", "content": "follow the rules"},
			map[string]any{"role": "user", "content": "hello"},
		},
	}
	reasonerFixup(body)

	messages, _ := body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected messages untouched, got %d", len(messages))
	}
}

func TestInjectOpenAISystem_Unshifts(t *testing.T) {
	body := map[string]any{"messages": []any{map[string]any{"role": "user", "content": "hi"}}}
	injectOpenAISystem(body)

	messages, _ := body["messages"].([]any)
	if len(messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(messages))
	}
	first, _ := messages[0].(map[string]any)
	if first["role"] != "system" || first["content"] != antiHallucinationInstruction {
		t.Errorf("got %v", first)
	}
}

func TestBuildOpenAIUpstreamRequest_SetsBearerAuth(t *testing.T) {
	req, err := buildOpenAIUpstreamRequest(t.Context(), "https://api.openai.com", "sk-test", []byte(`{}`))
	if err != nil {
		t.Fatalf("buildOpenAIUpstreamRequest: %v", err)
	}
	if req.Header.Get("Authorization") != "Bearer sk-test" {
		t.Errorf("Authorization = %q", req.Header.Get("Authorization"))
	}
}

func TestToolAwareDelta_IndexesToolCalls(t *testing.T) {
	message := map[string]any{
		"role": "assistant",
		"tool_calls": []any{
			map[string]any{"id": "call_1", "type": "function"},
			map[string]any{"id": "call_2", "type": "function"},
		},
	}
	delta := toolAwareDelta(message)
	calls, _ := delta["tool_calls"].([]any)
	if len(calls) != 2 {
		t.Fatalf("expected 2 tool calls, got %d", len(calls))
	}
	c0, _ := calls[0].(map[string]any)
	if c0["index"] != 0 {
		t.Errorf("expected index 0, got %v", c0["index"])
	}
}

func TestToolAwareDelta_NilMessage(t *testing.T) {
	delta := toolAwareDelta(nil)
	if len(delta) != 0 {
		t.Errorf("expected empty delta for nil message, got %v", delta)
	}
}

func TestReencodeOpenAISSE_EmitsChunkThenDone(t *testing.T) {
	upstream := map[string]any{
		"id":      "chatcmpl-1",
		"created": float64(1234),
		"model":   "gpt-4o",
		"choices": []any{
			map[string]any{"finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": "hi Bob"}},
		},
	}
	raw, _ := json.Marshal(upstream)
	resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(raw))}

	w := httptest.NewRecorder()
	if err := reencodeOpenAISSE(w, resp, nil, fakeRestorer{}); err != nil {
		t.Fatalf("reencodeOpenAISSE: %v", err)
	}

	body := w.Body.String()
	if !bytes.Contains(w.Body.Bytes(), []byte("chat.completion.chunk")) {
		t.Errorf("expected chat.completion.chunk object, got %s", body)
	}
	if !bytes.Contains(w.Body.Bytes(), []byte("data: [DONE]")) {
		t.Errorf("expected terminal [DONE] line, got %s", body)
	}
}

func TestHandleOpenAI_EndToEnd_Passthrough(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing upstream bearer token")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"chatcmpl-1","choices":[]}`))
	}))
	defer backend.Close()

	s, _ := newTestServer(t, passthroughSanitizer())
	s.cfg.Backends = map[string]config.Backend{
		"openai": {BaseURL: toLocalhostURL(t, backend.URL), APIKey: "test-key"},
	}

	reqBody, _ := json.Marshal(map[string]any{"model": "gpt-4o", "stream": false, "messages": []any{}})
	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}
