package gateway

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"moltguard/internal/config"
)

func TestInjectAnthropicSystem_StringPrepends(t *testing.T) {
	body := map[string]any{"system": "be nice"}
	injectAnthropicSystem(body)
	got, _ := body["system"].(string)
	if !strings.HasPrefix(got, antiHallucinationInstruction) || !strings.HasSuffix(got, "be nice") {
		t.Errorf("got %q", got)
	}
}

func TestInjectAnthropicSystem_NilBecomesInstruction(t *testing.T) {
	body := map[string]any{}
	injectAnthropicSystem(body)
	if body["system"] != antiHallucinationInstruction {
		t.Errorf("got %v", body["system"])
	}
}

func TestInjectAnthropicSystem_BlockArrayPrepended(t *testing.T) {
	existing := []any{map[string]any{"type": "text", "text": "rule one"}}
	body := map[string]any{"system": existing}
	injectAnthropicSystem(body)
	blocks, ok := body["system"].([]any)
	if !ok || len(blocks) != 2 {
		t.Fatalf("expected a 2-element block array, got %v", body["system"])
	}
	first, _ := blocks[0].(map[string]any)
	if first["text"] != antiHallucinationInstruction {
		t.Errorf("expected injected block first, got %v", first)
	}
}

func TestBuildAnthropicUpstreamRequest_SetsHeaders(t *testing.T) {
	req, err := buildAnthropicUpstreamRequest(t.Context(), "https://api.anthropic.com", "sk-ant-key", []byte(`{}`))
	if err != nil {
		t.Fatalf("buildAnthropicUpstreamRequest: %v", err)
	}
	if req.Header.Get("x-api-key") != "sk-ant-key" {
		t.Errorf("x-api-key header = %q", req.Header.Get("x-api-key"))
	}
	if req.Header.Get("anthropic-version") == "" {
		t.Error("expected anthropic-version header to be set")
	}
	if req.URL.String() != "https://api.anthropic.com/v1/messages" {
		t.Errorf("url = %q", req.URL.String())
	}
}

func TestReencodeAnthropicSSE_EmitsFullEventSequence(t *testing.T) {
	upstream := map[string]any{
		"id":   "msg_1",
		"role": "assistant",
		"content": []any{
			map[string]any{"type": "text", "text": "hello Alice"},
		},
		"stop_reason": "end_turn",
		"usage":       map[string]any{"output_tokens": 3},
	}
	raw, _ := json.Marshal(upstream)
	resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(raw))}

	w := httptest.NewRecorder()
	if err := reencodeAnthropicSSE(w, resp, nil, fakeRestorer{}); err != nil {
		t.Fatalf("reencodeAnthropicSSE: %v", err)
	}

	body := w.Body.String()
	for _, want := range []string{"event: message_start", "event: content_block_start", "event: content_block_delta", "event: content_block_stop", "event: message_delta", "event: message_stop"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected event %q in output, got:\n%s", want, body)
		}
	}
	if !strings.Contains(body, "hello Alice") {
		t.Errorf("expected restored text delta, got:\n%s", body)
	}
}

func TestRespondPerMode_NonStreamingRelaysJSON(t *testing.T) {
	s, _ := newTestServer(t, passthroughSanitizer())
	raw, _ := json.Marshal(map[string]any{"ok": true})
	resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(raw))}

	w := httptest.NewRecorder()
	s.respondPerMode(w, resp, nil, false, false, reencodeAnthropicSSE)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var decoded map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["ok"] != true {
		t.Errorf("got %v", decoded)
	}
}

func TestRespondPerMode_StreamingNoRestorationRelaysSSE(t *testing.T) {
	s, _ := newTestServer(t, passthroughSanitizer())
	body := "data: {\"a\":1}\n\n"
	resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}

	w := httptest.NewRecorder()
	s.respondPerMode(w, resp, nil, true, false, reencodeAnthropicSSE)

	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content-type = %q", w.Header().Get("Content-Type"))
	}
	if w.Body.String() != body {
		t.Errorf("got %q, want %q", w.Body.String(), body)
	}
}

func TestRespondPerMode_StreamingWithRestorationReencodesSSE(t *testing.T) {
	s, _ := newTestServer(t, passthroughSanitizer())
	upstream := map[string]any{"id": "msg_1", "content": []any{}, "usage": map[string]any{}}
	raw, _ := json.Marshal(upstream)
	resp := &http.Response{StatusCode: http.StatusOK, Body: io.NopCloser(bytes.NewReader(raw))}

	w := httptest.NewRecorder()
	s.respondPerMode(w, resp, nil, true, true, reencodeAnthropicSSE)

	if w.Header().Get("Content-Type") != "text/event-stream" {
		t.Errorf("content-type = %q", w.Header().Get("Content-Type"))
	}
	if !strings.Contains(w.Body.String(), "event: message_start") {
		t.Errorf("expected re-encoded SSE, got %q", w.Body.String())
	}
}

// TestHandleAnthropic_EndToEnd_Passthrough drives the full handler against a real
// backend. The backend URL uses "localhost" rather than a literal IP so it
// isn't refused by the dialer's SSRF check (which only blocks literal
// private/loopback addresses, not hostnames).
func TestHandleAnthropic_EndToEnd_Passthrough(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-api-key") != "test-key" {
			t.Errorf("missing upstream api key header")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1","role":"assistant","content":[{"type":"text","text":"hi"}]}`))
	}))
	defer backend.Close()

	s, _ := newTestServer(t, passthroughSanitizer())
	s.cfg.Backends = map[string]config.Backend{
		"anthropic": {BaseURL: toLocalhostURL(t, backend.URL), APIKey: "test-key"},
	}

	reqBody, _ := json.Marshal(map[string]any{"model": "claude-3", "stream": false, "messages": []any{}})
	req := httptest.NewRequest(http.MethodPost, "/v1/messages", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
	var decoded map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded["id"] != "msg_1" {
		t.Errorf("got %v", decoded)
	}
}

// toLocalhostURL rewrites an httptest server's 127.0.0.1 URL to use the
// "localhost" hostname.
func toLocalhostURL(t *testing.T, url string) string {
	t.Helper()
	return strings.Replace(url, "127.0.0.1", "localhost", 1)
}
