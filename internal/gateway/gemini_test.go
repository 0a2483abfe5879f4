package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"moltguard/internal/config"
)

func TestInjectGeminiSystemInstruction_NoExisting(t *testing.T) {
	body := map[string]any{}
	injectGeminiSystemInstruction(body)

	instr, ok := body["systemInstruction"].(map[string]any)
	if !ok {
		t.Fatalf("expected systemInstruction object, got %v", body["systemInstruction"])
	}
	parts, _ := instr["parts"].([]any)
	if len(parts) != 1 {
		t.Fatalf("expected 1 part, got %d", len(parts))
	}
}

func TestInjectGeminiSystemInstruction_PrependsToExisting(t *testing.T) {
	body := map[string]any{
		"systemInstruction": map[string]any{
			"parts": []any{map[string]any{"text": "existing rule"}},
		},
	}
	injectGeminiSystemInstruction(body)

	instr, _ := body["systemInstruction"].(map[string]any)
	parts, _ := instr["parts"].([]any)
	if len(parts) != 2 {
		t.Fatalf("expected 2 parts, got %d", len(parts))
	}
	first, _ := parts[0].(map[string]any)
	if first["text"] != antiHallucinationInstruction {
		t.Errorf("expected injected instruction first, got %v", first)
	}
}

func TestBuildGeminiUpstreamRequest_EncodesModelAndKey(t *testing.T) {
	req, err := buildGeminiUpstreamRequest(t.Context(), "https://generativelanguage.googleapis.com", "key-123", "gemini-1.5-pro", []byte(`{}`))
	if err != nil {
		t.Fatalf("buildGeminiUpstreamRequest: %v", err)
	}
	if !strings.Contains(req.URL.String(), "gemini-1.5-pro:generateContent") {
		t.Errorf("url = %q", req.URL.String())
	}
	if !strings.Contains(req.URL.String(), "key=key-123") {
		t.Errorf("url = %q", req.URL.String())
	}
}

func TestHandleGemini_EndToEnd_Passthrough(t *testing.T) {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.String(), "gemini-1.5-pro") {
			t.Errorf("expected model in upstream URL, got %s", r.URL.String())
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer backend.Close()

	s, _ := newTestServer(t, passthroughSanitizer())
	s.cfg.Backends = map[string]config.Backend{
		"gemini": {BaseURL: toLocalhostURL(t, backend.URL), APIKey: "test-key"},
	}

	reqBody, _ := json.Marshal(map[string]any{"contents": []any{}})
	req := httptest.NewRequest(http.MethodPost, "/v1/models/gemini-1.5-pro:generateContent", bytes.NewReader(reqBody))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}
}
