package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"moltguard/internal/vault"
)

// handleAnthropic implements the /v1/messages route (Anthropic Messages
// adapter). Anti-hallucination injection prefixes the top-level "system"
// field, which Anthropic accepts as either a string or a content-block
// array.
func (s *Server) handleAnthropic(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequestsTotal()
	sessionID := s.sessionIDFor(r)

	body, ok := s.readBoundedBody(w, r)
	if !ok {
		return
	}
	raw, err := decodeJSONObject(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	payload, needsRestoration, clientWantsStream, err := s.sanitizeRequest(sessionID, raw, injectAnthropicSystem)
	if err != nil {
		s.metrics.IncErrorsGatewayInternal()
		writeUpstreamError(w, err)
		return
	}
	if needsRestoration {
		s.metrics.IncRequestsSanitized()
	} else {
		s.metrics.IncRequestsPassthrough()
	}

	resp, err := s.forward(r.Context(), r.URL.Path, "anthropic", payload, buildAnthropicUpstreamRequest)
	if err != nil {
		s.metrics.IncErrorsGatewayInternal()
		writeUpstreamError(w, err)
		return
	}

	mapping := s.vlt.SessionState(sessionID).Mapping()
	s.respondPerMode(w, resp, mapping, clientWantsStream, needsRestoration, reencodeAnthropicSSE)
}

func injectAnthropicSystem(body map[string]any) {
	switch sys := body["system"].(type) {
	case string:
		body["system"] = antiHallucinationInstruction + "\n\n" + sys
	case nil:
		body["system"] = antiHallucinationInstruction
	case []any:
		block := map[string]any{"type": "text", "text": antiHallucinationInstruction}
		body["system"] = append([]any{block}, sys...)
	}
}

func buildAnthropicUpstreamRequest(ctx context.Context, baseURL, apiKey string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", apiKey)
	req.Header.Set("anthropic-version", "2023-06-01")
	return req, nil
}

// respondPerMode implements the three-row streaming/restoration table from
// spec.md §4.5 step 11, shared by every adapter; reencode handles the third
// row (client wanted streaming, restoration was needed, so the upstream
// call was forced non-streaming and must be re-encoded as SSE).
func (s *Server) respondPerMode(w http.ResponseWriter, resp *http.Response, mapping vault.MappingTable, clientWantsStream, needsRestoration bool, reencode func(w http.ResponseWriter, resp *http.Response, mapping vault.MappingTable, rest Restorer) error) {
	switch {
	case !clientWantsStream:
		s.relayNonStreaming(w, resp, mapping)
	case !needsRestoration:
		s.relayLineRestoredSSE(w, resp, mapping)
	default:
		defer resp.Body.Close()
		if err := reencode(w, resp, mapping, s.rest); err != nil {
			s.log.Warnf("reencode_sse", "err=%v", err)
		}
	}
}

// reencodeAnthropicSSE buffers the forced-non-streaming Anthropic response,
// restores it, and re-emits it as the Anthropic SSE event sequence:
// message_start -> (content_block_start, content_block_delta,
// content_block_stop)* -> message_delta -> message_stop.
func reencodeAnthropicSSE(w http.ResponseWriter, resp *http.Response, mapping vault.MappingTable, rest Restorer) error {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		w.WriteHeader(resp.StatusCode)
		_, werr := w.Write(raw)
		return werr
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		w.WriteHeader(resp.StatusCode)
		_, werr := w.Write(raw)
		return werr
	}
	restored, _ := rest.Restore(decoded, mapping).(map[string]any)

	w.WriteHeader(http.StatusOK)
	wr := sseWriter{w: w}

	wr.event("message_start", map[string]any{"type": "message_start", "message": stripContent(restored)})

	content, _ := restored["content"].([]any)
	for i, block := range content {
		wr.event("content_block_start", map[string]any{"type": "content_block_start", "index": i, "content_block": emptyBlockLike(block)})
		wr.event("content_block_delta", map[string]any{"type": "content_block_delta", "index": i, "delta": blockToDelta(block)})
		wr.event("content_block_stop", map[string]any{"type": "content_block_stop", "index": i})
	}

	delta := map[string]any{}
	for _, k := range []string{"stop_reason", "stop_sequence"} {
		if v, ok := restored[k]; ok {
			delta[k] = v
		}
	}
	wr.event("message_delta", map[string]any{"type": "message_delta", "delta": delta, "usage": restored["usage"]})
	wr.event("message_stop", map[string]any{"type": "message_stop"})
	return wr.err
}

func stripContent(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "content" {
			continue
		}
		out[k] = v
	}
	out["content"] = []any{}
	return out
}

func emptyBlockLike(block any) map[string]any {
	m, ok := block.(map[string]any)
	if !ok {
		return map[string]any{"type": "text", "text": ""}
	}
	switch m["type"] {
	case "tool_use":
		return map[string]any{"type": "tool_use", "id": m["id"], "name": m["name"], "input": map[string]any{}}
	default:
		return map[string]any{"type": "text", "text": ""}
	}
}

func blockToDelta(block any) map[string]any {
	m, ok := block.(map[string]any)
	if !ok {
		return map[string]any{"type": "text_delta", "text": ""}
	}
	switch m["type"] {
	case "tool_use":
		input, _ := json.Marshal(m["input"])
		return map[string]any{"type": "input_json_delta", "partial_json": string(input)}
	default:
		text, _ := m["text"].(string)
		return map[string]any{"type": "text_delta", "text": text}
	}
}

// sseWriter emits named SSE events as JSON data lines, tracking the first
// write error so callers can check it once at the end.
type sseWriter struct {
	w   http.ResponseWriter
	err error
}

func (sw *sseWriter) event(name string, payload map[string]any) {
	if sw.err != nil {
		return
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		sw.err = err
		return
	}
	_, sw.err = fmt.Fprintf(sw.w, "event: %s\ndata: %s\n\n", name, encoded)
	if f, ok := sw.w.(http.Flusher); ok {
		f.Flush()
	}
}
