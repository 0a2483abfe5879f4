package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"moltguard/internal/vault"
)

// handleOpenAI implements the /v1/chat/completions and /chat/completions
// routes (OpenAI-compatible adapter — also used by Kimi/Moonshot, which
// speak the same schema, via routing overrides in config).
func (s *Server) handleOpenAI(w http.ResponseWriter, r *http.Request) {
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

	reasonerFixup(raw)

	payload, needsRestoration, clientWantsStream, err := s.sanitizeRequest(sessionID, raw, injectOpenAISystem)
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

	resp, err := s.forward(r.Context(), r.URL.Path, "openai", payload, buildOpenAIUpstreamRequest)
	if err != nil {
		s.metrics.IncErrorsGatewayInternal()
		writeUpstreamError(w, err)
		return
	}

	mapping := s.vlt.SessionState(sessionID).Mapping()
	s.respondPerMode(w, resp, mapping, clientWantsStream, needsRestoration, reencodeOpenAISSE)
}

// reasonerFixup implements spec §4.5 step 7: models whose name contains
// "reasoner" or "-r1" reject non-user instruction roles, so system/developer
// messages are merged into a prefix of the first user message.
func reasonerFixup(body map[string]any) {
	model, _ := body["model"].(string)
	if !strings.Contains(model, "reasoner") && !strings.Contains(model, "-r1") {
		return
	}
	messages, ok := body["messages"].([]any)
	if !ok {
		return
	}

	var prefix strings.Builder
	kept := make([]any, 0, len(messages))
	firstUserIdx := -1
	for _, raw := range messages {
		m, ok := raw.(map[string]any)
		if !ok {
			kept = append(kept, raw)
			continue
		}
		role, _ := m["role"].(string)
		if role == "system" || role == "developer" {
			if text, ok := m["content"].(string); ok {
				prefix.WriteString(text)
				prefix.WriteString("\n\n")
			}
			continue
		}
		if role == "user" && firstUserIdx == -1 {
			firstUserIdx = len(kept)
		}
		kept = append(kept, m)
	}
	if prefix.Len() > 0 && firstUserIdx >= 0 {
		m := kept[firstUserIdx].(map[string]any)
		if text, ok := m["content"].(string); ok {
			m["content"] = prefix.String() + text
		}
	}
	body["messages"] = kept
}

// injectOpenAISystem unshifts a new system message ahead of the existing
// messages. For reasoner models (see reasonerFixup) the instruction is
// prefixed to the first user message instead, when its content is a string.
func injectOpenAISystem(body map[string]any) {
	messages, _ := body["messages"].([]any)
	if model, _ := body["model"].(string); strings.Contains(model, "reasoner") || strings.Contains(model, "-r1") {
		for _, raw := range messages {
			m, ok := raw.(map[string]any)
			if !ok || m["role"] != "user" {
				continue
			}
			if text, ok := m["content"].(string); ok {
				m["content"] = antiHallucinationInstruction + "\n\n" + text
				return
			}
			break
		}
	}
	sysMsg := map[string]any{"role": "system", "content": antiHallucinationInstruction}
	body["messages"] = append([]any{sysMsg}, messages...)
}

func buildOpenAIUpstreamRequest(ctx context.Context, baseURL, apiKey string, payload []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)
	return req, nil
}

// reencodeOpenAISSE buffers the forced-non-streaming chat.completion
// response, restores it, and re-emits a single chat.completion.chunk
// carrying the full (restored) message as one delta, followed by
// "data: [DONE]".
func reencodeOpenAISSE(w http.ResponseWriter, resp *http.Response, mapping vault.MappingTable, rest Restorer) error {
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

	chunk := map[string]any{
		"id":                 restored["id"],
		"object":             "chat.completion.chunk",
		"created":            restored["created"],
		"model":              restored["model"],
		"system_fingerprint": restored["system_fingerprint"],
		"usage":              restored["usage"],
	}

	choices, _ := restored["choices"].([]any)
	outChoices := make([]any, 0, len(choices))
	for i, c := range choices {
		choice, ok := c.(map[string]any)
		if !ok {
			continue
		}
		message, _ := choice["message"].(map[string]any)
		outChoices = append(outChoices, map[string]any{
			"index":         i,
			"delta":         toolAwareDelta(message),
			"finish_reason": choice["finish_reason"],
		})
	}
	chunk["choices"] = outChoices

	encoded, err := json.Marshal(chunk)
	if err != nil {
		return err
	}
	if _, err := fmt.Fprintf(w, "data: %s\n\n", encoded); err != nil {
		return err
	}
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}
	_, err = io.WriteString(w, "data: [DONE]\n\n")
	return err
}

// toolAwareDelta converts a choices[].message object into its delta form,
// assigning an index to each tool call entry per spec §6.
func toolAwareDelta(message map[string]any) map[string]any {
	if message == nil {
		return map[string]any{}
	}
	delta := make(map[string]any, len(message))
	for k, v := range message {
		delta[k] = v
	}
	if toolCalls, ok := message["tool_calls"].([]any); ok {
		indexed := make([]any, len(toolCalls))
		for i, tc := range toolCalls {
			call, ok := tc.(map[string]any)
			if !ok {
				indexed[i] = tc
				continue
			}
			out := make(map[string]any, len(call)+1)
			for k, v := range call {
				out[k] = v
			}
			out["index"] = i
			indexed[i] = out
		}
		delta["tool_calls"] = indexed
	}
	return delta
}
