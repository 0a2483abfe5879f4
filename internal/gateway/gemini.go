package gateway

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
)

// handleGemini implements POST /v1/models/{model}:generateContent. Gemini's
// schema (contents[].parts[].text, top-level systemInstruction) has no
// natural "stream" sibling field to juggle and needs no mirroring of the
// reasoner fixup; anti-hallucination injection goes into systemInstruction.
func (s *Server) handleGemini(w http.ResponseWriter, r *http.Request) {
	s.metrics.IncRequestsTotal()
	sessionID := s.sessionIDFor(r)
	model := mux.Vars(r)["model"]

	body, ok := s.readBoundedBody(w, r)
	if !ok {
		return
	}
	raw, err := decodeJSONObject(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	payload, needsRestoration, clientWantsStream, err := s.sanitizeRequest(sessionID, raw, injectGeminiSystemInstruction)
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

	buildReq := func(ctx context.Context, baseURL, apiKey string, payload []byte) (*http.Request, error) {
		return buildGeminiUpstreamRequest(ctx, baseURL, apiKey, model, payload)
	}
	resp, err := s.forward(r.Context(), r.URL.Path, "gemini", payload, buildReq)
	if err != nil {
		s.metrics.IncErrorsGatewayInternal()
		writeUpstreamError(w, err)
		return
	}

	mapping := s.vlt.SessionState(sessionID).Mapping()
	// Gemini has no adapter-specific SSE re-encoding shape of its own in
	// this surface (its streaming variant is a separate upstream endpoint);
	// mirror the OpenAI re-encoding per spec §4.5 step 8's "may mirror
	// OpenAI behavior".
	s.respondPerMode(w, resp, mapping, clientWantsStream, needsRestoration, reencodeOpenAISSE)
}

func injectGeminiSystemInstruction(body map[string]any) {
	instruction := map[string]any{"parts": []any{map[string]any{"text": antiHallucinationInstruction}}}
	existing, ok := body["systemInstruction"].(map[string]any)
	if !ok {
		body["systemInstruction"] = instruction
		return
	}
	parts, _ := existing["parts"].([]any)
	existing["parts"] = append([]any{map[string]any{"text": antiHallucinationInstruction}}, parts...)
	body["systemInstruction"] = existing
}

func buildGeminiUpstreamRequest(ctx context.Context, baseURL, apiKey, model string, payload []byte) (*http.Request, error) {
	url := fmt.Sprintf("%s/v1/models/%s:generateContent?key=%s", baseURL, model, apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
