// Package gateway implements the loopback HTTP listener that sits between
// an AI-assistant host and the configured upstream LLM backends, running
// every request body through the sanitizer before it leaves the machine and
// every response through the restorer before it reaches the host (spec.md
// §4.5, "ProxyPipeline").
//
// Routing uses gorilla/mux for clean {model} path-parameter extraction on
// the Gemini route; everything else follows the teacher proxy's shape:
// one Server wrapping a single tuned http.Transport and signal-driven
// graceful shutdown from cmd/gateway. Upstream response headers are not
// relayed; the gateway sets its own Content-Type on every response.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"golang.org/x/net/http/httpguts"

	"moltguard/internal/canary"
	"moltguard/internal/config"
	"moltguard/internal/logger"
	"moltguard/internal/metrics"
	"moltguard/internal/pii"
	"moltguard/internal/restorer"
	"moltguard/internal/sanitizer"
	"moltguard/internal/vault"
)

// Sanitizer is the subset of *sanitizer.Sanitizer the gateway needs.
type Sanitizer interface {
	Sanitize(sessionID string, value any) sanitizer.Result
}

// Restorer is the subset of *restorer.Restorer the gateway needs.
type Restorer interface {
	Restore(value any, mapping vault.MappingTable) any
	RestoreSSELine(line string, mapping vault.MappingTable) string
}

// Vault is the subset of *vault.Vault the gateway needs for session
// lifecycle management.
type Vault interface {
	CreateSession() string
	SessionState(sessionID string) *vault.SessionState
	DestroySession(sessionID string) int
}

// Server is the ProxyPipeline HTTP server.
type Server struct {
	cfg       *config.Config
	san       Sanitizer
	rest      Restorer
	vlt       Vault
	metrics   *metrics.Metrics
	log       *logger.Logger
	transport *http.Transport

	sharedSessionID string
}

// New builds a Server. A shared gateway session is created immediately so
// requests that don't carry (or fail to validate) a session header always
// have somewhere to land.
func New(cfg *config.Config, san Sanitizer, rest Restorer, vlt Vault, m *metrics.Metrics) *Server {
	return &Server{
		cfg:             cfg,
		san:             san,
		rest:            rest,
		vlt:             vlt,
		metrics:         m,
		log:             logger.New("GATEWAY", cfg.LogLevel),
		transport:       buildTransport(),
		sharedSessionID: vlt.CreateSession(),
	}
}

// SharedSessionID returns the session created at startup used whenever a
// request carries no valid x-moltguard-session header.
func (s *Server) SharedSessionID() string { return s.sharedSessionID }

// Shutdown destroys the shared session. Called by cmd/gateway after the
// HTTP server has drained in-flight requests, ahead of closing the vault.
func (s *Server) Shutdown() {
	s.vlt.DestroySession(s.sharedSessionID)
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/v1/messages", s.handleAnthropic).Methods(http.MethodPost)
	r.HandleFunc("/v1/chat/completions", s.handleOpenAI).Methods(http.MethodPost)
	r.HandleFunc("/chat/completions", s.handleOpenAI).Methods(http.MethodPost)
	r.HandleFunc("/v1/models/{model}:generateContent", s.handleGemini).Methods(http.MethodPost)
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.NotFoundHandler = http.HandlerFunc(s.handleNotFound)
	r.MethodNotAllowedHandler = http.HandlerFunc(s.handleMethodNotAllowed)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.log.Warnf("route", "404 %s %s", r.Method, r.URL.Path)
	writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
}

func (s *Server) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	s.log.Warnf("route", "405 %s %s", r.Method, r.URL.Path)
	writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
}

// sessionIDFor resolves the session id for a request: the x-moltguard-session
// header if present and a valid UUIDv4, else the shared gateway session.
func (s *Server) sessionIDFor(r *http.Request) string {
	h := r.Header.Get("x-moltguard-session")
	if h == "" || !httpguts.ValidHeaderFieldValue(h) {
		return s.sharedSessionID
	}
	id, err := uuid.Parse(h)
	if err != nil || id.Version() != 4 {
		return s.sharedSessionID
	}
	return h
}

// readBoundedBody reads the request body up to cfg.MaxBodyBytes. Returns
// false (and has already written the 413 response) if the body was too
// large.
func (s *Server) readBoundedBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxBodyBytes)
	body, err := io.ReadAll(r.Body)
	if err != nil {
		s.metrics.IncBodyTooLarge()
		writeJSON(w, http.StatusRequestEntityTooLarge, map[string]string{"error": "request body too large"})
		return nil, false
	}
	return body, true
}

func decodeJSONObject(body []byte) (map[string]any, error) {
	var v map[string]any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// sanitizeRequest runs the shared steps 4-9 of the per-request procedure:
// stream-flag bookkeeping, sanitization, stream-downgrade-on-restoration,
// anti-hallucination injection (via the caller-supplied inject hook, since
// the injection point is adapter-specific), and the canary check ahead of
// serialization.
func (s *Server) sanitizeRequest(sessionID string, raw map[string]any, inject func(body map[string]any)) (payload []byte, needsRestoration, clientWantsStream bool, err error) {
	clientWantsStream, _ = raw["stream"].(bool)

	before := s.vlt.SessionState(sessionID).Counters()
	result := s.san.Sanitize(sessionID, raw)
	sanitizedBody, ok := result.Sanitized.(map[string]any)
	if !ok {
		return nil, false, clientWantsStream, errors.New("gateway: sanitized body is not an object")
	}
	needsRestoration = result.RedactionCount > 0
	added := make(map[pii.Category]uint32, len(result.RedactionsByCategory))
	addedTotal := 0
	for cat, after := range result.RedactionsByCategory {
		if after > before[cat] {
			added[cat] = after - before[cat]
			addedTotal += int(added[cat])
		}
	}
	s.metrics.RecordRedactions(addedTotal, added)

	if needsRestoration && clientWantsStream {
		sanitizedBody["stream"] = false
		delete(sanitizedBody, "stream_options")
		s.metrics.IncStreamingDowngraded()
	}
	if needsRestoration && inject != nil {
		inject(sanitizedBody)
	}

	payload, err = json.Marshal(sanitizedBody)
	if err != nil {
		return nil, needsRestoration, clientWantsStream, err
	}
	if cerr := canary.AssertNoLeakedPII(string(payload)); cerr != nil {
		s.metrics.IncCanaryTrips()
		return nil, needsRestoration, clientWantsStream, cerr
	}
	return payload, needsRestoration, clientWantsStream, nil
}

// forward sends payload to the resolved backend for path, returning the raw
// *http.Response. Callers must close the body.
func (s *Server) forward(ctx context.Context, path, defaultBackend string, payload []byte, buildRequest func(ctx context.Context, baseURL, apiKey string, payload []byte) (*http.Request, error)) (*http.Response, error) {
	backend, name, ok := s.cfg.BackendFor(path, defaultBackend)
	if !ok {
		s.metrics.IncErrorsMissingBackend()
		return nil, fmt.Errorf("gateway: backend %q not configured", name)
	}

	timeout := time.Duration(s.cfg.UpstreamTimeoutS) * time.Second
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := buildRequest(ctx, backend.BaseURL, backend.APIKey, payload)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	resp, err := s.transport.RoundTrip(req)
	s.metrics.RecordUpstreamLatency(time.Since(start))
	if err != nil {
		s.metrics.IncErrorsUpstream()
		return nil, err
	}
	if resp.StatusCode >= 300 {
		s.metrics.IncErrorsUpstream()
	}
	return resp, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeUpstreamError(w http.ResponseWriter, err error) {
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
}

// relayNonStreaming buffers resp's body, restores placeholders, and writes
// the re-serialized result to w with status 200 — streaming mode table row
// 1 ("Buffer upstream body, JSON-parse, restore, re-serialize, respond 200").
// Non-2xx and non-JSON upstream bodies are relayed verbatim with their
// status code.
func (s *Server) relayNonStreaming(w http.ResponseWriter, resp *http.Response, mapping vault.MappingTable) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		s.metrics.IncErrorsGatewayInternal()
		writeUpstreamError(w, err)
		return
	}
	if resp.StatusCode >= 300 {
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(body)
		return
	}

	var decoded any
	if err := json.Unmarshal(body, &decoded); err != nil {
		// Not JSON (unexpected upstream content) — relay unchanged.
		w.WriteHeader(resp.StatusCode)
		_, _ = w.Write(body)
		return
	}
	restored := s.rest.Restore(decoded, mapping)
	encoded, err := json.Marshal(restored)
	if err != nil {
		s.metrics.IncErrorsGatewayInternal()
		writeUpstreamError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(encoded)
}

// relayLineRestoredSSE implements streaming mode table row 2: the client
// asked to stream and the session needed no restoration, so the upstream
// SSE body is relayed line by line with RestoreSSELine applied (a no-op on
// mapping-free lines, but kept uniform so the gateway never special-cases
// an empty mapping).
func (s *Server) relayLineRestoredSSE(w http.ResponseWriter, resp *http.Response, mapping vault.MappingTable) {
	defer resp.Body.Close()
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(resp.StatusCode)
	if err := relaySSELineRestored(w, resp.Body, mapping, s.rest); err != nil {
		s.log.Warnf("sse_relay", "session=%s err=%v", "-", err)
	}
}
