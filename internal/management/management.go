// Package management provides a lightweight HTTP API for runtime inspection
// of the running gateway.
//
// Endpoints:
//
//	GET /health   - liveness probe
//	GET /status   - uptime and configuration summary JSON
//	GET /metrics  - Prometheus scrape endpoint
package management

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"moltguard/internal/config"
	"moltguard/internal/metrics"
)

// Server is the management API server.
type Server struct {
	cfg       *config.Config
	startTime time.Time
	token     string // bearer token for auth; empty = no auth
	metrics   *metrics.Metrics
}

// New creates a management server bound to cfg's management port and
// bearer token.
func New(cfg *config.Config, m *metrics.Metrics) *Server {
	s := &Server{
		cfg:       cfg,
		startTime: time.Now(),
		token:     cfg.ManagementToken,
		metrics:   m,
	}
	if s.token != "" {
		log.Printf("[MANAGEMENT] Bearer token authentication enabled")
	}
	return s
}

// Handler returns the HTTP handler for the management API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/status", s.handleStatus)
	mux.Handle("/metrics", s.metrics.Handler())
	return s.authMiddleware(mux)
}

// authMiddleware checks for a valid Bearer token if one is configured.
// /health is always open so liveness probes never need a token.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.token == "" || r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		auth := r.Header.Get("Authorization")
		const prefix = "Bearer "
		if !strings.HasPrefix(auth, prefix) ||
			subtle.ConstantTimeCompare([]byte(strings.TrimSpace(auth[len(prefix):])), []byte(s.token)) != 1 {
			log.Printf("[MANAGEMENT] Unauthorized access attempt from %s to %s", r.RemoteAddr, r.URL.Path)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	type response struct {
		Status         string   `json:"status"`
		Uptime         string   `json:"uptime"`
		Port           int      `json:"port"`
		ConfiguredFor  []string `json:"configuredBackends"`
		VaultDir       string   `json:"vaultDir"`
		SessionTTLSecs int      `json:"sessionTtlSeconds"`
	}

	backends := make([]string, 0, len(s.cfg.Backends))
	for name := range s.cfg.Backends {
		backends = append(backends, name)
	}

	resp := response{
		Status:         "running",
		Uptime:         time.Since(s.startTime).Round(time.Second).String(),
		Port:           s.cfg.Port,
		ConfiguredFor:  backends,
		VaultDir:       s.cfg.VaultDir,
		SessionTTLSecs: s.cfg.SessionTTLS,
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[MANAGEMENT] JSON encode error: %v", err)
	}
}

// ListenAndServe starts the management HTTP server on 127.0.0.1.
func (s *Server) ListenAndServe() error {
	addr := fmt.Sprintf("127.0.0.1:%d", s.cfg.ManagementPort)
	log.Printf("[MANAGEMENT] Listening on %s", addr)
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}
