// Command gateway is the MoltGuard sanitizing gateway.
//
// It listens on a loopback address and relays requests to the configured
// Anthropic, OpenAI-compatible, and Gemini backends, redacting PII from
// every outbound request body and restoring it in every inbound response
// (spec.md §4.5, "ProxyPipeline"). A companion management server exposes
// health, status, and Prometheus metrics.
//
// Usage:
//
//	./gateway [config-path]
//
// config-path defaults to ~/.moltguard/gateway.json. Environment variables
// documented in spec.md §6 (ANTHROPIC_API_KEY, OPENAI_API_KEY, ...) are
// applied on top of the file and win over it.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"moltguard/internal/config"
	"moltguard/internal/detector"
	"moltguard/internal/gateway"
	"moltguard/internal/logger"
	"moltguard/internal/management"
	"moltguard/internal/metrics"
	"moltguard/internal/restorer"
	"moltguard/internal/sanitizer"
	"moltguard/internal/vault"
)

func main() {
	cfg := config.Load(os.Args)
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "moltguard: %v\n", err)
		os.Exit(1)
	}

	log := logger.New("MAIN", cfg.LogLevel)
	m := metrics.New()

	vlt, err := vault.Open(vault.Options{
		Dir:        cfg.VaultDir,
		MaxEntries: cfg.MaxEntries,
		TTL:        time.Duration(cfg.SessionTTLS) * time.Second,
		PurgeEvery: time.Duration(cfg.PurgeEveryS) * time.Second,
		Metrics:    m,
	})
	if err != nil {
		log.Fatalf("startup", "vault open failed: %v", err)
	}

	det := detector.New(detector.NewRuleBasedRecognizer())
	san := sanitizer.New(det, vlt)
	rest := restorer.New(log)

	gw := gateway.New(cfg, san, rest, vlt, m)

	mgmt := management.New(cfg, m)
	go func() {
		if err := mgmt.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("management", "fatal: %v", err)
		}
	}()

	addr := fmt.Sprintf("%s:%d", cfg.BindAddress, cfg.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           gw.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	printBanner(cfg, addr)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Info("shutdown", "draining connections")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warnf("shutdown", "http shutdown error: %v", err)
		}
		gw.Shutdown()
		if err := vlt.Close(); err != nil {
			log.Warnf("shutdown", "vault close error: %v", err)
		}
		os.Exit(0)
	}()

	log.Infof("startup", "listening on %s", addr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("startup", "fatal: %v", err)
	}
}

func printBanner(cfg *config.Config, addr string) {
	fmt.Printf(`
╔══════════════════════════════════════════════════════╗
║                  MoltGuard Gateway                    ║
╚══════════════════════════════════════════════════════╝
  Listening      : %s
  Management port: %d
  Vault directory: %s
  Session TTL    : %ds

  Point an assistant host at:
    http://%s/v1/messages           (Anthropic)
    http://%s/v1/chat/completions   (OpenAI-compatible)
    http://%s/v1/models/{model}:generateContent  (Gemini)

  Check status:
    curl http://127.0.0.1:%d/status
`, addr, cfg.ManagementPort, cfg.VaultDir, cfg.SessionTTLS, addr, addr, addr, cfg.ManagementPort)
}
