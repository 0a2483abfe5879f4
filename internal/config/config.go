// Package config loads and holds all gateway configuration.
// Settings are layered: defaults → config file (argv[1] or
// ~/.moltguard/gateway.json, JSON or YAML) → environment variables
// (env vars win).
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"moltguard/internal/logger"
)

// Backend holds the upstream base URL and credential for one LLM provider.
type Backend struct {
	BaseURL string `json:"baseUrl" yaml:"baseUrl"`
	APIKey  string `json:"apiKey" yaml:"apiKey"`
}

// Config holds the full gateway configuration (spec.md §6).
type Config struct {
	Port     int                `json:"port" yaml:"port"`
	Backends map[string]Backend `json:"backends" yaml:"backends"`
	Routing  map[string]string  `json:"routing" yaml:"routing"`

	ManagementPort int    `json:"managementPort" yaml:"managementPort"`
	BindAddress    string `json:"bindAddress" yaml:"bindAddress"`
	LogLevel       string `json:"logLevel" yaml:"logLevel"`

	MaxBodyBytes     int64 `json:"maxBodyBytes" yaml:"maxBodyBytes"`
	UpstreamTimeoutS int   `json:"upstreamTimeoutSeconds" yaml:"upstreamTimeoutSeconds"`

	// VaultDir is the directory holding token-vault.db and its lock file
	// (default ~/.moltguard). Directory mode 0700, file mode 0600.
	VaultDir     string `json:"vaultDir" yaml:"vaultDir"`
	MaxEntries   int    `json:"maxEntries" yaml:"maxEntries"`
	SessionTTLS  int    `json:"sessionTTLSeconds" yaml:"sessionTTLSeconds"`
	PurgeEveryS  int    `json:"purgeEverySeconds" yaml:"purgeEverySeconds"`
	EphemeralSessions bool `json:"ephemeralSessions" yaml:"ephemeralSessions"`

	ManagementToken string `json:"managementToken" yaml:"managementToken"`
}

// Load returns config with defaults overridden by the config file (argv[1]
// or ~/.moltguard/gateway.json) and environment variables.
func Load(argv []string) *Config {
	cfg := defaults()

	path := configPath(argv)
	if path != "" {
		loadFile(cfg, path)
	}
	loadEnv(cfg)
	return cfg
}

func configPath(argv []string) string {
	if len(argv) > 1 && argv[1] != "" {
		return argv[1]
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".moltguard", "gateway.json")
}

func defaults() *Config {
	home, _ := os.UserHomeDir()
	vaultDir := filepath.Join(home, ".moltguard")
	return &Config{
		Port:             8900,
		Backends:         map[string]Backend{},
		Routing:          map[string]string{},
		ManagementPort:   8901,
		BindAddress:      "127.0.0.1",
		LogLevel:         "info",
		MaxBodyBytes:     16 * 1024 * 1024,
		UpstreamTimeoutS: 60,
		VaultDir:         vaultDir,
		MaxEntries:       10_000,
		SessionTTLS:      24 * 60 * 60,
		PurgeEveryS:      300,
	}
}

// loadFile loads JSON or YAML depending on the file extension; YAML is
// an operator convenience on top of the §6-documented JSON schema.
func loadFile(cfg *Config, path string) {
	data, err := os.ReadFile(path) //nolint:gosec // path is a controlled config file path, not user input
	if err != nil {
		return // file is optional
	}
	var parseErr error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		parseErr = yaml.Unmarshal(data, cfg)
	default:
		parseErr = json.Unmarshal(data, cfg)
	}
	log := logger.New("CONFIG", "info")
	if parseErr != nil {
		log.Warnf("load_file", "could not parse %s: %v", path, parseErr)
		return
	}
	log.Infof("load_file", "loaded %s", path)
}

func loadEnv(cfg *Config) {
	if v := os.Getenv("MOLTGUARD_GATEWAY_PORT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Port = n
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("MANAGEMENT_TOKEN"); v != "" {
		cfg.ManagementToken = v
	}

	loadBackendEnv(cfg, "anthropic", "ANTHROPIC_API_KEY", "ANTHROPIC_BASE_URL")
	loadBackendEnv(cfg, "openai", "OPENAI_API_KEY", "OPENAI_BASE_URL")
	loadBackendEnvFallback(cfg, "kimi", []string{"KIMI_API_KEY", "MOONSHOT_API_KEY"}, "KIMI_BASE_URL")
	loadBackendEnvFallback(cfg, "gemini", []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}, "GEMINI_BASE_URL")
}

func loadBackendEnv(cfg *Config, name, keyEnv, urlEnv string) {
	loadBackendEnvFallback(cfg, name, []string{keyEnv}, urlEnv)
}

func loadBackendEnvFallback(cfg *Config, name string, keyEnvs []string, urlEnv string) {
	var key string
	for _, e := range keyEnvs {
		if v := os.Getenv(e); v != "" {
			key = v
			break
		}
	}
	url := os.Getenv(urlEnv)
	if key == "" && url == "" {
		return
	}
	b := cfg.Backends[name]
	if key != "" {
		b.APIKey = key
	}
	if url != "" {
		b.BaseURL = url
	}
	cfg.Backends[name] = b
}

// Validate checks the loaded configuration for startup-fatal errors: an
// out-of-range port, or a backend that sets only one of baseUrl and apiKey.
// Missing backends are NOT fatal here (§6: "missing
// backends fail on their routes with 500, not at startup").
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("config: port %d out of range [1,65535]", c.Port)
	}
	for name, b := range c.Backends {
		if (b.BaseURL == "") != (b.APIKey == "") {
			return fmt.Errorf("config: backend %q must set both baseUrl and apiKey, or neither", name)
		}
	}
	return nil
}

// BackendFor resolves the backend for an incoming request path, honoring any
// routing override whose key is a prefix of path; falls back to
// defaultBackend (the adapter's natural provider) otherwise.
func (c *Config) BackendFor(path, defaultBackend string) (Backend, string, bool) {
	name := defaultBackend
	for prefix, override := range c.Routing {
		if strings.HasPrefix(path, prefix) {
			name = override
			break
		}
	}
	b, ok := c.Backends[name]
	return b, name, ok
}
