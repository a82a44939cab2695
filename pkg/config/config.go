// Package config loads moex settings from a YAML file and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all moex configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Auth      AuthConfig      `yaml:"auth"`
	LLM       LLMConfig       `yaml:"llm"`
	Tone      ToneConfig      `yaml:"tone"`
	Retrieval RetrievalConfig `yaml:"retrieval"`
	Upload    UploadConfig    `yaml:"upload"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Trace     TraceConfig     `yaml:"trace"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr         string   `yaml:"addr"`
	CookieSecure bool     `yaml:"cookie_secure"`
	AdminToken   string   `yaml:"admin_token"`
	CORSOrigins  []string `yaml:"cors_origins"`
}

// StoreConfig selects the SQLite driver and database file.
type StoreConfig struct {
	Driver string `yaml:"driver"` // "sqlite" (modernc) or "sqlite3" (mattn, cgo builds)
	Path   string `yaml:"path"`
}

// AuthConfig configures identity and trust sessions.
type AuthConfig struct {
	TrustDays   int  `yaml:"trust_days"`
	AllowGuests bool `yaml:"allow_guests"`
}

// LLMConfig configures the text generation collaborator.
type LLMConfig struct {
	Provider    string  `yaml:"provider"` // openai, gemini, ollama
	APIKey      string  `yaml:"api_key"`
	BaseURL     string  `yaml:"base_url"`
	Model       string  `yaml:"model"`
	Temperature float64 `yaml:"temperature"`
	MaxTokens   int     `yaml:"max_tokens"`
	Retries     int     `yaml:"retries"`
	Timeout     string  `yaml:"timeout"`
}

// ToneConfig configures the humor envelope.
type ToneConfig struct {
	DefaultLevel string `yaml:"default_level"`
}

// RetrievalConfig configures lexical retrieval.
type RetrievalConfig struct {
	TopK   int `yaml:"top_k"`
	Window int `yaml:"window"`
}

// UploadConfig configures document slicing.
type UploadConfig struct {
	ChunkSize int `yaml:"chunk_size"`
}

// LoggingConfig configures zap.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// MetricsConfig toggles Prometheus collection.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// TraceConfig configures operation trace export. An empty File disables export.
type TraceConfig struct {
	File string `yaml:"file"`
}

// ValidProviders lists the supported generation backends.
var ValidProviders = []string{"openai", "gemini", "ollama"}

// Default returns a Config with default values.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:         ":8000",
			CookieSecure: true,
			CORSOrigins:  []string{"*"},
		},
		Store: StoreConfig{
			Driver: "sqlite",
			Path:   "moex.db",
		},
		Auth: AuthConfig{
			TrustDays:   14,
			AllowGuests: true,
		},
		LLM: LLMConfig{
			Provider:    "openai",
			Model:       "gpt-4o-mini",
			Temperature: 0.4,
			MaxTokens:   400,
			Retries:     3,
			Timeout:     "30s",
		},
		Tone: ToneConfig{
			DefaultLevel: "playful",
		},
		Retrieval: RetrievalConfig{
			TopK:   4,
			Window: 500,
		},
		Upload: UploadConfig{
			ChunkSize: 1800,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Metrics: MetricsConfig{
			Enabled: true,
		},
	}
}

// Load loads configuration from a YAML file, then applies environment
// overrides. A missing file yields the defaults. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
		case err != nil:
			return nil, fmt.Errorf("failed to read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config: %w", err)
			}
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create config directory: %w", err)
		}
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides. Malformed numeric
// or boolean values are ignored and the file/default value stays.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("MOEX_ADDR"); v != "" {
		c.Server.Addr = v
	}
	envBool("MOEX_COOKIE_SECURE", &c.Server.CookieSecure)
	if v := os.Getenv("MOEX_ADMIN_TOKEN"); v != "" {
		c.Server.AdminToken = v
	}
	if v := os.Getenv("MOEX_CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	if v := os.Getenv("MOEX_DB_DRIVER"); v != "" {
		c.Store.Driver = v
	}
	if v := os.Getenv("MOEX_DB"); v != "" {
		c.Store.Path = v
	}

	envInt("MOEX_TRUST_DAYS", &c.Auth.TrustDays)
	envBool("ALLOW_GUESTS", &c.Auth.AllowGuests)
	envBool("MOEX_ALLOW_GUESTS", &c.Auth.AllowGuests)

	if v := os.Getenv("MOEX_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	// API key follows the selected provider.
	switch c.LLM.Provider {
	case "gemini":
		if key := os.Getenv("GEMINI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	case "openai":
		if key := os.Getenv("OPENAI_API_KEY"); key != "" {
			c.LLM.APIKey = key
		}
	}
	if v := os.Getenv("OLLAMA_HOST"); v != "" && c.LLM.Provider == "ollama" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("MOEX_LLM_BASE_URL"); v != "" {
		c.LLM.BaseURL = v
	}
	if v := os.Getenv("OPENAI_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("MOEX_MODEL"); v != "" {
		c.LLM.Model = v
	}
	envFloat("OPENAI_TEMPERATURE", &c.LLM.Temperature)
	envFloat("MOEX_TEMPERATURE", &c.LLM.Temperature)
	envInt("MOEX_MAX_TOKENS", &c.LLM.MaxTokens)
	envInt("MOEX_RETRIES", &c.LLM.Retries)
	if v := os.Getenv("MOEX_TIMEOUT"); v != "" {
		c.LLM.Timeout = v
	}

	if v := os.Getenv("MOEX_VOICE"); v != "" {
		c.Tone.DefaultLevel = v
	}

	if v := os.Getenv("MOEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
	envBool("MOEX_METRICS", &c.Metrics.Enabled)
	if v := os.Getenv("MOEX_TRACE_FILE"); v != "" {
		c.Trace.File = v
	}
}

func envBool(name string, dst *bool) {
	if v := os.Getenv(name); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func envInt(name string, dst *int) {
	if v := os.Getenv(name); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(name string, dst *float64) {
	if v := os.Getenv(name); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// GetLLMTimeout returns the per-attempt generation timeout.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil || d <= 0 {
		return 30 * time.Second
	}
	return d
}

// TrustDuration returns how long a verified session stays trusted.
func (c *Config) TrustDuration() time.Duration {
	return time.Duration(c.Auth.TrustDays) * 24 * time.Hour
}

// Validate checks the configuration for values moex cannot run with.
// A missing API key is not an error here; the generator reports it on use.
func (c *Config) Validate() error {
	validProvider := false
	for _, p := range ValidProviders {
		if c.LLM.Provider == p {
			validProvider = true
			break
		}
	}
	if !validProvider {
		return fmt.Errorf("invalid LLM provider: %s (valid: %v)", c.LLM.Provider, ValidProviders)
	}

	if c.Store.Driver != "sqlite" && c.Store.Driver != "sqlite3" {
		return fmt.Errorf("invalid store driver: %s (valid: sqlite, sqlite3)", c.Store.Driver)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path must not be empty")
	}
	if c.Auth.TrustDays <= 0 {
		return fmt.Errorf("trust_days must be positive, got %d", c.Auth.TrustDays)
	}
	if c.Tone.DefaultLevel != "playful" && c.Tone.DefaultLevel != "sharp" {
		return fmt.Errorf("invalid default tone level: %s (valid: playful, sharp)", c.Tone.DefaultLevel)
	}
	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2, got %v", c.LLM.Temperature)
	}
	if c.LLM.Retries < 0 {
		return fmt.Errorf("retries must not be negative, got %d", c.LLM.Retries)
	}
	if _, err := time.ParseDuration(c.LLM.Timeout); err != nil {
		return fmt.Errorf("invalid llm timeout %q: %w", c.LLM.Timeout, err)
	}
	if c.Retrieval.TopK <= 0 || c.Retrieval.Window <= 0 {
		return fmt.Errorf("retrieval top_k and window must be positive")
	}
	if c.Upload.ChunkSize <= 0 {
		return fmt.Errorf("upload chunk_size must be positive, got %d", c.Upload.ChunkSize)
	}

	return nil
}
