package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, ":8000", cfg.Server.Addr)
	assert.True(t, cfg.Server.CookieSecure)
	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, 14, cfg.Auth.TrustDays)
	assert.True(t, cfg.Auth.AllowGuests)
	assert.Equal(t, "gpt-4o-mini", cfg.LLM.Model)
	assert.InDelta(t, 0.4, cfg.LLM.Temperature, 1e-9)
	assert.Equal(t, 4, cfg.Retrieval.TopK)
	assert.Equal(t, 500, cfg.Retrieval.Window)
	assert.Equal(t, 1800, cfg.Upload.ChunkSize)
	assert.Equal(t, 14*24*time.Hour, cfg.TrustDuration())
	require.NoError(t, cfg.Validate())
}

func TestLoad_MissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Store.Path, cfg.Store.Path)
}

func TestLoad_YAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "moex.yaml")
	data := []byte(`
server:
  addr: ":9090"
auth:
  trust_days: 7
  allow_guests: false
llm:
  provider: ollama
  model: llama3
  timeout: 5s
`)
	require.NoError(t, os.WriteFile(path, data, 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 7, cfg.Auth.TrustDays)
	assert.False(t, cfg.Auth.AllowGuests)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3", cfg.LLM.Model)
	assert.Equal(t, 5*time.Second, cfg.GetLLMTimeout())
	// Untouched keys keep their defaults.
	assert.Equal(t, 400, cfg.LLM.MaxTokens)
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: [unterminated"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Run("env wins over file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "moex.yaml")
		require.NoError(t, os.WriteFile(path, []byte("store:\n  path: file.db\n"), 0o600))
		t.Setenv("MOEX_DB", "env.db")

		cfg, err := Load(path)
		require.NoError(t, err)
		assert.Equal(t, "env.db", cfg.Store.Path)
	})

	t.Run("ALLOW_GUESTS disables guests", func(t *testing.T) {
		t.Setenv("ALLOW_GUESTS", "false")

		cfg := Default()
		cfg.applyEnvOverrides()
		assert.False(t, cfg.Auth.AllowGuests)
	})

	t.Run("malformed values are ignored", func(t *testing.T) {
		t.Setenv("MOEX_TRUST_DAYS", "fortnight")
		t.Setenv("MOEX_TEMPERATURE", "warm")

		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, 14, cfg.Auth.TrustDays)
		assert.InDelta(t, 0.4, cfg.LLM.Temperature, 1e-9)
	})

	t.Run("api key follows provider", func(t *testing.T) {
		t.Setenv("MOEX_PROVIDER", "gemini")
		t.Setenv("OPENAI_API_KEY", "oa-key")
		t.Setenv("GEMINI_API_KEY", "gem-key")

		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, "gemini", cfg.LLM.Provider)
		assert.Equal(t, "gem-key", cfg.LLM.APIKey)
	})

	t.Run("OLLAMA_HOST only for ollama", func(t *testing.T) {
		t.Setenv("OLLAMA_HOST", "http://gpu:11434")

		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Empty(t, cfg.LLM.BaseURL)

		cfg.LLM.Provider = "ollama"
		cfg.applyEnvOverrides()
		assert.Equal(t, "http://gpu:11434", cfg.LLM.BaseURL)
	})

	t.Run("CORS origins list", func(t *testing.T) {
		t.Setenv("MOEX_CORS_ORIGINS", "https://a.example, https://b.example,")

		cfg := Default()
		cfg.applyEnvOverrides()
		assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	})
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"provider", func(c *Config) { c.LLM.Provider = "anthropic" }},
		{"driver", func(c *Config) { c.Store.Driver = "postgres" }},
		{"trust days", func(c *Config) { c.Auth.TrustDays = 0 }},
		{"tone level", func(c *Config) { c.Tone.DefaultLevel = "grumpy" }},
		{"temperature", func(c *Config) { c.LLM.Temperature = 3 }},
		{"timeout", func(c *Config) { c.LLM.Timeout = "soon" }},
		{"top k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"chunk size", func(c *Config) { c.Upload.ChunkSize = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSave_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "moex.yaml")
	cfg := Default()
	cfg.Server.AdminToken = "s3cret"

	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", loaded.Server.AdminToken)
}
