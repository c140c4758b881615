package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()
	assert.Equal(t, 18790, cfg.Server.Port)
	assert.Equal(t, "loopback", cfg.Server.Bind)
	assert.Equal(t, 10, cfg.Server.Workers)
	assert.Equal(t, "token", cfg.Server.Auth.Mode)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "redis", cfg.Session.Store)
	assert.Equal(t, 3600, cfg.Session.TTLSeconds)
	assert.Equal(t, 86400, cfg.Session.ArchiveTTLSeconds)
	assert.Equal(t, 100, cfg.RateLimit.MaxRequests)
	assert.Equal(t, 60, cfg.RateLimit.WindowSeconds)
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 1000, cfg.Ingest.ChunkSize)
	assert.Equal(t, 200, cfg.Ingest.ChunkOverlap)
	assert.Equal(t, []string{".txt", ".md"}, cfg.Ingest.AllowedExtensions)
	assert.Equal(t, "heuristic", cfg.Budget.Estimator)
}

// A missing config file is not an error; the server runs on defaults.
func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load("/nonexistent/path/config.yaml")
	require.NoError(t, err)
	assert.Equal(t, 18790, cfg.Server.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadValidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	yaml := `
server:
  port: 9999
  bind: lan
  workers: 4
  auth:
    mode: password
    password: secret123
logging:
  level: debug
  style: json
redis:
  addr: redis.internal:6380
session:
  ttlSeconds: 120
  archiveTtlSeconds: 600
rateLimit:
  maxRequests: 3
  windowSeconds: 60
llm:
  provider: ollama
  model: llama3.2
  baseUrl: http://localhost:11434
vector:
  provider: memory
ingest:
  allowedExtensions: [".txt"]
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "lan", cfg.Server.Bind)
	assert.Equal(t, 4, cfg.Server.Workers)
	assert.Equal(t, "password", cfg.Server.Auth.Mode)
	assert.Equal(t, "secret123", cfg.Server.Auth.Password)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "json", cfg.Logging.Style)
	assert.Equal(t, "redis.internal:6380", cfg.Redis.Addr)
	assert.Equal(t, 120, cfg.Session.TTLSeconds)
	assert.Equal(t, 600, cfg.Session.ArchiveTTLSeconds)
	assert.Equal(t, 3, cfg.RateLimit.MaxRequests)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
	assert.Equal(t, "llama3.2", cfg.LLM.Model)
	assert.Equal(t, "memory", cfg.Vector.Provider)
	assert.Equal(t, []string{".txt"}, cfg.Ingest.AllowedExtensions)

	// Sections the file never mentions keep their defaults.
	assert.Equal(t, 5, cfg.Retrieval.TopK)
	assert.Equal(t, 64, cfg.Stream.ChunkSize)
}

func TestLoadInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse config")
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("DOCENT_SERVER_PORT", "12345")
	t.Setenv("DOCENT_LOG_LEVEL", "TRACE")
	t.Setenv("DOCENT_REDIS_ADDR", "10.0.0.5:6379")

	cfg, err := Load("/nonexistent/config.yaml")
	require.NoError(t, err)

	assert.Equal(t, 12345, cfg.Server.Port)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "10.0.0.5:6379", cfg.Redis.Addr)
}

func TestExpandSensitiveFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	t.Setenv("TEST_OPENAI_KEY", "sk-test-123")

	yaml := `
llm:
  provider: openai
  apiKey: ${TEST_OPENAI_KEY}
agent:
  github:
    token: ${UNSET_VAR_FOR_TEST}
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "sk-test-123", cfg.LLM.APIKey)
	// unset variables are left as-is
	assert.Equal(t, "${UNSET_VAR_FOR_TEST}", cfg.Agent.GitHub.Token)
}

// Follows the same raw round trip `docent config set` performs: load
// the tree, edit one path, save, reload.
func TestRawEditRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	raw, err := LoadRaw(path)
	require.NoError(t, err)
	assert.Empty(t, raw, "missing file loads as an empty tree")

	SetValueAtPath(raw, []string{"server", "port"}, 9999)
	SetValueAtPath(raw, []string{"llm", "provider"}, "ollama")
	require.NoError(t, SaveRaw(path, raw))

	reloaded, err := LoadRaw(path)
	require.NoError(t, err)

	port, ok := GetValueAtPath(reloaded, []string{"server", "port"})
	require.True(t, ok)
	assert.Equal(t, 9999, port)
	provider, ok := GetValueAtPath(reloaded, []string{"llm", "provider"})
	require.True(t, ok)
	assert.Equal(t, "ollama", provider)

	// The typed loader reads the same file.
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "ollama", cfg.LLM.Provider)
}

func TestLoadRawRejectsInvalidYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("{{invalid yaml"), 0o600))

	_, err := LoadRaw(path)
	require.Error(t, err)
}
