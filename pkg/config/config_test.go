package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.HTTPPort != 8080 {
		t.Errorf("expected HTTP port 8080, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Server.ReadTimeout != 30*time.Second {
		t.Errorf("expected 30s read timeout, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.MaxUploadBytes != 32<<20 {
		t.Errorf("expected 32 MiB upload cap, got %d", cfg.Server.MaxUploadBytes)
	}
	if cfg.Provider.Endpoint != "https://api.openai.com/v1" {
		t.Errorf("got provider endpoint %q", cfg.Provider.Endpoint)
	}
	if cfg.Provider.APIKey != "" {
		t.Error("API key should be empty by default, not validated at startup")
	}
	if cfg.Transcript.Backend != "memory" {
		t.Errorf("expected memory transcript backend, got %q", cfg.Transcript.Backend)
	}
	if cfg.Feedback.Backend != "memory" {
		t.Errorf("expected memory feedback backend, got %q", cfg.Feedback.Backend)
	}
	if cfg.Execution.Timeout != 10*time.Second {
		t.Errorf("expected 10s execution timeout, got %v", cfg.Execution.Timeout)
	}
	if cfg.Telemetry.Enabled {
		t.Error("telemetry should be disabled by default")
	}
}

func TestLoadConfigFromFile_YAML(t *testing.T) {
	content := `
server:
  http_port: 9090
  allowed_origins:
    - http://localhost:3000
provider:
  model: llama3
  temperature: 0.2
transcript:
  backend: redis
  redis_addr: localhost:6379
execution:
  timeout: 5s
`
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile failed: %v", err)
	}

	if cfg.Server.HTTPPort != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.Server.HTTPPort)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "http://localhost:3000" {
		t.Errorf("got allowed origins %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Provider.Model != "llama3" {
		t.Errorf("got model %q", cfg.Provider.Model)
	}
	if cfg.Transcript.Backend != "redis" || cfg.Transcript.RedisAddr != "localhost:6379" {
		t.Errorf("got transcript config %+v", cfg.Transcript)
	}
	if cfg.Execution.Timeout != 5*time.Second {
		t.Errorf("expected 5s execution timeout, got %v", cfg.Execution.Timeout)
	}
	// Unset sections keep defaults
	if cfg.Execution.MaxSteps != 10_000_000 {
		t.Errorf("expected default max steps, got %d", cfg.Execution.MaxSteps)
	}
}

func TestLoadConfigFromFile_ExpandsEnv(t *testing.T) {
	t.Setenv("TEST_TABLECHAT_KEY", "sk-test-123")
	content := `
provider:
  api_key: ${TEST_TABLECHAT_KEY}
`
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := LoadConfigFromFile(path)
	if err != nil {
		t.Fatalf("LoadConfigFromFile failed: %v", err)
	}
	if cfg.Provider.APIKey != "sk-test-123" {
		t.Errorf("env not expanded: %q", cfg.Provider.APIKey)
	}
}

func TestLoadConfigFromFile_Missing(t *testing.T) {
	if _, err := LoadConfigFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("expected an error for a missing file")
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	t.Setenv("TABLECHAT_HTTP_PORT", "7070")
	t.Setenv("OPENAI_API_KEY", "sk-env")
	t.Setenv("TABLECHAT_REDIS_ADDR", "redis:6379")

	cfg := DefaultConfig()
	cfg.ApplyEnvOverrides()

	if cfg.Server.HTTPPort != 7070 {
		t.Errorf("expected port 7070, got %d", cfg.Server.HTTPPort)
	}
	if cfg.Provider.APIKey != "sk-env" {
		t.Errorf("got API key %q", cfg.Provider.APIKey)
	}
	if cfg.Transcript.Backend != "redis" || cfg.Transcript.RedisAddr != "redis:6379" {
		t.Errorf("redis override not applied: %+v", cfg.Transcript)
	}
}
