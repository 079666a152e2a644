package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the main configuration for the tablechat service.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Provider   ProviderConfig   `yaml:"provider"`
	Transcript TranscriptConfig `yaml:"transcript"`
	Feedback   FeedbackConfig   `yaml:"feedback"`
	Execution  ExecutionConfig  `yaml:"execution"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
}

// ServerConfig configures the HTTP server
type ServerConfig struct {
	HTTPPort       int           `yaml:"http_port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	AllowedOrigins []string      `yaml:"allowed_origins"` // CORS
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

// ProviderConfig configures the model provider.
// The API key is deliberately not validated at startup: a missing key
// makes generation calls fail, not the process.
type ProviderConfig struct {
	Endpoint    string        `yaml:"endpoint"`
	APIKey      string        `yaml:"api_key"`
	Model       string        `yaml:"model"`
	Temperature float64       `yaml:"temperature"`
	MaxTokens   int           `yaml:"max_tokens"`
	Timeout     time.Duration `yaml:"timeout"`
}

// TranscriptConfig configures the session transcript store
type TranscriptConfig struct {
	Backend       string        `yaml:"backend"` // "memory" or "redis"
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	RedisTTL      time.Duration `yaml:"redis_ttl"`
}

// FeedbackConfig configures the feedback store
type FeedbackConfig struct {
	Backend string `yaml:"backend"` // "memory" or "postgres"
	DSN     string `yaml:"dsn"`     // For Postgres
}

// ExecutionConfig bounds snippet execution
type ExecutionConfig struct {
	Timeout  time.Duration `yaml:"timeout"`
	MaxSteps uint64        `yaml:"max_steps"`
}

// TelemetryConfig configures OpenTelemetry tracing
type TelemetryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// LoadConfigFromFile loads configuration from a YAML file at the specified path.
func LoadConfigFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g. ${OPENAI_API_KEY}) before parsing YAML
	expanded := os.ExpandEnv(string(data))

	config := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), config); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort:       8080,
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   60 * time.Second,
			IdleTimeout:    120 * time.Second,
			AllowedOrigins: []string{"*"},
			MaxUploadBytes: 32 << 20, // 32 MiB
		},
		Provider: ProviderConfig{
			Endpoint:    "https://api.openai.com/v1",
			Model:       "gpt-4o-mini",
			Temperature: 0,
			MaxTokens:   1024,
			Timeout:     60 * time.Second,
		},
		Transcript: TranscriptConfig{
			Backend:  "memory",
			RedisTTL: 24 * time.Hour,
		},
		Feedback: FeedbackConfig{
			Backend: "memory",
		},
		Execution: ExecutionConfig{
			Timeout:  10 * time.Second,
			MaxSteps: 10_000_000,
		},
		Telemetry: TelemetryConfig{
			Enabled:  false,
			Endpoint: "localhost:4317",
		},
	}
}

// ApplyEnvOverrides overlays environment variables on top of the loaded
// configuration. Unset variables leave the existing values untouched.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("TABLECHAT_HTTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.HTTPPort = port
		}
	}
	if v := os.Getenv("OPENAI_API_BASE"); v != "" {
		c.Provider.Endpoint = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" {
		c.Provider.APIKey = v
	}
	if v := os.Getenv("TABLECHAT_MODEL"); v != "" {
		c.Provider.Model = v
	}
	if v := os.Getenv("TABLECHAT_REDIS_ADDR"); v != "" {
		c.Transcript.Backend = "redis"
		c.Transcript.RedisAddr = v
	}
	if v := os.Getenv("TABLECHAT_FEEDBACK_DSN"); v != "" {
		c.Feedback.Backend = "postgres"
		c.Feedback.DSN = v
	}
	if v := os.Getenv("TABLECHAT_OTEL_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = v
	}
}
