// Package config provides configuration management for the Perspective engine.
// It loads settings from environment variables with the PERSPECTIVE_ prefix
// and provides sensible defaults for all configuration options.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration settings for the Perspective service.
type Config struct {
	Server   ServerConfig
	Storage  StorageConfig
	LLM      LLMConfig
	Engine   EngineConfig
	Router   RouterConfig
	Security SecurityConfig
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    // Server port (default: 7171)
	Host string // Server host (default: 127.0.0.1)
}

// StorageConfig contains key-value store configuration.
type StorageConfig struct {
	StorageEngine string // Storage engine: sqlite, postgres, memory (default: sqlite)
	DataPath      string // Path to data directory for the sqlite backend (default: ./data)
	PostgresDSN   string // Connection string for the postgres backend
}

// LLMConfig contains generation provider configuration.
type LLMConfig struct {
	Provider        string // Generation provider: ollama, openai, anthropic (default: ollama)
	OllamaURL       string // Ollama API URL (default: http://localhost:11434)
	OllamaModel     string // Ollama model name (default: qwen2.5:7b)
	OpenAIAPIKey    string // OpenAI API key
	OpenAIModel     string // OpenAI model name (default: gpt-4o-mini)
	AnthropicAPIKey string // Anthropic API key
	AnthropicModel  string // Anthropic model name (default: claude-haiku-4-5-20251001)

	BatchSize        int           // Candidates requested per batch call (default: 50)
	FirstItemTimeout time.Duration // Budget for the first streamed candidate (default: 4s)
	BatchTimeout     time.Duration // Budget for the whole batch stream (default: 30s)
}

// EngineConfig contains orchestrator tuning knobs.
type EngineConfig struct {
	RefillThreshold int     // Pool size that triggers async refill (default: 5)
	NumWorkers      int     // Refill worker goroutines (default: 2)
	QueueSize       int     // Refill job queue capacity (default: 32)
	Epsilon         float64 // Bandit exploration probability (default: 0.15)
	MaxRetries      int     // Similarity-driven regeneration attempts (default: 3)
	ShutdownTimeout time.Duration // Worker drain budget on shutdown (default: 10s)
}

// RouterConfig contains routing configuration.
type RouterConfig struct {
	// WeightsPath is an optional YAML file overriding the built-in
	// intent→style weight tables. Watched for changes when set.
	WeightsPath string
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string // Security mode: development, production (default: development)
	APIToken     string // API authentication token
}

// LoadConfig loads configuration from environment variables with sensible
// defaults. All environment variables use the PERSPECTIVE_ prefix.
func LoadConfig() (*Config, error) {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("PERSPECTIVE_PORT", 7171),
			Host: getEnv("PERSPECTIVE_HOST", "127.0.0.1"),
		},
		Storage: StorageConfig{
			StorageEngine: getEnv("PERSPECTIVE_STORAGE_ENGINE", "sqlite"),
			DataPath:      getEnv("PERSPECTIVE_DATA_PATH", "./data"),
			PostgresDSN:   getEnv("PERSPECTIVE_POSTGRES_DSN", ""),
		},
		LLM: LLMConfig{
			Provider:         getEnv("PERSPECTIVE_LLM_PROVIDER", "ollama"),
			OllamaURL:        getEnv("PERSPECTIVE_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:      getEnv("PERSPECTIVE_OLLAMA_MODEL", "qwen2.5:7b"),
			OpenAIAPIKey:     getEnv("PERSPECTIVE_OPENAI_API_KEY", ""),
			OpenAIModel:      getEnv("PERSPECTIVE_OPENAI_MODEL", "gpt-4o-mini"),
			AnthropicAPIKey:  getEnv("PERSPECTIVE_ANTHROPIC_API_KEY", ""),
			AnthropicModel:   getEnv("PERSPECTIVE_ANTHROPIC_MODEL", "claude-haiku-4-5-20251001"),
			BatchSize:        getEnvInt("PERSPECTIVE_BATCH_SIZE", 50),
			FirstItemTimeout: getEnvDuration("PERSPECTIVE_FIRST_ITEM_TIMEOUT", 4*time.Second),
			BatchTimeout:     getEnvDuration("PERSPECTIVE_BATCH_TIMEOUT", 30*time.Second),
		},
		Engine: EngineConfig{
			RefillThreshold: getEnvInt("PERSPECTIVE_REFILL_THRESHOLD", 5),
			NumWorkers:      getEnvInt("PERSPECTIVE_REFILL_WORKERS", 2),
			QueueSize:       getEnvInt("PERSPECTIVE_REFILL_QUEUE_SIZE", 32),
			Epsilon:         getEnvFloat("PERSPECTIVE_BANDIT_EPSILON", 0.15),
			MaxRetries:      getEnvInt("PERSPECTIVE_SIMILARITY_RETRIES", 3),
			ShutdownTimeout: getEnvDuration("PERSPECTIVE_SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Router: RouterConfig{
			WeightsPath: getEnv("PERSPECTIVE_WEIGHTS_PATH", ""),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("PERSPECTIVE_SECURITY_MODE", "development"),
			APIToken:     getEnv("PERSPECTIVE_API_TOKEN", ""),
		},
	}, nil
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparsable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparsable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration environment variable (Go duration
// syntax, e.g. "4s") or returns a default value.
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
