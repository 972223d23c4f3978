// Package config provides configuration management for voxmem.
// Settings are loaded from environment variables with the VOXMEM_ prefix,
// with sensible defaults for every option. An optional YAML file (pointed to
// by VOXMEM_CONFIG or passed explicitly) overlays the environment values.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds all configuration settings for the voxmem server.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Index     IndexConfig     `yaml:"index"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Search    SearchConfig    `yaml:"search"`
	Security  SecurityConfig  `yaml:"security"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port int    `yaml:"port"` // Server port (default: 8000)
	Host string `yaml:"host"` // Server host (default: 127.0.0.1)
}

// IndexConfig contains vector index configuration.
type IndexConfig struct {
	Backend     string `yaml:"backend"`      // Index backend: postgres, sqlite (default: postgres)
	Name        string `yaml:"name"`         // Collection name (default: personal-memory)
	Dimension   int    `yaml:"dimension"`    // Embedding dimension; must match the active provider
	Metric      string `yaml:"metric"`       // Similarity metric (default: cosine)
	PostgresDSN string `yaml:"postgres_dsn"` // lib/pq connection string
	SQLitePath  string `yaml:"sqlite_path"`  // SQLite database path (default: ./data/voxmem.db)
}

// EmbeddingConfig contains embedding provider configuration.
type EmbeddingConfig struct {
	Provider       string `yaml:"provider"`        // Primary provider: openai, ollama (default: openai)
	EnableFallback bool   `yaml:"enable_fallback"` // Try the local Ollama model when the primary fails (default: false)
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIModel    string `yaml:"openai_model"`   // default: text-embedding-3-small
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	OllamaURL      string `yaml:"ollama_url"`   // default: http://localhost:11434
	OllamaModel    string `yaml:"ollama_model"` // default: nomic-embed-text
}

// SearchConfig contains similarity search tuning.
type SearchConfig struct {
	TopK      int     `yaml:"top_k"`     // Nearest neighbors fetched per query (default: 5)
	Threshold float64 `yaml:"threshold"` // Minimum cosine similarity, exclusive (default: 0.7)
}

// SecurityConfig contains security and authentication settings.
type SecurityConfig struct {
	SecurityMode string `yaml:"security_mode"` // development or production (default: development)
	APIToken     string `yaml:"api_token"`     // Bearer token required in production mode
}

// LoadConfig loads configuration from environment variables. When
// VOXMEM_CONFIG names a YAML file, its values overlay the environment.
func LoadConfig() (*Config, error) {
	cfg := buildBaseConfig()

	if path := os.Getenv("VOXMEM_CONFIG"); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that cannot be defaulted away.
func (c *Config) Validate() error {
	if c.Index.Dimension <= 0 {
		return fmt.Errorf("config: index dimension must be positive, got %d", c.Index.Dimension)
	}
	if c.Index.Metric != "cosine" {
		return fmt.Errorf("config: unsupported similarity metric %q (only cosine is supported)", c.Index.Metric)
	}
	if c.Search.TopK <= 0 {
		return fmt.Errorf("config: search top_k must be positive, got %d", c.Search.TopK)
	}
	switch c.Index.Backend {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("config: unsupported index backend %q", c.Index.Backend)
	}
	return nil
}

// buildBaseConfig constructs a Config with values from environment variables
// and defaults.
func buildBaseConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnvInt("VOXMEM_PORT", 8000),
			Host: getEnv("VOXMEM_HOST", "127.0.0.1"),
		},
		Index: IndexConfig{
			Backend:     getEnv("VOXMEM_INDEX_BACKEND", "postgres"),
			Name:        getEnv("VOXMEM_INDEX_NAME", "personal-memory"),
			Dimension:   getEnvInt("VOXMEM_INDEX_DIMENSION", 1536),
			Metric:      getEnv("VOXMEM_INDEX_METRIC", "cosine"),
			PostgresDSN: getEnv("VOXMEM_POSTGRES_DSN", ""),
			SQLitePath:  getEnv("VOXMEM_SQLITE_PATH", "./data/voxmem.db"),
		},
		Embedding: EmbeddingConfig{
			Provider:       getEnv("VOXMEM_EMBEDDING_PROVIDER", "openai"),
			EnableFallback: getEnvBool("VOXMEM_EMBEDDING_FALLBACK", false),
			OpenAIAPIKey:   getEnv("VOXMEM_OPENAI_API_KEY", ""),
			OpenAIModel:    getEnv("VOXMEM_OPENAI_MODEL", "text-embedding-3-small"),
			OpenAIBaseURL:  getEnv("VOXMEM_OPENAI_BASE_URL", ""),
			OllamaURL:      getEnv("VOXMEM_OLLAMA_URL", "http://localhost:11434"),
			OllamaModel:    getEnv("VOXMEM_OLLAMA_MODEL", "nomic-embed-text"),
		},
		Search: SearchConfig{
			TopK:      getEnvInt("VOXMEM_SEARCH_TOP_K", 5),
			Threshold: getEnvFloat("VOXMEM_SEARCH_THRESHOLD", 0.7),
		},
		Security: SecurityConfig{
			SecurityMode: getEnv("VOXMEM_SECURITY_MODE", "development"),
			APIToken:     getEnv("VOXMEM_API_TOKEN", ""),
		},
	}
}

// getEnv retrieves a string environment variable or returns a default value.
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt retrieves an integer environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat retrieves a float environment variable or returns a default
// value. Unparseable values fall back to the default.
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

// getEnvBool retrieves a boolean environment variable or returns a default
// value. Recognizes "true", "1", "yes" and "false", "0", "no".
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		switch value {
		case "true", "1", "yes", "True", "TRUE", "Yes", "YES":
			return true
		case "false", "0", "no", "False", "FALSE", "No", "NO":
			return false
		}
	}
	return defaultValue
}
