package embedding

import (
	"fmt"

	"github.com/voxmem/voxmem/internal/config"
)

// NewProvider builds the embedding provider stack from configuration.
// The dimension parameter is the vector index's configured dimension; every
// provider in the stack is pinned to it.
//
// With fallback disabled (the production default) the configured provider is
// used alone. With fallback enabled the remote provider is tried first and a
// local Ollama model takes over when it fails.
func NewProvider(cfg config.EmbeddingConfig, dimension int) (Provider, error) {
	switch cfg.Provider {
	case "openai", "":
		if cfg.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: openai API key is not configured", ErrUnavailable)
		}
		primary := NewOpenAIClient(OpenAIConfig{
			APIKey:    cfg.OpenAIAPIKey,
			Model:     cfg.OpenAIModel,
			BaseURL:   cfg.OpenAIBaseURL,
			Dimension: dimension,
		})
		if !cfg.EnableFallback {
			return primary, nil
		}
		fallback := NewOllamaClient(OllamaConfig{
			BaseURL:   cfg.OllamaURL,
			Model:     cfg.OllamaModel,
			Dimension: dimension,
		})
		return NewFallbackProvider(primary, fallback)

	case "ollama":
		return NewOllamaClient(OllamaConfig{
			BaseURL:   cfg.OllamaURL,
			Model:     cfg.OllamaModel,
			Dimension: dimension,
		}), nil

	default:
		return nil, fmt.Errorf("%w: unsupported embedding provider %q", ErrUnavailable, cfg.Provider)
	}
}
