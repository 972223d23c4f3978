// Package embedding converts text into fixed-length vectors for similarity
// search. It provides a remote OpenAI-compatible client as the production
// default, a local Ollama client, and a fallback composition of the two.
package embedding

import "context"

// Provider is the capability interface for embedding generation.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Embed converts text to a vector. Blocking network call; callers supply
	// a context with a deadline.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Model returns the model identifier used for embeddings.
	Model() string

	// Dimension returns the vector length this provider produces, or 0 when
	// unknown until the first call.
	Dimension() int
}

// HealthChecker is implemented by providers that can cheaply verify
// reachability of their backend.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}
