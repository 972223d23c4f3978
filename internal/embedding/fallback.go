package embedding

import (
	"context"
	"errors"
	"fmt"
	"log"
)

// FallbackProvider tries a primary provider first and falls back to a local
// provider when the primary fails. Both providers must produce vectors of
// the same dimension; mixing vectors from differently-sized models in one
// index would silently corrupt every future query.
type FallbackProvider struct {
	primary  Provider
	fallback Provider
}

// NewFallbackProvider composes a primary and fallback provider. It fails
// fast with ErrDimensionMismatch when the declared dimensions differ.
func NewFallbackProvider(primary, fallback Provider) (*FallbackProvider, error) {
	if primary == nil || fallback == nil {
		return nil, fmt.Errorf("%w: both primary and fallback providers are required", ErrUnavailable)
	}
	if primary.Dimension() != fallback.Dimension() {
		return nil, fmt.Errorf("%w: primary %s produces %d dimensions, fallback %s produces %d",
			ErrDimensionMismatch, primary.Model(), primary.Dimension(), fallback.Model(), fallback.Dimension())
	}
	return &FallbackProvider{primary: primary, fallback: fallback}, nil
}

// Embed tries the primary provider and, on failure, the fallback. A
// cancelled or expired context is returned directly: the caller's deadline
// has passed and retrying locally would only delay the error.
func (p *FallbackProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.primary.Embed(ctx, text)
	if err == nil {
		return vec, nil
	}

	if ctx.Err() != nil {
		return nil, err
	}
	if errors.Is(err, ErrDimensionMismatch) {
		// A mis-sized primary vector is a configuration fault, not an outage.
		return nil, err
	}

	log.Printf("embedding: primary provider %s failed, using fallback %s: %v",
		p.primary.Model(), p.fallback.Model(), err)

	vec, fbErr := p.fallback.Embed(ctx, text)
	if fbErr != nil {
		return nil, fmt.Errorf("%w: primary failed (%v); fallback failed (%v)", ErrProvider, err, fbErr)
	}
	return vec, nil
}

// Model returns the primary provider's model name.
func (p *FallbackProvider) Model() string {
	return p.primary.Model()
}

// Dimension returns the shared vector length.
func (p *FallbackProvider) Dimension() int {
	return p.primary.Dimension()
}

// Compile-time assertion.
var _ Provider = (*FallbackProvider)(nil)
