package embedding

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

// ErrCircuitOpen is returned when the circuit breaker rejects a request
// because the backend has been failing consecutively.
var ErrCircuitOpen = errors.New("embedding circuit breaker is open")

// breakerConfig tunes the circuit breaker protecting a provider backend.
type breakerConfig struct {
	// MaxFailures is the number of consecutive failures that trips the circuit.
	MaxFailures uint32

	// Timeout is how long the circuit stays open before allowing test requests.
	Timeout time.Duration

	// HalfOpenMaxSuccesses closes the circuit after this many successes in
	// half-open state.
	HalfOpenMaxSuccesses uint32
}

// circuitBreaker wraps gobreaker around embedding backend calls so a failing
// remote service cannot hold every request for its full timeout.
type circuitBreaker struct {
	breaker *gobreaker.CircuitBreaker
}

// newCircuitBreaker creates a breaker with the package defaults:
// 3 consecutive failures trip it, it stays open for 30 seconds, and 2
// half-open successes close it again.
func newCircuitBreaker(name string) *circuitBreaker {
	cfg := breakerConfig{
		MaxFailures:          3,
		Timeout:              30 * time.Second,
		HalfOpenMaxSuccesses: 2,
	}

	return &circuitBreaker{
		breaker: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        name,
			MaxRequests: cfg.HalfOpenMaxSuccesses,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.MaxFailures
			},
		}),
	}
}

// execute runs fn through the breaker. When the circuit is open it returns
// ErrCircuitOpen without calling fn.
func (cb *circuitBreaker) execute(ctx context.Context, fn func() ([]float32, error)) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := cb.breaker.Execute(func() (interface{}, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return fn()
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, ErrCircuitOpen
		}
		return nil, err
	}

	return result.([]float32), nil
}

// state reports the breaker state: "closed", "open" or "half-open".
func (cb *circuitBreaker) state() string {
	switch cb.breaker.State() {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateOpen:
		return "open"
	case gobreaker.StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}
