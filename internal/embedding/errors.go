package embedding

import "errors"

// ErrUnavailable indicates no embedding provider is configured or reachable.
var ErrUnavailable = errors.New("embedding provider unavailable")

// ErrProvider indicates the remote embedding call failed.
var ErrProvider = errors.New("embedding provider error")

// ErrDimensionMismatch indicates a generated vector does not match the
// expected dimension. Vectors are never truncated or padded; callers must
// recreate the index when switching to a provider with a different dimension.
var ErrDimensionMismatch = errors.New("embedding dimension mismatch")
