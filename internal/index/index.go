// Package index provides the vector index abstraction for voxmem: a managed
// similarity-search collection keyed by memory id, storing each vector plus
// its metadata. Two backends are provided: PostgreSQL with pgvector for
// production and an embedded SQLite store for single-node deployments.
package index

import (
	"context"
	"errors"
	"time"
)

// ErrProvision indicates collection creation failed for a reason other than
// "already exists".
var ErrProvision = errors.New("index provision error")

// ErrWrite indicates an upsert failed. Retryable at a higher layer; the
// index performs no automatic retry.
var ErrWrite = errors.New("index write error")

// ErrQuery indicates a similarity query failed.
var ErrQuery = errors.New("index query error")

// Metadata is the per-entry payload stored alongside each vector.
type Metadata struct {
	Content     string
	MemoryType  string
	Entities    string
	Priority    string
	CreatedAt   time.Time
	CreatedDate string // YYYY-MM-DD, derived from CreatedAt
}

// Filter restricts a query to entries matching exact-equality predicates.
// The zero value matches everything. Equality on memory type and created
// date is the entire observed need; there is deliberately no generic
// expression language here.
type Filter struct {
	MemoryType  string // match entries with this memory type, when non-empty
	CreatedDate string // match entries created on this YYYY-MM-DD date, when non-empty
}

// IsZero reports whether the filter has no predicates.
func (f Filter) IsZero() bool {
	return f.MemoryType == "" && f.CreatedDate == ""
}

// Matches reports whether md satisfies every predicate in the filter.
func (f Filter) Matches(md Metadata) bool {
	if f.MemoryType != "" && md.MemoryType != f.MemoryType {
		return false
	}
	if f.CreatedDate != "" && md.CreatedDate != f.CreatedDate {
		return false
	}
	return true
}

// Match is one similarity-search hit.
type Match struct {
	ID       string
	Score    float64 // cosine similarity in [-1, 1]
	Metadata Metadata
}

// Stats reports aggregate index state for health reporting.
type Stats struct {
	Count int64 // total stored vectors
}

// Config identifies a collection. Name, dimension and metric are fixed at
// creation time; changing the embedding provider's dimension requires
// recreating the collection.
type Config struct {
	Name      string
	Dimension int
	Metric    string // only "cosine" is supported
}

// Index is the usage contract with the vector store backend.
// Implementations must be safe for concurrent use.
type Index interface {
	// Ensure creates the collection if it does not exist. Idempotent:
	// "already exists" is success, including when concurrent processes race
	// to create the same collection.
	Ensure(ctx context.Context) error

	// Upsert inserts or replaces the entry for id.
	Upsert(ctx context.Context, id string, vector []float32, md Metadata) error

	// Query returns up to topK nearest neighbors by cosine similarity,
	// restricted to entries matching the filter, ordered by descending
	// score. Ties are broken by the backend and not specified further.
	Query(ctx context.Context, vector []float32, filter Filter, topK int) ([]Match, error)

	// Stats returns the total number of stored vectors.
	Stats(ctx context.Context) (Stats, error)

	// Close releases backend resources.
	Close() error
}
