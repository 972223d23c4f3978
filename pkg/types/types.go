// Package types defines the shared data model for the voxmem memory store:
// stored memories, search results, request payloads, and health reporting.
package types

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidInput indicates a request failed validation before any external
// call was made. Callers can match it with errors.Is.
var ErrInvalidInput = errors.New("invalid input")

// DefaultPriority is applied when a store request omits the priority field.
const DefaultPriority = "medium"

// CreatedDateLayout is the calendar-date layout stored alongside each memory
// to support cheap exact-date filtering.
const CreatedDateLayout = "2006-01-02"

// Memory is the stored unit. All fields are immutable once the memory has
// been written to the index.
type Memory struct {
	ID          string    `json:"id"`                  // Engine-generated UUID
	Content     string    `json:"content"`             // Original text
	MemoryType  string    `json:"memory_type"`         // Caller-supplied classification ("fact", "preference", ...)
	Entities    string    `json:"entities,omitempty"`  // Free-form extracted entities, may be empty
	Priority    string    `json:"priority"`            // Passed through, defaults to "medium"
	CreatedAt   time.Time `json:"created_at"`          // Set by the engine at store time (UTC)
	CreatedDate string    `json:"created_date"`        // Date component of CreatedAt, derived by the engine
	Embedding   []float32 `json:"embedding,omitempty"` // Vector of exactly the index dimension
}

// SearchResult is an ephemeral view of a memory returned from a similarity
// search. It is never persisted.
type SearchResult struct {
	ID             string    `json:"id"`
	Content        string    `json:"content"`
	MemoryType     string    `json:"memory_type"`
	Entities       string    `json:"entities,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	RelevanceScore float64   `json:"relevance_score"` // Cosine similarity as returned by the index
}

// StoreRequest carries an already-validated store call from the transport
// layer into the engine.
type StoreRequest struct {
	Content    string `json:"content"`
	MemoryType string `json:"memory_type"`
	Entities   string `json:"entities,omitempty"`
	Priority   string `json:"priority,omitempty"`
}

// Validate checks required fields. It does not mutate the request; use
// Normalize to apply defaults.
func (r *StoreRequest) Validate() error {
	if r.Content == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidInput)
	}
	if r.MemoryType == "" {
		return fmt.Errorf("%w: memory_type is required", ErrInvalidInput)
	}
	return nil
}

// Normalize applies defaults to optional fields.
func (r *StoreRequest) Normalize() {
	if r.Priority == "" {
		r.Priority = DefaultPriority
	}
}

// SearchRequest carries a search call into the engine. MemoryType and
// TimeRange are optional filters.
type SearchRequest struct {
	Query      string `json:"query"`
	MemoryType string `json:"memory_type,omitempty"`
	TimeRange  string `json:"time_range,omitempty"`
}

// Validate checks required fields.
func (r *SearchRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("%w: query is required", ErrInvalidInput)
	}
	return nil
}

// HealthStatus reports engine health. Health checks never fail; an
// unreachable index is reported as an unhealthy status with the captured
// error message.
type HealthStatus struct {
	Status            string    `json:"status"` // "healthy" or "unhealthy"
	VectorCount       int64     `json:"vector_count"`
	ProviderConnected bool      `json:"provider_connected"`
	Error             string    `json:"error,omitempty"`
	Timestamp         time.Time `json:"timestamp"`
}

// Healthy reports whether the status is "healthy".
func (h HealthStatus) Healthy() bool {
	return h.Status == "healthy"
}
