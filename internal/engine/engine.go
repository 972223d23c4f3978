// Package engine implements the voxmem memory engine: it turns validated
// store and search requests into embedding calls and vector-index operations.
// The engine holds no mutable state between calls; the only persistent state
// lives in the external vector index.
package engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voxmem/voxmem/internal/embedding"
	"github.com/voxmem/voxmem/internal/index"
	"github.com/voxmem/voxmem/pkg/types"
)

// Config holds engine tuning. TopK and Threshold default to the values the
// calling agent was built against; change them only together with the
// consumer.
type Config struct {
	// TopK is the number of nearest neighbors fetched per search.
	TopK int

	// Threshold is the minimum cosine similarity a hit must exceed
	// (strictly) to be returned.
	Threshold float64

	// Dimension is the vector index's configured dimension. Every embedding
	// is validated against it before any write.
	Dimension int
}

// DefaultConfig returns the production defaults: top-5 neighbors, 0.7
// relevance cutoff.
func DefaultConfig(dimension int) Config {
	return Config{
		TopK:      5,
		Threshold: 0.7,
		Dimension: dimension,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.TopK <= 0 {
		return fmt.Errorf("top_k must be positive, got %d", c.TopK)
	}
	if c.Dimension <= 0 {
		return fmt.Errorf("dimension must be positive, got %d", c.Dimension)
	}
	return nil
}

// Engine orchestrates embedding generation and vector-index access for
// memory storage and retrieval. Safe for concurrent use: each call is an
// independent unit of work.
type Engine struct {
	provider embedding.Provider
	index    index.Index
	cfg      Config
	sink     TraceSink
}

// New creates a memory engine. The sink may be nil, in which case trace
// events are discarded. The provider may be nil for an index-only
// deployment; store and search then fail with the unavailable error.
func New(provider embedding.Provider, idx index.Index, cfg Config, sink TraceSink) (*Engine, error) {
	if idx == nil {
		return nil, fmt.Errorf("vector index is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if sink == nil {
		sink = NopSink{}
	}
	return &Engine{
		provider: provider,
		index:    idx,
		cfg:      cfg,
		sink:     sink,
	}, nil
}

// Store embeds the content and upserts it into the index under a fresh id.
// The two external calls are ordered so that an embedding failure aborts
// before anything is written; an index-write failure leaves no partial
// memory because the id was never persisted anywhere else.
func (e *Engine) Store(ctx context.Context, req types.StoreRequest) (*types.Memory, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	req.Normalize()

	if e.provider == nil {
		return nil, fmt.Errorf("%w: no provider configured", embedding.ErrUnavailable)
	}

	id := uuid.NewString()

	vec, err := e.provider.Embed(ctx, req.Content)
	if err != nil {
		e.sink.Record(EventStoreFailed("embedding", err))
		return nil, err
	}
	if len(vec) != e.cfg.Dimension {
		err := fmt.Errorf("%w: provider returned %d dimensions, index expects %d",
			embedding.ErrDimensionMismatch, len(vec), e.cfg.Dimension)
		e.sink.Record(EventStoreFailed("embedding", err))
		return nil, err
	}

	now := time.Now().UTC()
	md := index.Metadata{
		Content:     req.Content,
		MemoryType:  req.MemoryType,
		Entities:    req.Entities,
		Priority:    req.Priority,
		CreatedAt:   now,
		CreatedDate: now.Format(types.CreatedDateLayout),
	}

	if err := e.index.Upsert(ctx, id, vec, md); err != nil {
		e.sink.Record(EventStoreFailed("index", err))
		return nil, err
	}

	e.sink.Record(EventMemoryStored(id, req.MemoryType))

	return &types.Memory{
		ID:          id,
		Content:     req.Content,
		MemoryType:  req.MemoryType,
		Entities:    req.Entities,
		Priority:    req.Priority,
		CreatedAt:   now,
		CreatedDate: md.CreatedDate,
		Embedding:   vec,
	}, nil
}

// Search embeds the query, runs a filtered top-K similarity search, and
// returns hits whose score strictly exceeds the relevance threshold, in the
// order the index returned them. Zero surviving results is success.
func (e *Engine) Search(ctx context.Context, req types.SearchRequest) ([]types.SearchResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	if e.provider == nil {
		return nil, fmt.Errorf("%w: no provider configured", embedding.ErrUnavailable)
	}

	filter := e.buildFilter(req)
	e.sink.Record(EventSearchStarted(req.Query, filter))

	vec, err := e.provider.Embed(ctx, req.Query)
	if err != nil {
		e.sink.Record(EventSearchFailed("embedding", err))
		return nil, err
	}

	matches, err := e.index.Query(ctx, vec, filter, e.cfg.TopK)
	if err != nil {
		e.sink.Record(EventSearchFailed("index", err))
		return nil, err
	}

	results := make([]types.SearchResult, 0, len(matches))
	for _, m := range matches {
		if m.Score <= e.cfg.Threshold {
			continue
		}
		results = append(results, types.SearchResult{
			ID:             m.ID,
			Content:        m.Metadata.Content,
			MemoryType:     m.Metadata.MemoryType,
			Entities:       m.Metadata.Entities,
			CreatedAt:      m.Metadata.CreatedAt,
			RelevanceScore: m.Score,
		})
	}

	e.sink.Record(EventResultsReturned(resultIDs(results), len(matches)-len(results)))
	return results, nil
}

// buildFilter translates the request's optional filters into index
// predicates. A memory-type predicate is added iff the caller supplied a
// type. The time range is a free-form string: only the literal token
// "today" (case-insensitive) has an effect, matching today's UTC date; any
// other text is accepted and ignored.
func (e *Engine) buildFilter(req types.SearchRequest) index.Filter {
	var f index.Filter
	if req.MemoryType != "" {
		f.MemoryType = req.MemoryType
	}
	if strings.Contains(strings.ToLower(req.TimeRange), "today") {
		f.CreatedDate = time.Now().UTC().Format(types.CreatedDateLayout)
	}
	return f
}

// Health reports engine health from the index's stats call. It never
// returns an error: an unreachable index is an unhealthy status with the
// captured message.
func (e *Engine) Health(ctx context.Context) types.HealthStatus {
	status := types.HealthStatus{
		ProviderConnected: e.providerConnected(ctx),
		Timestamp:         time.Now().UTC(),
	}

	stats, err := e.index.Stats(ctx)
	if err != nil {
		status.Status = "unhealthy"
		status.Error = err.Error()
		return status
	}

	status.Status = "healthy"
	status.VectorCount = stats.Count
	return status
}

// providerConnected reports whether an embedding provider is configured and,
// when it exposes a health check, reachable.
func (e *Engine) providerConnected(ctx context.Context) bool {
	if e.provider == nil {
		return false
	}
	if hc, ok := e.provider.(embedding.HealthChecker); ok {
		return hc.HealthCheck(ctx) == nil
	}
	return true
}

func resultIDs(results []types.SearchResult) []string {
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	return ids
}
