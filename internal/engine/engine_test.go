package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/voxmem/voxmem/internal/embedding"
	"github.com/voxmem/voxmem/internal/index"
	"github.com/voxmem/voxmem/pkg/types"
)

// fakeProvider returns a fixed vector or error.
type fakeProvider struct {
	vec       []float32
	err       error
	healthErr error
	calls     int
}

func (f *fakeProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.vec, nil
}

func (f *fakeProvider) Model() string  { return "fake-model" }
func (f *fakeProvider) Dimension() int { return len(f.vec) }

func (f *fakeProvider) HealthCheck(ctx context.Context) error { return f.healthErr }

// fakeIndex records upserts and returns scripted query results.
type fakeIndex struct {
	upserts    map[string]index.Metadata
	matches    []index.Match
	queryErr   error
	upsertErr  error
	statsErr   error
	lastFilter index.Filter
	lastTopK   int
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{upserts: make(map[string]index.Metadata)}
}

func (f *fakeIndex) Ensure(ctx context.Context) error { return nil }

func (f *fakeIndex) Upsert(ctx context.Context, id string, vector []float32, md index.Metadata) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserts[id] = md
	return nil
}

func (f *fakeIndex) Query(ctx context.Context, vector []float32, filter index.Filter, topK int) ([]index.Match, error) {
	f.lastFilter = filter
	f.lastTopK = topK
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.matches, nil
}

func (f *fakeIndex) Stats(ctx context.Context) (index.Stats, error) {
	if f.statsErr != nil {
		return index.Stats{}, f.statsErr
	}
	return index.Stats{Count: int64(len(f.upserts))}, nil
}

func (f *fakeIndex) Close() error { return nil }

func newTestEngine(t *testing.T, provider embedding.Provider, idx index.Index, sink TraceSink) *Engine {
	t.Helper()
	eng, err := New(provider, idx, DefaultConfig(3), sink)
	require.NoError(t, err)
	return eng
}

func TestNewRequiresIndex(t *testing.T) {
	_, err := New(&fakeProvider{vec: []float32{1, 0, 0}}, nil, DefaultConfig(3), nil)
	assert.Error(t, err)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	_, err := New(nil, newFakeIndex(), Config{TopK: 0, Dimension: 3}, nil)
	assert.Error(t, err)

	_, err = New(nil, newFakeIndex(), Config{TopK: 5, Dimension: 0}, nil)
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 0, 0}}
	idx := newFakeIndex()
	eng := newTestEngine(t, provider, idx, nil)

	mem, err := eng.Store(context.Background(), types.StoreRequest{
		Content:    "User prefers dark roast coffee",
		MemoryType: "preference",
		Entities:   "coffee",
	})
	require.NoError(t, err)

	_, err = uuid.Parse(mem.ID)
	assert.NoError(t, err, "memory id should be a UUID")
	assert.Equal(t, "User prefers dark roast coffee", mem.Content)
	assert.Equal(t, "preference", mem.MemoryType)
	assert.Equal(t, types.DefaultPriority, mem.Priority)
	assert.Equal(t, mem.CreatedAt.Format(types.CreatedDateLayout), mem.CreatedDate)
	assert.Equal(t, []float32{1, 0, 0}, mem.Embedding)

	stored, ok := idx.upserts[mem.ID]
	require.True(t, ok)
	assert.Equal(t, "preference", stored.MemoryType)
	assert.Equal(t, "coffee", stored.Entities)
}

func TestStoreGeneratesUniqueIDs(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 0, 0}}
	idx := newFakeIndex()
	eng := newTestEngine(t, provider, idx, nil)

	seen := make(map[string]bool)
	for i := 0; i < 20; i++ {
		mem, err := eng.Store(context.Background(), types.StoreRequest{Content: "c", MemoryType: "fact"})
		require.NoError(t, err)
		assert.False(t, seen[mem.ID])
		seen[mem.ID] = true
	}
}

func TestStoreValidationError(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 0, 0}}
	idx := newFakeIndex()
	eng := newTestEngine(t, provider, idx, nil)

	_, err := eng.Store(context.Background(), types.StoreRequest{MemoryType: "fact"})
	assert.True(t, errors.Is(err, types.ErrInvalidInput))
	assert.Equal(t, 0, provider.calls, "validation failure must not reach the provider")
}

func TestStoreEmbeddingFailureWritesNothing(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("%w: backend down", embedding.ErrProvider)}
	idx := newFakeIndex()
	ring := NewRingSink(10)
	eng := newTestEngine(t, provider, idx, ring)

	_, err := eng.Store(context.Background(), types.StoreRequest{Content: "c", MemoryType: "fact"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, embedding.ErrProvider))
	assert.Empty(t, idx.upserts)

	events := ring.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, KindStoreFailed, events[0].Kind)
	assert.Equal(t, "embedding", events[0].Stage)
}

func TestStoreIndexFailure(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 0, 0}}
	idx := newFakeIndex()
	idx.upsertErr = fmt.Errorf("%w: connection reset", index.ErrWrite)
	ring := NewRingSink(10)
	eng := newTestEngine(t, provider, idx, ring)

	_, err := eng.Store(context.Background(), types.StoreRequest{Content: "c", MemoryType: "fact"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, index.ErrWrite))

	events := ring.Snapshot()
	require.Len(t, events, 1)
	assert.Equal(t, "index", events[0].Stage)
}

func TestStoreDimensionMismatch(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 0}} // engine expects 3
	idx := newFakeIndex()
	eng := newTestEngine(t, provider, idx, nil)

	_, err := eng.Store(context.Background(), types.StoreRequest{Content: "c", MemoryType: "fact"})
	assert.True(t, errors.Is(err, embedding.ErrDimensionMismatch))
	assert.Empty(t, idx.upserts)
}

func TestStoreWithoutProvider(t *testing.T) {
	eng := newTestEngine(t, nil, newFakeIndex(), nil)

	_, err := eng.Store(context.Background(), types.StoreRequest{Content: "c", MemoryType: "fact"})
	assert.True(t, errors.Is(err, embedding.ErrUnavailable))
}

func TestSearchThreshold(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 0, 0}}
	idx := newFakeIndex()
	idx.matches = []index.Match{
		{ID: "high", Score: 0.95, Metadata: index.Metadata{Content: "high"}},
		{ID: "above", Score: 0.70001, Metadata: index.Metadata{Content: "above"}},
		{ID: "boundary", Score: 0.7, Metadata: index.Metadata{Content: "boundary"}},
		{ID: "low", Score: 0.2, Metadata: index.Metadata{Content: "low"}},
	}
	eng := newTestEngine(t, provider, idx, nil)

	results, err := eng.Search(context.Background(), types.SearchRequest{Query: "q"})
	require.NoError(t, err)

	// The cutoff is strict: a score of exactly 0.7 is dropped.
	require.Len(t, results, 2)
	assert.Equal(t, "high", results[0].ID)
	assert.Equal(t, "above", results[1].ID)
	assert.Equal(t, 0.95, results[0].RelevanceScore)
	assert.Equal(t, 5, idx.lastTopK)
}

func TestSearchEmptyResultIsSuccess(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 0, 0}}
	idx := newFakeIndex()
	eng := newTestEngine(t, provider, idx, nil)

	results, err := eng.Search(context.Background(), types.SearchRequest{Query: "q"})
	require.NoError(t, err)
	assert.NotNil(t, results, "empty results must encode as [] not null")
	assert.Empty(t, results)
}

func TestSearchValidationError(t *testing.T) {
	eng := newTestEngine(t, &fakeProvider{vec: []float32{1, 0, 0}}, newFakeIndex(), nil)

	_, err := eng.Search(context.Background(), types.SearchRequest{})
	assert.True(t, errors.Is(err, types.ErrInvalidInput))
}

func TestSearchMemoryTypeFilter(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 0, 0}}
	idx := newFakeIndex()
	eng := newTestEngine(t, provider, idx, nil)

	_, err := eng.Search(context.Background(), types.SearchRequest{Query: "q", MemoryType: "fact"})
	require.NoError(t, err)
	assert.Equal(t, "fact", idx.lastFilter.MemoryType)
	assert.Empty(t, idx.lastFilter.CreatedDate)
}

func TestSearchTimeRangeFilter(t *testing.T) {
	today := time.Now().UTC().Format(types.CreatedDateLayout)

	tests := []struct {
		timeRange string
		wantDate  string
	}{
		{"today", today},
		{"Today", today},
		{"earlier today", today},
		{"TODAY at noon", today},
		{"yesterday", ""},
		{"last week", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run("time_range="+tt.timeRange, func(t *testing.T) {
			provider := &fakeProvider{vec: []float32{1, 0, 0}}
			idx := newFakeIndex()
			eng := newTestEngine(t, provider, idx, nil)

			_, err := eng.Search(context.Background(), types.SearchRequest{Query: "q", TimeRange: tt.timeRange})
			require.NoError(t, err)
			assert.Equal(t, tt.wantDate, idx.lastFilter.CreatedDate)
		})
	}
}

func TestSearchEmbeddingFailure(t *testing.T) {
	provider := &fakeProvider{err: fmt.Errorf("%w: backend down", embedding.ErrProvider)}
	idx := newFakeIndex()
	ring := NewRingSink(10)
	eng := newTestEngine(t, provider, idx, ring)

	_, err := eng.Search(context.Background(), types.SearchRequest{Query: "q"})
	require.Error(t, err)

	events := ring.Snapshot()
	require.Len(t, events, 2)
	assert.Equal(t, KindSearchStarted, events[0].Kind)
	assert.Equal(t, KindSearchFailed, events[1].Kind)
	assert.Equal(t, "embedding", events[1].Stage)
}

func TestSearchIndexFailure(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 0, 0}}
	idx := newFakeIndex()
	idx.queryErr = fmt.Errorf("%w: timeout", index.ErrQuery)
	eng := newTestEngine(t, provider, idx, nil)

	_, err := eng.Search(context.Background(), types.SearchRequest{Query: "q"})
	assert.True(t, errors.Is(err, index.ErrQuery))
}

func TestSearchTraceEvents(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 0, 0}}
	idx := newFakeIndex()
	idx.matches = []index.Match{
		{ID: "keep", Score: 0.9},
		{ID: "drop", Score: 0.1},
	}
	ring := NewRingSink(10)
	eng := newTestEngine(t, provider, idx, ring)

	_, err := eng.Search(context.Background(), types.SearchRequest{Query: "q", MemoryType: "fact"})
	require.NoError(t, err)

	events := ring.Snapshot()
	require.Len(t, events, 2)

	assert.Equal(t, KindSearchStarted, events[0].Kind)
	assert.Equal(t, "q", events[0].Query)
	assert.Equal(t, map[string]string{"memory_type": "fact"}, events[0].Filters)

	assert.Equal(t, KindResultsReturned, events[1].Kind)
	assert.Equal(t, []string{"keep"}, events[1].MemoryIDs)
	assert.Equal(t, 1, events[1].Dropped)
}

func TestHealthHealthy(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 0, 0}}
	idx := newFakeIndex()
	eng := newTestEngine(t, provider, idx, nil)

	_, err := eng.Store(context.Background(), types.StoreRequest{Content: "c", MemoryType: "fact"})
	require.NoError(t, err)

	status := eng.Health(context.Background())
	assert.True(t, status.Healthy())
	assert.Equal(t, int64(1), status.VectorCount)
	assert.True(t, status.ProviderConnected)
	assert.Empty(t, status.Error)
	assert.False(t, status.Timestamp.IsZero())
}

func TestHealthUnhealthyIndex(t *testing.T) {
	idx := newFakeIndex()
	idx.statsErr = errors.New("connection refused")
	eng := newTestEngine(t, &fakeProvider{vec: []float32{1, 0, 0}}, idx, nil)

	status := eng.Health(context.Background())
	assert.False(t, status.Healthy())
	assert.Contains(t, status.Error, "connection refused")
}

func TestHealthProviderDisconnected(t *testing.T) {
	provider := &fakeProvider{vec: []float32{1, 0, 0}, healthErr: errors.New("unreachable")}
	eng := newTestEngine(t, provider, newFakeIndex(), nil)

	status := eng.Health(context.Background())
	assert.True(t, status.Healthy(), "index health drives overall status")
	assert.False(t, status.ProviderConnected)
}

func TestHealthNoProvider(t *testing.T) {
	eng := newTestEngine(t, nil, newFakeIndex(), nil)

	status := eng.Health(context.Background())
	assert.True(t, status.Healthy())
	assert.False(t, status.ProviderConnected)
}
