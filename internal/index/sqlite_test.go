package index

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T) *SQLiteIndex {
	t.Helper()
	// A file-backed database: ":memory:" gives every pooled connection its
	// own empty database.
	idx, err := NewSQLiteIndex(filepath.Join(t.TempDir(), "test.db"), Config{
		Name:      "personal-memory",
		Dimension: 3,
		Metric:    "cosine",
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.Ensure(context.Background()))
	return idx
}

func testMetadata(memoryType, date string) Metadata {
	createdAt, _ := time.Parse(CreatedDateTestLayout, date)
	return Metadata{
		Content:     "content for " + memoryType,
		MemoryType:  memoryType,
		Priority:    "medium",
		CreatedAt:   createdAt,
		CreatedDate: date,
	}
}

// CreatedDateTestLayout mirrors the engine's calendar-date layout.
const CreatedDateTestLayout = "2006-01-02"

func TestSQLiteEnsureIdempotent(t *testing.T) {
	idx := newTestIndex(t)
	// A second Ensure on the same collection must succeed.
	require.NoError(t, idx.Ensure(context.Background()))
}

func TestSQLiteUpsertAndQuery(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "id-1", []float32{1, 0, 0}, testMetadata("fact", "2026-08-30")))
	require.NoError(t, idx.Upsert(ctx, "id-2", []float32{0, 1, 0}, testMetadata("preference", "2026-08-30")))

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, Filter{}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Ordered by descending similarity.
	assert.Equal(t, "id-1", matches[0].ID)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
	assert.Equal(t, "id-2", matches[1].ID)
	assert.InDelta(t, 0.0, matches[1].Score, 1e-6)

	assert.Equal(t, "content for fact", matches[0].Metadata.Content)
	assert.Equal(t, "fact", matches[0].Metadata.MemoryType)
	assert.Equal(t, "2026-08-30", matches[0].Metadata.CreatedDate)
}

func TestSQLiteUpsertReplacesExisting(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "id-1", []float32{1, 0, 0}, testMetadata("fact", "2026-08-29")))
	md := testMetadata("fact", "2026-08-30")
	md.Content = "updated content"
	require.NoError(t, idx.Upsert(ctx, "id-1", []float32{0, 0, 1}, md))

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Count)

	matches, err := idx.Query(ctx, []float32{0, 0, 1}, Filter{}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "updated content", matches[0].Metadata.Content)
	assert.InDelta(t, 1.0, matches[0].Score, 1e-6)
}

func TestSQLiteUpsertRejectsWrongDimension(t *testing.T) {
	idx := newTestIndex(t)

	err := idx.Upsert(context.Background(), "id-1", []float32{1, 0}, testMetadata("fact", "2026-08-30"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrWrite))
}

func TestSQLiteQueryRejectsWrongDimension(t *testing.T) {
	idx := newTestIndex(t)

	_, err := idx.Query(context.Background(), []float32{1, 0, 0, 0}, Filter{}, 5)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrQuery))
}

func TestSQLiteQueryFilters(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, "fact-today", []float32{1, 0, 0}, testMetadata("fact", "2026-08-30")))
	require.NoError(t, idx.Upsert(ctx, "fact-old", []float32{1, 0, 0}, testMetadata("fact", "2026-08-01")))
	require.NoError(t, idx.Upsert(ctx, "pref-today", []float32{1, 0, 0}, testMetadata("preference", "2026-08-30")))

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, Filter{MemoryType: "fact"}, 5)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = idx.Query(ctx, []float32{1, 0, 0}, Filter{CreatedDate: "2026-08-30"}, 5)
	require.NoError(t, err)
	assert.Len(t, matches, 2)

	matches, err = idx.Query(ctx, []float32{1, 0, 0}, Filter{MemoryType: "fact", CreatedDate: "2026-08-30"}, 5)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "fact-today", matches[0].ID)

	matches, err = idx.Query(ctx, []float32{1, 0, 0}, Filter{MemoryType: "task"}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSQLiteQueryTopK(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		id := fmt.Sprintf("id-%d", i)
		require.NoError(t, idx.Upsert(ctx, id, []float32{1, float32(i) * 0.01, 0}, testMetadata("fact", "2026-08-30")))
	}

	matches, err := idx.Query(ctx, []float32{1, 0, 0}, Filter{}, 3)
	require.NoError(t, err)
	assert.Len(t, matches, 3)

	// Scores must be non-increasing.
	for i := 1; i < len(matches); i++ {
		assert.GreaterOrEqual(t, matches[i-1].Score, matches[i].Score)
	}
}

func TestSQLiteQueryEmptyIndex(t *testing.T) {
	idx := newTestIndex(t)

	matches, err := idx.Query(context.Background(), []float32{1, 0, 0}, Filter{}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSQLiteStats(t *testing.T) {
	idx := newTestIndex(t)
	ctx := context.Background()

	stats, err := idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Count)

	require.NoError(t, idx.Upsert(ctx, "id-1", []float32{1, 0, 0}, testMetadata("fact", "2026-08-30")))
	require.NoError(t, idx.Upsert(ctx, "id-2", []float32{0, 1, 0}, testMetadata("fact", "2026-08-30")))

	stats, err = idx.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), stats.Count)
}
