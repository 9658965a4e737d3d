package vector

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHNSWUpsertAndSearch(t *testing.T) {
	ctx := context.Background()
	store := NewHNSW(3, "cos")

	require.NoError(t, store.Upsert(ctx, []Point{
		{ID: "a", Dense: []float32{1, 0, 0}, Payload: map[string]any{"type": "decision"}},
		{ID: "b", Dense: []float32{0, 1, 0}, Payload: map[string]any{"type": "error"}},
		{ID: "c", Dense: []float32{0.9, 0.1, 0}, Payload: map[string]any{"type": "decision"}},
	}))

	results, err := store.HybridSearch(ctx, []float32{1, 0, 0}, nil, Filter{}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
}

func TestHNSWFilteredSearch(t *testing.T) {
	ctx := context.Background()
	store := NewHNSW(2, "cos")
	require.NoError(t, store.Upsert(ctx, []Point{
		{ID: "a", Dense: []float32{1, 0}, Payload: map[string]any{"type": "decision"}},
		{ID: "b", Dense: []float32{1, 0}, Payload: map[string]any{"type": "error"}},
	}))

	results, err := store.HybridSearch(ctx, []float32{1, 0}, nil, Filter{Type: "error"}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].ID)
}

func TestHNSWDeleteIsLazy(t *testing.T) {
	ctx := context.Background()
	store := NewHNSW(2, "cos")
	require.NoError(t, store.Upsert(ctx, []Point{{ID: "a", Dense: []float32{1, 0}}}))
	require.NoError(t, store.Delete(ctx, []string{"a"}))

	results, err := store.HybridSearch(ctx, []float32{1, 0}, nil, Filter{}, 5)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestHNSWUpsertOverwritesExisting(t *testing.T) {
	ctx := context.Background()
	store := NewHNSW(2, "cos")
	require.NoError(t, store.Upsert(ctx, []Point{{ID: "a", Dense: []float32{1, 0}, Payload: map[string]any{"v": 1}}}))
	require.NoError(t, store.Upsert(ctx, []Point{{ID: "a", Dense: []float32{0, 1}, Payload: map[string]any{"v": 2}}}))

	results, err := store.HybridSearch(ctx, []float32{0, 1}, nil, Filter{}, 5)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Payload["v"])
}
