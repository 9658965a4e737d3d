package graph

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreUpsertIdempotent(t *testing.T) {
	ctx := context.Background()
	g := NewMemory()
	require.NoError(t, g.UpsertNode(ctx, "a", []string{"Memory"}, map[string]any{"type": "decision"}))
	require.NoError(t, g.UpsertEdge(ctx, "a", "RELATED", "b", nil))
	require.NoError(t, g.UpsertEdge(ctx, "a", "RELATED", "b", nil))

	edges, err := g.OutgoingEdges(ctx, "a")
	require.NoError(t, err)
	assert.Len(t, edges, 1)
}

func TestMemoryStoreDeleteNodeRemovesEdges(t *testing.T) {
	ctx := context.Background()
	g := NewMemory()
	require.NoError(t, g.UpsertNode(ctx, "a", nil, nil))
	require.NoError(t, g.UpsertNode(ctx, "b", nil, nil))
	require.NoError(t, g.UpsertEdge(ctx, "a", "RELATED", "b", nil))

	require.NoError(t, g.DeleteNode(ctx, "a"))

	_, ok, err := g.GetNode(ctx, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	edges, err := g.OutgoingEdges(ctx, "a")
	require.NoError(t, err)
	assert.Empty(t, edges)
}

func TestMemoryStoreNeighborsFiltersByRel(t *testing.T) {
	ctx := context.Background()
	g := NewMemory()
	require.NoError(t, g.UpsertEdge(ctx, "a", "FIXES", "b", nil))
	require.NoError(t, g.UpsertEdge(ctx, "a", "RELATED", "c", nil))

	neighbors, err := g.Neighbors(ctx, "a", "FIXES")
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, neighbors)
}
