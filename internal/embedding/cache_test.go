package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingBackend struct {
	Backend
	calls int
}

func (c *countingBackend) EmbedDocument(ctx context.Context, text string, includeSparse bool) (Vectors, error) {
	c.calls++
	return c.Backend.EmbedDocument(ctx, text, includeSparse)
}

func TestCachedBackendHitsCacheOnRepeat(t *testing.T) {
	ctx := context.Background()
	inner := &countingBackend{Backend: NewInProcess(16, 0)}
	cached := NewCached(inner, 4)

	v1, err := cached.EmbedDocument(ctx, "hello world", false)
	require.NoError(t, err)
	v2, err := cached.EmbedDocument(ctx, "hello world", false)
	require.NoError(t, err)

	assert.Equal(t, v1.Dense, v2.Dense)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedBackendEvictsOldestOnInsert(t *testing.T) {
	ctx := context.Background()
	inner := NewInProcess(8, 0)
	cached := NewCached(inner, 2)

	_, err := cached.EmbedDocument(ctx, "first", false)
	require.NoError(t, err)
	_, err = cached.EmbedDocument(ctx, "second", false)
	require.NoError(t, err)
	_, err = cached.EmbedDocument(ctx, "third", false)
	require.NoError(t, err)

	cb := cached.(*cachedBackend)
	_, firstStillCached := cb.cache.Peek(cb.key("doc:first"))
	_, thirdCached := cb.cache.Peek(cb.key("doc:third"))
	assert.False(t, firstStillCached, "oldest entry should have been evicted")
	assert.True(t, thirdCached)
}
