package fulltext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexAndSearch(t *testing.T) {
	ctx := context.Background()
	idx, err := New("")
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index(ctx, "m1", "retry upload on ECONNRESET with jitter"))
	require.NoError(t, idx.Index(ctx, "m2", "switch the database driver to pgx"))

	hits, err := idx.Search(ctx, "ECONNRESET", 5)
	require.NoError(t, err)
	require.NotEmpty(t, hits)
	assert.Equal(t, "m1", hits[0].ID)
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	idx, err := New("")
	require.NoError(t, err)
	defer idx.Close()

	require.NoError(t, idx.Index(ctx, "m1", "oauth token expiry handling"))
	require.NoError(t, idx.Remove(ctx, "m1"))

	hits, err := idx.Search(ctx, "oauth", 5)
	require.NoError(t, err)
	assert.Empty(t, hits)
}
