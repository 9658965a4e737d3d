package embedding

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInProcessBackendDeterministic(t *testing.T) {
	b := NewInProcess(32, 0)
	ctx := context.Background()

	v1, err := b.EmbedDocument(ctx, "retry upload on ECONNRESET", false)
	require.NoError(t, err)
	v2, err := b.EmbedDocument(ctx, "retry upload on ECONNRESET", false)
	require.NoError(t, err)

	assert.Equal(t, v1.Dense, v2.Dense)
}

func TestInProcessBackendIsL2Normalized(t *testing.T) {
	b := NewInProcess(16, 0)
	v, err := b.EmbedDocument(context.Background(), "some text to embed", false)
	require.NoError(t, err)

	var sumSq float64
	for _, x := range v.Dense {
		sumSq += float64(x) * float64(x)
	}
	assert.InDelta(t, 1.0, math.Sqrt(sumSq), 1e-4)
}

func TestInProcessBackendDocumentQueryDiffer(t *testing.T) {
	b := NewInProcess(32, 0)
	ctx := context.Background()
	doc, err := b.EmbedDocument(ctx, "same text", false)
	require.NoError(t, err)
	query, err := b.EmbedQuery(ctx, "same text", false)
	require.NoError(t, err)

	assert.NotEqual(t, doc.Dense, query.Dense)
}

func TestInProcessBackendHasNoSparseOrRerank(t *testing.T) {
	b := NewInProcess(8, 0)
	assert.False(t, b.SparseAvailable())
	assert.False(t, b.RerankAvailable())
	_, err := b.Rerank(context.Background(), "q", []string{"a"})
	assert.ErrorIs(t, err, ErrRerankUnavailable)
}
