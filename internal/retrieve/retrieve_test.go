package retrieve

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"agentmemory/internal/embedding"
	"agentmemory/internal/memory"
	"agentmemory/internal/store/fulltext"
	"agentmemory/internal/store/vector"
)

func newTestRetriever(t *testing.T) (*Retriever, *memory.Manager) {
	t.Helper()
	vs := vector.NewHNSW(64, "cos")
	ft, err := fulltext.New("")
	require.NoError(t, err)
	backend := embedding.NewInProcess(64, 1)
	mgr := memory.New(memory.Store{Vector: vs, Fulltext: ft}, backend)
	return &Retriever{Vector: vs, Fulltext: ft, Embedder: backend, Manager: mgr}, mgr
}

func TestSearch_LimitZeroReturnsEmpty(t *testing.T) {
	r, _ := newTestRetriever(t)
	resp, err := r.Search(context.Background(), Request{Query: "anything", Limit: 0})
	require.NoError(t, err)
	require.Empty(t, resp.Items)
}

func TestSearch_ClampsOverMaxLimit(t *testing.T) {
	r, mgr := newTestRetriever(t)
	_, err := mgr.Upsert(context.Background(), memory.Record{Type: memory.TypeLearning, Content: "some learning content about retries"})
	require.NoError(t, err)

	resp, err := r.Search(context.Background(), Request{Query: "retries", Limit: MaxLimit + 50})
	require.NoError(t, err)
	require.True(t, resp.Clamped)
}

func TestSearch_HybridFusionFindsBothLexicalAndSemanticMatches(t *testing.T) {
	r, mgr := newTestRetriever(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		_, err := mgr.Upsert(ctx, memory.Record{
			Type:    memory.TypeLearning,
			Content: "the rare token ZZQ_RARE_7 appears in this otherwise unrelated note",
		})
		require.NoError(t, err)
	}
	for i := 0; i < 10; i++ {
		_, err := mgr.Upsert(ctx, memory.Record{
			Type:    memory.TypeLearning,
			Content: "retrying network requests on transient connection resets improves reliability",
		})
		require.NoError(t, err)
	}

	resp, err := r.Search(ctx, Request{Query: "ZZQ_RARE_7", Limit: 3, Alpha: 0.5})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items)

	lexOnly, err := r.Search(ctx, Request{Query: "ZZQ_RARE_7", Limit: 3, Alpha: 0})
	require.NoError(t, err)
	require.NotEmpty(t, lexOnly.Items)
	require.Contains(t, lexOnly.Items[0].Record.Content, "ZZQ_RARE_7",
		"lexical-only hits must carry their stored payload even when absent from the dense oversample set")
}

func TestSearch_DegradedWhenNoFulltextIndex(t *testing.T) {
	vs := vector.NewHNSW(64, "cos")
	backend := embedding.NewInProcess(64, 1)
	mgr := memory.New(memory.Store{Vector: vs}, backend)
	r := &Retriever{Vector: vs, Embedder: backend, Manager: mgr}

	_, err := mgr.Upsert(context.Background(), memory.Record{Type: memory.TypeLearning, Content: "some content to embed here for testing"})
	require.NoError(t, err)

	resp, err := r.Search(context.Background(), Request{Query: "content", Limit: 5})
	require.NoError(t, err)
	require.True(t, resp.Degraded)
}
