package planner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"agentmemory/internal/embedding"
	"agentmemory/internal/memory"
	"agentmemory/internal/retrieve"
	"agentmemory/internal/store/fulltext"
	"agentmemory/internal/store/vector"
)

func TestPlan_FanOutDedupesAndAnnotatesStrategy(t *testing.T) {
	vs := vector.NewHNSW(64, "cos")
	ft, err := fulltext.New("")
	require.NoError(t, err)
	backend := embedding.NewInProcess(64, 1)
	mgr := memory.New(memory.Store{Vector: vs, Fulltext: ft}, backend)
	ctx := context.Background()

	_, err = mgr.Upsert(ctx, memory.Record{Type: memory.TypeError, Content: "db bug caused a connection to hang under load"})
	require.NoError(t, err)
	_, err = mgr.Upsert(ctx, memory.Record{Type: memory.TypeLearning, Content: "unrelated learning about deployment pipelines"})
	require.NoError(t, err)

	r := &retrieve.Retriever{Vector: vs, Fulltext: ft, Embedder: backend, Manager: mgr}

	resp, err := Plan(ctx, r, "db bug", 10, 0.5, false, []Strategy{
		{Kind: KindSemantic},
		{Kind: KindType, Type: string(memory.TypeError)},
		{Kind: KindExpanded},
	})
	require.NoError(t, err)

	seen := map[string]bool{}
	for _, h := range resp.Merged {
		require.False(t, seen[h.Item.Record.ID], "duplicate id in merged results")
		seen[h.Item.Record.ID] = true
	}
	require.Contains(t, resp.StrategyCounts, KindSemantic)
	require.Contains(t, resp.StrategyCounts, KindType)
	require.Contains(t, resp.StrategyCounts, KindExpanded)
}

func TestExpandQuery_AppendsSynonyms(t *testing.T) {
	expanded := ExpandQuery("there is a db bug")
	require.Contains(t, expanded, "error")
	require.Contains(t, expanded, "issue")
	require.Contains(t, expanded, "problem")
	require.Contains(t, expanded, "defect")
}
