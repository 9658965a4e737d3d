package relationship

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentmemory/internal/embedding"
	"agentmemory/internal/memory"
	"agentmemory/internal/store/graph"
	"agentmemory/internal/store/vector"
)

func newTestEngine(t *testing.T) (*Engine, *memory.Manager) {
	t.Helper()
	vs := vector.NewHNSW(64, "cos")
	gs := graph.NewMemory()
	backend := embedding.NewInProcess(64, 1)
	mgr := memory.New(memory.Store{Vector: vs, Graph: gs}, backend)
	return &Engine{Graph: gs, Manager: mgr, Vector: vs, Embedder: backend}, mgr
}

func TestAutoLink_FixEdgeInference(t *testing.T) {
	e, mgr := newTestEngine(t)
	ctx := context.Background()

	errRec, err := mgr.Upsert(ctx, memory.Record{
		Type:         memory.TypeError,
		Content:      "upload failed with ECONNRESET on upload",
		ErrorMessage: "ECONNRESET on upload",
	})
	require.NoError(t, err)

	learnRec, err := mgr.Upsert(ctx, memory.Record{
		Type:    memory.TypeLearning,
		Content: "Retry upload on ECONNRESET on upload with jitter to avoid thundering herd",
	})
	require.NoError(t, err)

	report, err := e.AutoLink(ctx, time.Now().UTC(), AutoLinkOptions{WindowHours: 24, TopK: 5, MinSimilarity: -1})
	require.NoError(t, err)
	require.NotEmpty(t, report.Created)

	var fixesCount int
	for _, edge := range report.Created {
		if edge.Type == Fixes && edge.Source == errRec.ID && edge.Target == learnRec.ID {
			fixesCount++
		}
	}
	require.Equal(t, 1, fixesCount, "expected exactly one FIXES(error->learning) edge")

	related, err := e.Related(ctx, errRec.ID, 1, 50)
	require.NoError(t, err)
	require.Len(t, related, 1)
	require.Equal(t, learnRec.ID, related[0].ID)
}

func TestLink_RejectsSelfLoop(t *testing.T) {
	e, mgr := newTestEngine(t)
	ctx := context.Background()
	r, err := mgr.Upsert(ctx, memory.Record{Type: memory.TypeContext, Content: "some context worth remembering here"})
	require.NoError(t, err)

	err = e.Link(ctx, r.ID, r.ID, Related)
	require.Error(t, err)
}

func TestLink_MissingTargetIsError(t *testing.T) {
	e, mgr := newTestEngine(t)
	ctx := context.Background()
	r, err := mgr.Upsert(ctx, memory.Record{Type: memory.TypeContext, Content: "some context worth remembering here"})
	require.NoError(t, err)

	err = e.Link(ctx, r.ID, "does-not-exist", Related)
	require.Error(t, err)
}

func TestDetermineRelationship_SupersedesSameTypeOlderThanADay(t *testing.T) {
	now := time.Now().UTC()
	a := memory.Record{Type: memory.TypeDecision, CreatedAt: now}
	b := memory.Record{Type: memory.TypeDecision, CreatedAt: now.Add(-48 * time.Hour)}
	require.Equal(t, Supersedes, determineRelationship(a, b, now))
}
