package lifecycle

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"agentmemory/internal/embedding"
	"agentmemory/internal/memory"
	"agentmemory/internal/retrieve"
	"agentmemory/internal/store/graph"
	"agentmemory/internal/store/vector"
)

func newTestEngine(t *testing.T) (*Engine, *memory.Manager) {
	t.Helper()
	vs := vector.NewHNSW(64, "cos")
	gs := graph.NewMemory()
	backend := embedding.NewInProcess(64, 1)
	mgr := memory.New(memory.Store{Vector: vs, Graph: gs}, backend)
	return &Engine{Manager: mgr, Vector: vs}, mgr
}

func TestPrune_PreservesHighValueRecords(t *testing.T) {
	e, mgr := newTestEngine(t)
	ctx := context.Background()
	now := time.Now().UTC()
	old := now.Add(-200 * 24 * time.Hour)

	pinned, err := mgr.Upsert(ctx, memory.Record{
		Type: memory.TypeLearning, Content: "a pinned record that is old but still valuable to keep around",
	})
	require.NoError(t, err)
	pinned.Pinned = true
	pinned.CreatedAt = old
	pinned.UpdatedAt = old
	_, err = mgr.Upsert(ctx, pinned)
	require.NoError(t, err)

	accessed, err := mgr.Upsert(ctx, memory.Record{
		Type: memory.TypeDecision, Content: "a decision record accessed frequently and deemed useful over time",
	})
	require.NoError(t, err)
	accessed.AccessCount = 6
	accessed.UsefulnessScore = 0.8
	accessed.CreatedAt = old
	accessed.UpdatedAt = old
	_, err = mgr.Upsert(ctx, accessed)
	require.NoError(t, err)

	junk, err := mgr.Upsert(ctx, memory.Record{
		Type: memory.TypeContext, Content: "stale context nobody ever looked at again after it was written",
	})
	require.NoError(t, err)
	junk.CreatedAt = old
	junk.UpdatedAt = old
	_, err = mgr.Upsert(ctx, junk)
	require.NoError(t, err)

	relTarget, err := mgr.Upsert(ctx, memory.Record{
		Type: memory.TypeLearning, Content: "a target record that another memory below holds a relation to",
	})
	require.NoError(t, err)

	related, err := mgr.Upsert(ctx, memory.Record{
		Type: memory.TypeLearning, Content: "an old rarely-accessed record that nonetheless still carries a relation",
		Relations: []memory.Relation{{TargetID: relTarget.ID, Type: "RELATED"}},
	})
	require.NoError(t, err)
	related.CreatedAt = old
	related.UpdatedAt = old
	_, err = mgr.Upsert(ctx, related)
	require.NoError(t, err)

	report, err := e.Prune(ctx, PruneOptions{OlderThanDays: 90, MaxDeletions: 1000, DryRun: true, Now: now})
	require.NoError(t, err)

	require.NotContains(t, report.CandidateIDs, pinned.ID)
	require.NotContains(t, report.CandidateIDs, accessed.ID)
	require.NotContains(t, report.CandidateIDs, related.ID)
	require.Contains(t, report.CandidateIDs, junk.ID)
}

func TestQualityGate_RejectsShortContent(t *testing.T) {
	err := QualityGate(memory.Record{Content: "too short"})
	require.Error(t, err)
}

func TestQualityGate_RejectsKnownJunkFingerprint(t *testing.T) {
	err := QualityGate(memory.Record{Content: "Session ended (session_end) - Duration: unknown."})
	require.Error(t, err)
}

func TestQualityGate_AcceptsSubstantiveContent(t *testing.T) {
	err := QualityGate(memory.Record{Content: "Switched the retry backoff to exponential with jitter after repeated timeouts."})
	require.NoError(t, err)
}

func TestStaleness_OldUnusedDocsScoresHigherThanFreshDecision(t *testing.T) {
	now := time.Now().UTC()
	stale := memory.Record{CreatedAt: now.Add(-400 * 24 * time.Hour), Type: memory.TypeDocs, AccessCount: 0, UsefulnessScore: 0.1}
	fresh := memory.Record{CreatedAt: now, Type: memory.TypeDecision, AccessCount: 20, UsefulnessScore: 0.9}
	require.Greater(t, Staleness(stale, now), Staleness(fresh, now))
}

func TestDetectDuplicates_FindsLaterSimilarRecordAboveThreshold(t *testing.T) {
	vs := vector.NewHNSW(64, "cos")
	gs := graph.NewMemory()
	backend := embedding.NewInProcess(64, 1)
	mgr := memory.New(memory.Store{Vector: vs, Graph: gs}, backend)
	retriever := &retrieve.Retriever{Vector: vs, Embedder: backend, Manager: mgr}
	e := &Engine{Manager: mgr, Retriever: retriever, Vector: vs}
	ctx := context.Background()

	earlier, err := mgr.Upsert(ctx, memory.Record{Type: memory.TypeLearning, Content: "retry uploads on ECONNRESET with exponential backoff and jitter"})
	require.NoError(t, err)
	later, err := mgr.Upsert(ctx, memory.Record{Type: memory.TypeLearning, Content: "retry uploads on ECONNRESET with exponential backoff and jitter"})
	require.NoError(t, err)
	later.CreatedAt = earlier.CreatedAt.Add(time.Minute)
	later.UpdatedAt = later.CreatedAt
	_, err = mgr.Upsert(ctx, later)
	require.NoError(t, err)

	earlierFull, err := mgr.Get(ctx, earlier.ID)
	require.NoError(t, err)

	dups, err := e.DetectDuplicates(ctx, earlierFull)
	require.NoError(t, err)
	require.NotEmpty(t, dups)
	require.Equal(t, later.ID, dups[0].SupersederID)
	require.GreaterOrEqual(t, dups[0].Similarity, float32(0.85))
}

func TestReembedAll_ProcessesEveryRecord(t *testing.T) {
	e, mgr := newTestEngine(t)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		_, err := mgr.Upsert(ctx, memory.Record{Type: memory.TypeLearning, Content: "content worth re-embedding for the batch test run"})
		require.NoError(t, err)
	}
	report, err := e.ReembedAll(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, 3, report.Processed)
}
