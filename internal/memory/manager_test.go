package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"agentmemory/internal/embedding"
	"agentmemory/internal/store/graph"
	"agentmemory/internal/store/vector"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	vs := vector.NewHNSW(64, "cos")
	gs := graph.NewMemory()
	backend := embedding.NewInProcess(64, 1)
	return New(Store{Vector: vs, Graph: gs}, backend)
}

func TestUpsertGet_RoundTripPreservesRelations(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	target, err := mgr.Upsert(ctx, Record{Type: TypeLearning, Content: "a target record something else relates to"})
	require.NoError(t, err)

	created, err := mgr.Upsert(ctx, Record{
		Type:      TypeError,
		Content:   "an error record that relates to the target above",
		Relations: []Relation{{TargetID: target.ID, Type: "RELATED"}},
	})
	require.NoError(t, err)
	require.Len(t, created.Relations, 1)

	fetched, err := mgr.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, created.Content, fetched.Content)
	require.Equal(t, []Relation{{TargetID: target.ID, Type: "RELATED"}}, fetched.Relations)
}

func TestUpsertGet_RoundTripNoRelationsIsEmpty(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	created, err := mgr.Upsert(ctx, Record{Type: TypeDecision, Content: "a decision record with no relations at all"})
	require.NoError(t, err)

	fetched, err := mgr.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Empty(t, fetched.Relations)
}

func TestPatch_AddRelationsRoundTrips(t *testing.T) {
	mgr := newTestManager(t)
	ctx := context.Background()

	target, err := mgr.Upsert(ctx, Record{Type: TypeLearning, Content: "a second target record for the patch test"})
	require.NoError(t, err)

	created, err := mgr.Upsert(ctx, Record{Type: TypePattern, Content: "a pattern record patched with a relation later"})
	require.NoError(t, err)

	_, err = mgr.PatchRecord(ctx, created.ID, Patch{
		AddRelations: []Relation{{TargetID: target.ID, Type: "SUPPORTS"}},
	}, mgr.Get)
	require.NoError(t, err)

	fetched, err := mgr.Get(ctx, created.ID)
	require.NoError(t, err)
	require.Equal(t, []Relation{{TargetID: target.ID, Type: "SUPPORTS"}}, fetched.Relations)
}
