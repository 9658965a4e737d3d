package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"agentmemory/internal/embedding"
	"agentmemory/internal/memory"
	"agentmemory/internal/store/vector"
)

func newTestWatcher(t *testing.T, dir string) (*Watcher, *memory.Manager, vector.Store) {
	t.Helper()
	vs := vector.NewHNSW(64, "cos")
	backend := embedding.NewInProcess(64, 1)
	mgr := memory.New(memory.Store{Vector: vs}, backend)
	w, err := New(Options{
		Folders:      []string{dir},
		StateFile:    filepath.Join(dir, "state.json"),
		ChunkOptions: ChunkOptions{Target: 50, MinLen: 20, MaxLen: 80, Overlap: 10},
	}, mgr, vs, zerolog.Nop())
	require.NoError(t, err)
	return w, mgr, vs
}

func TestWatcher_AtomicReplaceOnContentChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.md")
	require.NoError(t, os.WriteFile(path, []byte("Original paragraph one with enough content to form a chunk.\n\nOriginal paragraph two also long enough to be its own chunk."), 0o644))

	w, _, vs := newTestWatcher(t, dir)
	ctx := context.Background()
	require.NoError(t, w.pollOnce(ctx))

	points, _, err := vs.Scroll(ctx, vector.Filter{Source: path}, "", 100)
	require.NoError(t, err)
	firstCount := len(points)
	require.Greater(t, firstCount, 0)

	require.NoError(t, os.WriteFile(path, []byte("Completely rewritten content that no longer resembles the original text."), 0o644))
	require.NoError(t, w.pollOnce(ctx))

	points, _, err = vs.Scroll(ctx, vector.Filter{Source: path}, "", 100)
	require.NoError(t, err)
	for _, p := range points {
		content, _ := p.Payload["content"].(string)
		require.Contains(t, content, "Completely rewritten")
	}
}

func TestWatcher_UnchangedChunkIsNotDuplicatedOnPartialEdit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.md")
	shared := "This paragraph stays exactly the same across both file versions here."
	require.NoError(t, os.WriteFile(path, []byte(shared+"\n\nOriginal second paragraph that will be replaced next revision."), 0o644))

	w, _, vs := newTestWatcher(t, dir)
	ctx := context.Background()
	require.NoError(t, w.pollOnce(ctx))

	require.NoError(t, os.WriteFile(path, []byte(shared+"\n\nBrand new second paragraph replacing the old one entirely now."), 0o644))
	require.NoError(t, w.pollOnce(ctx))

	points, _, err := vs.Scroll(ctx, vector.Filter{Source: path}, "", 100)
	require.NoError(t, err)

	sharedCount := 0
	for _, p := range points {
		if content, _ := p.Payload["content"].(string); content == shared {
			sharedCount++
		}
	}
	require.Equal(t, 1, sharedCount, "unchanged chunk must not be duplicated across re-indexing")
}

func TestWatcher_SkipsUnchangedFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "note.txt")
	require.NoError(t, os.WriteFile(path, []byte("Some stable content that will not change between polls at all."), 0o644))

	w, _, vs := newTestWatcher(t, dir)
	ctx := context.Background()
	require.NoError(t, w.pollOnce(ctx))
	points1, _, err := vs.Scroll(ctx, vector.Filter{Source: path}, "", 100)
	require.NoError(t, err)

	require.NoError(t, w.pollOnce(ctx))
	points2, _, err := vs.Scroll(ctx, vector.Filter{Source: path}, "", 100)
	require.NoError(t, err)
	require.Equal(t, len(points1), len(points2))
}

func TestChunk_RespectsParagraphBoundaries(t *testing.T) {
	text := "First paragraph of reasonable length for testing purposes here.\n\nSecond paragraph that is also long enough to matter in this test."
	chunks := Chunk(text, ChunkOptions{Target: 40, MinLen: 10, MaxLen: 90, Overlap: 5})
	require.NotEmpty(t, chunks)
}
