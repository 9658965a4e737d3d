// Package ingest implements the document ingestor: a polling directory
// watcher that extracts, chunks, embeds and upserts documents as
// docs-typed memory records, with an fsnotify layer that only shortens
// the next poll.
package ingest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"
	"github.com/rs/zerolog"

	"agentmemory/internal/apierr"
	"agentmemory/internal/memory"
	"agentmemory/internal/store/vector"
)

// FileState is one entry of the ingestor's persisted state map, keyed by
// absolute path, recording the content hash and last index time.
type FileState struct {
	ContentHash  string    `json:"content_hash"`
	LastIndexed  time.Time `json:"last_indexed_at"`
	ChunkHashes  []string  `json:"chunk_hashes"`
}

// Options configures a Watcher.
type Options struct {
	Folders      []string
	ExcludeDirs  []string
	StateFile    string
	PollInterval time.Duration
	ChunkOptions ChunkOptions
}

// Watcher polls a set of folders for new or changed documents and
// indexes them as docs-typed memory records.
type Watcher struct {
	opt     Options
	manager *memory.Manager
	vec     vector.Store
	log     zerolog.Logger

	state map[string]FileState
}

// New constructs a Watcher and loads any existing state file.
func New(opt Options, manager *memory.Manager, vec vector.Store, log zerolog.Logger) (*Watcher, error) {
	if opt.PollInterval <= 0 {
		opt.PollInterval = 30 * time.Second
	}
	if opt.ChunkOptions.Target <= 0 {
		opt.ChunkOptions = DefaultChunkOptions
	}
	w := &Watcher{opt: opt, manager: manager, vec: vec, log: log, state: map[string]FileState{}}
	if opt.StateFile != "" {
		if err := w.loadState(); err != nil {
			return nil, err
		}
	}
	return w, nil
}

// Run polls on opt.PollInterval until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.opt.PollInterval)
	defer ticker.Stop()

	if err := w.pollOnce(ctx); err != nil {
		w.log.Error().Err(err).Msg("initial ingest poll failed")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := w.pollOnce(ctx); err != nil {
				w.log.Error().Err(err).Msg("ingest poll failed")
			}
		}
	}
}

// pollOnce walks every configured folder and processes each eligible
// file in turn, sequentially.
func (w *Watcher) pollOnce(ctx context.Context) error {
	var paths []string
	for _, folder := range w.opt.Folders {
		_ = filepath.WalkDir(folder, func(path string, d os.DirEntry, err error) error {
			if err != nil || d.IsDir() {
				return nil
			}
			paths = append(paths, path)
			return nil
		})
	}
	sort.Strings(paths)

	for _, path := range paths {
		if err := w.processFile(ctx, path); err != nil {
			w.log.Error().Err(err).Str("path", path).Msg("ingest file failed")
		}
	}
	return w.saveState()
}

// processFile hashes, extracts, chunks, embeds and upserts one file,
// skipping it entirely when its content hash is unchanged since the
// last poll.
func (w *Watcher) processFile(ctx context.Context, path string) error {
	ext := filepathExt(path)
	if !SupportedExtensions[ext] || IsExcluded(path, w.opt.ExcludeDirs) {
		return nil
	}
	if IsHidden(path) {
		return nil
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read %s: %w", path, err)
	}
	hash := md5Hex(raw)
	prior, known := w.state[path]
	if known && prior.ContentHash == hash {
		return nil
	}

	text, err := Extract(path)
	if err != nil {
		return fmt.Errorf("extract %s: %w", path, err)
	}
	chunks := Chunk(text, w.opt.ChunkOptions)

	existingHashes, err := w.existingChunkHashes(ctx, path)
	if err != nil {
		return err
	}

	newHashes := make([]string, 0, len(chunks))
	for i, chunk := range chunks {
		chunkHash := md5Hex([]byte(chunk))
		newHashes = append(newHashes, chunkHash)
		if existingHashes[chunkHash] {
			// Unchanged chunk already stored under this (source,
			// content_hash): skip to preserve the uniqueness invariant
			// instead of writing a duplicate record.
			continue
		}
		_, err := w.manager.Upsert(ctx, memory.Record{
			Type:        memory.TypeDocs,
			Content:     chunk,
			Source:      path,
			ContentHash: chunkHash,
			Tags:        []string{"ingested", fmt.Sprintf("chunk-%d", i)},
		})
		if err != nil {
			// Abort the file without deleting its old chunks; retry
			// happens on the next poll.
			return apierr.DependencyUnavailable(err, "upsert chunk %d of %s", i, path)
		}
	}

	if err := w.deleteStaleChunks(ctx, path, newHashes); err != nil {
		return err
	}

	w.state[path] = FileState{ContentHash: hash, LastIndexed: time.Now().UTC(), ChunkHashes: newHashes}
	return nil
}

// existingChunkHashes returns the set of content hashes already stored
// for path, so unchanged chunks are left untouched on reprocessing
// instead of written as duplicate records.
func (w *Watcher) existingChunkHashes(ctx context.Context, path string) (map[string]bool, error) {
	out := map[string]bool{}
	cursor := ""
	for {
		points, next, err := w.vec.Scroll(ctx, vector.Filter{Source: path}, cursor, 200)
		if err != nil {
			return nil, apierr.DependencyUnavailable(err, "scroll existing chunks for %s", path)
		}
		for _, p := range points {
			if h, _ := p.Payload["content_hash"].(string); h != "" {
				out[h] = true
			}
		}
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}
	return out, nil
}

// deleteStaleChunks implements the atomic-replacement invariant: after a
// successful re-index, delete records whose source matches path and
// content_hash is not among the freshly written hashes.
func (w *Watcher) deleteStaleChunks(ctx context.Context, path string, newHashes []string) error {
	keep := make(map[string]bool, len(newHashes))
	for _, h := range newHashes {
		keep[h] = true
	}

	cursor := ""
	var toDelete []string
	for {
		points, next, err := w.vec.Scroll(ctx, vector.Filter{Source: path}, cursor, 200)
		if err != nil {
			return apierr.DependencyUnavailable(err, "scroll stale chunks for %s", path)
		}
		for _, p := range points {
			h, _ := p.Payload["content_hash"].(string)
			if !keep[h] {
				toDelete = append(toDelete, p.ID)
			}
		}
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}
	if len(toDelete) == 0 {
		return nil
	}
	if err := w.vec.Delete(ctx, toDelete); err != nil {
		return apierr.DependencyUnavailable(err, "delete stale chunks for %s", path)
	}
	return nil
}

func (w *Watcher) loadState() error {
	lock := flock.New(w.opt.StateFile + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock ingest state: %w", err)
	}
	defer lock.Unlock()

	b, err := os.ReadFile(w.opt.StateFile)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read ingest state: %w", err)
	}
	return json.Unmarshal(b, &w.state)
}

// saveState writes the state map atomically (write-temp-then-rename),
// guarded by an advisory file lock so a second ingestor process cannot
// race the same state file.
func (w *Watcher) saveState() error {
	if w.opt.StateFile == "" {
		return nil
	}
	lock := flock.New(w.opt.StateFile + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("lock ingest state: %w", err)
	}
	defer lock.Unlock()

	b, err := json.MarshalIndent(w.state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal ingest state: %w", err)
	}
	tmp := w.opt.StateFile + ".tmp"
	if err := os.WriteFile(tmp, b, 0o644); err != nil {
		return fmt.Errorf("write ingest state tmp: %w", err)
	}
	return os.Rename(tmp, w.opt.StateFile)
}

func md5Hex(b []byte) string {
	sum := md5.Sum(b)
	return hex.EncodeToString(sum[:])
}

func filepathExt(path string) string {
	return strings.ToLower(filepath.Ext(path))
}
