// Package lifecycle implements staleness scoring, the write-time
// quality gate, the pruning sweep, duplicate detection, and bulk
// re-embedding.
package lifecycle

import (
	"context"
	"strings"
	"time"

	"agentmemory/internal/apierr"
	"agentmemory/internal/memory"
	"agentmemory/internal/retrieve"
	"agentmemory/internal/store/vector"
)

// Staleness computes a [0,100] heuristic score: age + access-scarcity +
// type-risk + low-usefulness, clamped to 100.
func Staleness(r memory.Record, now time.Time) int {
	score := 0

	ageDays := r.AgeDays(now)
	ageScore := ageDays / 10
	if ageScore > 40 {
		ageScore = 40
	}
	score += int(ageScore)

	switch {
	case r.AccessCount == 0:
		score += 30
	case r.AccessCount < 3:
		score += 20
	case r.AccessCount < 10:
		score += 10
	}

	switch r.Type {
	case memory.TypeDocs:
		score += 20
	case memory.TypeError:
		score += 10
	case memory.TypeDecision:
		score += 5
	}

	switch {
	case r.UsefulnessScore < 0.3:
		score += 10
	case r.UsefulnessScore < 0.5:
		score += 5
	}

	if score > 100 {
		score = 100
	}
	return score
}

// minContentLen is "≥ ~20 significant chars" gate.
const minContentLen = 20

// junkFingerprints are known low-value content patterns, grounded on
// cleanup_low_quality_memories.py's useless_patterns list.
var junkFingerprints = []string{
	"Session ended (session_end) - Duration: unknown.",
	"Duration: unknown.",
}

// QualityGate rejects records whose content is empty/too short or
// matches a known junk fingerprint.
func QualityGate(r memory.Record) error {
	content := strings.TrimSpace(r.Content)
	if len(content) < minContentLen {
		return apierr.Validation("content too short: need at least %d chars, got %d", minContentLen, len(content))
	}
	for _, f := range junkFingerprints {
		if content == f {
			return apierr.Validation("content matches known junk fingerprint")
		}
	}
	if hasSessionEndNoWork(r) {
		return apierr.Validation("empty session-end summary with no recorded work")
	}
	return nil
}

func hasSessionEndNoWork(r memory.Record) bool {
	hasTag := false
	for _, t := range r.Tags {
		if t == "session-end" {
			hasTag = true
			break
		}
	}
	if !hasTag {
		return false
	}
	if !strings.Contains(r.Content, "Duration: unknown") {
		return false
	}
	return strings.Contains(r.Content, "Files edited: 0") || !strings.Contains(r.Content, "Files edited:")
}

// PruneOptions configures Prune.
type PruneOptions struct {
	OlderThanDays int
	MaxDeletions  int
	DryRun        bool
	Now           time.Time
}

// DefaultPruneOptions matches and §6's literal defaults.
var DefaultPruneOptions = PruneOptions{OlderThanDays: 90, MaxDeletions: 1000, DryRun: true}

// PruneReport summarizes one Prune run.
type PruneReport struct {
	CandidateIDs []string
	DeletedIDs   []string
	Kept         int
	DryRun       bool
}

// Engine runs pruning, duplicate detection, and re-embedding over a
// Manager-managed collection.
type Engine struct {
	Manager   *memory.Manager
	Retriever *retrieve.Retriever
	Vector    vector.Store
}

// Prune deletes records matching the delete-iff rule set, or reports
// candidates only when DryRun is true. It never deletes a record whose
// UpdatedAt is newer than the sweep start.
func (e *Engine) Prune(ctx context.Context, opt PruneOptions) (PruneReport, error) {
	if opt.MaxDeletions <= 0 {
		opt.MaxDeletions = DefaultPruneOptions.MaxDeletions
	}
	if opt.OlderThanDays <= 0 {
		opt.OlderThanDays = DefaultPruneOptions.OlderThanDays
	}
	now := opt.Now
	if now.IsZero() {
		now = time.Now().UTC()
	}
	sweepStart := now

	all, err := e.Manager.List(ctx, 0, 0)
	if err != nil {
		return PruneReport{}, err
	}

	report := PruneReport{DryRun: opt.DryRun}
	threshold := time.Duration(opt.OlderThanDays) * 24 * time.Hour

	for _, r := range all {
		if r.UpdatedAt.After(sweepStart) {
			report.Kept++
			continue
		}
		age := now.Sub(r.CreatedAt)
		if age < threshold && !alwaysDelete(r, age) {
			report.Kept++
			continue
		}
		if !shouldPrune(r, age) {
			report.Kept++
			continue
		}
		report.CandidateIDs = append(report.CandidateIDs, r.ID)
		if len(report.CandidateIDs) >= opt.MaxDeletions {
			break
		}
	}

	if opt.DryRun {
		return report, nil
	}

	for _, id := range report.CandidateIDs {
		if err := e.Manager.Delete(ctx, id); err != nil {
			return report, apierr.DependencyUnavailable(err, "prune delete %s", id)
		}
		report.DeletedIDs = append(report.DeletedIDs, id)
	}
	return report, nil
}

// shouldPrune implements the primary delete-iff predicate:
// pinned/resolved-error/access/usefulness/relations/type/age.
func shouldPrune(r memory.Record, age time.Duration) bool {
	if r.Pinned {
		return false
	}
	if r.Type == memory.TypeError && r.Resolved {
		return false
	}
	if r.AccessCount > 5 {
		return false
	}
	if r.UsefulnessScore > 0.7 {
		return false
	}
	if len(r.Relations) > 0 {
		return false
	}
	if r.Type == memory.TypeDecision || r.Type == memory.TypePattern {
		return false
	}
	return true
}

// alwaysDelete implements two carve-outs: empty-access context records,
// and near-zero-usefulness never-accessed records. A match only lifts the
// age threshold; Prune still requires shouldPrune to hold before the
// record becomes a candidate.
func alwaysDelete(r memory.Record, age time.Duration) bool {
	if r.Type == memory.TypeContext && r.AccessCount == 0 {
		return true
	}
	if r.UsefulnessScore < 0.3 && r.AccessCount == 0 {
		return true
	}
	return false
}

// DuplicateReport names a later-created record that supersedes a
// candidate by content similarity. Duplicates are reported, never
// deleted automatically.
type DuplicateReport struct {
	CandidateID string
	SupersederID string
	Similarity  float32
}

// duplicateSimilarityThreshold is 0.85.
const duplicateSimilarityThreshold = 0.85

// DetectDuplicates runs a self-search with the candidate's own content
// and reports any other record at or above the similarity threshold
// created after the candidate. It queries the vector store directly
// (bypassing the Retriever's RRF fusion) since the 0.85 threshold is a
// raw cosine similarity, not a fused rank score.
func (e *Engine) DetectDuplicates(ctx context.Context, r memory.Record) ([]DuplicateReport, error) {
	if e.Retriever == nil || e.Retriever.Embedder == nil || e.Vector == nil {
		return nil, nil
	}
	vecs, err := e.Retriever.Embedder.EmbedDocument(ctx, memory.EnrichedText(r), false)
	if err != nil {
		return nil, err
	}
	results, err := e.Vector.HybridSearch(ctx, vecs.Dense, nil, vector.Filter{}, 20)
	if err != nil {
		return nil, err
	}
	var out []DuplicateReport
	for _, res := range results {
		if res.ID == r.ID {
			continue
		}
		if res.Score < duplicateSimilarityThreshold {
			continue
		}
		other := memory.RecordFromPayload(res.ID, res.Payload)
		if !other.CreatedAt.After(r.CreatedAt) {
			continue
		}
		out = append(out, DuplicateReport{CandidateID: r.ID, SupersederID: other.ID, Similarity: res.Score})
	}
	return out, nil
}

// ReembedReport summarizes one ReembedAll run.
type ReembedReport struct {
	Processed int
	Batches   int
}

// defaultReembedBatchSize matches reembed_all.py's batched scroll loop.
const defaultReembedBatchSize = 50

// ReembedAll recomputes every record's vectors with the current
// embedding pipeline. Each record is written back through
// Manager.Upsert, so its updated_at payload field is set to the time of
// the run; the other payload fields are written back as read. Re-running
// with unchanged records and an unchanged pipeline yields the same
// vectors.
func (e *Engine) ReembedAll(ctx context.Context, batchSize int) (ReembedReport, error) {
	if batchSize <= 0 {
		batchSize = defaultReembedBatchSize
	}
	report := ReembedReport{}
	cursor := ""
	for {
		points, next, err := e.Vector.Scroll(ctx, vectorFilterAll(), cursor, batchSize)
		if err != nil {
			return report, apierr.DependencyUnavailable(err, "scroll for reembed")
		}
		if len(points) == 0 {
			break
		}
		report.Batches++
		for _, p := range points {
			r := memory.RecordFromPayload(p.ID, p.Payload)
			if _, err := e.Manager.Upsert(ctx, withID(r, p.ID)); err != nil {
				return report, err
			}
			report.Processed++
		}
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}
	return report, nil
}

func vectorFilterAll() vector.Filter { return vector.Filter{} }

func withID(r memory.Record, id string) memory.Record {
	r.ID = id
	return r
}
