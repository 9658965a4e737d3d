// Package relationship implements typed links between memory records:
// idempotent explicit link creation, rule-based auto-linking over
// recently-created records, and edge-type-priority BFS traversal.
package relationship

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"agentmemory/internal/apierr"
	"agentmemory/internal/embedding"
	"agentmemory/internal/memory"
	"agentmemory/internal/store/graph"
	"agentmemory/internal/store/vector"
)

// Edge types.
const (
	Causes      = "CAUSES"
	Fixes       = "FIXES"
	Contradicts = "CONTRADICTS"
	Supports    = "SUPPORTS"
	Follows     = "FOLLOWS"
	Related     = "RELATED"
	Supersedes  = "SUPERSEDES"
)

// EdgePriority orders edge types for BFS tie-breaking:
// FIXES > SUPERSEDES > SUPPORTS > FOLLOWS > CAUSES > CONTRADICTS > RELATED.
var EdgePriority = map[string]int{
	Fixes:       0,
	Supersedes:  1,
	Supports:    2,
	Follows:     3,
	Causes:      4,
	Contradicts: 5,
	Related:     6,
}

// Engine implements Link, AutoLink, and Related.
type Engine struct {
	Graph    graph.Store
	Manager  *memory.Manager
	Vector   vector.Store
	Embedder embedding.Backend
}

// Link creates an idempotent (source, target, type) edge. Self-loops are
// rejected; a missing source or target is an error, neither is
// auto-materialised.
func (e *Engine) Link(ctx context.Context, source, target, relType string) error {
	if e.Graph == nil {
		return apierr.Validation("graph features are disabled")
	}
	if source == target {
		return apierr.Validation("self-loop link rejected for %q", source)
	}
	if _, ok, err := e.Graph.GetNode(ctx, source); err != nil {
		return apierr.DependencyUnavailable(err, "check link source %s", source)
	} else if !ok {
		return apierr.NotFound("link source %q does not exist", source)
	}
	if _, ok, err := e.Graph.GetNode(ctx, target); err != nil {
		return apierr.DependencyUnavailable(err, "check link target %s", target)
	} else if !ok {
		return apierr.NotFound("link target %q does not exist", target)
	}
	if err := e.Graph.UpsertEdge(ctx, source, relType, target, nil); err != nil {
		return apierr.DependencyUnavailable(err, "upsert edge %s-%s->%s", source, relType, target)
	}
	return nil
}

// AutoLinkOptions parameterizes AutoLink's
// AUTO_LINK_WINDOW_HOURS / AUTO_LINK_TOP_K / AUTO_LINK_MIN_SIMILARITY.
type AutoLinkOptions struct {
	WindowHours   int
	TopK          int
	MinSimilarity float32
}

// DefaultAutoLinkOptions matches defaults.
var DefaultAutoLinkOptions = AutoLinkOptions{WindowHours: 24, TopK: 5, MinSimilarity: 0.70}

// AutoLinkReport summarizes one AutoLink run.
type AutoLinkReport struct {
	Processed int
	Created   []Edge
}

// Edge is one link created by AutoLink.
type Edge struct {
	Source string
	Target string
	Type   string
}

// AutoLink applies the cascading relationship rules to every record
// created within the window, linking it to its top-K nearest neighbours
// (excluding itself) at or above MinSimilarity. Rule evaluation is
// first-match-wins: only the first matching rule fires.
func (e *Engine) AutoLink(ctx context.Context, now time.Time, opt AutoLinkOptions) (AutoLinkReport, error) {
	if opt.WindowHours <= 0 {
		opt = DefaultAutoLinkOptions
	}
	all, err := e.Manager.List(ctx, 0, 0)
	if err != nil {
		return AutoLinkReport{}, err
	}
	cutoff := now.Add(-time.Duration(opt.WindowHours) * time.Hour)
	var recent []memory.Record
	for _, r := range all {
		if !r.CreatedAt.Before(cutoff) {
			recent = append(recent, r)
		}
	}

	report := AutoLinkReport{}
	seenEdges := map[Edge]bool{}
	for _, a := range recent {
		neighbours, err := e.nearestNeighbours(ctx, a, opt.TopK, opt.MinSimilarity)
		if err != nil {
			return report, err
		}
		report.Processed++
		for _, b := range neighbours {
			if b.ID == a.ID {
				continue
			}
			relType := determineRelationship(a, b, now)
			if relType == "" {
				continue
			}
			src, dst := a.ID, b.ID
			if relType == Fixes && a.Type == memory.TypeLearning {
				// a is the learning, b is the error it fixes; the edge
				// direction is always error->learning, so swap roles here.
				src, dst = b.ID, a.ID
			}
			if src == dst {
				continue
			}
			edge := Edge{Source: src, Target: dst, Type: relType}
			if seenEdges[edge] {
				continue
			}
			seenEdges[edge] = true
			if e.Graph != nil {
				if err := e.Graph.UpsertEdge(ctx, src, relType, dst, nil); err != nil {
					return report, apierr.DependencyUnavailable(err, "autolink edge %s-%s->%s", src, relType, dst)
				}
			}
			report.Created = append(report.Created, edge)
		}
	}
	return report, nil
}

// nearestNeighbours finds a's top-K nearest neighbours by cosine
// similarity, querying the vector store directly rather than through
// the Retriever so the similarity threshold compares against a real
// cosine score instead of an RRF-fused rank score.
func (e *Engine) nearestNeighbours(ctx context.Context, a memory.Record, topK int, minSim float32) ([]memory.Record, error) {
	if e.Vector == nil || e.Embedder == nil {
		return nil, nil
	}
	vecs, err := e.Embedder.EmbedDocument(ctx, memory.EnrichedText(a), false)
	if err != nil {
		return nil, err
	}
	results, err := e.Vector.HybridSearch(ctx, vecs.Dense, nil, vector.Filter{}, topK+1)
	if err != nil {
		return nil, err
	}
	out := make([]memory.Record, 0, topK)
	for _, res := range results {
		if res.ID == a.ID {
			continue
		}
		if res.Score < minSim {
			continue
		}
		out = append(out, memory.RecordFromPayload(res.ID, res.Payload))
		if len(out) == topK {
			break
		}
	}
	return out, nil
}

// determineRelationship implements the cascading rule set, first-match-wins.
func determineRelationship(a, b memory.Record, now time.Time) string {
	if a.Type == memory.TypeError && b.Type == memory.TypeLearning &&
		a.ErrorMessage != "" && strings.Contains(strings.ToLower(b.Content), strings.ToLower(a.ErrorMessage)) {
		return Fixes
	}
	if a.Type == memory.TypeLearning && b.Type == memory.TypeError &&
		b.ErrorMessage != "" && strings.Contains(strings.ToLower(a.Content), strings.ToLower(b.ErrorMessage)) {
		return Fixes
	}

	isDecisionOrPattern := func(t memory.Type) bool { return t == memory.TypeDecision || t == memory.TypePattern }
	if isDecisionOrPattern(a.Type) && isDecisionOrPattern(b.Type) && a.Type != b.Type {
		return Supports
	}

	if a.Project != "" && a.Project == b.Project && sharedTagCount(a.Tags, b.Tags) >= 2 {
		return Related
	}

	if a.Type == memory.TypeLearning && b.Type == memory.TypeLearning {
		if absDuration(a.CreatedAt.Sub(b.CreatedAt)) < 5*time.Minute {
			return Follows
		}
	}

	if a.Type == b.Type && a.Project == b.Project {
		diff := a.CreatedAt.Sub(b.CreatedAt)
		if diff > 24*time.Hour {
			return Supersedes
		}
	}

	return Related
}

func sharedTagCount(a, b []string) int {
	set := make(map[string]bool, len(a))
	for _, t := range a {
		set[t] = true
	}
	n := 0
	for _, t := range b {
		if set[t] {
			n++
		}
	}
	return n
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

// RelatedNode is one node in a traversal result, annotated with hop
// distance and the edge type that reached it.
type RelatedNode struct {
	ID       string
	Hops     int
	ViaEdge  string
	FromNode string
}

// Related returns the subgraph reachable from id up to maxHops, in BFS
// order, tie-broken by EdgePriority when multiple edges are available at
// the same BFS frontier.
func (e *Engine) Related(ctx context.Context, id string, maxHops, limit int) ([]RelatedNode, error) {
	if e.Graph == nil {
		return nil, apierr.Validation("graph features are disabled")
	}
	if maxHops <= 0 {
		maxHops = 2
	}
	if limit <= 0 {
		limit = 50
	}

	visited := map[string]bool{id: true}
	queue := []RelatedNode{{ID: id, Hops: 0}}
	var out []RelatedNode

	for len(queue) > 0 && len(out) < limit {
		cur := queue[0]
		queue = queue[1:]
		if cur.Hops > 0 {
			out = append(out, cur)
		}
		if cur.Hops >= maxHops {
			continue
		}
		edges, err := e.Graph.OutgoingEdges(ctx, cur.ID)
		if err != nil {
			return nil, apierr.DependencyUnavailable(err, "outgoing edges for %s", cur.ID)
		}
		sort.Slice(edges, func(i, j int) bool {
			pi, pj := edgePriorityOf(edges[i].Rel), edgePriorityOf(edges[j].Rel)
			if pi != pj {
				return pi < pj
			}
			return edges[i].Target < edges[j].Target
		})
		for _, ed := range edges {
			if visited[ed.Target] {
				continue
			}
			visited[ed.Target] = true
			queue = append(queue, RelatedNode{ID: ed.Target, Hops: cur.Hops + 1, ViaEdge: ed.Rel, FromNode: cur.ID})
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func edgePriorityOf(rel string) int {
	if p, ok := EdgePriority[rel]; ok {
		return p
	}
	return len(EdgePriority)
}

// ReconcileDanglingEdges sweeps the graph for edges whose source or
// target node no longer has a backing record, deleting them so the
// graph-node-exists-iff-record-exists invariant holds.
func (e *Engine) ReconcileDanglingEdges(ctx context.Context, ids []string) error {
	if e.Graph == nil {
		return nil
	}
	live := make(map[string]bool, len(ids))
	for _, id := range ids {
		live[id] = true
	}
	for _, id := range ids {
		edges, err := e.Graph.OutgoingEdges(ctx, id)
		if err != nil {
			return fmt.Errorf("outgoing edges for %s: %w", id, err)
		}
		for _, ed := range edges {
			if !live[ed.Target] {
				if _, ok, err := e.Graph.GetNode(ctx, ed.Target); err == nil && !ok {
					_ = e.Graph.DeleteEdge(ctx, ed.Source, ed.Rel, ed.Target)
				}
			}
		}
	}
	return nil
}
