// Package planner implements the multi-query planner: fanning out
// independent retrieval strategies concurrently, bounded to a small
// worker count via golang.org/x/sync/errgroup.SetLimit, then merging
// and deduplicating by fused score.
package planner

import (
	"context"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"agentmemory/internal/retrieve"
)

// MaxFanOut bounds concurrent strategy dispatch.
const MaxFanOut = 8

// Strategy describes one retrieval probe. Exactly one of the typed
// fields is meaningful per Kind.
type Strategy struct {
	Kind    Kind
	Type    string   // for KindType
	Tags    []string // for KindTags
	Project string   // for KindProject
}

// Kind enumerates the retrieval strategy descriptors.
type Kind string

const (
	KindSemantic Kind = "semantic"
	KindType     Kind = "type"
	KindTags     Kind = "tags"
	KindProject  Kind = "project"
	KindExpanded Kind = "expanded"
)

// synonymLexicon is the static, configurable domain-synonym table for the
// "expanded" strategy (bug→error example).
var synonymLexicon = map[string][]string{
	"bug":     {"error", "issue", "problem", "defect"},
	"crash":   {"panic", "fault", "failure"},
	"slow":    {"latency", "performance", "timeout"},
	"broken":  {"failing", "error", "regression"},
	"fix":     {"patch", "resolve", "workaround"},
	"db":      {"database", "storage", "query"},
	"auth":    {"authentication", "authorization", "login"},
	"memory":  {"leak", "allocation", "oom"},
	"network": {"connection", "socket", "timeout"},
}

// SetSynonymLexicon overrides the default synonym table (configuration
// escape hatch: "the full lexicon is a static table,
// configurable").
func SetSynonymLexicon(lexicon map[string][]string) {
	synonymLexicon = lexicon
}

// ExpandQuery appends synonym terms detected in query to its own text.
func ExpandQuery(query string) string {
	lower := strings.ToLower(query)
	seen := map[string]bool{}
	var extra []string
	for term, synonyms := range synonymLexicon {
		if strings.Contains(lower, term) {
			for _, s := range synonyms {
				if !seen[s] {
					seen[s] = true
					extra = append(extra, s)
				}
			}
		}
	}
	if len(extra) == 0 {
		return query
	}
	return query + " " + strings.Join(extra, " ")
}

// Hit is a merged result annotated with the strategy that produced it.
type Hit struct {
	Item     retrieve.Item
	Strategy Kind
}

// Response is the outcome of Plan.
type Response struct {
	Merged         []Hit
	StrategyCounts map[Kind]int
}

// Plan fans out each strategy as an independent Retriever.Search call,
// bounded by MaxFanOut concurrent goroutines via errgroup.SetLimit, then
// merges by fused score descending and deduplicates by id, preserving
// first occurrence.
func Plan(ctx context.Context, r *retrieve.Retriever, query string, limit int, alpha float64, rerank bool, strategies []Strategy) (Response, error) {
	type strategyResult struct {
		kind  Kind
		items []retrieve.Item
	}

	results := make([]strategyResult, len(strategies))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(MaxFanOut)

	for i, s := range strategies {
		i, s := i, s
		g.Go(func() error {
			req := retrieve.Request{Query: query, Limit: limit, Alpha: alpha, Rerank: rerank}
			switch s.Kind {
			case KindSemantic:
				// no extra constraint; pure semantic probe
			case KindType:
				req.Type = s.Type
			case KindTags:
				req.TagsContains = s.Tags
			case KindProject:
				req.Project = s.Project
			case KindExpanded:
				req.Query = ExpandQuery(query)
			}
			resp, err := r.Search(gctx, req)
			if err != nil {
				return err
			}
			results[i] = strategyResult{kind: s.Kind, items: resp.Items}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Response{}, err
	}

	counts := make(map[Kind]int, len(strategies))
	var all []Hit
	for _, res := range results {
		counts[res.kind] += len(res.items)
		for _, it := range res.items {
			all = append(all, Hit{Item: it, Strategy: res.kind})
		}
	}

	sort.SliceStable(all, func(i, j int) bool { return all[i].Item.FusedScore > all[j].Item.FusedScore })

	seen := make(map[string]bool, len(all))
	merged := make([]Hit, 0, len(all))
	for _, h := range all {
		if seen[h.Item.Record.ID] {
			continue
		}
		seen[h.Item.Record.ID] = true
		merged = append(merged, h)
	}

	return Response{Merged: merged, StrategyCounts: counts}, nil
}
