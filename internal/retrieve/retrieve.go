// Package retrieve implements hybrid retrieval over memory records:
// query embedding, dense+sparse fusion via Reciprocal Rank Fusion,
// optional cross-encoder reranking, and the access-count side effect.
// None of this repo's vector-store backends report a native sparse
// score, so the sparse ranking signal comes from internal/store/fulltext
// (bleve/BM25) rather than a second ranking returned by the vector store
// itself.
package retrieve

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"agentmemory/internal/embedding"
	"agentmemory/internal/memory"
	"agentmemory/internal/store/fulltext"
	"agentmemory/internal/store/vector"
)

// RRFConstant is the k in the Reciprocal Rank Fusion formula
// 1/(k+rank), default.
const RRFConstant = 60

// MaxLimit bounds how many results a single search may request; requests
// above this are clamped and the response is annotated.
const MaxLimit = 200

// Request is one hybrid search call.
type Request struct {
	Query string

	Project       string
	Type          string
	TagsContains  []string
	Source        string // exact match, or a glob pattern (containing *?[ ) applied client-side
	CreatedAfter  *time.Time
	CreatedBefore *time.Time

	Limit  int
	Rerank bool
	Alpha  float64 // dense/sparse blend weight, 0=sparse-only, 1=dense-only
}

// Item is one search hit.
type Item struct {
	Record      memory.Record
	FusedScore  float32
	RerankScore *float32
}

// Response is the outcome of Search.
type Response struct {
	Items    []Item
	Degraded bool // true when sparse was requested/expected but unavailable
	Clamped  bool // true when the requested limit exceeded MaxLimit
}

// Retriever runs the hybrid search pipeline.
type Retriever struct {
	Vector   vector.Store
	Fulltext *fulltext.Index // nil disables the lexical signal entirely
	Embedder embedding.Backend
	Manager  *memory.Manager // used for the best-effort access-count bump
	Log      zerolog.Logger
}

// Search runs the six-step hybrid retrieval algorithm.
func (r *Retriever) Search(ctx context.Context, req Request) (Response, error) {
	limit := req.Limit
	if limit <= 0 {
		return Response{Items: []Item{}}, nil
	}
	clamped := false
	if limit > MaxLimit {
		limit = MaxLimit
		clamped = true
	}
	oversample := limit * 3

	wantSparse := r.Embedder.SparseAvailable()
	qVecs, err := r.Embedder.EmbedQuery(ctx, req.Query, wantSparse)
	if err != nil {
		return Response{}, err
	}

	denseResults, err := r.Vector.HybridSearch(ctx, qVecs.Dense, qVecs.Sparse, toVectorFilter(req), oversample)
	if err != nil {
		return Response{}, err
	}

	degraded := false
	var lexHits []fulltext.Hit
	if r.Fulltext != nil {
		lexHits, err = r.Fulltext.Search(ctx, req.Query, oversample)
		if err != nil {
			r.Log.Error().Err(err).Msg("fulltext search failed, continuing dense-only")
			degraded = true
			lexHits = nil
		}
	} else {
		degraded = true
	}

	fused := fuseRRF(denseResults, lexHits, req.Alpha)
	if err := r.fillMissingPayloads(ctx, fused); err != nil {
		return Response{}, err
	}
	fused = applyGlobSource(fused, req.Source)

	if req.Rerank && r.Embedder.RerankAvailable() && len(fused) > 0 {
		fused, err = rerank(ctx, r.Embedder, req.Query, fused)
		if err != nil {
			return Response{}, err
		}
	}

	if len(fused) > limit {
		fused = fused[:limit]
	}

	items := make([]Item, 0, len(fused))
	for _, f := range fused {
		items = append(items, Item{
			Record:      memory.RecordFromPayload(f.id, f.payload),
			FusedScore:  f.fused,
			RerankScore: f.rerankScore,
		})
	}

	if r.Manager != nil {
		for _, it := range items {
			id := it.Record.ID
			go func() {
				_ = r.Manager.IncrementAccess(context.Background(), id, func(ctx context.Context, id string) (memory.Record, error) {
					return r.Manager.Get(ctx, id)
				})
			}()
		}
	}

	return Response{Items: items, Degraded: degraded, Clamped: clamped}, nil
}

func toVectorFilter(req Request) vector.Filter {
	f := vector.Filter{
		Project:      req.Project,
		Type:         req.Type,
		TagsContains: req.TagsContains,
	}
	if req.Source != "" && !isGlob(req.Source) {
		f.Source = req.Source
	}
	if req.CreatedAfter != nil {
		s := req.CreatedAfter.Unix()
		f.CreatedAfter = &s
	}
	if req.CreatedBefore != nil {
		s := req.CreatedBefore.Unix()
		f.CreatedBefore = &s
	}
	return f
}

func isGlob(s string) bool {
	for _, c := range s {
		if c == '*' || c == '?' || c == '[' {
			return true
		}
	}
	return false
}

type fusedHit struct {
	id          string
	payload     map[string]any
	fused       float32
	denseRank   int
	lexRank     int
	rerankScore *float32
}

func fuseRRF(dense []vector.Result, lex []fulltext.Hit, alpha float64) []fusedHit {
	if alpha < 0 {
		alpha = 0
	}
	if alpha > 1 {
		alpha = 1
	}
	wDense := alpha
	wLex := 1 - alpha

	denseRank := make(map[string]int, len(dense))
	payloads := make(map[string]map[string]any, len(dense))
	for i, d := range dense {
		denseRank[d.ID] = i + 1
		payloads[d.ID] = d.Payload
	}
	lexRank := make(map[string]int, len(lex))
	for i, h := range lex {
		lexRank[h.ID] = i + 1
	}

	seen := map[string]bool{}
	var ids []string
	for _, d := range dense {
		if !seen[d.ID] {
			seen[d.ID] = true
			ids = append(ids, d.ID)
		}
	}
	for _, h := range lex {
		if !seen[h.ID] {
			seen[h.ID] = true
			ids = append(ids, h.ID)
		}
	}

	out := make([]fusedHit, 0, len(ids))
	for _, id := range ids {
		dr := denseRank[id]
		lr := lexRank[id]
		var dContrib, lContrib float64
		if dr > 0 {
			dContrib = 1.0 / float64(RRFConstant+dr)
		}
		if lr > 0 {
			lContrib = 1.0 / float64(RRFConstant+lr)
		}
		fused := float32(wDense*dContrib + wLex*lContrib)
		out = append(out, fusedHit{id: id, payload: payloads[id], fused: fused, denseRank: dr, lexRank: lr})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].fused != out[j].fused {
			return out[i].fused > out[j].fused
		}
		return rankSum(out[i]) < rankSum(out[j])
	})
	return out
}

func rankSum(h fusedHit) int {
	d, l := h.denseRank, h.lexRank
	const inf = 1 << 30
	if d == 0 {
		d = inf
	}
	if l == 0 {
		l = inf
	}
	return d + l
}

// fillMissingPayloads backfills the stored payload for any fused hit
// that only surfaced in the lexical ranking: fulltext.Hit carries no
// payload of its own, so an id absent from the dense oversample set
// would otherwise reach the caller as an empty record (no content,
// type, or timestamps). It scrolls the vector store once for the ids
// still missing a payload after fusion.
func (r *Retriever) fillMissingPayloads(ctx context.Context, hits []fusedHit) error {
	missing := make(map[string]bool)
	for _, h := range hits {
		if h.payload == nil {
			missing[h.id] = true
		}
	}
	if len(missing) == 0 {
		return nil
	}

	const pageSize = 200
	cursor := ""
	for len(missing) > 0 {
		points, next, err := r.Vector.Scroll(ctx, vector.Filter{}, cursor, pageSize)
		if err != nil {
			return err
		}
		for _, p := range points {
			if missing[p.ID] {
				for i := range hits {
					if hits[i].id == p.ID {
						hits[i].payload = p.Payload
					}
				}
				delete(missing, p.ID)
			}
		}
		if next == "" || next == cursor {
			break
		}
		cursor = next
	}
	return nil
}

func applyGlobSource(hits []fusedHit, pattern string) []fusedHit {
	if pattern == "" || !isGlob(pattern) {
		return hits
	}
	out := hits[:0]
	for _, h := range hits {
		src, _ := h.payload["source"].(string)
		if ok, _ := filepath.Match(pattern, src); ok {
			out = append(out, h)
		}
	}
	return out
}

// rerank scores the stored content preview for each candidate with the
// cross-encoder and reorders by score descending, stable tie-break by
// original fused rank.
func rerank(ctx context.Context, backend embedding.Backend, query string, hits []fusedHit) ([]fusedHit, error) {
	texts := make([]string, len(hits))
	for i, h := range hits {
		content, _ := h.payload["content"].(string)
		texts[i] = memory.Record{Content: content}.ContentPreview()
	}
	scores, err := backend.Rerank(ctx, query, texts)
	if err != nil {
		if err == embedding.ErrRerankUnavailable {
			return hits, nil
		}
		return nil, err
	}
	type scored struct {
		hit   fusedHit
		score float32
		orig  int
	}
	ranked := make([]scored, len(hits))
	for i, h := range hits {
		s := scores[i]
		ranked[i] = scored{hit: h, score: s, orig: i}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].orig < ranked[j].orig
	})
	out := make([]fusedHit, len(ranked))
	for i, r := range ranked {
		h := r.hit
		s := r.score
		h.rerankScore = &s
		out[i] = h
	}
	return out, nil
}
