package vector

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/coder/hnsw"
)

// hnswStore is an in-process ANN vector store used for the "InProcess"
// embedding-backend deployment mode where no external
// vector store is configured at all. Deletion is lazy: ids are orphaned
// from the id maps rather than removed from the underlying graph, which
// avoids a known issue deleting the last remaining node from a coder/hnsw
// graph.
type hnswStore struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	dim    int
	metric string

	idToKey map[string]uint64
	keyToID map[uint64]string
	payload map[string]map[string]any
	nextKey uint64
}

// NewHNSW creates an in-process vector store with the given dimension and
// metric ("cos" or "l2").
func NewHNSW(dimensions int, metric string) Store {
	g := hnsw.NewGraph[uint64]()
	switch metric {
	case "l2":
		g.Distance = hnsw.EuclideanDistance
	default:
		metric = "cos"
		g.Distance = hnsw.CosineDistance
	}
	g.M = 16
	g.EfSearch = 20
	g.Ml = 0.25

	return &hnswStore{
		graph:   g,
		dim:     dimensions,
		metric:  metric,
		idToKey: make(map[string]uint64),
		keyToID: make(map[uint64]string),
		payload: make(map[string]map[string]any),
	}
}

func normalize(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	var sumSq float64
	for _, x := range out {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return out
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	for i := range out {
		out[i] *= inv
	}
	return out
}

func (s *hnswStore) Upsert(ctx context.Context, points []Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		if s.dim > 0 && len(p.Dense) != s.dim {
			return fmt.Errorf("vector dimension mismatch: expected %d, got %d", s.dim, len(p.Dense))
		}
		if existing, ok := s.idToKey[p.ID]; ok {
			delete(s.keyToID, existing)
			delete(s.idToKey, p.ID)
		}
		key := s.nextKey
		s.nextKey++

		vec := p.Dense
		if s.metric == "cos" {
			vec = normalize(vec)
		}
		s.graph.Add(hnsw.MakeNode(key, vec))
		s.idToKey[p.ID] = key
		s.keyToID[key] = p.ID
		s.payload[p.ID] = p.Payload
	}
	return nil
}

func (s *hnswStore) Delete(ctx context.Context, ids []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range ids {
		if key, ok := s.idToKey[id]; ok {
			delete(s.keyToID, key)
			delete(s.idToKey, id)
			delete(s.payload, id)
		}
	}
	return nil
}

func (s *hnswStore) Scroll(ctx context.Context, filter Filter, cursor string, limit int) ([]Point, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.idToKey))
	for id := range s.idToKey {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	start := 0
	if cursor != "" {
		start = len(ids)
		for i, id := range ids {
			if id > cursor {
				start = i
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(ids) {
		end = len(ids)
	}
	var out []Point
	var next string
	for _, id := range ids[start:end] {
		if !matchesFilter(s.payload[id], filter) {
			continue
		}
		out = append(out, Point{ID: id, Payload: s.payload[id]})
	}
	if end > start {
		next = ids[end-1]
	}
	return out, next, nil
}

func (s *hnswStore) HybridSearch(ctx context.Context, dense []float32, sparse *SparseVector, filter Filter, limit int) ([]Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 10
	}
	if s.graph.Len() == 0 {
		return []Result{}, nil
	}
	q := dense
	if s.metric == "cos" {
		q = normalize(dense)
	}
	// Oversample so post-filtering still yields `limit` results.
	nodes := s.graph.Search(q, limit*4+10)

	out := make([]Result, 0, limit)
	for _, n := range nodes {
		id, ok := s.keyToID[n.Key]
		if !ok {
			continue
		}
		payload := s.payload[id]
		if !matchesFilter(payload, filter) {
			continue
		}
		dist := s.graph.Distance(q, n.Value)
		out = append(out, Result{ID: id, Score: distanceToScore(dist, s.metric), Payload: payload})
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func distanceToScore(distance float32, metric string) float32 {
	if metric == "l2" {
		return 1.0 / (1.0 + distance)
	}
	return 1.0 - distance
}

func (s *hnswStore) NativeSparse() bool { return false }

func (s *hnswStore) Dimension() int { return s.dim }

func (s *hnswStore) Close() error { return nil }

var _ Store = (*hnswStore)(nil)
