package graph

import (
	"context"
	"sort"
	"sync"
)

// edgeKey identifies an edge uniquely by (source, rel, target).
type edgeKey struct {
	source, rel, target string
}

// memoryStore is an in-process graph store fallback, used when the graph
// backend is "memory" (the default) or for tests.
type memoryStore struct {
	mu    sync.RWMutex
	nodes map[string]Node
	edges map[edgeKey]map[string]any
}

// NewMemory creates an empty in-process graph store.
func NewMemory() Store {
	return &memoryStore{
		nodes: make(map[string]Node),
		edges: make(map[edgeKey]map[string]any),
	}
}

func (g *memoryStore) UpsertNode(ctx context.Context, id string, labels []string, props map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes[id] = Node{ID: id, Labels: append([]string(nil), labels...), Props: copyProps(props)}
	return nil
}

func (g *memoryStore) DeleteNode(ctx context.Context, id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.nodes, id)
	for k := range g.edges {
		if k.source == id || k.target == id {
			delete(g.edges, k)
		}
	}
	return nil
}

func (g *memoryStore) UpsertEdge(ctx context.Context, source, rel, target string, props map[string]any) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.edges[edgeKey{source, rel, target}] = copyProps(props)
	return nil
}

func (g *memoryStore) DeleteEdge(ctx context.Context, source, rel, target string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.edges, edgeKey{source, rel, target})
	return nil
}

func (g *memoryStore) GetNode(ctx context.Context, id string) (Node, bool, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	return n, ok, nil
}

func (g *memoryStore) Neighbors(ctx context.Context, id, rel string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := []string{}
	for k := range g.edges {
		if k.source == id && k.rel == rel {
			out = append(out, k.target)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (g *memoryStore) OutgoingEdges(ctx context.Context, id string) ([]Edge, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Edge
	for k, props := range g.edges {
		if k.source == id {
			out = append(out, Edge{Source: k.source, Rel: k.rel, Target: k.target, Props: copyProps(props)})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Rel != out[j].Rel {
			return out[i].Rel < out[j].Rel
		}
		return out[i].Target < out[j].Target
	})
	return out, nil
}

func copyProps(in map[string]any) map[string]any {
	if in == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

var _ Store = (*memoryStore)(nil)
