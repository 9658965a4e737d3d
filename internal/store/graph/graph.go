// Package graph defines the graph store contract: a typed, labelled
// property graph with idempotent node/edge upsert and single-hop
// neighbor lookup. Multi-hop traversal and its edge-type priority
// ordering are a concern of internal/relationship, not of the store.
package graph

import "context"

// Node is a labelled property-graph node.
type Node struct {
	ID     string
	Labels []string
	Props  map[string]any
}

// Edge is a typed, directed edge between two node ids.
type Edge struct {
	Source string
	Rel    string
	Target string
	Props  map[string]any
}

// Store is the Graph Store external contract.
type Store interface {
	UpsertNode(ctx context.Context, id string, labels []string, props map[string]any) error
	DeleteNode(ctx context.Context, id string) error
	// UpsertEdge is an idempotent (source, rel, target) upsert.
	UpsertEdge(ctx context.Context, source, rel, target string, props map[string]any) error
	DeleteEdge(ctx context.Context, source, rel, target string) error
	GetNode(ctx context.Context, id string) (Node, bool, error)
	// Neighbors returns target ids reachable by a single edge of the given
	// relation type from id.
	Neighbors(ctx context.Context, id, rel string) ([]string, error)
	// OutgoingEdges returns every outgoing edge from id, of any relation
	// type, for use by multi-hop traversal with edge-type priority
	// tie-breaking in internal/relationship.
	OutgoingEdges(ctx context.Context, id string) ([]Edge, error)
}
