// Package vector defines the vector store contract and its concrete
// backends: qdrant (primary), pgvector (alternate), and an in-process
// hnsw fallback for InProcess embedding-backend deployments.
package vector

import "context"

// Point is a single stored vector with its scalar payload.
type Point struct {
	ID       string
	Dense    []float32
	Sparse   *SparseVector
	Payload  map[string]any
}

// SparseVector is a variable-length (index, value) pair list.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Filter is an AND of exact-match constraints over payload fields.
// Backends differ in which fields they apply: the hnsw and pgvector
// stores match Project, Type and Source only; the qdrant store also
// requires every tag in TagsContains. No backend applies CreatedAfter or
// CreatedBefore.
type Filter struct {
	Project      string
	Type         string
	TagsContains []string // every listed tag must be present (qdrant only)
	Source       string
	CreatedAfter *int64 // unix seconds; not applied by any backend
	CreatedBefore *int64
}

// Result is a single hybrid-search hit.
type Result struct {
	ID      string
	Score   float32
	Payload map[string]any
}

// Store is the Vector Store external contract.
type Store interface {
	Upsert(ctx context.Context, points []Point) error
	Delete(ctx context.Context, ids []string) error
	// Scroll pages through all points matching filter, cursor-based.
	Scroll(ctx context.Context, filter Filter, cursor string, limit int) (points []Point, nextCursor string, err error)
	// HybridSearch ranks by dense similarity, and by sparse similarity when
	// query.Sparse is non-nil and the backend supports it.
	HybridSearch(ctx context.Context, dense []float32, sparse *SparseVector, filter Filter, limit int) ([]Result, error)
	Dimension() int
	Close() error
}

// SupportsSparse is implemented by stores that can rank using a sparse
// vector natively (as opposed to relying on internal/store/fulltext).
type SupportsSparse interface {
	NativeSparse() bool
}
