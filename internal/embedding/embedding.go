// Package embedding implements the embedding backend as a sum type: an
// RPC-backed client, or an in-process deterministic fallback, selected
// at startup.
package embedding

import "context"

// SparseVector is a sparse lexical embedding, paired indices and values.
type SparseVector struct {
	Indices []uint32
	Values  []float32
}

// Vectors is the result of embedding one piece of text.
type Vectors struct {
	Dense  []float32
	Sparse *SparseVector
}

// Backend is the Embedding Service external contract: both the RPC and
// in-process implementations satisfy it.
type Backend interface {
	// EmbedDocument embeds text prefixed with the document marker.
	EmbedDocument(ctx context.Context, text string, includeSparse bool) (Vectors, error)
	// EmbedQuery embeds text prefixed with the query marker so the
	// asymmetric retrieval model scores document/query pairs correctly.
	EmbedQuery(ctx context.Context, text string, includeSparse bool) (Vectors, error)
	// EmbedBatch embeds many documents, preserving input order.
	EmbedBatch(ctx context.Context, texts []string, includeSparse bool) ([]Vectors, error)
	// Rerank scores (query, text) pairs with a cross-encoder. Returns
	// ErrRerankUnavailable if no reranker is configured.
	Rerank(ctx context.Context, query string, texts []string) ([]float32, error)
	// Dimension reports the fixed dense dimension D for this deployment.
	Dimension() int
	// SparseAvailable reports whether this backend can produce sparse
	// vectors at all.
	SparseAvailable() bool
	// RerankAvailable reports whether Rerank is usable.
	RerankAvailable() bool
	// Name identifies the backend for logging/config reporting.
	Name() string
}

// ErrRerankUnavailable is returned by Rerank when no cross-encoder is
// configured; callers must treat this as "feature disabled", per
// availability contract.
var ErrRerankUnavailable = rerankUnavailableError{}

type rerankUnavailableError struct{}

func (rerankUnavailableError) Error() string { return "reranker not available" }
