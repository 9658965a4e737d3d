package memory

import (
	"context"
	"fmt"
	"math"

	"agentmemory/internal/embedding"
)

// CompositeWeights are the weights for the three sub-views: full
// enriched text, content alone, and solution-or-error.
type CompositeWeights struct {
	Full     float64
	Content  float64
	Solution float64
}

// DefaultCompositeWeights is default.
var DefaultCompositeWeights = CompositeWeights{Full: 0.6, Content: 0.3, Solution: 0.1}

// ComputeEmbedding computes the dense (and, if requested, sparse) vectors
// for a record. When composite is true, three sub-view dense vectors are
// embedded and combined via a weighted mean, then L2-normalized; the
// sparse vector is computed once from the full enriched text regardless.
func ComputeEmbedding(ctx context.Context, backend embedding.Backend, r Record, composite bool, weights CompositeWeights) (embedding.Vectors, error) {
	full := EnrichedText(r)

	if !composite {
		return backend.EmbedDocument(ctx, full, backend.SparseAvailable())
	}

	views := []struct {
		text   string
		weight float64
	}{
		{full, weights.Full},
		{r.Content, weights.Content},
		{SolutionOrError(r), weights.Solution},
	}

	var dense []float32
	var sparse *embedding.SparseVector
	totalWeight := 0.0
	for i, v := range views {
		if v.text == "" {
			continue
		}
		includeSparse := i == 0 && backend.SparseAvailable()
		vecs, err := backend.EmbedDocument(ctx, v.text, includeSparse)
		if err != nil {
			return embedding.Vectors{}, fmt.Errorf("embed sub-view %d: %w", i, err)
		}
		if includeSparse {
			sparse = vecs.Sparse
		}
		if dense == nil {
			dense = make([]float32, len(vecs.Dense))
		}
		for j, x := range vecs.Dense {
			dense[j] += float32(v.weight) * x
		}
		totalWeight += v.weight
	}

	if dense == nil {
		return embedding.Vectors{}, fmt.Errorf("no non-empty sub-views to embed")
	}

	normalizeL2(dense)
	return embedding.Vectors{Dense: dense, Sparse: sparse}, nil
}

func normalizeL2(v []float32) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSq))
	for i := range v {
		v[i] *= inv
	}
}
