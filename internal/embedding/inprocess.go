package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// inProcessBackend is the local fallback embedding backend selected when
// EMBEDDING_SERVICE_URL is empty It hashes byte
// 3-grams into a fixed-dimension vector and L2-normalizes, deterministic
// so identical text always yields identical vectors. It has no sparse or
// rerank capability.
type inProcessBackend struct {
	dim  int
	seed uint64
}

// NewInProcess constructs the in-process deterministic embedding
// backend.
func NewInProcess(dim int, seed uint64) Backend {
	if dim <= 0 {
		dim = 768
	}
	return &inProcessBackend{dim: dim, seed: seed}
}

func (b *inProcessBackend) embedOne(s string) []float32 {
	v := make([]float32, b.dim)
	if len(s) == 0 {
		return v
	}
	raw := []byte(s)
	if len(raw) < 3 {
		addGram(b.seed, raw, v)
	} else {
		for i := 0; i <= len(raw)-3; i++ {
			addGram(b.seed, raw[i:i+3], v)
		}
	}
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq > 0 {
		inv := float32(1.0 / math.Sqrt(sumSq))
		for i := range v {
			v[i] *= inv
		}
	}
	return v
}

func addGram(seed uint64, gram []byte, v []float32) {
	h := fnv.New64a()
	if seed != 0 {
		var tmp [8]byte
		for i := 0; i < 8; i++ {
			tmp[i] = byte(seed >> (8 * i))
		}
		_, _ = h.Write(tmp[:])
	}
	_, _ = h.Write(gram)
	hv := h.Sum64()
	idx := int(hv % uint64(len(v)))
	w := float32(int32(hv>>32)) / float32(1<<31)
	v[idx] += w
}

func (b *inProcessBackend) EmbedDocument(ctx context.Context, text string, includeSparse bool) (Vectors, error) {
	return Vectors{Dense: b.embedOne("passage: " + text)}, nil
}

func (b *inProcessBackend) EmbedQuery(ctx context.Context, text string, includeSparse bool) (Vectors, error) {
	return Vectors{Dense: b.embedOne("query: " + text)}, nil
}

func (b *inProcessBackend) EmbedBatch(ctx context.Context, texts []string, includeSparse bool) ([]Vectors, error) {
	out := make([]Vectors, len(texts))
	for i, t := range texts {
		out[i] = Vectors{Dense: b.embedOne("passage: " + t)}
	}
	return out, nil
}

func (b *inProcessBackend) Rerank(ctx context.Context, query string, texts []string) ([]float32, error) {
	return nil, ErrRerankUnavailable
}

func (b *inProcessBackend) Dimension() int        { return b.dim }
func (b *inProcessBackend) SparseAvailable() bool { return false }
func (b *inProcessBackend) RerankAvailable() bool { return false }
func (b *inProcessBackend) Name() string          { return "in-process" }

var _ Backend = (*inProcessBackend)(nil)
