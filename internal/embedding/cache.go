package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCacheSize is the default cache capacity, around 512 entries.
const DefaultCacheSize = 512

// cachedBackend wraps a Backend with a bounded dense-embedding cache keyed
// by SHA-256 of (model name, text). Only the in-process fallback path is
// meant to be wrapped: the cache must not be shared across different
// embedding-service deployments, so the key additionally includes Name()
// as the model fingerprint.
//
// golang-lru's Cache promotes an entry to most-recently-used on every Get.
// Reads here use Peek instead of Get so that position is never bumped on
// access; the only thing that moves an entry within the cache is a fresh
// Add, giving insertion-order eviction for a cache that is, by
// construction, only ever populated on miss.
type cachedBackend struct {
	inner Backend
	mu    sync.Mutex
	cache *lru.Cache[string, []float32]
}

// NewCached wraps inner with an LRU-backed cache of the given capacity
// (0 uses DefaultCacheSize).
func NewCached(inner Backend, capacity int) Backend {
	if capacity <= 0 {
		capacity = DefaultCacheSize
	}
	c, _ := lru.New[string, []float32](capacity)
	return &cachedBackend{inner: inner, cache: c}
}

func (c *cachedBackend) key(text string) string {
	h := sha256.Sum256([]byte(c.inner.Name() + "\x00" + text))
	return hex.EncodeToString(h[:])
}

func (c *cachedBackend) EmbedDocument(ctx context.Context, text string, includeSparse bool) (Vectors, error) {
	if includeSparse {
		return c.inner.EmbedDocument(ctx, text, includeSparse)
	}
	k := c.key("doc:" + text)
	c.mu.Lock()
	if v, ok := c.cache.Peek(k); ok {
		c.mu.Unlock()
		return Vectors{Dense: v}, nil
	}
	c.mu.Unlock()

	vecs, err := c.inner.EmbedDocument(ctx, text, includeSparse)
	if err != nil {
		return Vectors{}, err
	}
	c.mu.Lock()
	c.cache.Add(k, vecs.Dense)
	c.mu.Unlock()
	return vecs, nil
}

func (c *cachedBackend) EmbedQuery(ctx context.Context, text string, includeSparse bool) (Vectors, error) {
	if includeSparse {
		return c.inner.EmbedQuery(ctx, text, includeSparse)
	}
	k := c.key("query:" + text)
	c.mu.Lock()
	if v, ok := c.cache.Peek(k); ok {
		c.mu.Unlock()
		return Vectors{Dense: v}, nil
	}
	c.mu.Unlock()

	vecs, err := c.inner.EmbedQuery(ctx, text, includeSparse)
	if err != nil {
		return Vectors{}, err
	}
	c.mu.Lock()
	c.cache.Add(k, vecs.Dense)
	c.mu.Unlock()
	return vecs, nil
}

func (c *cachedBackend) EmbedBatch(ctx context.Context, texts []string, includeSparse bool) ([]Vectors, error) {
	out := make([]Vectors, len(texts))
	var missIdx []int
	var missTexts []string

	c.mu.Lock()
	for i, t := range texts {
		if includeSparse {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
			continue
		}
		if v, ok := c.cache.Peek(c.key("doc:" + t)); ok {
			out[i] = Vectors{Dense: v}
		} else {
			missIdx = append(missIdx, i)
			missTexts = append(missTexts, t)
		}
	}
	c.mu.Unlock()

	if len(missTexts) == 0 {
		return out, nil
	}

	computed, err := c.inner.EmbedBatch(ctx, missTexts, includeSparse)
	if err != nil {
		return nil, err
	}
	c.mu.Lock()
	for j, idx := range missIdx {
		out[idx] = computed[j]
		if !includeSparse {
			c.cache.Add(c.key("doc:"+missTexts[j]), computed[j].Dense)
		}
	}
	c.mu.Unlock()
	return out, nil
}

func (c *cachedBackend) Rerank(ctx context.Context, query string, texts []string) ([]float32, error) {
	return c.inner.Rerank(ctx, query, texts)
}

func (c *cachedBackend) Dimension() int        { return c.inner.Dimension() }
func (c *cachedBackend) SparseAvailable() bool { return c.inner.SparseAvailable() }
func (c *cachedBackend) RerankAvailable() bool { return c.inner.RerankAvailable() }
func (c *cachedBackend) Name() string          { return c.inner.Name() }

var _ Backend = (*cachedBackend)(nil)
