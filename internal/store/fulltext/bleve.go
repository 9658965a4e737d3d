// Package fulltext provides an in-process BM25 ranking signal (via
// blevesearch/bleve/v2) that stands in for the sparse half of hybrid
// search whenever the embedding service does not
// supply its own sparse vectors.
package fulltext

import (
	"context"
	"fmt"
	"sync"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
)

// Hit is a single lexical search result.
type Hit struct {
	ID    string
	Score float32
}

// Index is a lexical (BM25) index over memory record text.
type Index struct {
	mu  sync.RWMutex
	idx bleve.Index
}

type memoryDoc struct {
	Text string `json:"text"`
}

// New opens an in-memory bleve index. path == "" always creates an
// in-memory-only index; the memory service treats this index as a
// derived cache, never as a system of record. Nothing repopulates it from
// the vector store at startup: an in-memory index holds only the records
// written since the process started.
func New(path string) (*Index, error) {
	m := buildMapping()
	var idx bleve.Index
	var err error
	if path == "" {
		idx, err = bleve.NewMemOnly(m)
	} else {
		idx, err = bleve.Open(path)
		if err != nil {
			idx, err = bleve.New(path, m)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("open bleve index: %w", err)
	}
	return &Index{idx: idx}, nil
}

func buildMapping() mapping.IndexMapping {
	docMapping := bleve.NewDocumentMapping()
	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = "en"
	docMapping.AddFieldMappingsAt("text", textField)

	m := bleve.NewIndexMapping()
	m.DefaultMapping = docMapping
	return m
}

// Index indexes or re-indexes a record's embedding text under its id.
func (i *Index) Index(ctx context.Context, id, text string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.idx.Index(id, memoryDoc{Text: text})
}

// Remove deletes a record from the index.
func (i *Index) Remove(ctx context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.idx.Delete(id)
}

// Search runs a BM25 match query and returns up to limit hits ordered by
// descending score.
func (i *Index) Search(ctx context.Context, query string, limit int) ([]Hit, error) {
	if limit <= 0 {
		limit = 10
	}
	i.mu.RLock()
	defer i.mu.RUnlock()

	q := bleve.NewMatchQuery(query)
	req := bleve.NewSearchRequestOptions(q, limit, 0, false)
	res, err := i.idx.Search(req)
	if err != nil {
		return nil, fmt.Errorf("bleve search: %w", err)
	}
	hits := make([]Hit, 0, len(res.Hits))
	for _, h := range res.Hits {
		hits = append(hits, Hit{ID: h.ID, Score: float32(h.Score)})
	}
	return hits, nil
}

// Close releases index resources.
func (i *Index) Close() error {
	return i.idx.Close()
}
