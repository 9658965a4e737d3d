package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

const (
	documentMarker = "passage: "
	queryMarker    = "query: "
)

// RPCConfig configures the HTTP-backed embedding service client.
type RPCConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	Sparse     bool
	Rerank     bool
}

// rpcBackend embeds via an HTTP RPC, serializing calls with a mutex to
// avoid overwhelming a local llama.cpp-style server.
type rpcBackend struct {
	cfg    RPCConfig
	client *http.Client
	mu     sync.Mutex
}

// NewRPC constructs an RPC-backed embedding backend.
func NewRPC(cfg RPCConfig) Backend {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	return &rpcBackend{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

type embedRequest struct {
	Model         string   `json:"model"`
	Input         []string `json:"input"`
	IncludeSparse bool     `json:"include_sparse,omitempty"`
}

type embedDatum struct {
	Embedding []float32     `json:"embedding"`
	Sparse    *sparseWire   `json:"sparse,omitempty"`
}

type sparseWire struct {
	Indices []uint32  `json:"indices"`
	Values  []float32 `json:"values"`
}

type embedResponse struct {
	Data []embedDatum `json:"data"`
}

func (r *rpcBackend) call(ctx context.Context, prefixed []string, includeSparse bool) ([]Vectors, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	body, err := json.Marshal(embedRequest{Model: r.cfg.Model, Input: prefixed, IncludeSparse: includeSparse})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("embed service returned status %d", resp.StatusCode)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(out.Data) != len(prefixed) {
		return nil, fmt.Errorf("embed response count mismatch: got %d, want %d", len(out.Data), len(prefixed))
	}

	vecs := make([]Vectors, len(out.Data))
	for i, d := range out.Data {
		v := Vectors{Dense: d.Embedding}
		if d.Sparse != nil {
			v.Sparse = &SparseVector{Indices: d.Sparse.Indices, Values: d.Sparse.Values}
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (r *rpcBackend) EmbedDocument(ctx context.Context, text string, includeSparse bool) (Vectors, error) {
	vecs, err := r.call(ctx, []string{documentMarker + text}, includeSparse)
	if err != nil {
		return Vectors{}, err
	}
	return vecs[0], nil
}

func (r *rpcBackend) EmbedQuery(ctx context.Context, text string, includeSparse bool) (Vectors, error) {
	vecs, err := r.call(ctx, []string{queryMarker + text}, includeSparse)
	if err != nil {
		return Vectors{}, err
	}
	return vecs[0], nil
}

func (r *rpcBackend) EmbedBatch(ctx context.Context, texts []string, includeSparse bool) ([]Vectors, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = documentMarker + t
	}
	return r.call(ctx, prefixed, includeSparse)
}

type rerankRequest struct {
	Query string   `json:"query"`
	Texts []string `json:"texts"`
}

type rerankResponse struct {
	Scores []float32 `json:"scores"`
}

func (r *rpcBackend) Rerank(ctx context.Context, query string, texts []string) ([]float32, error) {
	if !r.cfg.Rerank {
		return nil, ErrRerankUnavailable
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	body, err := json.Marshal(rerankRequest{Query: query, Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal rerank request: %w", err)
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.BaseURL+"/rerank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build rerank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if r.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+r.cfg.APIKey)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rerank request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rerank service returned status %d", resp.StatusCode)
	}
	var out rerankResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode rerank response: %w", err)
	}
	return out.Scores, nil
}

func (r *rpcBackend) Dimension() int         { return r.cfg.Dimensions }
func (r *rpcBackend) SparseAvailable() bool  { return r.cfg.Sparse }
func (r *rpcBackend) RerankAvailable() bool  { return r.cfg.Rerank }
func (r *rpcBackend) Name() string           { return "rpc:" + r.cfg.Model }

// CheckReachability pings the embedding service with a minimal request.
func (r *rpcBackend) CheckReachability(ctx context.Context) error {
	_, err := r.call(ctx, []string{queryMarker + "ping"}, false)
	return err
}

var _ Backend = (*rpcBackend)(nil)
