// Command mcp-memory exposes the memory store's search and upsert
// operations as MCP tools for agent clients talking over stdio.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/rs/zerolog/log"

	"agentmemory/internal/apierr"
	"agentmemory/internal/config"
	"agentmemory/internal/embedding"
	"agentmemory/internal/memory"
	"agentmemory/internal/observability"
	"agentmemory/internal/relationship"
	"agentmemory/internal/retrieve"
	"agentmemory/internal/store"
	"agentmemory/internal/store/fulltext"
	"agentmemory/internal/store/graph"
	"agentmemory/internal/store/vector"
)

const version = "0.1.0"

type server struct {
	manager      *memory.Manager
	retriever    *retrieve.Retriever
	relationship *relationship.Engine
}

// SearchInput is the search tool's argument schema.
type SearchInput struct {
	Query   string  `json:"query" jsonschema:"the search query to run against stored memories"`
	Project string  `json:"project,omitempty" jsonschema:"restrict results to this project"`
	Type    string  `json:"type,omitempty" jsonschema:"restrict results to this memory type: decision, pattern, error, learning, docs, context"`
	Limit   int     `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
	Alpha   *float64 `json:"alpha,omitempty" jsonschema:"blend weight between dense and lexical scoring, 0 is lexical-only and 1 is dense-only, default 0.5"`
}

// SearchOutput is the search tool's result schema.
type SearchOutput struct {
	Items    []retrieve.Item `json:"items"`
	Degraded bool            `json:"degraded,omitempty"`
}

// UpsertInput is the upsert_memory tool's argument schema.
type UpsertInput struct {
	ID      string   `json:"id,omitempty" jsonschema:"existing memory id to update, omit to create a new memory"`
	Type    string   `json:"type" jsonschema:"memory type: decision, pattern, error, learning, docs, context"`
	Content string   `json:"content" jsonschema:"the memory's main content"`
	Project string   `json:"project,omitempty" jsonschema:"project this memory belongs to"`
	Tags    []string `json:"tags,omitempty" jsonschema:"free-form tags"`
}

// UpsertOutput is the upsert_memory tool's result schema.
type UpsertOutput struct {
	ID string `json:"id"`
}

// RelatedInput is the related_memories tool's argument schema.
type RelatedInput struct {
	ID      string `json:"id" jsonschema:"memory id to traverse relationships from"`
	MaxHops int    `json:"max_hops,omitempty" jsonschema:"maximum traversal depth, default 2"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of related memories to return, default 10"`
}

// RelatedOutput is the related_memories tool's result schema.
type RelatedOutput struct {
	Related []relationship.RelatedNode `json:"related"`
}

func (s *server) searchHandler(ctx context.Context, _ *mcp.CallToolRequest, in SearchInput) (*mcp.CallToolResult, SearchOutput, error) {
	if in.Query == "" {
		return nil, SearchOutput{}, apierr.Validation("query is required")
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}
	alpha := 0.5
	if in.Alpha != nil {
		alpha = *in.Alpha
	}
	resp, err := s.retriever.Search(ctx, retrieve.Request{
		Query:   in.Query,
		Project: in.Project,
		Type:    in.Type,
		Limit:   limit,
		Alpha:   alpha,
	})
	if err != nil {
		return nil, SearchOutput{}, err
	}
	return nil, SearchOutput{Items: resp.Items, Degraded: resp.Degraded}, nil
}

func (s *server) upsertHandler(ctx context.Context, _ *mcp.CallToolRequest, in UpsertInput) (*mcp.CallToolResult, UpsertOutput, error) {
	rec := memory.Record{
		ID:      in.ID,
		Type:    memory.Type(in.Type),
		Content: in.Content,
		Project: in.Project,
		Tags:    in.Tags,
	}
	saved, err := s.manager.Upsert(ctx, rec)
	if err != nil {
		return nil, UpsertOutput{}, err
	}
	return nil, UpsertOutput{ID: saved.ID}, nil
}

func (s *server) relatedHandler(ctx context.Context, _ *mcp.CallToolRequest, in RelatedInput) (*mcp.CallToolResult, RelatedOutput, error) {
	if in.ID == "" {
		return nil, RelatedOutput{}, apierr.Validation("id is required")
	}
	maxHops := in.MaxHops
	if maxHops <= 0 {
		maxHops = 2
	}
	limit := in.Limit
	if limit <= 0 {
		limit = 10
	}
	nodes, err := s.relationship.Related(ctx, in.ID, maxHops, limit)
	if err != nil {
		return nil, RelatedOutput{}, err
	}
	return nil, RelatedOutput{Related: nodes}, nil
}

func main() {
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	observability.InitLogger(cfg.LogFile, cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	vectorStore, err := buildVectorStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build vector store")
	}
	defer vectorStore.Close()

	graphStore, err := buildGraphStore(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("build graph store")
	}

	fulltextIndex, err := fulltext.New("")
	if err != nil {
		log.Fatal().Err(err).Msg("build fulltext index")
	}
	defer fulltextIndex.Close()

	embedBackend := buildEmbeddingBackend(cfg)

	mgr := memory.New(memory.Store{Vector: vectorStore, Graph: graphStore, Fulltext: fulltextIndex}, embedBackend,
		memory.WithComposite(cfg.Embedding.Composite))
	retriever := &retrieve.Retriever{Vector: vectorStore, Fulltext: fulltextIndex, Embedder: embedBackend, Manager: mgr, Log: log.Logger}
	relEngine := &relationship.Engine{Graph: graphStore, Manager: mgr, Vector: vectorStore, Embedder: embedBackend}

	s := &server{manager: mgr, retriever: retriever, relationship: relEngine}

	mcpServer := mcp.NewServer(&mcp.Implementation{Name: "agentmemory", Version: version}, nil)
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "search_memory",
		Description: "Hybrid search over stored memories: decisions, patterns, past errors, learnings, docs, and context, fusing dense and lexical retrieval.",
	}, s.searchHandler)
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "upsert_memory",
		Description: "Create or update a memory record. Omit id to create a new memory.",
	}, s.upsertHandler)
	mcp.AddTool(mcpServer, &mcp.Tool{
		Name:        "related_memories",
		Description: "Traverse the relationship graph from a memory to find causally or topically linked memories.",
	}, s.relatedHandler)

	log.Info().Msg("mcp-memory serving over stdio")
	if err := mcpServer.Run(ctx, &mcp.StdioTransport{}); err != nil && err != context.Canceled {
		log.Fatal().Err(err).Msg("mcp server stopped")
	}
}

func buildVectorStore(ctx context.Context, cfg config.Config) (vector.Store, error) {
	switch cfg.Vector.Backend {
	case "qdrant":
		return vector.NewQdrant(cfg.Vector.DSN, cfg.Vector.Collection, cfg.Embedding.Dimensions, cfg.Vector.Metric)
	case "pgvector":
		pool, err := store.OpenPool(ctx, cfg.Vector.DSN)
		if err != nil {
			return nil, err
		}
		return vector.NewPGVector(ctx, pool, cfg.Embedding.Dimensions, cfg.Vector.Metric)
	default:
		return vector.NewHNSW(cfg.Embedding.Dimensions, cfg.Vector.Metric), nil
	}
}

func buildGraphStore(ctx context.Context, cfg config.Config) (graph.Store, error) {
	switch cfg.Graph.Backend {
	case "postgres":
		pool, err := store.OpenPool(ctx, cfg.Graph.URL)
		if err != nil {
			return nil, err
		}
		return graph.NewPostgres(ctx, pool)
	case "":
		return nil, nil
	default:
		return graph.NewMemory(), nil
	}
}

func buildEmbeddingBackend(cfg config.Config) embedding.Backend {
	var backend embedding.Backend
	if cfg.Embedding.ServiceURL != "" {
		backend = embedding.NewRPC(embedding.RPCConfig{
			BaseURL:    cfg.Embedding.ServiceURL,
			APIKey:     cfg.Embedding.APIKey,
			Model:      cfg.Embedding.Model,
			Dimensions: cfg.Embedding.Dimensions,
			Timeout:    cfg.Embedding.Timeout,
			Sparse:     cfg.Embedding.SparseEnabled,
			Rerank:     true,
		})
	} else {
		backend = embedding.NewInProcess(cfg.Embedding.Dimensions, 1)
		if cfg.Embedding.CacheSize > 0 {
			backend = embedding.NewCached(backend, cfg.Embedding.CacheSize)
		}
	}
	return backend
}
