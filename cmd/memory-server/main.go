// Command memory-server runs the semantic memory service: the HTTP
// surface, the background lifecycle sweeps (pruning, reconciliation,
// auto-linking), and the document ingestor.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"agentmemory/internal/config"
	"agentmemory/internal/embedding"
	"agentmemory/internal/httpapi"
	"agentmemory/internal/ingest"
	"agentmemory/internal/lifecycle"
	"agentmemory/internal/memory"
	"agentmemory/internal/observability"
	"agentmemory/internal/relationship"
	"agentmemory/internal/retrieve"
	"agentmemory/internal/store"
	"agentmemory/internal/store/fulltext"
	"agentmemory/internal/store/graph"
	"agentmemory/internal/store/vector"
	"agentmemory/internal/telemetry"
)

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

	shutdownTelemetry, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		log.Fatal().Err(err).Msg("setup telemetry")
	}
	defer shutdownTelemetry(context.Background())

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

	retriever := &retrieve.Retriever{
		Vector:   vectorStore,
		Fulltext: fulltextIndex,
		Embedder: embedBackend,
		Manager:  mgr,
		Log:      log.Logger,
	}

	relEngine := &relationship.Engine{Graph: graphStore, Manager: mgr, Vector: vectorStore, Embedder: embedBackend}
	lcEngine := &lifecycle.Engine{Manager: mgr, Retriever: retriever, Vector: vectorStore}

	runBackgroundSweeps(ctx, cfg, mgr, relEngine, lcEngine)
	runIngestor(ctx, cfg, mgr, vectorStore)

	server := httpapi.NewServer(mgr, retriever, relEngine, lcEngine, log.Logger)
	httpServer := &http.Server{Addr: cfg.HTTP.Addr, Handler: server}

	go func() {
		<-ctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutdownCancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	log.Info().Str("addr", cfg.HTTP.Addr).Msg("memory service listening")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("http server")
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

func runBackgroundSweeps(ctx context.Context, cfg config.Config, mgr *memory.Manager, rel *relationship.Engine, lc *lifecycle.Engine) {
	go func() {
		ticker := time.NewTicker(time.Duration(cfg.AutoLink.WindowHours) * time.Hour / 4)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				opt := relationship.AutoLinkOptions{
					WindowHours:   cfg.AutoLink.WindowHours,
					TopK:          cfg.AutoLink.TopK,
					MinSimilarity: float32(cfg.AutoLink.MinSimilarity),
				}
				if _, err := rel.AutoLink(ctx, time.Now().UTC(), opt); err != nil {
					log.Error().Err(err).Msg("auto-link sweep failed")
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				opt := lifecycle.PruneOptions{
					OlderThanDays: cfg.Prune.DefaultDays,
					MaxDeletions:  cfg.Prune.MaxPerRun,
					DryRun:        true,
				}
				if _, err := lc.Prune(ctx, opt); err != nil {
					log.Error().Err(err).Msg("prune sweep failed")
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				records, err := mgr.List(ctx, 0, 0)
				if err != nil {
					log.Error().Err(err).Msg("reconcile sweep: list failed")
					continue
				}
				ids := make([]string, 0, len(records))
				for _, r := range records {
					ids = append(ids, r.ID)
				}
				if err := rel.ReconcileDanglingEdges(ctx, ids); err != nil {
					log.Error().Err(err).Msg("reconcile sweep failed")
				}
				if err := mgr.Reconcile(ctx); err != nil {
					log.Error().Err(err).Msg("graph-pending reconcile failed")
				}
			}
		}
	}()
}

func runIngestor(ctx context.Context, cfg config.Config, mgr *memory.Manager, vectorStore vector.Store) {
	if len(cfg.Ingest.Folders) == 0 {
		return
	}
	watcher, err := ingest.New(ingest.Options{
		Folders:      cfg.Ingest.Folders,
		ExcludeDirs:  cfg.Ingest.ExcludeDirs,
		StateFile:    cfg.Ingest.StateFile,
		PollInterval: time.Duration(cfg.Ingest.PollIntervalSeconds) * time.Second,
	}, mgr, vectorStore, log.Logger)
	if err != nil {
		log.Error().Err(err).Msg("build ingestor")
		return
	}
	fsWatcher, err := ingest.NewFSWatcher(watcher)
	if err != nil {
		log.Error().Err(err).Msg("build fsnotify layer, falling back to poll-only")
		go func() {
			if err := watcher.Run(ctx); err != nil {
				log.Error().Err(err).Msg("ingestor stopped")
			}
		}()
		return
	}
	go func() {
		if err := fsWatcher.Run(ctx); err != nil {
			log.Error().Err(err).Msg("ingestor stopped")
		}
	}()
}
