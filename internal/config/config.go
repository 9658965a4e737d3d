// Package config loads the memory service's runtime configuration from a
// YAML file, environment variables and an optional .env file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"agentmemory/internal/telemetry"
)

// EmbeddingConfig describes how to reach (or fall back from) the
// embedding service.
type EmbeddingConfig struct {
	ServiceURL    string        `yaml:"service_url"`
	APIKey        string        `yaml:"api_key"`
	Model         string        `yaml:"model"`
	Dimensions    int           `yaml:"dimensions"`
	Timeout       time.Duration `yaml:"timeout"`
	CacheSize     int           `yaml:"cache_size"`
	SparseEnabled bool          `yaml:"sparse_enabled"`
	Composite     bool          `yaml:"composite_embedding"`
}

// VectorStoreConfig selects and configures the vector store backend.
type VectorStoreConfig struct {
	Backend    string `yaml:"backend"` // "qdrant", "pgvector", "hnsw"
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	DSN        string `yaml:"dsn"`
	Collection string `yaml:"collection"`
	Metric     string `yaml:"metric"`
}

// GraphStoreConfig selects and configures the graph store backend.
// An empty Backend disables graph features; setting GRAPH_STORE_URL to
// the empty string clears Backend. The "memory" backend needs no URL.
type GraphStoreConfig struct {
	Backend string `yaml:"backend"` // "postgres", "memory"
	URL     string `yaml:"url"`
}

// PruneConfig controls the lifecycle pruning sweep.
type PruneConfig struct {
	DefaultDays int `yaml:"default_days"`
	MaxPerRun   int `yaml:"max_per_run"`
}

// IngestConfig controls the document ingestor.
type IngestConfig struct {
	PollIntervalSeconds int      `yaml:"poll_interval_seconds"`
	Folders             []string `yaml:"folders"`
	ExcludeDirs         []string `yaml:"exclude_dirs"`
	StateFile           string   `yaml:"state_file"`
}

// AutoLinkConfig controls the relationship engine's auto-linker.
type AutoLinkConfig struct {
	WindowHours   int     `yaml:"window_hours"`
	TopK          int     `yaml:"top_k"`
	MinSimilarity float64 `yaml:"min_similarity"`
}

// HTTPConfig controls the HTTP surface.
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// Config is the top-level configuration object.
type Config struct {
	LogLevel  string              `yaml:"log_level"`
	LogFile   string              `yaml:"log_file"`
	Embedding EmbeddingConfig     `yaml:"embedding"`
	Vector    VectorStoreConfig   `yaml:"vector_store"`
	Graph     GraphStoreConfig    `yaml:"graph_store"`
	Prune     PruneConfig         `yaml:"prune"`
	Ingest    IngestConfig        `yaml:"ingest"`
	AutoLink  AutoLinkConfig      `yaml:"auto_link"`
	HTTP      HTTPConfig          `yaml:"http"`
	Telemetry telemetry.Config    `yaml:"telemetry"`
}

// Default returns a Config populated with sensible defaults for every
// field.
func Default() Config {
	return Config{
		LogLevel: "info",
		Embedding: EmbeddingConfig{
			Model:      "nomic-embed-text",
			Dimensions: 768,
			Timeout:    60 * time.Second,
			CacheSize:  512,
			Composite:  true,
		},
		Vector: VectorStoreConfig{
			Backend:    "hnsw",
			Collection: "memories",
			Metric:     "cos",
		},
		Graph: GraphStoreConfig{
			Backend: "memory",
		},
		Prune: PruneConfig{
			DefaultDays: 90,
			MaxPerRun:   1000,
		},
		Ingest: IngestConfig{
			PollIntervalSeconds: 30,
			ExcludeDirs:         []string{".git", "node_modules", ".venv", "__pycache__"},
			StateFile:           "ingest_state.json",
		},
		AutoLink: AutoLinkConfig{
			WindowHours:   24,
			TopK:          5,
			MinSimilarity: 0.70,
		},
		HTTP: HTTPConfig{
			Addr: ":8088",
		},
	}
}

// Load reads a YAML config file (if path is non-empty and exists), loads a
// .env file from the current directory (best-effort), then applies
// environment variable overrides. Missing file and missing .env are not
// errors.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config %q: %w", path, err)
			}
		} else if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %q: %w", path, err)
		}
	}

	// Best-effort: a local .env may supply secrets (API keys) without
	// requiring them in the YAML file or the process environment proper.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v, ok := os.LookupEnv("EMBEDDING_SERVICE_URL"); ok {
		cfg.Embedding.ServiceURL = v
	}
	if v, ok := os.LookupEnv("EMBEDDING_API_KEY"); ok {
		cfg.Embedding.APIKey = v
	}
	if v, ok := os.LookupEnv("VECTOR_STORE_HOST"); ok {
		cfg.Vector.Host = v
	}
	if v, ok := intEnv("VECTOR_STORE_PORT"); ok {
		cfg.Vector.Port = v
	}
	if v, ok := os.LookupEnv("GRAPH_STORE_URL"); ok {
		cfg.Graph.URL = v
		if v == "" {
			cfg.Graph.Backend = ""
		}
	}
	if v, ok := boolEnv("COMPOSITE_EMBEDDING"); ok {
		cfg.Embedding.Composite = v
	}
	if v, ok := boolEnv("SPARSE_ENABLED"); ok {
		cfg.Embedding.SparseEnabled = v
	}
	if v, ok := intEnv("PRUNE_DEFAULT_DAYS"); ok {
		cfg.Prune.DefaultDays = v
	}
	if v, ok := intEnv("PRUNE_MAX_PER_RUN"); ok {
		cfg.Prune.MaxPerRun = v
	}
	if v, ok := intEnv("INGEST_POLL_INTERVAL_SECONDS"); ok {
		cfg.Ingest.PollIntervalSeconds = v
	}
	if v, ok := listEnv("INGEST_FOLDERS"); ok {
		cfg.Ingest.Folders = v
	}
	if v, ok := listEnv("INGEST_EXCLUDE_DIRS"); ok {
		cfg.Ingest.ExcludeDirs = v
	}
	if v, ok := intEnv("AUTO_LINK_WINDOW_HOURS"); ok {
		cfg.AutoLink.WindowHours = v
	}
	if v, ok := intEnv("AUTO_LINK_TOP_K"); ok {
		cfg.AutoLink.TopK = v
	}
	if v, ok := floatEnv("AUTO_LINK_MIN_SIMILARITY"); ok {
		cfg.AutoLink.MinSimilarity = v
	}
}

func intEnv(name string) (int, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return 0, false
	}
	return n, true
}

func floatEnv(name string) (float64, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func boolEnv(name string) (bool, bool) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return false, false
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return false, false
	}
	return b, true
}

func listEnv(name string) ([]string, bool) {
	v, ok := os.LookupEnv(name)
	if !ok || strings.TrimSpace(v) == "" {
		return nil, false
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out, true
}
