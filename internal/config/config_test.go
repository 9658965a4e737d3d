package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 768, cfg.Embedding.Dimensions)
	assert.True(t, cfg.Embedding.Composite)
	assert.Equal(t, 1000, cfg.Prune.MaxPerRun)
	assert.Equal(t, 24, cfg.AutoLink.WindowHours)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Prune, cfg.Prune)
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := "prune:\n  max_per_run: 42\nvector_store:\n  backend: qdrant\n  host: localhost\n  port: 6334\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Prune.MaxPerRun)
	assert.Equal(t, "qdrant", cfg.Vector.Backend)
	assert.Equal(t, 6334, cfg.Vector.Port)
}

func TestEnvOverridesWin(t *testing.T) {
	t.Setenv("PRUNE_MAX_PER_RUN", "7")
	t.Setenv("AUTO_LINK_MIN_SIMILARITY", "0.9")
	t.Setenv("INGEST_EXCLUDE_DIRS", "a,b, c")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Prune.MaxPerRun)
	assert.InDelta(t, 0.9, cfg.AutoLink.MinSimilarity, 1e-9)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Ingest.ExcludeDirs)
}
