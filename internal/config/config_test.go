package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/yungbote/organizer-backend/internal/logger"
)

func TestLoadPipelineDefaults(t *testing.T) {
	log, err := logger.New("dev")
	require.NoError(t, err)

	cfg, err := LoadPipeline(log)
	require.NoError(t, err)
	require.Equal(t, 4, cfg.IndexConcurrency)
	require.Equal(t, "subfolder", cfg.ArchiveStrategy)
	require.True(t, cfg.SummarizeEnabled)
	require.False(t, cfg.AllowDeletes)
	require.InDelta(t, 0.1, cfg.MaxRepairRatio, 1e-9)
	require.InDelta(t, 0.7, cfg.SimilarityThreshold, 1e-9)
}

func TestLoadPipelineClampsSimilarityThreshold(t *testing.T) {
	t.Setenv("SIMILARITY_THRESHOLD", "3.5")
	log, err := logger.New("dev")
	require.NoError(t, err)

	cfg, err := LoadPipeline(log)
	require.NoError(t, err)
	require.InDelta(t, 0.7, cfg.SimilarityThreshold, 1e-9)
}

func TestLoadPipelineYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "pipeline.yaml")
	body := []byte("index_concurrency: 8\narchive_strategy: inline\nsupported_extensions: [pdf, docx]\n")
	require.NoError(t, os.WriteFile(path, body, 0o644))
	t.Setenv("PIPELINE_CONFIG_PATH", path)

	log, err := logger.New("dev")
	require.NoError(t, err)

	cfg, err := LoadPipeline(log)
	require.NoError(t, err)
	require.Equal(t, 8, cfg.IndexConcurrency)
	require.Equal(t, "inline", cfg.ArchiveStrategy)
	require.True(t, cfg.AllowsExtension(".pdf"))
	require.True(t, cfg.AllowsExtension("DOCX"))
	require.False(t, cfg.AllowsExtension(".txt"))
}

func TestLoadPipelineBadStrategy(t *testing.T) {
	t.Setenv("ARCHIVE_STRATEGY", "scatter")
	log, err := logger.New("dev")
	require.NoError(t, err)

	_, err = LoadPipeline(log)
	require.Error(t, err)
}
