package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/utils"
)

// Pipeline holds the tuning knobs for a job run. Values come from
// environment variables, optionally overridden by a YAML file pointed at by
// PIPELINE_CONFIG_PATH.
type Pipeline struct {
	WorkRoot            string   `yaml:"work_root"`
	IndexConcurrency    int      `yaml:"index_concurrency"`
	SummarizeEnabled    bool     `yaml:"summarize_enabled"`
	SummaryMaxChars     int      `yaml:"summary_max_chars"`
	MinDuplicateSize    int64    `yaml:"min_duplicate_size"`
	ArchiveStrategy     string   `yaml:"archive_strategy"`
	ShortcutFormat      string   `yaml:"shortcut_format"`
	ReviewGate          bool     `yaml:"review_gate"`
	AllowDeletes        bool     `yaml:"allow_deletes"`
	SimilarityThreshold float64  `yaml:"similarity_threshold"`
	MaxIndexErrorRatio  float64  `yaml:"max_index_error_ratio"`
	MaxRepairRatio      float64  `yaml:"max_repair_ratio"`
	MaxZipFileBytes     int64    `yaml:"max_zip_file_bytes"`
	MaxZipTotalBytes    int64    `yaml:"max_zip_total_bytes"`
	SupportedExtensions []string `yaml:"supported_extensions"`
}

func LoadPipeline(log *logger.Logger) (*Pipeline, error) {
	cfg := &Pipeline{
		WorkRoot:            utils.GetEnv("ORGANIZER_WORK_ROOT", "/tmp/organizer", log),
		IndexConcurrency:    utils.GetEnvAsInt("INDEX_CONCURRENCY", 4, log),
		SummarizeEnabled:    utils.GetEnvAsBool("SUMMARIZE_ENABLED", true, log),
		SummaryMaxChars:     utils.GetEnvAsInt("SUMMARY_MAX_CHARS", 8000, log),
		MinDuplicateSize:    utils.GetEnvAsInt64("MIN_DUPLICATE_SIZE", 1, log),
		ArchiveStrategy:     utils.GetEnv("ARCHIVE_STRATEGY", "subfolder", log),
		ShortcutFormat:      utils.GetEnv("SHORTCUT_FORMAT", "auto", log),
		ReviewGate:          utils.GetEnvAsBool("REVIEW_GATE", false, log),
		AllowDeletes:        utils.GetEnvAsBool("ALLOW_DELETES", false, log),
		SimilarityThreshold: utils.GetEnvAsFloat("SIMILARITY_THRESHOLD", 0.7, log),
		MaxIndexErrorRatio:  0.5,
		MaxRepairRatio:      0.1,
		MaxZipFileBytes:     utils.GetEnvAsInt64("MAX_ZIP_FILE_BYTES", 512<<20, log),
		MaxZipTotalBytes:    utils.GetEnvAsInt64("MAX_ZIP_TOTAL_BYTES", 4<<30, log),
	}

	path := strings.TrimSpace(utils.GetEnv("PIPELINE_CONFIG_PATH", "", nil))
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read pipeline config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse pipeline config %s: %w", path, err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Pipeline) validate() error {
	if c.IndexConcurrency < 1 {
		c.IndexConcurrency = 1
	}
	switch c.ArchiveStrategy {
	case "subfolder", "inline", "separate_archive":
	default:
		return fmt.Errorf("unknown archive_strategy %q", c.ArchiveStrategy)
	}
	switch c.ShortcutFormat {
	case "", "auto":
		c.ShortcutFormat = "auto"
	case "symlink", "url", "desktop":
	default:
		return fmt.Errorf("unknown shortcut_format %q", c.ShortcutFormat)
	}
	if c.MaxIndexErrorRatio <= 0 || c.MaxIndexErrorRatio > 1 {
		c.MaxIndexErrorRatio = 0.5
	}
	if c.MaxRepairRatio <= 0 || c.MaxRepairRatio > 1 {
		c.MaxRepairRatio = 0.1
	}
	if c.SimilarityThreshold <= 0 || c.SimilarityThreshold > 1 {
		c.SimilarityThreshold = 0.7
	}
	return nil
}

// AllowsExtension applies the optional extension allowlist. An empty list
// allows everything.
func (c *Pipeline) AllowsExtension(ext string) bool {
	if len(c.SupportedExtensions) == 0 {
		return true
	}
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, allowed := range c.SupportedExtensions {
		if strings.ToLower(strings.TrimPrefix(allowed, ".")) == ext {
			return true
		}
	}
	return false
}
