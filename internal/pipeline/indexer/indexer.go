package indexer

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gorm.io/datatypes"

	"github.com/yungbote/organizer-backend/internal/clients/ollama"
	"github.com/yungbote/organizer-backend/internal/config"
	"github.com/yungbote/organizer-backend/internal/extract"
	"github.com/yungbote/organizer-backend/internal/fingerprint"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/repos"
	"github.com/yungbote/organizer-backend/internal/types"
)

type Stats struct {
	Total      int
	Indexed    int
	Errors     int
	Summarized int
	Skipped    int
	Resumed    int
}

type Service struct {
	log     *logger.Logger
	cfg     *config.Pipeline
	extract *extract.Service
	ollama  ollama.Client
	items   repos.DocumentItemRepo
}

func NewService(log *logger.Logger, cfg *config.Pipeline, ex *extract.Service, llm ollama.Client, items repos.DocumentItemRepo) *Service {
	return &Service{
		log:     log.With("component", "Indexer"),
		cfg:     cfg,
		extract: ex,
		ollama:  llm,
		items:   items,
	}
}

// Run walks rootDir, fingerprints and extracts every file with a bounded
// worker pool, and persists one DocumentItem per file as soon as it finishes.
// Files already on the job from an earlier attempt are skipped, so a retried
// job resumes instead of re-indexing. Per-file failures are recorded on the
// item; the stage only fails when too much of the corpus could not be indexed.
func (s *Service) Run(ctx context.Context, jobID uuid.UUID, rootDir string, report func(pct int, msg string)) (*Stats, error) {
	paths, skipped, err := s.collect(rootDir)
	if err != nil {
		return nil, err
	}

	stats := &Stats{Total: len(paths), Skipped: skipped}
	if len(paths) == 0 {
		return stats, errkind.Newf(errkind.Validation, "indexer.Run", "archive contained no files to index")
	}

	existing, err := s.items.ListByJob(ctx, nil, jobID)
	if err != nil {
		return stats, errkind.New(errkind.Store, "indexer.Run", err)
	}
	seen := make(map[string]*types.DocumentItem, len(existing))
	for _, it := range existing {
		seen[it.SourcePath] = it
	}

	var (
		mu   sync.Mutex
		done int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.IndexConcurrency)
	for _, path := range paths {
		path := path
		rel := s.relPath(rootDir, path)
		if prior, ok := seen[rel]; ok {
			mu.Lock()
			stats.Resumed++
			done++
			if prior.Status == types.DocStatusIndexError {
				stats.Errors++
			} else {
				stats.Indexed++
				if prior.Summary != "" {
					stats.Summarized++
				}
			}
			mu.Unlock()
			continue
		}
		g.Go(func() error {
			if gctx.Err() != nil {
				return errkind.New(errkind.Cancelled, "indexer.Run", gctx.Err())
			}
			item := s.indexOne(gctx, jobID, rootDir, path)
			if _, err := s.items.CreateBatch(gctx, nil, []*types.DocumentItem{item}); err != nil {
				return errkind.New(errkind.Store, "indexer.Run", err)
			}

			mu.Lock()
			done++
			if item.Status == types.DocStatusIndexError {
				stats.Errors++
			} else {
				stats.Indexed++
				if item.Summary != "" {
					stats.Summarized++
				}
			}
			pct := done * 100 / len(paths)
			mu.Unlock()

			if report != nil {
				report(pct, fmt.Sprintf("indexed %d/%d files", done, len(paths)))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return stats, err
	}

	if float64(stats.Errors) > s.cfg.MaxIndexErrorRatio*float64(stats.Total) {
		return stats, errkind.Newf(errkind.Fatal, "indexer.Run",
			"%d of %d files failed to index", stats.Errors, stats.Total)
	}
	return stats, nil
}

func (s *Service) relPath(rootDir, path string) string {
	rel, err := filepath.Rel(rootDir, path)
	if err != nil {
		rel = path
	}
	return filepath.ToSlash(rel)
}

func (s *Service) collect(rootDir string) ([]string, int, error) {
	var paths []string
	skipped := 0
	err := filepath.Walk(rootDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		if !s.cfg.AllowsExtension(filepath.Ext(path)) {
			skipped++
			return nil
		}
		paths = append(paths, path)
		return nil
	})
	if err != nil {
		return nil, 0, errkind.New(errkind.IO, "indexer.collect", err)
	}
	return paths, skipped, nil
}

func (s *Service) indexOne(ctx context.Context, jobID uuid.UUID, rootDir, path string) *types.DocumentItem {
	rel := s.relPath(rootDir, path)
	item := &types.DocumentItem{
		JobID:      jobID,
		SourcePath: rel,
		FileName:   filepath.Base(path),
		Extension:  strings.ToLower(filepath.Ext(path)),
		Status:     types.DocStatusIndexed,
	}

	info, err := fingerprint.File(path)
	if err != nil {
		item.Status = types.DocStatusIndexError
		item.Notes = "fingerprint: " + err.Error()
		s.log.Warn("Fingerprint failed", "path", rel, "error", err)
		return item
	}
	item.ContentHash = info.ContentHash
	item.SizeBytes = info.SizeBytes
	item.ModTime = info.ModTime
	item.MimeType = info.MimeType

	text, err := s.extract.Text(ctx, path, item.Extension)
	switch {
	case err == nil:
		item.ExtractedChars = len([]rune(text))
	case errkind.Is(err, errkind.Unsupported):
		// binary or unknown type: indexed by filename only
		item.Notes = "no text extractor for " + item.Extension
	default:
		item.Notes = "extract: " + err.Error()
		s.log.Warn("Text extraction failed", "path", rel, "error", err)
	}

	if s.cfg.SummarizeEnabled && s.ollama != nil && text != "" {
		input := text
		if s.cfg.SummaryMaxChars > 0 && len([]rune(input)) > s.cfg.SummaryMaxChars {
			input = string([]rune(input)[:s.cfg.SummaryMaxChars])
		}
		desc, dErr := s.ollama.Describe(ctx, item.FileName, input)
		if dErr != nil {
			s.log.Warn("Describe failed, continuing without summary", "path", rel, "error", dErr)
		} else {
			item.Summary = desc.Summary
			item.DocumentType = desc.DocumentType
			if len(desc.KeyTopics) > 0 {
				if raw, mErr := json.Marshal(desc.KeyTopics); mErr == nil {
					item.KeyTopics = datatypes.JSON(raw)
				}
			}
		}
	}
	return item
}
