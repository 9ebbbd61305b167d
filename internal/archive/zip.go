package archive

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
)

// Junk entries produced by desktop archivers. Skipped, never extracted.
var junkBaseNames = map[string]bool{
	".DS_Store":   true,
	"Thumbs.db":   true,
	"desktop.ini": true,
}

type Options struct {
	MaxFileBytes  int64 // 0 means no per-file cap
	MaxTotalBytes int64 // 0 means no total cap
}

type ExtractReport struct {
	FilesExtracted int
	FilesSkipped   int
	BytesWritten   int64
	Skipped        []string
}

type Service struct {
	log  *logger.Logger
	opts Options
}

func NewService(log *logger.Logger, opts Options) *Service {
	return &Service{
		log:  log.With("component", "Archive"),
		opts: opts,
	}
}

// Extract unpacks zipPath under destDir. Symlink entries and archiver junk
// are skipped; an entry that would escape destDir fails the whole ingest,
// since a hostile archive is not something to partially extract.
func (s *Service) Extract(ctx context.Context, zipPath, destDir string) (*ExtractReport, error) {
	reader, err := zip.OpenReader(zipPath)
	if err != nil {
		return nil, errkind.Newf(errkind.Corrupt, "archive.Extract", "open %s: %v", zipPath, err)
	}
	defer reader.Close()

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, errkind.New(errkind.IO, "archive.Extract", err)
	}

	report := &ExtractReport{}
	for _, f := range reader.File {
		if ctx.Err() != nil {
			return report, errkind.New(errkind.Cancelled, "archive.Extract", ctx.Err())
		}
		skip, reason := shouldSkip(f)
		if skip {
			report.FilesSkipped++
			report.Skipped = append(report.Skipped, f.Name+" ("+reason+")")
			continue
		}

		target, ok := SafeJoin(destDir, f.Name)
		if !ok {
			return report, errkind.Newf(errkind.IO, "archive.Extract", "entry %q escapes destination", f.Name)
		}

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return report, errkind.New(errkind.IO, "archive.Extract", err)
			}
			continue
		}

		if s.opts.MaxFileBytes > 0 && int64(f.UncompressedSize64) > s.opts.MaxFileBytes {
			report.FilesSkipped++
			report.Skipped = append(report.Skipped, f.Name+" (too large)")
			continue
		}

		n, err := s.extractFile(f, target)
		if err != nil {
			return report, err
		}
		report.FilesExtracted++
		report.BytesWritten += n
		if s.opts.MaxTotalBytes > 0 && report.BytesWritten > s.opts.MaxTotalBytes {
			return report, errkind.Newf(errkind.Validation, "archive.Extract", "archive exceeds total size cap of %d bytes", s.opts.MaxTotalBytes)
		}
	}
	return report, nil
}

func (s *Service) extractFile(f *zip.File, target string) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return 0, errkind.New(errkind.IO, "archive.Extract", err)
	}
	src, err := f.Open()
	if err != nil {
		return 0, errkind.Newf(errkind.Corrupt, "archive.Extract", "open entry %s: %v", f.Name, err)
	}
	defer src.Close()

	dst, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, errkind.New(errkind.IO, "archive.Extract", err)
	}
	n, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		return n, errkind.Newf(errkind.Corrupt, "archive.Extract", "read entry %s: %v", f.Name, copyErr)
	}
	if closeErr != nil {
		return n, errkind.New(errkind.IO, "archive.Extract", closeErr)
	}
	if !f.Modified.IsZero() {
		_ = os.Chtimes(target, f.Modified, f.Modified)
	}
	return n, nil
}

func shouldSkip(f *zip.File) (bool, string) {
	name := f.Name
	if strings.HasPrefix(name, "__MACOSX/") || strings.Contains(name, "/__MACOSX/") {
		return true, "macos metadata"
	}
	if junkBaseNames[filepath.Base(name)] {
		return true, "junk file"
	}
	if f.Mode()&os.ModeSymlink != 0 {
		return true, "symlink"
	}
	return false, ""
}

// SafeJoin joins an archive entry name onto base and reports whether the
// result stays inside base.
func SafeJoin(base, name string) (string, bool) {
	name = filepath.FromSlash(name)
	if filepath.IsAbs(name) {
		return "", false
	}
	target := filepath.Join(base, name)
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return "", false
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return target, true
}

// Package zips srcDir into zipPath with deterministic entry order and
// forward-slash names.
func (s *Service) Package(ctx context.Context, srcDir, zipPath string) error {
	var files []string
	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return errkind.New(errkind.IO, "archive.Package", err)
	}
	sort.Strings(files)

	out, err := os.Create(zipPath)
	if err != nil {
		return errkind.New(errkind.IO, "archive.Package", err)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	for _, path := range files {
		if ctx.Err() != nil {
			_ = w.Close()
			return errkind.New(errkind.Cancelled, "archive.Package", ctx.Err())
		}
		if err := addToZip(w, srcDir, path); err != nil {
			_ = w.Close()
			return err
		}
	}
	if err := w.Close(); err != nil {
		return errkind.New(errkind.IO, "archive.Package", err)
	}
	return out.Sync()
}

func addToZip(w *zip.Writer, srcDir, path string) error {
	rel, err := filepath.Rel(srcDir, path)
	if err != nil {
		return errkind.New(errkind.IO, "archive.Package", err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return errkind.New(errkind.IO, "archive.Package", err)
	}
	hdr, err := zip.FileInfoHeader(info)
	if err != nil {
		return errkind.New(errkind.IO, "archive.Package", err)
	}
	hdr.Name = filepath.ToSlash(rel)
	hdr.Method = zip.Deflate

	dst, err := w.CreateHeader(hdr)
	if err != nil {
		return errkind.New(errkind.IO, "archive.Package", err)
	}
	src, err := os.Open(path)
	if err != nil {
		return errkind.New(errkind.IO, "archive.Package", err)
	}
	defer src.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("archive.Package: write %s: %w", rel, err)
	}
	return nil
}
