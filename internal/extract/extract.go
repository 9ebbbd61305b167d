package extract

import (
	"context"
	"io"
	"os"
	"strings"
	"unicode/utf8"

	"github.com/yungbote/organizer-backend/internal/localtools"
	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
	"github.com/yungbote/organizer-backend/internal/utils"
)

// Service turns a file on disk into summarizable text. Extractors are keyed
// by extension; anything unregistered yields an unsupported error that the
// indexer records on the item instead of failing the job.
type Service struct {
	log      *logger.Logger
	tools    localtools.Tools
	maxChars int
	byExt    map[string]extractor
}

type extractor func(ctx context.Context, path string) (string, error)

func NewService(log *logger.Logger, tools localtools.Tools) *Service {
	s := &Service{
		log:      log.With("component", "Extract"),
		tools:    tools,
		maxChars: utils.GetEnvAsInt("EXTRACT_MAX_CHARS", 20000, log),
	}
	s.byExt = map[string]extractor{
		".txt":  s.plainText,
		".md":   s.plainText,
		".csv":  s.plainText,
		".json": s.plainText,
		".xml":  s.plainText,
		".html": s.plainText,
		".log":  s.plainText,
		".pdf":  s.pdf,
		".doc":  s.office,
		".docx": s.office,
		".odt":  s.office,
		".rtf":  s.office,
		".xls":  s.office,
		".xlsx": s.office,
		".ppt":  s.office,
		".pptx": s.office,
	}
	return s
}

// Supported reports whether text can be extracted for the extension.
func (s *Service) Supported(ext string) bool {
	_, ok := s.byExt[strings.ToLower(ext)]
	return ok
}

func (s *Service) Text(ctx context.Context, path, ext string) (string, error) {
	fn, ok := s.byExt[strings.ToLower(ext)]
	if !ok {
		return "", errkind.Newf(errkind.Unsupported, "extract.Text", "no extractor for %q", ext)
	}
	text, err := fn(ctx, path)
	if err != nil {
		return "", err
	}
	return s.clean(text), nil
}

func (s *Service) plainText(_ context.Context, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", errkind.New(errkind.IO, "extract.plainText", err)
	}
	defer f.Close()

	// Read a little past the budget so clean() can truncate on a rune
	// boundary.
	buf := make([]byte, s.maxChars*4+16)
	n, err := io.ReadFull(f, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", errkind.New(errkind.IO, "extract.plainText", err)
	}
	return string(buf[:n]), nil
}

func (s *Service) pdf(ctx context.Context, path string) (string, error) {
	text, err := s.tools.PDFToText(ctx, path, 50)
	if err != nil {
		return "", errkind.New(errkind.Corrupt, "extract.pdf", err)
	}
	return text, nil
}

func (s *Service) office(ctx context.Context, path string) (string, error) {
	text, err := s.tools.OfficeToText(ctx, path, "")
	if err != nil {
		return "", errkind.New(errkind.Corrupt, "extract.office", err)
	}
	return text, nil
}

// clean strips NULs and invalid UTF-8, collapses whitespace runs, and
// truncates to the character budget.
func (s *Service) clean(text string) string {
	text = strings.ReplaceAll(text, "\x00", "")
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "")
	}
	text = strings.TrimSpace(text)
	if s.maxChars > 0 {
		runes := []rune(text)
		if len(runes) > s.maxChars {
			text = string(runes[:s.maxChars])
		}
	}
	return text
}
