package localtools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/yungbote/organizer-backend/internal/logger"
)

// Tools wraps the system binaries used for text extraction.
//
// REQUIRED BINARIES in worker runtime:
// - pdftotext (poppler-utils) for PDF -> text
// - libreoffice (soffice) for DOC/DOCX/ODT/XLSX/PPTX -> text
//
// This service is synchronous and should be called from worker jobs, not
// request handlers.
type Tools interface {
	AssertReady(ctx context.Context) error

	PDFToText(ctx context.Context, pdfPath string, maxPages int) (string, error)
	OfficeToText(ctx context.Context, inputPath string, workDir string) (string, error)
}

type tools struct {
	log *logger.Logger

	pdftotextPath string
	sofficePath   string

	workRoot       string
	defaultTimeout time.Duration
}

func New(log *logger.Logger) Tools {
	return &tools{
		log:            log.With("service", "LocalTools"),
		pdftotextPath:  "pdftotext",
		sofficePath:    "soffice",
		workRoot:       "/tmp/organizer-extract",
		defaultTimeout: 5 * time.Minute,
	}
}

func (t *tools) AssertReady(ctx context.Context) error {
	for _, bin := range []string{t.pdftotextPath, t.sofficePath} {
		if _, err := exec.LookPath(bin); err != nil {
			return fmt.Errorf("missing required binary %q in PATH: %w", bin, err)
		}
	}
	if err := os.MkdirAll(t.workRoot, 0o755); err != nil {
		return fmt.Errorf("create workRoot: %w", err)
	}
	return nil
}

func (t *tools) PDFToText(ctx context.Context, pdfPath string, maxPages int) (string, error) {
	if pdfPath == "" {
		return "", fmt.Errorf("pdfPath required")
	}
	ctx, cancel := context.WithTimeout(ctx, t.defaultTimeout)
	defer cancel()

	args := []string{"-q", "-enc", "UTF-8"}
	if maxPages > 0 {
		args = append(args, "-f", "1", "-l", fmt.Sprint(maxPages))
	}
	// "-" sends the text to stdout.
	args = append(args, pdfPath, "-")

	cmd := exec.CommandContext(ctx, t.pdftotextPath, args...)
	out, err := cmd.Output()
	if err != nil {
		return "", fmt.Errorf("pdftotext failed for %s: %w", filepath.Base(pdfPath), err)
	}
	return string(out), nil
}

func (t *tools) OfficeToText(ctx context.Context, inputPath string, workDir string) (string, error) {
	if inputPath == "" {
		return "", fmt.Errorf("inputPath required")
	}
	if workDir == "" {
		workDir = t.workRoot
	}
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return "", fmt.Errorf("mkdir workDir: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, t.defaultTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, t.sofficePath,
		"--headless",
		"--nologo",
		"--nolockcheck",
		"--nodefault",
		"--norestore",
		"--convert-to", "txt:Text",
		"--outdir", workDir,
		inputPath,
	)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return "", fmt.Errorf("soffice convert failed: %w; out=%s", err, string(out))
	}

	base := strings.TrimSuffix(filepath.Base(inputPath), filepath.Ext(inputPath))
	txtPath := filepath.Join(workDir, base+".txt")
	data, readErr := os.ReadFile(txtPath)
	if readErr != nil {
		return "", fmt.Errorf("text output not found at %s: %w; soffice out=%s", txtPath, readErr, string(out))
	}
	defer os.Remove(txtPath)
	return string(data), nil
}
