package archive

import (
	"archive/zip"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/yungbote/organizer-backend/internal/logger"
	"github.com/yungbote/organizer-backend/internal/pkg/errkind"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("dev")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	return log
}

func writeZip(t *testing.T, dir string, entries map[string]string) string {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		f, err := w.Create(name)
		if err != nil {
			t.Fatalf("create entry %s: %v", name, err)
		}
		if _, err := f.Write([]byte(content)); err != nil {
			t.Fatalf("write entry %s: %v", name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close zip: %v", err)
	}
	path := filepath.Join(dir, "in.zip")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write zip: %v", err)
	}
	return path
}

func TestExtractSkipsJunk(t *testing.T) {
	dir := t.TempDir()
	zipPath := writeZip(t, dir, map[string]string{
		"docs/report.txt":    "hello",
		"docs/notes/todo.md": "- item",
		"__MACOSX/docs/._x":  "junk",
		"docs/.DS_Store":     "junk",
	})

	svc := NewService(testLogger(t), Options{})
	dest := filepath.Join(dir, "out")
	report, err := svc.Extract(context.Background(), zipPath, dest)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if report.FilesExtracted != 2 {
		t.Fatalf("extracted = %d, want 2 (skipped: %v)", report.FilesExtracted, report.Skipped)
	}
	if report.FilesSkipped != 2 {
		t.Fatalf("skipped = %d, want 2 (%v)", report.FilesSkipped, report.Skipped)
	}
	if _, err := os.Stat(filepath.Join(dest, "docs", "report.txt")); err != nil {
		t.Fatalf("expected extracted file: %v", err)
	}
}

func TestExtractRejectsEscapingEntries(t *testing.T) {
	cases := []string{"../escape.txt", "nested/../../other.txt", "/abs/entry.txt"}
	for _, entry := range cases {
		dir := t.TempDir()
		zipPath := writeZip(t, dir, map[string]string{
			"docs/report.txt": "hello",
			entry:             "bad",
		})

		svc := NewService(testLogger(t), Options{})
		_, err := svc.Extract(context.Background(), zipPath, filepath.Join(dir, "out"))
		if err == nil {
			t.Fatalf("entry %q: expected error", entry)
		}
		if errkind.KindOf(err) != errkind.IO {
			t.Fatalf("entry %q: kind = %s, want io", entry, errkind.KindOf(err))
		}
		if _, statErr := os.Stat(filepath.Join(dir, "escape.txt")); !os.IsNotExist(statErr) {
			t.Fatal("escape.txt must not exist outside dest")
		}
	}
}

func TestExtractCorruptArchive(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.zip")
	if err := os.WriteFile(bad, []byte("this is not a zip"), 0o644); err != nil {
		t.Fatal(err)
	}
	svc := NewService(testLogger(t), Options{})
	_, err := svc.Extract(context.Background(), bad, filepath.Join(dir, "out"))
	if err == nil {
		t.Fatal("expected error for corrupt archive")
	}
	if errkind.KindOf(err) != errkind.Corrupt {
		t.Fatalf("kind = %s, want corrupt", errkind.KindOf(err))
	}
}

func TestSafeJoin(t *testing.T) {
	cases := []struct {
		name string
		ok   bool
	}{
		{"a/b.txt", true},
		{"a/../b.txt", true},
		{"../outside.txt", false},
		{"a/../../outside.txt", false},
		{"/abs/path.txt", false},
	}
	for _, tc := range cases {
		_, ok := SafeJoin("/base/dir", tc.name)
		if ok != tc.ok {
			t.Errorf("SafeJoin(%q) ok = %v, want %v", tc.name, ok, tc.ok)
		}
	}
}

func TestPackageRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	if err := os.MkdirAll(filepath.Join(src, "sub"), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "a.txt"), []byte("alpha"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "sub", "b.txt"), []byte("beta"), 0o644); err != nil {
		t.Fatal(err)
	}

	svc := NewService(testLogger(t), Options{})
	zipPath := filepath.Join(dir, "out.zip")
	if err := svc.Package(context.Background(), src, zipPath); err != nil {
		t.Fatalf("package: %v", err)
	}

	dest := filepath.Join(dir, "roundtrip")
	report, err := svc.Extract(context.Background(), zipPath, dest)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if report.FilesExtracted != 2 {
		t.Fatalf("extracted = %d, want 2", report.FilesExtracted)
	}
	got, err := os.ReadFile(filepath.Join(dest, "sub", "b.txt"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "beta" {
		t.Fatalf("content = %q", got)
	}
}
