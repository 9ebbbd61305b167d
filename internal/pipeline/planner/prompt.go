package planner

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/yungbote/organizer-backend/internal/types"
)

const systemPrompt = `You are organizing a document archive into a clean folder tree.

Rules:
- Every file listed must receive exactly one assignment.
- target_dir is an absolute path inside the archive, starting with "/", at most 4 levels deep.
- target_name may be null to keep the original file name. Never change the file extension.
- Files you cannot classify go to "/_Uncategorized".
- Binary files with no summary are classified by file name and extension.
- Tags are lowercase, hyphen-separated, hierarchical with "/" and at most 3 levels (e.g. "finance/reports/quarterly").
- Propose a directory tree that groups related documents; avoid single-file folders where a sibling fits.

Reply with a single JSON object:
{
  "summary": "<one paragraph describing the organization>",
  "directories": [{"path": "/Example", "description": "<what goes here>"}],
  "assignments": [{"source_path": "<as given>", "target_dir": "/Example", "target_name": null, "tags": ["topic/subtopic"]}],
  "naming_schema": {"pattern": "<short description of the naming convention>", "separator": "-", "case": "kebab", "date_format": "2006-01-02"},
  "tag_taxonomy": {"tags": [{"name": "topic", "children": [{"name": "subtopic"}]}]}
}`

type digestEntry struct {
	Path     string `json:"path"`
	Type     string `json:"type,omitempty"`
	Size     int64  `json:"size"`
	Modified string `json:"modified"`
	Summary  string `json:"summary,omitempty"`
	Version  string `json:"version,omitempty"`
}

// buildDigest renders the corpus for the model: one entry per file that will
// be placed, with whatever context indexing produced.
func buildDigest(items []*types.DocumentItem, versionInfo map[string]string) (string, error) {
	entries := make([]digestEntry, 0, len(items))
	for _, it := range items {
		e := digestEntry{
			Path:     it.SourcePath,
			Type:     it.MimeType,
			Size:     it.SizeBytes,
			Modified: it.ModTime.Format("2006-01-02"),
			Summary:  truncate(it.Summary, 300),
		}
		if v, ok := versionInfo[it.SourcePath]; ok {
			e.Version = v
		}
		entries = append(entries, e)
	}
	raw, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Organize these %d files.\n\nFiles:\n", len(entries))
	sb.Write(raw)
	sb.WriteString("\n\nReturn the JSON object now.")
	return sb.String(), nil
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
