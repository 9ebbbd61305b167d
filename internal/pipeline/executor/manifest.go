package executor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const manifestFileName = "_manifest.json"
const versionHistoryFileName = "version_history.json"

type ManifestStatistics struct {
	TotalFiles         int `json:"total_files"`
	DirectoriesCreated int `json:"directories_created"`
	FilesCopied        int `json:"files_copied"`
	FilesRenamed       int `json:"files_renamed"`
	ShortcutsCreated   int `json:"shortcuts_created"`
	DuplicatesDeleted  int `json:"duplicates_deleted"`
	VersionArchives    int `json:"version_archives"`
	Errors             int `json:"errors"`
}

type ManifestOperation struct {
	Action string `json:"action"`
	Source string `json:"source,omitempty"`
	Dest   string `json:"dest,omitempty"`
	Detail string `json:"detail,omitempty"`
}

type Manifest struct {
	JobID      uuid.UUID           `json:"job_id"`
	ExecutedAt time.Time           `json:"executed_at"`
	DryRun     bool                `json:"dry_run"`
	SourceZip  string              `json:"source_zip"`
	Statistics ManifestStatistics  `json:"statistics"`
	Operations []ManifestOperation `json:"operations"`
	Shortcuts  []ManifestOperation `json:"shortcuts"`
	Errors     []string            `json:"errors"`
}

func (m *Manifest) write(outputDir string) error {
	raw, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(outputDir, manifestFileName), raw, 0o644)
}

// versionHistory is the sidecar dropped next to each version archive.
type versionHistory struct {
	DocumentName    string                `json:"document_name"`
	CurrentVersion  int                   `json:"current_version"`
	CurrentFile     string                `json:"current_file"`
	ArchivePath     string                `json:"archive_path"`
	ArchiveStrategy string                `json:"archive_strategy"`
	Versions        []versionHistoryEntry `json:"versions"`
	GeneratedAt     time.Time             `json:"generated_at"`
}

type versionHistoryEntry struct {
	Version int    `json:"version"`
	File    string `json:"file"`
	Date    string `json:"date,omitempty"`
	Status  string `json:"status,omitempty"`
}
