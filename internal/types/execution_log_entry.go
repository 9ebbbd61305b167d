package types

import (
	"time"

	"github.com/google/uuid"
)

const (
	ExecActionCreateDir      = "create_dir"
	ExecActionCopy           = "copy"
	ExecActionRename         = "rename"
	ExecActionShortcut       = "shortcut"
	ExecActionDelete         = "delete"
	ExecActionVersionArchive = "version_archive"
	ExecActionManifest       = "manifest"
	ExecActionPackage        = "package"
	ExecActionRollback       = "rollback"

	ExecStatusOK      = "ok"
	ExecStatusError   = "error"
	ExecStatusSkipped = "skipped"
	ExecStatusDryRun  = "dry_run"
)

type ExecutionLogEntry struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	JobID      uuid.UUID `gorm:"type:uuid;not null;index" json:"job_id"`
	Job        *Job      `gorm:"constraint:OnDelete:CASCADE;foreignKey:JobID;references:ID" json:"-"`
	Step       int       `gorm:"column:step;not null;default:0" json:"step"`
	Action     string    `gorm:"column:action;not null" json:"action"`
	SourcePath string    `gorm:"column:source_path" json:"source_path,omitempty"`
	DestPath   string    `gorm:"column:dest_path" json:"dest_path,omitempty"`
	Status     string    `gorm:"column:status;not null" json:"status"`
	Detail     string    `gorm:"column:detail" json:"detail,omitempty"`
	CreatedAt  time.Time `gorm:"not null" json:"created_at"`
}

func (ExecutionLogEntry) TableName() string { return "execution_log_entry" }
