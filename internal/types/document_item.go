package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentItem statuses.
const (
	DocStatusIndexed    = "indexed"
	DocStatusIndexError = "index_error"
	DocStatusDuplicate  = "duplicate"
	DocStatusSuperseded = "superseded"
	DocStatusCurrent    = "current"
	DocStatusOrganized  = "organized"
	DocStatusApplied    = "applied"
)

type DocumentItem struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	JobID          uuid.UUID      `gorm:"type:uuid;not null;index" json:"job_id"`
	Job            *Job           `gorm:"constraint:OnDelete:CASCADE;foreignKey:JobID;references:ID" json:"-"`
	SourcePath     string         `gorm:"column:source_path;not null" json:"source_path"`
	FileName       string         `gorm:"column:file_name;not null" json:"file_name"`
	Extension      string         `gorm:"column:extension;index" json:"extension"`
	MimeType       string         `gorm:"column:mime_type" json:"mime_type"`
	SizeBytes      int64          `gorm:"column:size_bytes" json:"size_bytes"`
	ModTime        time.Time      `gorm:"column:mod_time" json:"mod_time"`
	ContentHash    string         `gorm:"column:content_hash;index" json:"content_hash"`
	Summary        string         `gorm:"column:summary" json:"summary,omitempty"`
	DocumentType   string         `gorm:"column:document_type" json:"document_type,omitempty"`
	KeyTopics      datatypes.JSON `gorm:"column:key_topics;type:jsonb" json:"key_topics,omitempty"`
	ExtractedChars int            `gorm:"column:extracted_chars;not null;default:0" json:"extracted_chars"`
	Status         string         `gorm:"column:status;not null;default:'indexed';index" json:"status"`
	TargetDir      string         `gorm:"column:target_dir" json:"target_dir,omitempty"`
	TargetName     string         `gorm:"column:target_name" json:"target_name,omitempty"`
	FinalName      string         `gorm:"column:final_name" json:"final_name,omitempty"`
	FinalPath      string         `gorm:"column:final_path" json:"final_path,omitempty"`
	ChangesApplied datatypes.JSON `gorm:"column:changes_applied;type:jsonb" json:"changes_applied,omitempty"`
	Tags           datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags,omitempty"`
	Notes          string         `gorm:"column:notes" json:"notes,omitempty"`
	CreatedAt      time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt      gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (DocumentItem) TableName() string { return "document_item" }
