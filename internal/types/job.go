package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Job lifecycle statuses. Stage tracking lives in Stage; Status only says
// whether the controller may claim the row.
const (
	JobStatusQueued         = "queued"
	JobStatusRunning        = "running"
	JobStatusReviewRequired = "review_required"
	JobStatusCompleted      = "completed"
	JobStatusFailed         = "failed"
	JobStatusCancelled      = "cancelled"
	JobStatusRolledBack     = "rolled_back"
)

// Pipeline stages in execution order.
const (
	StageExtracting    = "extracting"
	StageIndexing      = "indexing"
	StageDeduplicating = "deduplicating"
	StageVersioning    = "versioning"
	StageOrganizing    = "organizing"
	StageExecuting     = "executing"
	StagePackaging     = "packaging"
)

type Job struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	Status      string         `gorm:"column:status;not null;default:'queued';index" json:"status"`
	Stage       string         `gorm:"column:stage" json:"stage"`
	Progress    int            `gorm:"column:progress;not null;default:0" json:"progress"`
	Message     string         `gorm:"column:message" json:"message"`
	Error       string         `gorm:"column:error" json:"error,omitempty"`
	ErrorKind   string         `gorm:"column:error_kind" json:"error_kind,omitempty"`
	Attempts    int            `gorm:"column:attempts;not null;default:0" json:"attempts"`
	LockedAt    *time.Time     `gorm:"column:locked_at" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time     `gorm:"column:heartbeat_at" json:"heartbeat_at,omitempty"`
	LastErrorAt *time.Time     `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	SourceZip   string         `gorm:"column:source_zip;not null" json:"source_zip"`
	WorkDir     string         `gorm:"column:work_dir" json:"work_dir"`
	OutputDir   string         `gorm:"column:output_dir" json:"output_dir"`
	OutputZip   string         `gorm:"column:output_zip" json:"output_zip,omitempty"`
	CallbackURL string         `gorm:"column:callback_url" json:"callback_url,omitempty"`
	DryRun      bool           `gorm:"column:dry_run;not null;default:false" json:"dry_run"`
	ReviewGate  bool           `gorm:"column:review_gate;not null;default:false" json:"review_gate"`
	Options     datatypes.JSON `gorm:"column:options;type:jsonb" json:"options,omitempty"`
	Result      datatypes.JSON `gorm:"column:result;type:jsonb" json:"result,omitempty"`
	CreatedAt   time.Time      `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null" json:"updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (Job) TableName() string { return "job" }

// Terminal reports whether no further transitions are allowed.
func (j *Job) Terminal() bool {
	switch j.Status {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled, JobStatusRolledBack:
		return true
	default:
		return false
	}
}
